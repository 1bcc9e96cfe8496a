package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/mapping"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCrud(t *testing.T) *Crud {
	t.Helper()
	c, err := NewCrud(personEntity(), newBadger(t), nil)
	require.NoError(t, err)
	c.newID = func() string { return "generated" }
	return c
}

func TestNewCrud(t *testing.T) {
	_, err := NewCrud(nil, newBadger(t), nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
	_, err = NewCrud(personEntity(), nil, nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
}

func TestCrudSaveGeneratesIDs(t *testing.T) {
	ctx := context.Background()
	c := newCrud(t)

	p := &person{Name: "Ada"}
	require.NoError(t, c.Save(ctx, p))
	assert.Equal(t, "generated", p.ID)

	rec, ok, err := c.FindByID(ctx, "generated")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Ada", rec["name"])

	// Values are saved but cannot receive the identifier.
	v := person{Name: "Alan"}
	require.NoError(t, c.Save(ctx, v))
	assert.Empty(t, v.ID)
}

func TestCrudSaveAll(t *testing.T) {
	ctx := context.Background()
	c := newCrud(t)

	require.NoError(t, c.SaveAll(ctx))
	require.NoError(t, c.SaveAll(ctx, &person{ID: "1", Name: "Ada"}, person{ID: "2", Name: "Alan"}))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	var nilPerson *person
	assert.ErrorIs(t, c.SaveAll(ctx, &person{ID: "3"}, nilPerson), core.ErrNilArgument)
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "a failed batch stores nothing")
}

func TestCrudSaveWithTTLRejectsNonPositive(t *testing.T) {
	ctx := context.Background()
	c := newCrud(t)

	for _, ttl := range []time.Duration{0, -time.Second} {
		err := c.SaveWithTTL(ctx, ttl, &person{ID: "1", Name: "Ada"})
		assert.ErrorIs(t, err, core.ErrInvalidQuery, "ttl %s", ttl)
	}
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "nothing is stored without an expiry")

	require.NoError(t, c.SaveWithTTL(ctx, time.Hour, &person{ID: "1", Name: "Ada"}))
	n, err = c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCrudNumericIdentifiers(t *testing.T) {
	type ticket struct {
		ID    int64
		Title string
	}
	ctx := context.Background()
	c, err := NewCrud(mapping.MustFromStruct[ticket](), newBadger(t), nil)
	require.NoError(t, err)

	require.NoError(t, c.Save(ctx, ticket{ID: 7, Title: "seven"}))
	// Identifiers are normalized, so any integer type finds the record.
	ok, err := c.ExistsByID(ctx, 7)
	require.NoError(t, err)
	assert.True(t, ok)

	q, err := c.IDQuery(int32(7))
	require.NoError(t, err)
	assert.Equal(t, core.Select("ticket").Filter(core.Eq("id", int64(7))).String(), q.String())
}

func TestCrudWithoutIdentifier(t *testing.T) {
	type note struct {
		Text string
	}
	ctx := context.Background()
	c, err := NewCrud(mapping.MustFromStruct[note](), newBadger(t), nil)
	require.NoError(t, err)

	require.NoError(t, c.Save(ctx, note{Text: "a"}))
	require.NoError(t, c.Save(ctx, note{Text: "a"}))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "records without identifiers always append")

	_, _, err = c.FindByID(ctx, "x")
	assert.ErrorIs(t, err, core.ErrIDNotFound)
	assert.ErrorIs(t, c.DeleteByID(ctx, "x"), core.ErrIDNotFound)
}

func TestCrudFindAllSortsAndPages(t *testing.T) {
	ctx := context.Background()
	c := newCrud(t)
	require.NoError(t, c.SaveAll(ctx,
		person{ID: "1", Name: "Ada", Age: 36},
		person{ID: "2", Name: "Alan", Age: 41},
		person{ID: "3", Name: "Grace", Age: 85},
	))

	records, err := c.FindAll(ctx, core.By(core.Descending("age")), core.Limit(2))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "Grace", records[0]["name"])
	assert.Equal(t, "Alan", records[1]["name"])

	assert.ErrorIs(t, c.Delete(ctx, nil), core.ErrNilArgument)
	require.NoError(t, c.Delete(ctx, person{ID: "3"}))
	n, err := c.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	_, err = c.IDQuery(nil)
	assert.ErrorIs(t, err, core.ErrNilArgument)
}
