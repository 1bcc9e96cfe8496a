package importer

import (
	"strings"
	"testing"

	"github.com/poiesic/reposit/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatOf(t *testing.T) {
	f, err := FormatOf("people.YAML")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = FormatOf("dir/people.yml")
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	f, err = FormatOf("people.json")
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)
	assert.Equal(t, "json", f.String())

	_, err = FormatOf("people.csv")
	assert.ErrorIs(t, err, ErrUnknownFormat)
}

func TestDecodeYAMLStream(t *testing.T) {
	in := `
id: "1"
name: Ada
age: 36
address:
  city: London
---
- {id: "2", name: Alan, age: 41}
- id: "3"
  name: Grace
  tags: [navy, cobol]
---
`
	records, err := Decode(strings.NewReader(in), FormatYAML)
	require.NoError(t, err)
	require.Len(t, records, 3)

	assert.Equal(t, "Ada", records[0]["name"])
	assert.Equal(t, int64(36), records[0]["age"])
	assert.Equal(t, core.Record{"city": "London"}, records[0]["address"])
	assert.Equal(t, "Alan", records[1]["name"])
	assert.Equal(t, []any{"navy", "cobol"}, records[2]["tags"])
}

func TestDecodeJSON(t *testing.T) {
	in := `[{"id": "1", "name": "Ada", "score": 9.5, "active": true}]`
	records, err := Decode(strings.NewReader(in), FormatJSON)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, 9.5, records[0]["score"])
	assert.Equal(t, true, records[0]["active"])
}

func TestDecodeRejectsNonMappings(t *testing.T) {
	_, err := Decode(strings.NewReader("just a string\n"), FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidDocument)

	_, err = Decode(strings.NewReader("- {a: 1}\n- 2\n"), FormatYAML)
	assert.ErrorIs(t, err, ErrInvalidDocument)
	assert.Contains(t, err.Error(), "item 1")

	_, err = Decode(strings.NewReader("{broken"), FormatJSON)
	assert.Error(t, err)
}
