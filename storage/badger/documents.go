package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/poiesic/reposit/core"
	"github.com/poiesic/reposit/storage"
)

// storedRecord is a record read back from the database with the keys
// needed to delete it.
type storedRecord struct {
	key    []byte
	idHash []byte
	record core.Record
}

// scan iterates target's records in insertion order, calling fn for each
// record matching cond.
func (b *Backend) scan(tx *badger.Txn, target string, cond core.Condition, fn func(storedRecord) error) error {
	prefix := makeRecordPrefix(target)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	iter := tx.NewIterator(opts)
	defer iter.Close()

	for iter.Rewind(); iter.Valid(); iter.Next() {
		item := iter.Item()
		// Skip keys of other targets that share this prefix ("a" vs "a:b")
		if len(item.Key()) != len(prefix)+8 {
			continue
		}

		var sr storedRecord
		err := item.Value(func(val []byte) error {
			idHash, data, err := decodeEnvelope(val)
			if err != nil {
				return err
			}
			rec, err := storage.UnmarshalRecord(data)
			if err != nil {
				return err
			}
			sr.idHash = bytes.Clone(idHash)
			sr.record = rec
			return nil
		})
		if err != nil {
			return fmt.Errorf("%w: %s: %w", storage.ErrSerializationFailed, target, err)
		}

		ok, err := storage.Match(cond, sr.record)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		sr.key = item.KeyCopy(nil)
		if err := fn(sr); err != nil {
			return err
		}
	}
	return nil
}

// Select returns the records of q.Target matching q.Where, in insertion
// order unless q.Sort says otherwise.
func (b *Backend) Select(ctx context.Context, q *core.Query) ([]core.Record, error) {
	if err := core.ValidateQuery(q); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []core.Record
	err := b.WithTx(func(tx *badger.Txn) error {
		return b.scan(tx, q.Target, q.Where, func(sr storedRecord) error {
			records = append(records, sr.record)
			return nil
		})
	}, false)
	if err != nil {
		return nil, err
	}

	storage.SortRecords(records, q.Sort)
	return storage.ApplyPage(records, q.Page), nil
}

// Delete removes the records of q.Target matching q.Where together with
// their identifier index entries.
func (b *Backend) Delete(ctx context.Context, q *core.DeleteQuery) error {
	if err := core.ValidateDeleteQuery(q); err != nil {
		return err
	}
	return b.retryConflicts(ctx, func() error {
		return b.WithTx(func(tx *badger.Txn) error {
			var doomed []storedRecord
			err := b.scan(tx, q.Target, q.Where, func(sr storedRecord) error {
				doomed = append(doomed, sr)
				return nil
			})
			if err != nil {
				return err
			}
			for _, sr := range doomed {
				if err := tx.Delete(sr.key); err != nil {
					return err
				}
				if len(sr.idHash) > 0 {
					if err := tx.Delete(makeIDIndexKey(q.Target, sr.idHash)); err != nil {
						return err
					}
				}
			}
			if len(doomed) > 0 {
				b.logger.Debug("deleted records", "target", q.Target, "count", len(doomed))
			}
			return tx.Commit()
		}, true)
	})
}

// Save upserts records into target by the value under idKey.
func (b *Backend) Save(ctx context.Context, target, idKey string, records ...core.Record) error {
	return b.save(ctx, target, idKey, 0, records)
}

// SaveWithTTL is Save for records that expire after ttl. Expired records
// and their index entries are no longer returned.
func (b *Backend) SaveWithTTL(ctx context.Context, target, idKey string, ttl time.Duration, records ...core.Record) error {
	if ttl <= 0 {
		return fmt.Errorf("%w: ttl must be positive, got %s", core.ErrInvalidQuery, ttl)
	}
	return b.save(ctx, target, idKey, ttl, records)
}

func (b *Backend) save(ctx context.Context, target, idKey string, ttl time.Duration, records []core.Record) error {
	if target == "" {
		return fmt.Errorf("%w: empty target", core.ErrInvalidQuery)
	}
	if len(records) == 0 {
		return nil
	}

	// Encode outside the transaction so retries only redo the writes.
	type pending struct {
		idHash []byte
		data   []byte
	}
	batch := make([]pending, len(records))
	for i, rec := range records {
		if rec == nil {
			return fmt.Errorf("%w: record %d", core.ErrNilArgument, i)
		}
		data, err := storage.MarshalRecord(rec)
		if err != nil {
			return err
		}
		batch[i].data = data
		if idKey == "" {
			continue
		}
		if id, ok := rec[idKey]; ok && id != nil {
			if batch[i].idHash, err = hashID(id); err != nil {
				return err
			}
		}
	}

	return b.retryConflicts(ctx, func() error {
		return b.WithTx(func(tx *badger.Txn) error {
			for _, p := range batch {
				key, err := b.recordKeyFor(tx, target, p.idHash)
				if err != nil {
					return err
				}
				if err := b.setEntry(tx, key, encodeEnvelope(p.idHash, p.data), ttl); err != nil {
					return err
				}
				if len(p.idHash) > 0 {
					if err := b.setEntry(tx, makeIDIndexKey(target, p.idHash), key, ttl); err != nil {
						return err
					}
				}
			}
			return tx.Commit()
		}, true)
	})
}

// recordKeyFor returns the key of the stored record with the given id hash,
// or a fresh key when there is none.
func (b *Backend) recordKeyFor(tx *badger.Txn, target string, idHash []byte) ([]byte, error) {
	if len(idHash) > 0 {
		item, err := tx.Get(makeIDIndexKey(target, idHash))
		switch {
		case err == nil:
			return item.ValueCopy(nil)
		case !errors.Is(err, badger.ErrKeyNotFound):
			return nil, err
		}
	}
	seq, err := b.nextSeq(target)
	if err != nil {
		return nil, err
	}
	return makeRecordKey(target, seq), nil
}

func (b *Backend) setEntry(tx *badger.Txn, key, value []byte, ttl time.Duration) error {
	entry := badger.NewEntry(key, value)
	if ttl > 0 {
		entry = entry.WithTTL(ttl)
	}
	return tx.SetEntry(entry)
}

// SelectAsync runs Select on the backend's worker pool.
func (b *Backend) SelectAsync(ctx context.Context, q *core.Query, done func([]core.Record, error)) error {
	if done == nil {
		return fmt.Errorf("%w: callback", core.ErrNilArgument)
	}
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.pool.Submit(func() {
		done(b.Select(ctx, q))
	})
}

// DeleteAsync runs Delete on the backend's worker pool.
func (b *Backend) DeleteAsync(ctx context.Context, q *core.DeleteQuery, done func(error)) error {
	if done == nil {
		return fmt.Errorf("%w: callback", core.ErrNilArgument)
	}
	if b.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return b.pool.Submit(func() {
		done(b.Delete(ctx, q))
	})
}
