package bolt

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/goodtune/reelfocus/internal/storage"
	"go.etcd.io/bbolt"
)

type historyStore struct {
	db *bbolt.DB
}

// historyKey orders entries by end time so cursors walk them chronologically.
func historyKey(entry storage.HistoryEntry) []byte {
	return []byte(fmt.Sprintf("%020d-%s", entry.EndTime.UnixNano(), entry.ID))
}

func timeKeyPrefix(t time.Time) []byte {
	return []byte(fmt.Sprintf("%020d", t.UnixNano()))
}

func (s *historyStore) Append(ctx context.Context, entry storage.HistoryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("history entry requires an id")
	}
	data, err := marshal(entry)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketHistory))
		if b == nil {
			return fmt.Errorf("history bucket missing")
		}
		return b.Put(historyKey(entry), data)
	})
}

func (s *historyStore) List(ctx context.Context, filter storage.HistoryFilter) ([]storage.HistoryEntry, error) {
	entries := make([]storage.HistoryEntry, 0)
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketHistory))
		if b == nil {
			return nil
		}
		var stop []byte
		if filter.Since != nil {
			stop = timeKeyPrefix(*filter.Since)
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if stop != nil && bytes.Compare(k, stop) < 0 {
				break
			}
			var entry storage.HistoryEntry
			if err := unmarshal(v, &entry); err != nil {
				return err
			}
			if !filter.Match(entry) {
				continue
			}
			entries = append(entries, entry)
			if filter.Limit > 0 && len(entries) >= filter.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *historyStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	deleted := 0
	limit := timeKeyPrefix(cutoff)
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketHistory))
		if b == nil {
			return nil
		}
		var keys [][]byte
		c := b.Cursor()
		for k, _ := c.First(); k != nil && bytes.Compare(k, limit) < 0; k, _ = c.Next() {
			keys = append(keys, append([]byte(nil), k...))
		}
		for _, k := range keys {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})
	return deleted, err
}

func (s *historyStore) Clear(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if tx.Bucket([]byte(bucketHistory)) != nil {
			if err := tx.DeleteBucket([]byte(bucketHistory)); err != nil {
				return fmt.Errorf("delete history bucket: %w", err)
			}
		}
		_, err := tx.CreateBucket([]byte(bucketHistory))
		return err
	})
}
