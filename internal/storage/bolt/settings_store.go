package bolt

import (
	"context"

	"github.com/goodtune/reelfocus/internal/storage"
	"go.etcd.io/bbolt"
)

type settingsStore struct {
	db *bbolt.DB
}

func (s *settingsStore) GetConfig(ctx context.Context) (*storage.AppConfig, error) {
	return getBucketValue[storage.AppConfig](ctx, s.db, bucketSettings, keyConfig)
}

func (s *settingsStore) PutConfig(ctx context.Context, cfg storage.AppConfig) error {
	return putBucketValue(ctx, s.db, bucketSettings, keyConfig, cfg)
}

func (s *settingsStore) GetSessionState(ctx context.Context) (*storage.SessionState, error) {
	return getBucketValue[storage.SessionState](ctx, s.db, bucketSettings, keySessionState)
}

func (s *settingsStore) PutSessionState(ctx context.Context, state storage.SessionState) error {
	return putBucketValue(ctx, s.db, bucketSettings, keySessionState, state)
}

func (s *settingsStore) Initialized(ctx context.Context) (bool, error) {
	initialized := false
	err := s.db.View(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSettings))
		if b == nil {
			return nil
		}
		initialized = string(b.Get([]byte(keyInitialized))) == "1"
		return nil
	})
	return initialized, err
}

func (s *settingsStore) MarkInitialized(ctx context.Context) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		b := tx.Bucket([]byte(bucketSettings))
		if b == nil {
			return storage.ErrNotFound
		}
		return b.Put([]byte(keyInitialized), []byte("1"))
	})
}
