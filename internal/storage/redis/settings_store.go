package redis

import (
	"context"

	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/redis/go-redis/v9"
)

type settingsStore struct {
	client *redis.Client
}

// GetConfig retrieves the quota configuration
func (s *settingsStore) GetConfig(ctx context.Context) (*storage.AppConfig, error) {
	data, err := s.client.HGetAll(ctx, keyConfig).Result()
	if err != nil {
		return nil, err
	}
	return parseAppConfig(data)
}

// PutConfig writes the whole configuration in a single HSET
func (s *settingsStore) PutConfig(ctx context.Context, cfg storage.AppConfig) error {
	fields, err := configFields(cfg)
	if err != nil {
		return err
	}
	return s.client.HSet(ctx, keyConfig, fields).Err()
}

// GetSessionState retrieves the session record
func (s *settingsStore) GetSessionState(ctx context.Context) (*storage.SessionState, error) {
	data, err := s.client.HGetAll(ctx, keySessionState).Result()
	if err != nil {
		return nil, err
	}
	return parseSessionState(data)
}

// PutSessionState writes the whole session record in a single HSET
func (s *settingsStore) PutSessionState(ctx context.Context, state storage.SessionState) error {
	return s.client.HSet(ctx, keySessionState, stateFields(state)).Err()
}

// Initialized reports whether defaults have already been seeded
func (s *settingsStore) Initialized(ctx context.Context) (bool, error) {
	n, err := s.client.Exists(ctx, keyInitialized).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// MarkInitialized records that defaults have been seeded
func (s *settingsStore) MarkInitialized(ctx context.Context) error {
	return s.client.Set(ctx, keyInitialized, "1", 0).Err()
}
