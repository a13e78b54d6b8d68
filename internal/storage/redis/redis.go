package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/goodtune/reelfocus/internal/config"
	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/redis/go-redis/v9"
)

const (
	keyConfig       = "reelfocus:config"
	keySessionState = "reelfocus:state"
	keyInitialized  = "reelfocus:initialized"
	keyHistoryIndex = "reelfocus:history"
	keyHistoryEntry = "reelfocus:history:entry:%s"
)

// Store implements the storage.Store interface using Redis
type Store struct {
	client        *redis.Client
	settingsStore *settingsStore
	historyStore  *historyStore
}

// Open creates a new Redis-backed storage instance. History entries expire
// after historyRetention; zero selects DefaultHistoryTTL.
func Open(cfg config.RedisConfig, historyRetention time.Duration) (*Store, error) {
	// Parse timeouts
	dialTimeout, err := time.ParseDuration(cfg.DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid dial_timeout: %w", err)
	}

	readTimeout, err := time.ParseDuration(cfg.ReadTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid read_timeout: %w", err)
	}

	writeTimeout, err := time.ParseDuration(cfg.WriteTimeout)
	if err != nil {
		return nil, fmt.Errorf("invalid write_timeout: %w", err)
	}

	addr := cfg.Host
	if cfg.Port > 0 {
		addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  dialTimeout,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	})

	// Ping to verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Store{
		client:        client,
		settingsStore: &settingsStore{client: client},
		historyStore:  newHistoryStore(client, historyRetention),
	}, nil
}

// Close closes the Redis connection
func (s *Store) Close() error {
	return s.client.Close()
}

// Settings returns the SettingsStore implementation
func (s *Store) Settings() storage.SettingsStore {
	return s.settingsStore
}

// History returns the HistoryStore implementation
func (s *Store) History() storage.HistoryStore {
	return s.historyStore
}
