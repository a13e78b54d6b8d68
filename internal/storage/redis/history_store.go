package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goodtune/reelfocus/internal/storage"
	"github.com/redis/go-redis/v9"
)

// DefaultHistoryTTL applies when no retention window is configured.
const DefaultHistoryTTL = 90 * 24 * time.Hour

type historyStore struct {
	client       *redis.Client
	ttl          time.Duration
	appendScript *redis.Script
	deleteScript *redis.Script
	clearScript  *redis.Script
}

// newHistoryStore expires entry hashes after ttl so they age out with the
// retention window even if pruning never runs.
func newHistoryStore(client *redis.Client, ttl time.Duration) *historyStore {
	if ttl <= 0 {
		ttl = DefaultHistoryTTL
	}
	return &historyStore{
		client:       client,
		ttl:          ttl,
		appendScript: redis.NewScript(appendHistoryScript),
		deleteScript: redis.NewScript(deleteHistoryBeforeScript),
		clearScript:  redis.NewScript(clearHistoryScript),
	}
}

func entryKey(id string) string {
	return fmt.Sprintf(keyHistoryEntry, id)
}

func entryPrefix() string {
	return fmt.Sprintf(keyHistoryEntry, "")
}

// Append stores a history entry
func (s *historyStore) Append(ctx context.Context, entry storage.HistoryEntry) error {
	if entry.ID == "" {
		return fmt.Errorf("history entry requires an id")
	}

	keys := []string{entryKey(entry.ID), keyHistoryIndex}
	args := []interface{}{
		entry.ID,
		entry.EndTime.UnixMilli(),
		int64(s.ttl.Seconds()),
		entry.AppName,
		entry.AppPackage,
		formatTime(entry.StartTime),
		formatTime(entry.EndTime),
		entry.DurationSeconds,
		string(entry.LimitType),
		entry.LimitValue,
		entry.ExtensionsUsed,
		formatBool(entry.Completed),
		entry.Date,
	}

	return s.appendScript.Run(ctx, s.client, keys, args...).Err()
}

// List returns entries most recent first
func (s *historyStore) List(ctx context.Context, filter storage.HistoryFilter) ([]storage.HistoryEntry, error) {
	minScore := "-inf"
	if filter.Since != nil {
		minScore = strconv.FormatInt(filter.Since.UnixMilli(), 10)
	}

	ids, err := s.client.ZRevRangeByScore(ctx, keyHistoryIndex, &redis.ZRangeBy{
		Min: minScore,
		Max: "+inf",
	}).Result()
	if err != nil {
		return nil, err
	}

	if len(ids) == 0 {
		return []storage.HistoryEntry{}, nil
	}

	// Use pipeline for efficient batch retrieval
	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, entryKey(id))
	}

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, err
	}

	entries := make([]storage.HistoryEntry, 0, len(ids))
	for _, cmd := range cmds {
		data, err := cmd.Result()
		if err != nil || len(data) == 0 {
			// Expired entry hash; the index is cleaned up by DeleteBefore.
			continue
		}

		entry, err := parseHistoryEntry(data)
		if err != nil {
			return nil, err
		}
		if !filter.Match(*entry) {
			continue
		}
		entries = append(entries, *entry)
		if filter.Limit > 0 && len(entries) >= filter.Limit {
			break
		}
	}

	return entries, nil
}

// DeleteBefore removes entries that ended before cutoff
func (s *historyStore) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	keys := []string{keyHistoryIndex}
	deleted, err := s.deleteScript.Run(ctx, s.client, keys, entryPrefix(), cutoff.UnixMilli()).Int()
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// Clear removes every history entry
func (s *historyStore) Clear(ctx context.Context) error {
	keys := []string{keyHistoryIndex}
	return s.clearScript.Run(ctx, s.client, keys, entryPrefix()).Err()
}
