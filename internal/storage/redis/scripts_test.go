package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a miniredis instance for testing Lua scripts
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})

	return client, mr
}

func runAppend(ctx context.Context, t *testing.T, client *redis.Client, id string, score int64, ttl int64) {
	t.Helper()

	script := redis.NewScript(appendHistoryScript)
	keys := []string{entryKey(id), keyHistoryIndex}
	args := []interface{}{id, score, ttl, "App", "com.app", "", "", 60, "TIME", 1, 0, "1", "2024-01-01"}
	if err := script.Run(ctx, client, keys, args...).Err(); err != nil {
		t.Fatalf("append script failed: %v", err)
	}
}

func TestAppendHistoryScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	tests := []struct {
		name    string
		id      string
		score   int64
		ttl     int64
		wantTTL bool
	}{
		{name: "entry with ttl", id: "a", score: 1000, ttl: 3600, wantTTL: true},
		{name: "entry without ttl", id: "b", score: 2000, ttl: 0, wantTTL: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runAppend(ctx, t, client, tt.id, tt.score, tt.ttl)

			if got := mr.HGet(entryKey(tt.id), "id"); got != tt.id {
				t.Errorf("Expected id field %s, got %s", tt.id, got)
			}
			if got := mr.HGet(entryKey(tt.id), "completed"); got != "1" {
				t.Errorf("Expected completed field 1, got %s", got)
			}

			score, err := mr.ZScore(keyHistoryIndex, tt.id)
			if err != nil {
				t.Fatalf("ZScore failed: %v", err)
			}
			if int64(score) != tt.score {
				t.Errorf("Expected score %d, got %v", tt.score, score)
			}

			hasTTL := mr.TTL(entryKey(tt.id)) > 0
			if hasTTL != tt.wantTTL {
				t.Errorf("Expected ttl presence %v, got %v", tt.wantTTL, hasTTL)
			}
		})
	}
}

func TestDeleteHistoryBeforeScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	runAppend(ctx, t, client, "first", 100, 0)
	runAppend(ctx, t, client, "second", 200, 0)
	runAppend(ctx, t, client, "third", 300, 0)

	script := redis.NewScript(deleteHistoryBeforeScript)
	deleted, err := script.Run(ctx, client, []string{keyHistoryIndex}, entryPrefix(), 200).Int()
	if err != nil {
		t.Fatalf("delete script failed: %v", err)
	}

	// The cutoff is exclusive: an entry ending exactly at the cutoff survives.
	if deleted != 1 {
		t.Errorf("Expected 1 deleted entry, got %d", deleted)
	}
	if mr.Exists(entryKey("first")) {
		t.Error("Expected first entry hash to be deleted")
	}
	if !mr.Exists(entryKey("second")) {
		t.Error("Expected second entry hash to survive")
	}

	members, err := mr.ZMembers(keyHistoryIndex)
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("Expected 2 indexed entries, got %d", len(members))
	}
}

func TestClearHistoryScript(t *testing.T) {
	client, mr := setupTestRedis(t)
	defer client.Close()

	ctx := context.Background()

	runAppend(ctx, t, client, "x", 100, 0)
	runAppend(ctx, t, client, "y", 200, 0)

	script := redis.NewScript(clearHistoryScript)
	cleared, err := script.Run(ctx, client, []string{keyHistoryIndex}, entryPrefix()).Int()
	if err != nil {
		t.Fatalf("clear script failed: %v", err)
	}
	if cleared != 2 {
		t.Errorf("Expected 2 cleared entries, got %d", cleared)
	}
	if mr.Exists(keyHistoryIndex) || mr.Exists(entryKey("x")) || mr.Exists(entryKey("y")) {
		t.Error("Expected all history keys to be removed")
	}
}
