// Package idempotency deduplicates execute-action requests: replaying the
// same key with the same input returns the previously computed request state
// instead of running the action twice.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-io/gatehouse/model"
)

// Store provides deduplication for action execution. The key format is
// "idem:{definitionId}:{key}".
type Store interface {
	// Check looks up a previous result by key. If the key exists and the
	// input hash matches, it returns the cached result. If the key exists
	// but the hash differs, it returns a conflict error.
	Check(ctx context.Context, key, inputHash string) (result *model.RequestInstance, found bool, err error)

	// Save stores an execution result keyed by the idempotency key with a TTL.
	Save(ctx context.Context, key, inputHash string, result *model.RequestInstance, ttl time.Duration) error
}

// entry is the stored value for an idempotency key.
type entry struct {
	InputHash string                 `json:"input_hash"`
	Result    *model.RequestInstance `json:"result"`
}

// FormatKey builds the standard idempotency key.
func FormatKey(definitionID, key string) string {
	return fmt.Sprintf("idem:%s:%s", definitionID, key)
}

// HashInput produces a stable hash of the action name and payload, used to
// detect a key replayed with different input.
func HashInput(actionName string, payload map[string]any) string {
	data, _ := json.Marshal(map[string]any{"action": actionName, "payload": payload})
	return fmt.Sprintf("%x", sha256.Sum256(data))
}

// MemoryStore is an in-memory Store with TTL support. Suitable for tests and
// single-instance deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*memEntry
}

type memEntry struct {
	data      entry
	expiresAt time.Time
}

// NewMemoryStore creates a new in-memory idempotency store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]*memEntry)}
}

// Check looks up a cached result. Returns a conflict error if the input hash
// differs.
func (s *MemoryStore) Check(_ context.Context, key, inputHash string) (*model.RequestInstance, bool, error) {
	s.mu.RLock()
	e, exists := s.entries[key]
	s.mu.RUnlock()

	if !exists {
		return nil, false, nil
	}

	if time.Now().After(e.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return nil, false, nil
	}

	if e.data.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}
	return e.data.Result, true, nil
}

// Save stores a result with TTL.
func (s *MemoryStore) Save(_ context.Context, key, inputHash string, result *model.RequestInstance, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = &memEntry{
		data:      entry{InputHash: inputHash, Result: result},
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// RedisStore is a Redis-backed Store with TTL.
type RedisStore struct {
	client redis.Cmdable
}

// NewRedisStore creates a new Redis-backed idempotency store.
func NewRedisStore(client redis.Cmdable) *RedisStore {
	return &RedisStore{client: client}
}

// Check looks up a cached result in Redis. Returns a conflict error if the
// input hash differs.
func (s *RedisStore) Check(ctx context.Context, key, inputHash string) (*model.RequestInstance, bool, error) {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %q: %w", key, err)
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("unmarshal idempotency entry %q: %w", key, err)
	}

	if e.InputHash != inputHash {
		return nil, true, model.NewConflictError(
			fmt.Sprintf("idempotency key %q already used with different input", key),
		)
	}
	return e.Result, true, nil
}

// Save stores a result in Redis with TTL.
func (s *RedisStore) Save(ctx context.Context, key, inputHash string, result *model.RequestInstance, ttl time.Duration) error {
	data, err := json.Marshal(entry{InputHash: inputHash, Result: result})
	if err != nil {
		return fmt.Errorf("marshal idempotency entry: %w", err)
	}

	if err := s.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %q: %w", key, err)
	}
	return nil
}
