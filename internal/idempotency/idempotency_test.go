package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/gatehouse-io/gatehouse/model"
)

func approvedRequest() *model.RequestInstance {
	return &model.RequestInstance{
		ID:           "r-1",
		DefinitionID: "leave",
		CurrentState: "Approved",
		Status:       model.RequestStatusCompleted,
		Version:      2,
	}
}

func TestMemoryStore_checkNotFound(t *testing.T) {
	s := NewMemoryStore()

	result, found, err := s.Check(context.Background(), FormatKey("leave", "k1"), "hash-abc")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if found || result != nil {
		t.Errorf("found/result = %v/%+v, want miss", found, result)
	}
}

func TestMemoryStore_saveAndCheck(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := FormatKey("leave", "k1")
	hash := HashInput("Approve", map[string]any{"amount": 100.0})

	if err := s.Save(ctx, key, hash, approvedRequest(), 5*time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	result, found, err := s.Check(ctx, key, hash)
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !found {
		t.Fatal("found = false, want true")
	}
	if result.CurrentState != "Approved" {
		t.Errorf("result = %+v", result)
	}
}

func TestMemoryStore_hashMismatchConflicts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := FormatKey("leave", "k1")

	if err := s.Save(ctx, key, HashInput("Approve", nil), approvedRequest(), 5*time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	_, found, err := s.Check(ctx, key, HashInput("Reject", nil))
	if !found {
		t.Error("found = false, want true for a used key")
	}
	if model.ErrorCode(err) != model.ErrConflict {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestMemoryStore_expiry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	key := FormatKey("leave", "k1")
	hash := HashInput("Approve", nil)

	if err := s.Save(ctx, key, hash, approvedRequest(), -time.Second); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	_, found, err := s.Check(ctx, key, hash)
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if found {
		t.Error("found = true for an expired entry")
	}
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client)
}

func TestRedisStore_saveAndCheck(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	key := FormatKey("leave", "k1")
	hash := HashInput("Approve", map[string]any{"amount": 100.0})

	if err := s.Save(ctx, key, hash, approvedRequest(), 5*time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	result, found, err := s.Check(ctx, key, hash)
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if !found || result.ID != "r-1" {
		t.Errorf("found/result = %v/%+v", found, result)
	}
}

func TestRedisStore_hashMismatchConflicts(t *testing.T) {
	s := newRedisStore(t)
	ctx := context.Background()
	key := FormatKey("leave", "k1")

	if err := s.Save(ctx, key, HashInput("Approve", nil), approvedRequest(), 5*time.Minute); err != nil {
		t.Fatalf("Save error: %v", err)
	}

	_, found, err := s.Check(ctx, key, HashInput("Reject", nil))
	if !found || model.ErrorCode(err) != model.ErrConflict {
		t.Errorf("found/err = %v/%v, want conflict", found, err)
	}
}

func TestRedisStore_missingKey(t *testing.T) {
	s := newRedisStore(t)

	_, found, err := s.Check(context.Background(), FormatKey("leave", "nope"), "hash")
	if err != nil {
		t.Fatalf("Check error: %v", err)
	}
	if found {
		t.Error("found = true, want false")
	}
}
