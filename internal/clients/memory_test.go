package clients

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"
)

func TestMemoryKV_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.nowFunc = func() time.Time { return now }

	if err := kv.Set(ctx, "a", "1", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := kv.Set(ctx, "b", []byte("2"), 0); err != nil {
		t.Fatalf("set: %v", err)
	}

	if v, err := kv.Get(ctx, "a"); err != nil || v != "1" {
		t.Fatalf("get a = %q, %v", v, err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := kv.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired key to be missing, got %v", err)
	}
	if v, err := kv.Get(ctx, "b"); err != nil || v != "2" {
		t.Fatalf("key without ttl should survive, got %q, %v", v, err)
	}

	_ = kv.Set(ctx, "c", 3, time.Second)
	now = now.Add(time.Hour)
	if n := kv.Sweep(); n != 1 {
		t.Fatalf("sweep removed %d keys, want 1", n)
	}

	_ = kv.Del(ctx, "b")
	if _, err := kv.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted key to be missing, got %v", err)
	}
}

func TestMemoryKV_Sets(t *testing.T) {
	ctx := context.Background()
	kv := NewMemoryKV()

	_ = kv.SAdd(ctx, "ids", "x", "y", "x")
	_ = kv.SAdd(ctx, "ids", "z")
	_ = kv.SRem(ctx, "ids", "y")

	got, _ := kv.SMembers(ctx, "ids")
	sort.Strings(got)
	if len(got) != 2 || got[0] != "x" || got[1] != "z" {
		t.Fatalf("unexpected members: %v", got)
	}

	if empty, _ := kv.SMembers(ctx, "none"); len(empty) != 0 {
		t.Fatalf("expected no members, got %v", empty)
	}
}

func TestMemoryKV_SetExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	kv := NewMemoryKV()
	kv.nowFunc = func() time.Time { return now }

	_ = kv.SAdd(ctx, "refs", "a")
	_ = kv.SAdd(ctx, "kept", "b")
	if err := kv.Expire(ctx, "refs", time.Minute); err != nil {
		t.Fatalf("expire: %v", err)
	}

	now = now.Add(30 * time.Second)
	if got, _ := kv.SMembers(ctx, "refs"); len(got) != 1 {
		t.Fatalf("set should still be live, got %v", got)
	}

	now = now.Add(time.Minute)
	if got, _ := kv.SMembers(ctx, "refs"); len(got) != 0 {
		t.Fatalf("expired set should be empty, got %v", got)
	}

	_ = kv.SAdd(ctx, "gone", "c")
	_ = kv.Expire(ctx, "gone", time.Second)
	now = now.Add(time.Hour)
	if n := kv.Sweep(); n != 1 {
		t.Fatalf("sweep removed %d keys, want 1", n)
	}
	if got, _ := kv.SMembers(ctx, "kept"); len(got) != 1 {
		t.Fatalf("set without ttl should survive, got %v", got)
	}
}
