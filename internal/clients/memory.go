package clients

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryEntry struct {
	value   string
	expires time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expires.IsZero() && !now.Before(e.expires)
}

// MemoryKV is a process-local stand-in for RedisClient, used when Redis is
// disabled. Expired keys are dropped lazily and by Sweep.
type MemoryKV struct {
	mu      sync.Mutex
	values  map[string]memoryEntry
	sets    map[string]memorySet
	nowFunc func() time.Time
}

type memorySet struct {
	members map[string]struct{}
	expires time.Time
}

func (s memorySet) expired(now time.Time) bool {
	return !s.expires.IsZero() && !now.Before(s.expires)
}

func NewMemoryKV() *MemoryKV {
	return &MemoryKV{
		values:  map[string]memoryEntry{},
		sets:    map[string]memorySet{},
		nowFunc: time.Now,
	}
}

func toString(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case []byte:
		return string(x)
	default:
		return fmt.Sprint(x)
	}
}

func (m *MemoryKV) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	e := memoryEntry{value: toString(value)}
	if ttl > 0 {
		e.expires = m.nowFunc().Add(ttl)
	}
	m.mu.Lock()
	m.values[key] = e
	m.mu.Unlock()
	return nil
}

func (m *MemoryKV) Get(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.values[key]
	if !ok {
		return "", ErrNotFound
	}
	if e.expired(m.nowFunc()) {
		delete(m.values, key)
		return "", ErrNotFound
	}
	return e.value, nil
}

func (m *MemoryKV) Del(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.values, k)
		delete(m.sets, k)
	}
	return nil
}

func (m *MemoryKV) Expire(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	expires := m.nowFunc().Add(ttl)
	if e, ok := m.values[key]; ok {
		e.expires = expires
		m.values[key] = e
	}
	if set, ok := m.set(key); ok {
		set.expires = expires
		m.sets[key] = set
	}
	return nil
}

// set returns a live set, dropping it when expired. Callers hold mu.
func (m *MemoryKV) set(key string) (memorySet, bool) {
	set, ok := m.sets[key]
	if !ok {
		return set, false
	}
	if set.expired(m.nowFunc()) {
		delete(m.sets, key)
		return set, false
	}
	return set, true
}

func (m *MemoryKV) SAdd(_ context.Context, key string, members ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.set(key)
	if !ok {
		set = memorySet{members: map[string]struct{}{}}
		m.sets[key] = set
	}
	for _, v := range members {
		set.members[toString(v)] = struct{}{}
	}
	return nil
}

func (m *MemoryKV) SRem(_ context.Context, key string, members ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, ok := m.set(key)
	if !ok {
		return nil
	}
	for _, v := range members {
		delete(set.members, toString(v))
	}
	if len(set.members) == 0 {
		delete(m.sets, key)
	}
	return nil
}

func (m *MemoryKV) SMembers(_ context.Context, key string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	set, _ := m.set(key)
	out := make([]string, 0, len(set.members))
	for v := range set.members {
		out = append(out, v)
	}
	return out, nil
}

// Ping always succeeds; the store lives in process.
func (m *MemoryKV) Ping(context.Context) error {
	return nil
}

// Sweep removes expired keys and returns how many were dropped.
func (m *MemoryKV) Sweep() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.nowFunc()
	n := 0
	for k, e := range m.values {
		if e.expired(now) {
			delete(m.values, k)
			n++
		}
	}
	for k, set := range m.sets {
		if set.expired(now) {
			delete(m.sets, k)
			n++
		}
	}
	return n
}

// RunJanitor sweeps every interval until ctx is done.
func (m *MemoryKV) RunJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}
