package cache

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is the in-process fallback used when no Redis URL is configured.
// TTLs are enforced lazily on read.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	counts  map[string]counterEntry
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

type counterEntry struct {
	value     int64
	expiresAt time.Time
}

var _ Cache = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]memoryEntry),
		counts:  make(map[string]counterEntry),
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = memoryEntry{
		value:     append([]byte(nil), value...),
		expiresAt: expiry(ttl),
	}
	return nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.IsZero() && time.Now().After(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) SetJobStatus(ctx context.Context, jobID uuid.UUID, status string, ttl time.Duration) error {
	return m.Set(ctx, JobStatusKey(jobID), []byte(status), ttl)
}

func (m *Memory) GetJobStatus(ctx context.Context, jobID uuid.UUID) (string, bool, error) {
	val, ok, err := m.Get(ctx, JobStatusKey(jobID))
	return string(val), ok, err
}

func (m *Memory) IncrWithExpiry(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.counts[key]
	if !ok || (!c.expiresAt.IsZero() && time.Now().After(c.expiresAt)) {
		c = counterEntry{expiresAt: expiry(ttl)}
	}
	c.value++
	c.expiresAt = expiry(ttl)
	m.counts[key] = c
	return c.value, nil
}

func expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return time.Now().Add(ttl)
}
