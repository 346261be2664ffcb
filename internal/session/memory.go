package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/mebelbot/core/logger"
)

type entry struct {
	session   Session
	expiresAt time.Time
}

// Memory is a process-local Store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[int64]entry
	ttl      time.Duration
	now      func() time.Time
}

// MemoryOption customises a Memory store.
type MemoryOption func(*Memory)

// WithClock overrides the time source.
func WithClock(now func() time.Time) MemoryOption {
	return func(m *Memory) { m.now = now }
}

// NewMemory returns an empty store. ttl <= 0 selects DefaultTTL.
func NewMemory(ttl time.Duration, opts ...MemoryOption) *Memory {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &Memory{sessions: make(map[int64]entry), ttl: ttl, now: time.Now}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Memory) Get(_ context.Context, chatID int64) (Session, bool, error) {
	m.mu.RLock()
	e, ok := m.sessions[chatID]
	m.mu.RUnlock()
	if !ok || !m.now().Before(e.expiresAt) {
		return Session{}, false, nil
	}
	return e.session, true, nil
}

func (m *Memory) Set(_ context.Context, chatID int64, s Session) error {
	m.mu.Lock()
	m.sessions[chatID] = entry{session: s, expiresAt: m.now().Add(m.ttl)}
	m.mu.Unlock()
	return nil
}

func (m *Memory) Delete(_ context.Context, chatID int64) error {
	m.mu.Lock()
	delete(m.sessions, chatID)
	m.mu.Unlock()
	return nil
}

// Len reports stored entries, expired ones included until swept.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep drops expired entries and returns how many were removed.
func (m *Memory) Sweep() int {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for id, e := range m.sessions {
		if !now.Before(e.expiresAt) {
			delete(m.sessions, id)
			n++
		}
	}
	return n
}

// RunJanitor sweeps every interval until ctx is done.
func (m *Memory) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := m.Sweep(); n > 0 {
				logger.Debug(ctx, "service.session", "session.sweep", slog.Int("count", n))
			}
		}
	}
}

var _ Store = (*Memory)(nil)
