package window

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

type entry struct {
	count       uint
	windowStart time.Time
	lastSeen    time.Time
}

// Store is a keyed sliding-window occurrence counter. The rule engine and
// the request rate limiter each own a separate Store, so their keyspaces
// never overlap.
type Store struct {
	mu      sync.Mutex
	entries map[string]*entry
	now     func() time.Time
}

func NewStore() *Store {
	return NewStoreWithNow(nil)
}

func NewStoreWithNow(now func() time.Time) *Store {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &Store{entries: make(map[string]*entry), now: now}
}

// Observe counts one occurrence of key and returns the post-increment count
// for the current window. A window that has elapsed restarts at 1.
func (s *Store) Observe(key string, window time.Duration) uint {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		s.entries[key] = &entry{count: 1, windowStart: now, lastSeen: now}
		return 1
	}
	if window > 0 && now.Sub(e.windowStart) >= window {
		e.count = 1
		e.windowStart = now
		e.lastSeen = now
		return 1
	}
	e.count++
	e.lastSeen = now
	return e.count
}

// Reset drops the entry so the same burst cannot re-trigger; the next
// Observe starts a fresh window.
func (s *Store) Reset(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]*entry)
}

// Sweep evicts entries idle for longer than maxIdle and reports how many
// were removed.
func (s *Store) Sweep(maxIdle time.Duration) int {
	if maxIdle <= 0 {
		return 0
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, e := range s.entries {
		if now.Sub(e.lastSeen) > maxIdle {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// StartJanitor sweeps on a ticker until ctx is cancelled.
func (s *Store) StartJanitor(ctx context.Context, interval, maxIdle time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if removed := s.Sweep(maxIdle); removed > 0 && logger != nil {
					logger.Debug("window counters evicted", "removed", removed)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}
