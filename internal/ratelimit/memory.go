package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps windows in process memory. Idle clients are swept lazily,
// at most once per window.
type MemoryLedger struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	entries   map[string]*memoryEntry
	lastSweep time.Time
}

type memoryEntry struct {
	mu   sync.Mutex
	hits []time.Time
	dead bool // removed by a sweep, callers must fetch a fresh entry
}

// NewMemoryLedger creates an in-process ledger
func NewMemoryLedger(limit int, window time.Duration) *MemoryLedger {
	limit, window = normalize(limit, window)
	return &MemoryLedger{
		limit:   limit,
		window:  window,
		entries: make(map[string]*memoryEntry),
	}
}

func (l *MemoryLedger) Backend() string { return "memory" }

// Allow implements Ledger
func (l *MemoryLedger) Allow(ctx context.Context, client string, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	cutoff := now.Add(-l.window)
	for {
		e := l.entry(client, now)
		e.mu.Lock()
		if e.dead {
			e.mu.Unlock()
			continue
		}
		e.hits = prune(e.hits, cutoff)
		if len(e.hits) >= l.limit {
			e.mu.Unlock()
			return false, nil
		}
		e.hits = append(e.hits, now)
		e.mu.Unlock()
		return true, nil
	}
}

// Len returns the number of tracked clients
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func (l *MemoryLedger) entry(client string, now time.Time) *memoryEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.window {
		l.sweepLocked(now.Add(-l.window))
		l.lastSweep = now
	}
	e, ok := l.entries[client]
	if !ok {
		e = &memoryEntry{}
		l.entries[client] = e
	}
	return e
}

// sweepLocked drops clients whose every hit has aged out. Lock order is always
// ledger then entry.
func (l *MemoryLedger) sweepLocked(cutoff time.Time) {
	for client, e := range l.entries {
		e.mu.Lock()
		e.hits = prune(e.hits, cutoff)
		if len(e.hits) == 0 {
			e.dead = true
			delete(l.entries, client)
		}
		e.mu.Unlock()
	}
}

// prune keeps hits strictly newer than cutoff, in place
func prune(hits []time.Time, cutoff time.Time) []time.Time {
	kept := hits[:0]
	for _, t := range hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
