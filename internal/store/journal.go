// Package store keeps the append-only journal of market events.
package store

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"hackmarket-backend/internal/engine"
)

// Journal records market creations, purchases, settlements and claims in
// commit order
type Journal interface {
	Append(ctx context.Context, ev engine.Event) error
	// All returns every event, oldest first
	All(ctx context.Context) ([]engine.Event, error)
	// ByAccount returns every event of account, oldest first
	ByAccount(ctx context.Context, account common.Address) ([]engine.Event, error)
	// ByMarket returns the latest limit events of market, oldest first; limit <= 0 means all
	ByMarket(ctx context.Context, market common.Address, limit int) ([]engine.Event, error)
	Close()
}

// MemoryJournal is a Journal that lives and dies with the process
type MemoryJournal struct {
	mu        sync.RWMutex
	events    []engine.Event
	byAccount map[common.Address][]int
	byMarket  map[common.Address][]int
	seen      map[string]struct{}
}

var _ Journal = (*MemoryJournal)(nil)

// NewMemoryJournal creates an empty in-memory journal
func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{
		byAccount: make(map[common.Address][]int),
		byMarket:  make(map[common.Address][]int),
		seen:      make(map[string]struct{}),
	}
}

// Append stores ev; appending the same event id twice is a no-op
func (j *MemoryJournal) Append(_ context.Context, ev engine.Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if ev.ID != "" {
		if _, dup := j.seen[ev.ID]; dup {
			return nil
		}
		j.seen[ev.ID] = struct{}{}
	}

	idx := len(j.events)
	j.events = append(j.events, ev)
	j.byAccount[ev.Account] = append(j.byAccount[ev.Account], idx)
	j.byMarket[ev.Market] = append(j.byMarket[ev.Market], idx)
	return nil
}

func (j *MemoryJournal) All(_ context.Context) ([]engine.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]engine.Event, len(j.events))
	copy(out, j.events)
	return out, nil
}

func (j *MemoryJournal) ByAccount(_ context.Context, account common.Address) ([]engine.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.collect(j.byAccount[account], 0), nil
}

func (j *MemoryJournal) ByMarket(_ context.Context, market common.Address, limit int) ([]engine.Event, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.collect(j.byMarket[market], limit), nil
}

// Len returns the number of stored events
func (j *MemoryJournal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}

func (j *MemoryJournal) Close() {}

func (j *MemoryJournal) collect(idx []int, limit int) []engine.Event {
	if limit > 0 && limit < len(idx) {
		idx = idx[len(idx)-limit:]
	}
	out := make([]engine.Event, len(idx))
	for i, n := range idx {
		out[i] = j.events[n]
	}
	return out
}
