package engine

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// EventKind names the value-moving operations a market records
type EventKind string

const (
	EventCreated    EventKind = "created"
	EventPurchase   EventKind = "purchase"
	EventSettlement EventKind = "settlement"
	EventClaim      EventKind = "claim"
)

// Project is the descriptive part of a created event
type Project struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
	TeamName    string `json:"team_name"`
}

// Event is the record a market emits after a successful mutation.
// Fields that do not apply to the kind are zero. Sequence counts the
// market's own mutations from 1; a created event carries 0.
type Event struct {
	ID        string         `json:"id"`
	Kind      EventKind      `json:"kind"`
	Market    common.Address `json:"market"`
	Account   common.Address `json:"account"`
	Side      OutcomeID      `json:"side,omitempty"`
	Amount    uint64         `json:"amount"`
	Shares    uint64         `json:"shares"`
	YesPool   uint64         `json:"yes_pool"`
	NoPool    uint64         `json:"no_pool"`
	YesWon    bool           `json:"yes_won"`
	Sequence  uint64         `json:"sequence"`
	Timestamp time.Time      `json:"timestamp"`
	Project   *Project       `json:"project,omitempty"`
}

// NewCreation records a market funded by creator with seed in each pool
func NewCreation(market, creator common.Address, project Project, seed uint64, at time.Time) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventCreated,
		Market:    market,
		Account:   creator,
		Amount:    2 * seed,
		YesPool:   seed,
		NoPool:    seed,
		Timestamp: at,
		Project:   &project,
	}
}

// NewPurchase records a buy: buyer deposited amount on side and received shares
func NewPurchase(market, buyer common.Address, side OutcomeID, amount, shares, yesPool, noPool, seq uint64) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventPurchase,
		Market:    market,
		Account:   buyer,
		Side:      side,
		Amount:    amount,
		Shares:    shares,
		YesPool:   yesPool,
		NoPool:    noPool,
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
	}
}

// NewSettlement records the outcome fixed by caller
func NewSettlement(market, caller common.Address, yesWon bool, yesPool, noPool, seq uint64) Event {
	side := OutcomeNO
	if yesWon {
		side = OutcomeYES
	}
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventSettlement,
		Market:    market,
		Account:   caller,
		Side:      side,
		YesPool:   yesPool,
		NoPool:    noPool,
		YesWon:    yesWon,
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
	}
}

// NewClaim records a payout of shares winning shares as amount stablecoin
func NewClaim(market, claimer common.Address, side OutcomeID, shares, seq uint64) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      EventClaim,
		Market:    market,
		Account:   claimer,
		Side:      side,
		Amount:    shares,
		Shares:    shares,
		YesWon:    side == OutcomeYES,
		Sequence:  seq,
		Timestamp: time.Now().UTC(),
	}
}

// History stores the most recent events up to a capacity
type History struct {
	mu     sync.RWMutex
	events []Event
	maxLen int
}

// NewHistory creates a new history with max capacity
func NewHistory(maxLen int) *History {
	return &History{
		events: make([]Event, 0, maxLen),
		maxLen: maxLen,
	}
}

// Add records a new event
func (h *History) Add(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.events = append(h.events, ev)

	// Trim if exceeds max length
	if len(h.events) > h.maxLen {
		h.events = h.events[len(h.events)-h.maxLen:]
	}
}

// Recent returns the most recent n events, oldest first
func (h *History) Recent(n int) []Event {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > len(h.events) || n < 0 {
		n = len(h.events)
	}

	result := make([]Event, n)
	copy(result, h.events[len(h.events)-n:])
	return result
}

// Len returns the number of retained events
func (h *History) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.events)
}
