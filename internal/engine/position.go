package engine

import (
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrInvalidOutcome = errors.New("outcome must be YES or NO")

// OutcomeID represents a binary prediction outcome
type OutcomeID string

const (
	OutcomeYES OutcomeID = "YES"
	OutcomeNO  OutcomeID = "NO"
)

// ParseOutcome accepts YES/NO in any case
func ParseOutcome(s string) (OutcomeID, error) {
	switch OutcomeID(strings.ToUpper(strings.TrimSpace(s))) {
	case OutcomeYES:
		return OutcomeYES, nil
	case OutcomeNO:
		return OutcomeNO, nil
	}
	return "", ErrInvalidOutcome
}

// SideOf maps the boolean side used by the contract interface to an outcome
func SideOf(isYes bool) OutcomeID {
	if isYes {
		return OutcomeYES
	}
	return OutcomeNO
}

// Position tracks an account's share holdings in one market
type Position struct {
	Account   common.Address `json:"account"`
	YesShares uint64         `json:"yes_shares"`
	NoShares  uint64         `json:"no_shares"`
}

// Shares returns the holding on one side
func (p Position) Shares(side OutcomeID) uint64 {
	if side == OutcomeYES {
		return p.YesShares
	}
	return p.NoShares
}

// ShareBook tracks every account's shares in one market. It is not
// synchronized; the owning market serializes access.
type ShareBook struct {
	positions      map[common.Address]*Position
	outstandingYes uint64
	outstandingNo  uint64
}

// NewShareBook creates an empty share book
func NewShareBook() *ShareBook {
	return &ShareBook{
		positions: make(map[common.Address]*Position),
	}
}

// Get returns a copy of account's position; unknown accounts hold zero
func (b *ShareBook) Get(account common.Address) Position {
	if pos, ok := b.positions[account]; ok {
		return *pos
	}
	return Position{Account: account}
}

// Outstanding returns the unclaimed shares issued on one side
func (b *ShareBook) Outstanding(side OutcomeID) uint64 {
	if side == OutcomeYES {
		return b.outstandingYes
	}
	return b.outstandingNo
}

// Credit mints shares to account on side
func (b *ShareBook) Credit(account common.Address, side OutcomeID, shares uint64) {
	pos := b.getOrCreate(account)
	if side == OutcomeYES {
		pos.YesShares += shares
		b.outstandingYes += shares
	} else {
		pos.NoShares += shares
		b.outstandingNo += shares
	}
}

// Redeem zeroes account's holding on side and returns what it held
func (b *ShareBook) Redeem(account common.Address, side OutcomeID) uint64 {
	pos, ok := b.positions[account]
	if !ok {
		return 0
	}

	var redeemed uint64
	if side == OutcomeYES {
		redeemed = pos.YesShares
		pos.YesShares = 0
		b.outstandingYes -= redeemed
	} else {
		redeemed = pos.NoShares
		pos.NoShares = 0
		b.outstandingNo -= redeemed
	}
	return redeemed
}

// Holders returns the number of accounts with a non-zero position
func (b *ShareBook) Holders() int {
	n := 0
	for _, pos := range b.positions {
		if pos.YesShares > 0 || pos.NoShares > 0 {
			n++
		}
	}
	return n
}

// All returns copies of every non-empty position
func (b *ShareBook) All() []Position {
	positions := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		if pos.YesShares > 0 || pos.NoShares > 0 {
			positions = append(positions, *pos)
		}
	}
	return positions
}

func (b *ShareBook) getOrCreate(account common.Address) *Position {
	pos, ok := b.positions[account]
	if !ok {
		pos = &Position{Account: account}
		b.positions[account] = pos
	}
	return pos
}
