package market

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/token"
)

// MarketStatus represents the lifecycle stage of a market
type MarketStatus int

const (
	StatusActive  MarketStatus = iota // Accepting deposits
	StatusSettled                     // Outcome fixed, claims open
)

func (s MarketStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// Custodian moves stablecoin in and out of a market's custody
type Custodian interface {
	BalanceOf(account common.Address) uint64
	Transfer(from, to common.Address, amount uint64) error
	TransferFrom(spender, owner, to common.Address, amount uint64) error
}

// ProjectMetadata describes the hackathon project a market is about
type ProjectMetadata struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	TeamName    string    `json:"team_name"`
	CreatedAt   time.Time `json:"created_at"`
}

func (p ProjectMetadata) project() engine.Project {
	return engine.Project{
		Name:        p.Name,
		Description: p.Description,
		Category:    p.Category,
		TeamName:    p.TeamName,
	}
}

// ProjectInfo is the aggregate read the front end shows on a project card
type ProjectInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Volume      uint64 `json:"volume"`
	Settled     bool   `json:"settled"`
	YesWon      bool   `json:"yes_won"`
}

// Params configures a new market
type Params struct {
	Address   common.Address
	Metadata  ProjectMetadata
	Authority SettlementAuthority
	Token     Custodian
	Seed      uint64 // initial size of each pool
	MinBet    uint64
}

// Market is a binary YES/NO market for one project. Every mutation is
// applied under the market lock, so readers never see half an update.
type Market struct {
	mu sync.RWMutex

	address   common.Address
	meta      ProjectMetadata
	authority SettlementAuthority
	token     Custodian
	minBet    uint64

	yesPool     uint64
	noPool      uint64
	totalVolume uint64
	shares      *engine.ShareBook

	settled   bool
	yesWon    bool
	settledAt time.Time

	seq     uint64
	onEvent func(engine.Event)

	// events leave in Sequence order; emitted is the last one delivered
	emitMu   sync.Mutex
	emitCond *sync.Cond
	emitted  uint64
}

// New creates a market with both pools at the seed value
func New(p Params) (*Market, error) {
	if p.Seed == 0 {
		return nil, fmt.Errorf("%w: seed must be positive", ErrInvalidParameter)
	}
	if p.Authority == nil {
		return nil, fmt.Errorf("%w: settlement authority required", ErrInvalidParameter)
	}
	if p.Token == nil {
		return nil, fmt.Errorf("%w: token required", ErrInvalidParameter)
	}

	minBet := p.MinBet
	if minBet == 0 {
		minBet = token.One
	}

	m := &Market{
		address:   p.Address,
		meta:      p.Metadata,
		authority: p.Authority,
		token:     p.Token,
		minBet:    minBet,
		yesPool:   p.Seed,
		noPool:    p.Seed,
		shares:    engine.NewShareBook(),
	}
	m.emitCond = sync.NewCond(&m.emitMu)
	return m, nil
}

// SetEventCallback sets the callback for committed purchases, settlements and
// claims. Calls are serialized and arrive in Sequence order; fn may read the
// market but must not mutate it.
func (m *Market) SetEventCallback(fn func(engine.Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onEvent = fn
}

// Address returns the market reference
func (m *Market) Address() common.Address {
	return m.address
}

// Metadata returns the immutable project metadata
func (m *Market) Metadata() ProjectMetadata {
	return m.meta
}

// Owner returns the account empowered to settle
func (m *Market) Owner() common.Address {
	return m.authority.Owner()
}

// MinBet returns the smallest accepted deposit
func (m *Market) MinBet() uint64 {
	return m.minBet
}

// BuyShares moves amount from buyer into custody and credits shares on the
// chosen side. The buyer must have approved the market for at least amount.
func (m *Market) BuyShares(buyer common.Address, isYes bool, amount uint64) (engine.Event, error) {
	ev, err := m.buy(buyer, engine.SideOf(isYes), amount)
	if err != nil {
		return engine.Event{}, err
	}

	log.Debug().
		Str("market", m.address.Hex()).
		Str("buyer", buyer.Hex()).
		Str("side", string(ev.Side)).
		Uint64("amount", amount).
		Uint64("shares", ev.Shares).
		Msg("shares bought")

	m.emit(ev)
	return ev, nil
}

func (m *Market) buy(buyer common.Address, side engine.OutcomeID, amount uint64) (engine.Event, error) {
	if amount < m.minBet {
		return engine.Event{}, fmt.Errorf("%w: %s is below the minimum bet of %s",
			ErrInvalidAmount, token.FormatUnits(amount), token.FormatUnits(m.minBet))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.settled {
		return engine.Event{}, fmt.Errorf("%w: market is settled", ErrInvalidState)
	}
	if m.totalVolume+amount < m.totalVolume {
		return engine.Event{}, fmt.Errorf("%w: volume overflow", ErrInvalidAmount)
	}

	shares, err := m.quoteLocked(side, amount)
	if err != nil {
		return engine.Event{}, err
	}

	if err := m.token.TransferFrom(m.address, buyer, m.address, amount); err != nil {
		return engine.Event{}, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}

	if side == engine.OutcomeYES {
		m.yesPool += amount
	} else {
		m.noPool += amount
	}
	m.totalVolume += amount
	m.shares.Credit(buyer, side, shares)
	m.seq++

	return engine.NewPurchase(m.address, buyer, side, amount, shares, m.yesPool, m.noPool, m.seq), nil
}

// CalculateSharesOut returns the shares a deposit would mint right now
func (m *Market) CalculateSharesOut(isYes bool, amount uint64) (uint64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.quoteLocked(engine.SideOf(isYes), amount)
}

// quoteLocked must be called with the lock held
func (m *Market) quoteLocked(side engine.OutcomeID, amount uint64) (uint64, error) {
	shares, err := engine.SharesOut(engine.Quote{
		Side:        side,
		Amount:      amount,
		YesPool:     m.yesPool,
		NoPool:      m.noPool,
		Custody:     m.token.BalanceOf(m.address),
		Outstanding: m.shares.Outstanding(side),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidAmount, err)
	}
	return shares, nil
}

// GetCurrentOdds returns the YES probability as a percentage in [0,100]
func (m *Market) GetCurrentOdds() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return engine.Odds(m.yesPool, m.noPool)
}

// GetCurrentOddsBps returns the YES probability in basis points
func (m *Market) GetCurrentOddsBps() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return engine.OddsBps(m.yesPool, m.noPool)
}

// Pools returns the YES and NO pool sizes
func (m *Market) Pools() (yesPool, noPool uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.yesPool, m.noPool
}

// GetUserShares returns account's YES and NO share balances
func (m *Market) GetUserShares(account common.Address) (yesShares, noShares uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pos := m.shares.Get(account)
	return pos.YesShares, pos.NoShares
}

// GetProjectInfo returns name, description, volume and outcome in one read
func (m *Market) GetProjectInfo() ProjectInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return ProjectInfo{
		Name:        m.meta.Name,
		Description: m.meta.Description,
		Volume:      m.totalVolume,
		Settled:     m.settled,
		YesWon:      m.settled && m.yesWon,
	}
}

// Settled reports whether the outcome has been fixed
func (m *Market) Settled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settled
}

// YesWon reports the outcome; false until settled
func (m *Market) YesWon() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.settled && m.yesWon
}

// Status returns the lifecycle stage
func (m *Market) Status() MarketStatus {
	if m.Settled() {
		return StatusSettled
	}
	return StatusActive
}

// Snapshot is a consistent view of a market's state
type Snapshot struct {
	Address        common.Address  `json:"address"`
	Metadata       ProjectMetadata `json:"metadata"`
	Owner          common.Address  `json:"owner"`
	Status         string          `json:"status"`
	YesPool        uint64          `json:"yes_pool"`
	NoPool         uint64          `json:"no_pool"`
	TotalVolume    uint64          `json:"total_volume"`
	Odds           uint64          `json:"odds"`
	OddsBps        uint64          `json:"odds_bps"`
	Custody        uint64          `json:"custody"`
	OutstandingYes uint64          `json:"outstanding_yes"`
	OutstandingNo  uint64          `json:"outstanding_no"`
	Holders        int             `json:"holders"`
	MinBet         uint64          `json:"min_bet"`
	Settled        bool            `json:"settled"`
	YesWon         *bool           `json:"yes_won,omitempty"` // nil until settled
	SettledAt      *time.Time      `json:"settled_at,omitempty"`
}

// Snapshot returns the market state as of a single instant
func (m *Market) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := Snapshot{
		Address:        m.address,
		Metadata:       m.meta,
		Owner:          m.authority.Owner(),
		Status:         StatusActive.String(),
		YesPool:        m.yesPool,
		NoPool:         m.noPool,
		TotalVolume:    m.totalVolume,
		Odds:           engine.Odds(m.yesPool, m.noPool),
		OddsBps:        engine.OddsBps(m.yesPool, m.noPool),
		Custody:        m.token.BalanceOf(m.address),
		OutstandingYes: m.shares.Outstanding(engine.OutcomeYES),
		OutstandingNo:  m.shares.Outstanding(engine.OutcomeNO),
		Holders:        m.shares.Holders(),
		MinBet:         m.minBet,
		Settled:        m.settled,
	}
	if m.settled {
		yesWon := m.yesWon
		settledAt := m.settledAt
		s.Status = StatusSettled.String()
		s.YesWon = &yesWon
		s.SettledAt = &settledAt
	}
	return s
}

// Positions returns every non-empty position
func (m *Market) Positions() []engine.Position {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.shares.All()
}

// emit delivers ev once every earlier sequence number has been delivered
func (m *Market) emit(ev engine.Event) {
	m.emitMu.Lock()
	defer m.emitMu.Unlock()

	for m.emitted+1 != ev.Sequence {
		m.emitCond.Wait()
	}

	m.mu.RLock()
	fn := m.onEvent
	m.mu.RUnlock()
	if fn != nil {
		fn(ev)
	}

	m.emitted = ev.Sequence
	m.emitCond.Broadcast()
}
