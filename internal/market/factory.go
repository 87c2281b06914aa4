package market

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/engine"
)

// Treasury is the stablecoin view the factory needs to fund new markets
type Treasury interface {
	Custodian
	Distribute(from common.Address, recipients []common.Address, amount uint64) error
	// Mint is only used to rebuild custody when restoring from a journal
	Mint(caller, to common.Address, amount uint64) error
}

// FactoryConfig configures a factory
type FactoryConfig struct {
	Address       common.Address // base for deriving market addresses
	Owner         common.Address // creates markets, provides seed liquidity
	Token         Treasury
	SeedLiquidity uint64 // per pool
	MinBet        uint64
	// Authority settles every market; defaults to the owner
	Authority SettlementAuthority
}

// Factory creates markets and keeps them in creation order
type Factory struct {
	mu        sync.RWMutex
	cfg       FactoryConfig
	nonce     uint64
	markets   []*Market
	byAddress map[common.Address]*Market
	onEvent   func(engine.Event)
}

// NewFactory creates an empty factory
func NewFactory(cfg FactoryConfig) (*Factory, error) {
	if cfg.Token == nil {
		return nil, fmt.Errorf("%w: token required", ErrInvalidParameter)
	}
	if cfg.SeedLiquidity == 0 {
		return nil, fmt.Errorf("%w: seed liquidity must be positive", ErrInvalidParameter)
	}
	if cfg.SeedLiquidity*2 < cfg.SeedLiquidity {
		return nil, fmt.Errorf("%w: seed liquidity overflows", ErrInvalidParameter)
	}
	if cfg.Authority == nil {
		cfg.Authority = NewOwnerAuthority(cfg.Owner)
	}

	return &Factory{
		cfg:       cfg,
		byAddress: make(map[common.Address]*Market),
	}, nil
}

// Address returns the factory address
func (f *Factory) Address() common.Address {
	return f.cfg.Address
}

// Owner returns the account allowed to create markets
func (f *Factory) Owner() common.Address {
	return f.cfg.Owner
}

// SetEventCallback sets the callback for events of every market, existing and future
func (f *Factory) SetEventCallback(fn func(engine.Event)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onEvent = fn
}

func (f *Factory) dispatch(ev engine.Event) {
	f.mu.RLock()
	fn := f.onEvent
	f.mu.RUnlock()

	if fn != nil {
		fn(ev)
	}
}

// CreateMarket creates and funds a single market
func (f *Factory) CreateMarket(caller common.Address, meta ProjectMetadata) (*Market, error) {
	markets, err := f.BatchCreateMarkets(caller, []ProjectMetadata{meta})
	if err != nil {
		return nil, err
	}
	return markets[0], nil
}

// BatchCreateMarkets creates every market or none of them
func (f *Factory) BatchCreateMarkets(caller common.Address, metas []ProjectMetadata) ([]*Market, error) {
	created, events, err := f.create(caller, metas)
	if err != nil {
		return nil, err
	}

	for i, mkt := range created {
		log.Info().
			Str("market", mkt.address.Hex()).
			Str("project", mkt.meta.Name).
			Str("team", mkt.meta.TeamName).
			Msg("market created")
		f.dispatch(events[i])
	}
	return created, nil
}

func (f *Factory) create(caller common.Address, metas []ProjectMetadata) ([]*Market, []engine.Event, error) {
	if len(metas) == 0 {
		return nil, nil, fmt.Errorf("%w: no projects given", ErrInvalidMetadata)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cfg.Owner == (common.Address{}) || caller != f.cfg.Owner {
		return nil, nil, fmt.Errorf("%w: only the factory owner creates markets", ErrUnauthorized)
	}

	now := time.Now().UTC()
	created := make([]*Market, 0, len(metas))
	addrs := make([]common.Address, 0, len(metas))

	for i, meta := range metas {
		meta.Name = strings.TrimSpace(meta.Name)
		if meta.Name == "" {
			return nil, nil, fmt.Errorf("%w: project %d: name is required", ErrInvalidMetadata, i)
		}
		meta.CreatedAt = now

		addr := crypto.CreateAddress(f.cfg.Address, f.nonce+uint64(i))
		mkt, err := f.newMarket(addr, meta, f.cfg.SeedLiquidity)
		if err != nil {
			return nil, nil, err
		}
		created = append(created, mkt)
		addrs = append(addrs, addr)
	}

	// Seed liquidity backs both pools, so custody starts at twice the seed
	if err := f.cfg.Token.Distribute(f.cfg.Owner, addrs, 2*f.cfg.SeedLiquidity); err != nil {
		return nil, nil, fmt.Errorf("%w: fund seed liquidity: %w", ErrInvalidAmount, err)
	}

	events := make([]engine.Event, len(created))
	for i, mkt := range created {
		f.register(mkt)
		events[i] = engine.NewCreation(mkt.address, caller, mkt.meta.project(), f.cfg.SeedLiquidity, now)
	}
	return created, events, nil
}

// newMarket must be called with the lock held
func (f *Factory) newMarket(addr common.Address, meta ProjectMetadata, seed uint64) (*Market, error) {
	if _, exists := f.byAddress[addr]; exists {
		return nil, fmt.Errorf("%w: address %s already registered", ErrInvalidParameter, addr.Hex())
	}

	mkt, err := New(Params{
		Address:   addr,
		Metadata:  meta,
		Authority: f.cfg.Authority,
		Token:     f.cfg.Token,
		Seed:      seed,
		MinBet:    f.cfg.MinBet,
	})
	if err != nil {
		return nil, err
	}
	mkt.onEvent = f.dispatch
	return mkt, nil
}

// register must be called with the lock held
func (f *Factory) register(mkt *Market) {
	f.nonce++
	f.markets = append(f.markets, mkt)
	f.byAddress[mkt.address] = mkt
}

// GetAllMarkets returns every market in creation order
func (f *Factory) GetAllMarkets() []*Market {
	f.mu.RLock()
	defer f.mu.RUnlock()

	markets := make([]*Market, len(f.markets))
	copy(markets, f.markets)
	return markets
}

// GetAllAddresses returns every market reference in creation order
func (f *Factory) GetAllAddresses() []common.Address {
	f.mu.RLock()
	defer f.mu.RUnlock()

	addrs := make([]common.Address, len(f.markets))
	for i, mkt := range f.markets {
		addrs[i] = mkt.address
	}
	return addrs
}

// GetMarketCount returns the number of markets
func (f *Factory) GetMarketCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.markets)
}

// GetMarket returns the market at index
func (f *Factory) GetMarket(index int) (*Market, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if index < 0 || index >= len(f.markets) {
		return nil, fmt.Errorf("%w: %d (have %d)", ErrIndexOutOfRange, index, len(f.markets))
	}
	return f.markets[index], nil
}

// Lookup retrieves a market by address
func (f *Factory) Lookup(addr common.Address) (*Market, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	mkt, ok := f.byAddress[addr]
	return mkt, ok
}

// GetProjectMetadata returns the metadata of the market at addr
func (f *Factory) GetProjectMetadata(addr common.Address) (ProjectMetadata, error) {
	mkt, ok := f.Lookup(addr)
	if !ok {
		return ProjectMetadata{}, fmt.Errorf("%w: %s", ErrMarketNotFound, addr.Hex())
	}
	return mkt.Metadata(), nil
}
