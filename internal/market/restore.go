package market

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/engine"
)

// Restore rebuilds markets from journaled events on an empty factory.
// Created events are matched to the factory's address sequence; the rest are
// reapplied per market in Sequence order. Custody is rebuilt from the seed
// and purchases minus claims, minting purchases to the market. Nothing is
// dispatched. A failed restore leaves the factory unusable.
func (f *Factory) Restore(events []engine.Event) (int, error) {
	created := make(map[common.Address]engine.Event)
	byMarket := make(map[common.Address][]engine.Event)
	for _, ev := range events {
		if ev.Kind == engine.EventCreated {
			created[ev.Market] = ev
			continue
		}
		byMarket[ev.Market] = append(byMarket[ev.Market], ev)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.markets) > 0 {
		return 0, fmt.Errorf("%w: restore needs an empty factory", ErrInvalidState)
	}

	for len(created) > 0 {
		addr := crypto.CreateAddress(f.cfg.Address, f.nonce)
		ev, ok := created[addr]
		if !ok {
			return 0, fmt.Errorf("%w: %d created markets do not derive from factory %s",
				ErrJournalMismatch, len(created), f.cfg.Address.Hex())
		}
		delete(created, addr)

		mkt, err := f.restoreMarket(ev)
		if err != nil {
			return 0, err
		}
		f.register(mkt)
	}

	for addr, evs := range byMarket {
		mkt, ok := f.byAddress[addr]
		if !ok {
			return 0, fmt.Errorf("%w: events for unknown market %s", ErrJournalMismatch, addr.Hex())
		}

		sort.Slice(evs, func(i, j int) bool { return evs[i].Sequence < evs[j].Sequence })
		for _, ev := range evs {
			if err := mkt.restore(ev, f.mint); err != nil {
				return 0, fmt.Errorf("market %s sequence %d: %w", addr.Hex(), ev.Sequence, err)
			}
		}
	}

	log.Info().Int("markets", len(f.markets)).Int("events", len(events)).Msg("markets restored from journal")
	return len(f.markets), nil
}

// restoreMarket must be called with the lock held
func (f *Factory) restoreMarket(ev engine.Event) (*Market, error) {
	if ev.Project == nil || ev.YesPool == 0 || ev.YesPool != ev.NoPool || ev.Amount != 2*ev.YesPool {
		return nil, fmt.Errorf("%w: malformed created event %s", ErrJournalMismatch, ev.ID)
	}

	meta := ProjectMetadata{
		Name:        ev.Project.Name,
		Description: ev.Project.Description,
		Category:    ev.Project.Category,
		TeamName:    ev.Project.TeamName,
		CreatedAt:   ev.Timestamp,
	}
	mkt, err := f.newMarket(ev.Market, meta, ev.YesPool)
	if err != nil {
		return nil, err
	}

	if err := f.cfg.Token.Distribute(f.cfg.Owner, []common.Address{ev.Market}, ev.Amount); err != nil {
		return nil, fmt.Errorf("%w: fund seed liquidity: %w", ErrInvalidAmount, err)
	}
	return mkt, nil
}

func (f *Factory) mint(to common.Address, amount uint64) error {
	return f.cfg.Token.Mint(f.cfg.Owner, to, amount)
}

// restore reapplies one journaled event without emitting it
func (m *Market) restore(ev engine.Event, mint func(to common.Address, amount uint64) error) error {
	if err := m.apply(ev, mint); err != nil {
		return err
	}

	m.emitMu.Lock()
	m.emitted = ev.Sequence
	m.emitMu.Unlock()
	return nil
}

func (m *Market) apply(ev engine.Event, mint func(to common.Address, amount uint64) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ev.Sequence != m.seq+1 {
		return fmt.Errorf("%w: expected sequence %d", ErrJournalMismatch, m.seq+1)
	}

	switch ev.Kind {
	case engine.EventPurchase:
		if m.settled {
			return fmt.Errorf("%w: purchase after settlement", ErrJournalMismatch)
		}
		yes, no := m.yesPool, m.noPool
		switch ev.Side {
		case engine.OutcomeYES:
			yes += ev.Amount
		case engine.OutcomeNO:
			no += ev.Amount
		default:
			return fmt.Errorf("%w: %w", ErrJournalMismatch, engine.ErrInvalidOutcome)
		}
		if yes < m.yesPool || no < m.noPool || yes != ev.YesPool || no != ev.NoPool {
			return fmt.Errorf("%w: pools %d/%d do not follow from %d/%d",
				ErrJournalMismatch, ev.YesPool, ev.NoPool, m.yesPool, m.noPool)
		}
		if err := mint(m.address, ev.Amount); err != nil {
			return fmt.Errorf("rebuild custody: %w", err)
		}
		m.yesPool, m.noPool = yes, no
		m.totalVolume += ev.Amount
		m.shares.Credit(ev.Account, ev.Side, ev.Shares)

	case engine.EventSettlement:
		if m.settled {
			return fmt.Errorf("%w: settled twice", ErrJournalMismatch)
		}
		m.settled = true
		m.yesWon = ev.YesWon
		m.settledAt = ev.Timestamp

	case engine.EventClaim:
		if !m.settled {
			return fmt.Errorf("%w: claim before settlement", ErrJournalMismatch)
		}
		winning := engine.SideOf(m.yesWon)
		if owed := m.shares.Get(ev.Account).Shares(winning); owed != ev.Amount {
			return fmt.Errorf("%w: claim of %d against a balance of %d", ErrJournalMismatch, ev.Amount, owed)
		}
		if err := m.token.Transfer(m.address, ev.Account, ev.Amount); err != nil {
			return fmt.Errorf("rebuild payout: %w", err)
		}
		m.shares.Redeem(ev.Account, winning)

	default:
		return fmt.Errorf("%w: unknown event kind %q", ErrJournalMismatch, ev.Kind)
	}

	m.seq = ev.Sequence
	return nil
}
