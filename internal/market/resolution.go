package market

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/engine"
)

// Settle fixes the market outcome. Only the settlement authority may call it,
// and only once.
func (m *Market) Settle(caller common.Address, yesWon bool) (engine.Event, error) {
	ev, err := m.settle(caller, yesWon)
	if err != nil {
		return engine.Event{}, err
	}

	log.Info().
		Str("market", m.address.Hex()).
		Str("project", m.meta.Name).
		Bool("yes_won", yesWon).
		Msg("market settled")

	m.emit(ev)
	return ev, nil
}

func (m *Market) settle(caller common.Address, yesWon bool) (engine.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.authority.CanSettle(caller) {
		return engine.Event{}, fmt.Errorf("%w: %s may not settle this market", ErrUnauthorized, caller.Hex())
	}
	if m.settled {
		return engine.Event{}, ErrAlreadySettled
	}

	m.settled = true
	m.yesWon = yesWon
	m.settledAt = time.Now().UTC()
	m.seq++

	return engine.NewSettlement(m.address, caller, yesWon, m.yesPool, m.noPool, m.seq), nil
}

// ClaimWinnings pays the caller one stablecoin unit per winning share and
// zeroes the winning balance. Losing shares stay on the books, worthless.
func (m *Market) ClaimWinnings(caller common.Address) (engine.Event, error) {
	ev, err := m.claim(caller)
	if err != nil {
		return engine.Event{}, err
	}

	log.Info().
		Str("market", m.address.Hex()).
		Str("account", caller.Hex()).
		Uint64("payout", ev.Amount).
		Msg("winnings claimed")

	m.emit(ev)
	return ev, nil
}

func (m *Market) claim(caller common.Address) (engine.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.settled {
		return engine.Event{}, fmt.Errorf("%w: market is not settled", ErrInvalidState)
	}

	winning := engine.SideOf(m.yesWon)
	owed := m.shares.Get(caller).Shares(winning)
	if owed == 0 {
		return engine.Event{}, ErrNothingToClaim
	}

	if err := m.token.Transfer(m.address, caller, owed); err != nil {
		return engine.Event{}, fmt.Errorf("pay out %d to %s: %w", owed, caller.Hex(), err)
	}
	m.shares.Redeem(caller, winning)
	m.seq++

	return engine.NewClaim(m.address, caller, winning, owed, m.seq), nil
}

// Payout is what an account is owed or was paid after settlement
type Payout struct {
	Account common.Address `json:"account"`
	Market  common.Address `json:"market"`
	Shares  uint64         `json:"shares"`
}

// PendingPayouts lists unclaimed winning balances. Empty before settlement.
func (m *Market) PendingPayouts() []Payout {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.settled {
		return nil
	}

	winning := engine.SideOf(m.yesWon)
	var payouts []Payout
	for _, pos := range m.shares.All() {
		if owed := pos.Shares(winning); owed > 0 {
			payouts = append(payouts, Payout{
				Account: pos.Account,
				Market:  m.address,
				Shares:  owed,
			})
		}
	}
	return payouts
}
