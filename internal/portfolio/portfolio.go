// Package portfolio values an account's positions across every market.
package portfolio

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/store"
	"hackmarket-backend/internal/token"
)

// Markets lists the markets to value
type Markets interface {
	GetAllMarkets() []*market.Market
}

// Position is one market's holdings, in USD
type Position struct {
	Market       common.Address  `json:"market"`
	Project      string          `json:"project"`
	YesShares    uint64          `json:"yes_shares"`
	NoShares     uint64          `json:"no_shares"`
	Invested     decimal.Decimal `json:"invested"`
	CurrentValue decimal.Decimal `json:"current_value"`
	Claimed      decimal.Decimal `json:"claimed"`
	ProfitLoss   decimal.Decimal `json:"profit_loss"`
	Settled      bool            `json:"settled"`
	YesWon       *bool           `json:"yes_won,omitempty"`
	Claimable    uint64          `json:"claimable"`
}

// Summary totals an account's portfolio
type Summary struct {
	Account       common.Address  `json:"account"`
	Positions     []Position      `json:"positions"`
	TotalInvested decimal.Decimal `json:"total_invested"`
	CurrentValue  decimal.Decimal `json:"current_value"`
	TotalClaimed  decimal.Decimal `json:"total_claimed"`
	ProfitLoss    decimal.Decimal `json:"profit_loss"`
}

// Service builds portfolios from live markets and the event journal
type Service struct {
	markets Markets
	journal store.Journal
}

func NewService(markets Markets, journal store.Journal) *Service {
	return &Service{markets: markets, journal: journal}
}

// Positions values every market where account holds shares or has history
func (s *Service) Positions(ctx context.Context, account common.Address) (Summary, error) {
	events, err := s.journal.ByAccount(ctx, account)
	if err != nil {
		return Summary{}, fmt.Errorf("load history: %w", err)
	}

	invested := make(map[common.Address]uint64)
	claimed := make(map[common.Address]uint64)
	for _, ev := range events {
		switch ev.Kind {
		case engine.EventPurchase:
			invested[ev.Market] += ev.Amount
		case engine.EventClaim:
			claimed[ev.Market] += ev.Amount
		}
	}

	sum := Summary{
		Account:       account,
		Positions:     []Position{},
		TotalInvested: decimal.Zero,
		CurrentValue:  decimal.Zero,
		TotalClaimed:  decimal.Zero,
		ProfitLoss:    decimal.Zero,
	}

	for _, mkt := range s.markets.GetAllMarkets() {
		addr := mkt.Address()
		yes, no := mkt.GetUserShares(account)
		if yes == 0 && no == 0 && invested[addr] == 0 && claimed[addr] == 0 {
			continue
		}

		snap := mkt.Snapshot()
		pos := Position{
			Market:    addr,
			Project:   snap.Metadata.Name,
			YesShares: yes,
			NoShares:  no,
			Invested:  token.ToDecimal(invested[addr]),
			Claimed:   token.ToDecimal(claimed[addr]),
			Settled:   snap.Settled,
			YesWon:    snap.YesWon,
		}
		pos.CurrentValue = Value(snap, yes, no)
		if snap.Settled && snap.YesWon != nil {
			if *snap.YesWon {
				pos.Claimable = yes
			} else {
				pos.Claimable = no
			}
		}
		pos.ProfitLoss = pos.CurrentValue.Add(pos.Claimed).Sub(pos.Invested)

		sum.Positions = append(sum.Positions, pos)
		sum.TotalInvested = sum.TotalInvested.Add(pos.Invested)
		sum.CurrentValue = sum.CurrentValue.Add(pos.CurrentValue)
		sum.TotalClaimed = sum.TotalClaimed.Add(pos.Claimed)
	}

	sum.ProfitLoss = sum.CurrentValue.Add(sum.TotalClaimed).Sub(sum.TotalInvested)
	return sum, nil
}

// Value prices shares in USD. Settled markets pay winning shares 1:1; active
// markets mark each side at its current implied probability.
func Value(snap market.Snapshot, yesShares, noShares uint64) decimal.Decimal {
	yes := token.ToDecimal(yesShares)
	no := token.ToDecimal(noShares)

	if snap.Settled && snap.YesWon != nil {
		if *snap.YesWon {
			return yes
		}
		return no
	}

	total := snap.YesPool + snap.NoPool
	if total == 0 {
		half := decimal.NewFromFloat(0.5)
		return yes.Add(no).Mul(half)
	}

	pYes := decimal.NewFromInt(int64(snap.OddsBps)).Div(decimal.NewFromInt(engine.MaxOddsBps))
	pNo := decimal.NewFromInt(1).Sub(pYes)
	return yes.Mul(pYes).Add(no.Mul(pNo)).Round(token.Decimals)
}
