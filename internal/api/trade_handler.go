package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/token"
)

// BuyRequest deposits a USD amount such as "12.5" on one side
type BuyRequest struct {
	Side   string `json:"side"` // "YES" or "NO"
	Amount string `json:"amount"`
}

// BuyResponse reports a committed purchase
type BuyResponse struct {
	Event         engine.Event `json:"event"`
	SharesDisplay string       `json:"shares_display"`
	Odds          uint64       `json:"odds"`
}

// SettleRequest fixes the outcome
type SettleRequest struct {
	YesWon *bool `json:"yes_won"`
}

// SettleResponse reports a settlement
type SettleResponse struct {
	Event  engine.Event    `json:"event"`
	Market market.Snapshot `json:"market"`
}

// ClaimResponse reports a payout
type ClaimResponse struct {
	Event         engine.Event `json:"event"`
	Payout        uint64       `json:"payout"`
	PayoutDisplay string       `json:"payout_display"`
}

func parseSideAmount(side, amount string) (engine.OutcomeID, uint64, error) {
	outcome, err := engine.ParseOutcome(side)
	if err != nil {
		return "", 0, err
	}
	units, err := token.ParseUnits(amount)
	if err != nil {
		return "", 0, err
	}
	return outcome, units, nil
}

// handleBuy handles POST /api/market/{address}/buy
func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request, caller common.Address) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req BuyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	side, amount, err := parseSideAmount(req.Side, req.Amount)
	if err != nil {
		writeErr(w, err)
		return
	}

	ev, err := mkt.BuyShares(caller, side == engine.OutcomeYES, amount)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, BuyResponse{
		Event:         ev,
		SharesDisplay: token.FormatUnits(ev.Shares),
		Odds:          engine.Odds(ev.YesPool, ev.NoPool),
	})
}

// handleSettle handles POST /api/market/{address}/settle
func (s *Server) handleSettle(w http.ResponseWriter, r *http.Request, caller common.Address) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	var req SettleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.YesWon == nil {
		writeError(w, http.StatusBadRequest, "yes_won is required")
		return
	}

	ev, err := mkt.Settle(caller, *req.YesWon)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, SettleResponse{Event: ev, Market: mkt.Snapshot()})
}

// handleClaim handles POST /api/market/{address}/claim
func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request, caller common.Address) {
	mkt, err := s.lookupMarket(r)
	if err != nil {
		writeErr(w, err)
		return
	}

	ev, err := mkt.ClaimWinnings(caller)
	if err != nil {
		writeErr(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ClaimResponse{
		Event:         ev,
		Payout:        ev.Amount,
		PayoutDisplay: token.FormatUnits(ev.Amount),
	})
}
