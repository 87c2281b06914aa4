package api

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/token"
)

// TokenRequest moves or approves a USD amount such as "100"
type TokenRequest struct {
	To      string `json:"to,omitempty"`
	Spender string `json:"spender,omitempty"`
	Amount  string `json:"amount"`
}

// AllowanceResponse is an owner's approval for a spender
type AllowanceResponse struct {
	Owner     common.Address `json:"owner"`
	Spender   common.Address `json:"spender"`
	Allowance uint64         `json:"allowance"`
	Display   string         `json:"allowance_usd"`
}

// handleBalance handles GET /api/token/balance/{account}
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	account, err := parseAddress(r.PathValue("account"))
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.AccountSnapshot(account))
}

// handleAllowance handles GET /api/token/allowance?owner=&spender=
func (s *Server) handleAllowance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseAddress(r.URL.Query().Get("owner"))
	if err != nil {
		writeErr(w, err)
		return
	}
	spender, err := parseAddress(r.URL.Query().Get("spender"))
	if err != nil {
		writeErr(w, err)
		return
	}

	allowance := s.ledger.Allowance(owner, spender)
	writeJSON(w, http.StatusOK, AllowanceResponse{
		Owner:     owner,
		Spender:   spender,
		Allowance: allowance,
		Display:   token.FormatUnits(allowance),
	})
}

// handleApprove handles POST /api/token/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, caller common.Address) {
	spender, amount, ok := s.decodeTokenRequest(w, r, func(req TokenRequest) string { return req.Spender })
	if !ok {
		return
	}

	s.ledger.Approve(caller, spender, amount)
	log.Debug().Str("owner", caller.Hex()).Str("spender", spender.Hex()).Uint64("amount", amount).Msg("allowance set")

	writeJSON(w, http.StatusOK, AllowanceResponse{
		Owner:     caller,
		Spender:   spender,
		Allowance: amount,
		Display:   token.FormatUnits(amount),
	})
}

// handleTransfer handles POST /api/token/transfer
func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request, caller common.Address) {
	to, amount, ok := s.decodeTokenRequest(w, r, func(req TokenRequest) string { return req.To })
	if !ok {
		return
	}

	if err := s.ledger.Transfer(caller, to, amount); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.ledger.AccountSnapshot(caller))
}

// handleMint handles POST /api/token/mint; only the minter may call it
func (s *Server) handleMint(w http.ResponseWriter, r *http.Request, caller common.Address) {
	to, amount, ok := s.decodeTokenRequest(w, r, func(req TokenRequest) string { return req.To })
	if !ok {
		return
	}

	if err := s.ledger.Mint(caller, to, amount); err != nil {
		writeErr(w, err)
		return
	}
	log.Info().Str("to", to.Hex()).Str("amount", token.FormatUnits(amount)).Msg("minted")
	writeJSON(w, http.StatusOK, s.ledger.AccountSnapshot(to))
}

// decodeTokenRequest reads the counterparty picked by field and the amount.
// It writes the error response itself.
func (s *Server) decodeTokenRequest(w http.ResponseWriter, r *http.Request, field func(TokenRequest) string) (common.Address, uint64, bool) {
	var req TokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return common.Address{}, 0, false
	}

	addr, err := parseAddress(field(req))
	if err != nil {
		writeErr(w, err)
		return common.Address{}, 0, false
	}

	amount, err := token.ParseUnits(req.Amount)
	if err != nil {
		writeErr(w, err)
		return common.Address{}, 0, false
	}
	return addr, amount, true
}
