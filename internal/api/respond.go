package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/auth"
	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/rpc"
	"hackmarket-backend/internal/token"
)

var errBadAddress = errors.New("invalid address")

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeErr maps a domain error to its status code
func writeErr(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, market.ErrInvalidAmount),
		errors.Is(err, market.ErrInvalidMetadata),
		errors.Is(err, market.ErrInvalidParameter),
		errors.Is(err, token.ErrInvalidAmount),
		errors.Is(err, token.ErrZeroAmount),
		errors.Is(err, token.ErrInsufficientBalance),
		errors.Is(err, token.ErrInsufficientAllowance),
		errors.Is(err, token.ErrOverflow),
		errors.Is(err, engine.ErrInvalidOutcome),
		errors.Is(err, errBadAddress):
		return http.StatusBadRequest
	case errors.Is(err, market.ErrInvalidState),
		errors.Is(err, market.ErrAlreadySettled),
		errors.Is(err, market.ErrNothingToClaim):
		return http.StatusConflict
	case errors.Is(err, market.ErrUnauthorized),
		errors.Is(err, token.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, auth.ErrNoChallenge),
		errors.Is(err, auth.ErrExpired),
		errors.Is(err, auth.ErrBadSignature),
		errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized
	case errors.Is(err, market.ErrIndexOutOfRange),
		errors.Is(err, market.ErrMarketNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// rpcCodeFor is statusFor for JSON-RPC callers
func rpcCodeFor(err error) int {
	switch {
	case errors.Is(err, market.ErrAlreadySettled):
		return rpc.CodeAlreadySettled
	case errors.Is(err, market.ErrNothingToClaim):
		return rpc.CodeNothingToClaim
	case errors.Is(err, market.ErrInvalidState):
		return rpc.CodeInvalidState
	case errors.Is(err, market.ErrIndexOutOfRange),
		errors.Is(err, market.ErrMarketNotFound):
		return rpc.CodeNotFound
	case errors.Is(err, errBadAddress):
		return rpc.CodeInvalidParams
	}

	switch statusFor(err) {
	case http.StatusBadRequest:
		return rpc.CodeInvalidAmount
	case http.StatusForbidden, http.StatusUnauthorized:
		return rpc.CodeUnauthorized
	default:
		return rpc.CodeInternal
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}

func parseAddress(s string) (common.Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q", errBadAddress, s)
	}
	return common.HexToAddress(s), nil
}

// lookupMarket resolves the {address} path segment
func (s *Server) lookupMarket(r *http.Request) (*market.Market, error) {
	addr, err := parseAddress(r.PathValue("address"))
	if err != nil {
		return nil, err
	}
	mkt, ok := s.factory.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", market.ErrMarketNotFound, addr.Hex())
	}
	return mkt, nil
}

type authedHandler func(w http.ResponseWriter, r *http.Request, caller common.Address)

// requireAuth resolves the bearer token to the calling account
func (s *Server) requireAuth(next authedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		bearer, ok := strings.CutPrefix(header, "Bearer ")
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		caller, err := s.sessions.Resolve(bearer)
		if err != nil {
			writeErr(w, err)
			return
		}
		next(w, r, caller)
	}
}
