package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/market"
	"hackmarket-backend/internal/rpc"
)

var errNotAuthenticated = errors.New("not authenticated; call auth_request and auth_verify first")

// rpcFailure carries a JSON-RPC code out of a method handler
type rpcFailure struct {
	code int
	err  error
}

func (f *rpcFailure) Error() string { return f.err.Error() }
func (f *rpcFailure) Unwrap() error { return f.err }

func invalidParams(err error) error {
	return &rpcFailure{code: rpc.CodeInvalidParams, err: err}
}

// handleRPC answers one JSON-RPC frame from a socket client
func (s *Server) handleRPC(c *Client, raw []byte) *rpc.Response {
	var req rpc.Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return rpc.NewError(0, rpc.CodeParseError, "parse error")
	}
	if req.JSONRPC != "2.0" || req.Method == "" {
		return rpc.NewError(req.ID, rpc.CodeInvalidRequest, "invalid request")
	}

	result, err := s.dispatch(c, req)
	if err != nil {
		var f *rpcFailure
		code := rpcCodeFor(err)
		if errors.As(err, &f) {
			code = f.code
		}
		if code == rpc.CodeInternal {
			log.Error().Err(err).Str("method", req.Method).Msg("rpc call failed")
		}
		return rpc.NewError(req.ID, code, err.Error())
	}

	resp, err := rpc.NewResult(req.ID, result)
	if err != nil {
		log.Error().Err(err).Str("method", req.Method).Msg("failed to marshal rpc result")
		return rpc.NewError(req.ID, rpc.CodeInternal, "internal error")
	}
	return resp
}

func (s *Server) dispatch(c *Client, req rpc.Request) (any, error) {
	switch req.Method {
	case rpc.MethodPing:
		return rpc.PingResult{Pong: "pong"}, nil

	case rpc.MethodAuthRequest:
		var p rpc.AuthRequestParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		addr, err := rpcAddress(p.Address)
		if err != nil {
			return nil, err
		}
		ch := s.sessions.Challenge(addr)
		return rpc.AuthRequestResult{ChallengeMessage: ch.Message, Nonce: ch.Nonce, ExpiresAt: ch.ExpiresAt}, nil

	case rpc.MethodAuthVerify:
		var p rpc.AuthVerifyParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		addr, err := rpcAddress(p.Address)
		if err != nil {
			return nil, err
		}
		sess, err := s.sessions.Verify(addr, p.Signature)
		if err != nil {
			return nil, err
		}
		c.setIdentity(sess.Address)
		log.Info().Str("account", sess.Address.Hex()).Msg("socket authenticated")
		return rpc.AuthVerifyResult{Address: sess.Address.Hex(), Token: sess.Token, ExpiresAt: sess.ExpiresAt}, nil

	case rpc.MethodBuyShares:
		caller, err := requireIdentity(c)
		if err != nil {
			return nil, err
		}
		var p rpc.BuySharesParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		mkt, err := s.rpcMarket(p.Market)
		if err != nil {
			return nil, err
		}
		ev, err := mkt.BuyShares(caller, p.IsYes, p.Amount)
		if err != nil {
			return nil, err
		}
		return rpc.BuySharesResult{Shares: ev.Shares, Event: ev}, nil

	case rpc.MethodCalculateSharesOut:
		var p rpc.BuySharesParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		mkt, err := s.rpcMarket(p.Market)
		if err != nil {
			return nil, err
		}
		shares, err := mkt.CalculateSharesOut(p.IsYes, p.Amount)
		if err != nil {
			return nil, err
		}
		return rpc.QuoteResult{Shares: shares}, nil

	case rpc.MethodClaimWinnings:
		caller, err := requireIdentity(c)
		if err != nil {
			return nil, err
		}
		mkt, err := s.marketFromParams(req)
		if err != nil {
			return nil, err
		}
		ev, err := mkt.ClaimWinnings(caller)
		if err != nil {
			return nil, err
		}
		return rpc.ClaimResult{Payout: ev.Amount, Event: ev}, nil

	case rpc.MethodSettle:
		caller, err := requireIdentity(c)
		if err != nil {
			return nil, err
		}
		var p rpc.SettleParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		mkt, err := s.rpcMarket(p.Market)
		if err != nil {
			return nil, err
		}
		ev, err := mkt.Settle(caller, p.YesWon)
		if err != nil {
			return nil, err
		}
		return rpc.SettleResult{Event: ev}, nil

	case rpc.MethodGetCurrentOdds:
		mkt, err := s.marketFromParams(req)
		if err != nil {
			return nil, err
		}
		snap := mkt.Snapshot()
		return rpc.OddsResult{Odds: snap.Odds, OddsBps: snap.OddsBps}, nil

	case rpc.MethodGetProjectInfo:
		mkt, err := s.marketFromParams(req)
		if err != nil {
			return nil, err
		}
		return mkt.GetProjectInfo(), nil

	case rpc.MethodGetUserShares:
		var p rpc.UserSharesParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		mkt, err := s.rpcMarket(p.Market)
		if err != nil {
			return nil, err
		}
		account, err := rpcAddress(p.Account)
		if err != nil {
			return nil, err
		}
		yes, no := mkt.GetUserShares(account)
		return rpc.UserSharesResult{YesShares: yes, NoShares: no}, nil

	case rpc.MethodGetAllMarkets:
		addrs := s.factory.GetAllAddresses()
		out := make([]string, len(addrs))
		for i, a := range addrs {
			out[i] = a.Hex()
		}
		return rpc.MarketsResult{Markets: out}, nil

	case rpc.MethodGetMarketCount:
		return rpc.CountResult{Count: s.factory.GetMarketCount()}, nil

	case rpc.MethodGetMarket:
		var p rpc.MarketIndexParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		mkt, err := s.factory.GetMarket(p.Index)
		if err != nil {
			return nil, err
		}
		return rpc.MarketAddressResult{Market: mkt.Address().Hex()}, nil

	case rpc.MethodGetProjectMetadata:
		var p rpc.MarketParams
		if err := bindParams(req, &p); err != nil {
			return nil, err
		}
		addr, err := rpcAddress(p.Market)
		if err != nil {
			return nil, err
		}
		return s.factory.GetProjectMetadata(addr)

	default:
		return nil, &rpcFailure{code: rpc.CodeMethodNotFound, err: fmt.Errorf("method not found: %s", req.Method)}
	}
}

func bindParams(req rpc.Request, v any) error {
	if len(req.Params) == 0 {
		return invalidParams(errors.New("params are required"))
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return invalidParams(fmt.Errorf("invalid params: %w", err))
	}
	return nil
}

func requireIdentity(c *Client) (common.Address, error) {
	addr, ok := c.identity()
	if !ok {
		return common.Address{}, &rpcFailure{code: rpc.CodeUnauthorized, err: errNotAuthenticated}
	}
	return addr, nil
}

func rpcAddress(s string) (common.Address, error) {
	addr, err := parseAddress(s)
	if err != nil {
		return common.Address{}, invalidParams(err)
	}
	return addr, nil
}

func (s *Server) rpcMarket(addrHex string) (*market.Market, error) {
	addr, err := rpcAddress(addrHex)
	if err != nil {
		return nil, err
	}
	mkt, ok := s.factory.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("%w: %s", market.ErrMarketNotFound, addr.Hex())
	}
	return mkt, nil
}

func (s *Server) marketFromParams(req rpc.Request) (*market.Market, error) {
	var p rpc.MarketParams
	if err := bindParams(req, &p); err != nil {
		return nil, err
	}
	return s.rpcMarket(p.Market)
}
