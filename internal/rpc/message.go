package rpc

import (
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"hackmarket-backend/internal/engine"
)

// JSON-RPC 2.0 envelopes spoken over the /ws socket

// Request is a JSON-RPC 2.0 request
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Notification is a server push that answers no request
type Notification struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Error is a JSON-RPC error object
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Standard and application error codes
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternal       = -32603

	CodeInvalidAmount  = -32001
	CodeInvalidState   = -32002
	CodeUnauthorized   = -32003
	CodeAlreadySettled = -32004
	CodeNothingToClaim = -32005
	CodeNotFound       = -32006
)

// Method names
const (
	MethodPing               = "ping"
	MethodAuthRequest        = "auth_request"
	MethodAuthVerify         = "auth_verify"
	MethodBuyShares          = "buyShares"
	MethodCalculateSharesOut = "calculateSharesOut"
	MethodClaimWinnings      = "claimWinnings"
	MethodGetCurrentOdds     = "getCurrentOdds"
	MethodGetProjectInfo     = "getProjectInfo"
	MethodGetUserShares      = "getUserShares"
	MethodSettle             = "settle"
	MethodGetAllMarkets      = "getAllMarkets"
	MethodGetMarketCount     = "getMarketCount"
	MethodGetMarket          = "getMarket"
	MethodGetProjectMetadata = "getProjectMetadata"
)

// --- Params and results ---

type PingResult struct {
	Pong string `json:"pong"`
}

type AuthRequestParams struct {
	Address string `json:"address"`
}

type AuthRequestResult struct {
	ChallengeMessage string    `json:"challenge_message"`
	Nonce            string    `json:"nonce"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type AuthVerifyParams struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type AuthVerifyResult struct {
	Address   string    `json:"address"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// MarketParams addresses a single market
type MarketParams struct {
	Market string `json:"market"`
}

// BuySharesParams also serves calculateSharesOut. Amount is in token units.
type BuySharesParams struct {
	Market string `json:"market"`
	IsYes  bool   `json:"is_yes"`
	Amount uint64 `json:"amount"`
}

type BuySharesResult struct {
	Shares uint64       `json:"shares"`
	Event  engine.Event `json:"event"`
}

type QuoteResult struct {
	Shares uint64 `json:"shares"`
}

type ClaimResult struct {
	Payout uint64       `json:"payout"`
	Event  engine.Event `json:"event"`
}

type OddsResult struct {
	Odds    uint64 `json:"odds"`
	OddsBps uint64 `json:"odds_bps"`
}

type UserSharesParams struct {
	Market  string `json:"market"`
	Account string `json:"account"`
}

type UserSharesResult struct {
	YesShares uint64 `json:"yes_shares"`
	NoShares  uint64 `json:"no_shares"`
}

type SettleParams struct {
	Market string `json:"market"`
	YesWon bool   `json:"yes_won"`
}

type SettleResult struct {
	Event engine.Event `json:"event"`
}

type MarketIndexParams struct {
	Index int `json:"index"`
}

type MarketAddressResult struct {
	Market string `json:"market"`
}

type MarketsResult struct {
	Markets []string `json:"markets"`
}

type CountResult struct {
	Count int `json:"count"`
}

// --- Message builders ---

var requestID atomic.Int64

// NewRequest creates a request with a process-unique id
func NewRequest(method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: "2.0",
		ID:      requestID.Add(1),
		Method:  method,
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, err
		}
		req.Params = raw
	}
	return req, nil
}

// NewResult builds a success response for id
func NewResult(id int64, result any) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewError builds an error response for id
func NewError(id int64, code int, message string) *Response {
	return &Response{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &Error{Code: code, Message: message},
	}
}

// ParseResponse parses a JSON-RPC response
func ParseResponse(data []byte) (*Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
