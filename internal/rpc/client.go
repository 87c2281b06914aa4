package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"hackmarket-backend/internal/auth"
)

var ErrNotConnected = errors.New("not connected")

const DefaultTimeout = 30 * time.Second

// Client is a JSON-RPC client for the market server's /ws endpoint
type Client struct {
	mu      sync.RWMutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	url     string
	signer  *auth.Signer
	timeout time.Duration

	token         string
	authenticated bool

	pending   map[int64]chan *Response
	pendingMu sync.Mutex

	onNotify func(Notification)

	done   chan struct{}
	closed bool
}

// NewClient creates a client; signer may be nil for read-only use
func NewClient(url string, signer *auth.Signer) *Client {
	return &Client{
		url:     url,
		signer:  signer,
		timeout: DefaultTimeout,
		pending: make(map[int64]chan *Response),
		done:    make(chan struct{}),
	}
}

// Connect dials the server
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return fmt.Errorf("connect: client closed")
	}
	if c.conn != nil {
		return nil
	}

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.url, err)
	}

	c.conn = conn
	go c.readLoop(conn)
	return nil
}

// Authenticate runs the challenge/response login with the client's signer
func (c *Client) Authenticate(ctx context.Context) error {
	if c.signer == nil {
		return fmt.Errorf("authenticate: no signer")
	}
	addr := c.signer.Address().Hex()

	var challenge AuthRequestResult
	if err := c.Call(ctx, MethodAuthRequest, AuthRequestParams{Address: addr}, &challenge); err != nil {
		return fmt.Errorf("auth request: %w", err)
	}

	signature, err := c.signer.SignMessageHex([]byte(challenge.ChallengeMessage))
	if err != nil {
		return fmt.Errorf("sign challenge: %w", err)
	}

	var verified AuthVerifyResult
	if err := c.Call(ctx, MethodAuthVerify, AuthVerifyParams{Address: addr, Signature: signature}, &verified); err != nil {
		return fmt.Errorf("auth verify: %w", err)
	}

	c.mu.Lock()
	c.token = verified.Token
	c.authenticated = true
	c.mu.Unlock()

	log.Info().Str("account", addr).Time("expires_at", verified.ExpiresAt).Msg("authenticated")
	return nil
}

// Call sends method with params and decodes the result into out (if non-nil).
// Server-side failures come back as *Error.
func (c *Client) Call(ctx context.Context, method string, params, out any) error {
	req, err := NewRequest(method, params)
	if err != nil {
		return err
	}

	resp, err := c.SendRequest(ctx, req)
	if err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return fmt.Errorf("decode %s result: %w", method, err)
	}
	return nil
}

// SendRequest writes req and waits for the matching response
func (c *Client) SendRequest(ctx context.Context, req *Request) (*Response, error) {
	c.mu.RLock()
	conn, timeout := c.conn, c.timeout
	c.mu.RUnlock()
	if conn == nil {
		return nil, ErrNotConnected
	}

	respChan := make(chan *Response, 1)
	c.pendingMu.Lock()
	c.pending[req.ID] = respChan
	c.pendingMu.Unlock()

	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, req.ID)
		c.pendingMu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}

	c.writeMu.Lock()
	err = conn.WriteMessage(websocket.TextMessage, data)
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", req.Method, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp := <-respChan:
		return resp, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrNotConnected
	case <-timer.C:
		return nil, fmt.Errorf("%s: request timeout", req.Method)
	}
}

// envelope matches both responses and notifications
type envelope struct {
	ID     int64           `json:"id"`
	Result json.RawMessage `json:"result"`
	Error  *Error          `json:"error"`
	Type   string          `json:"type"`
	Data   json.RawMessage `json:"data"`
}

func (c *Client) readLoop(conn *websocket.Conn) {
	defer c.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				log.Debug().Err(err).Msg("rpc connection closed")
			}
			return
		}

		var env envelope
		if err := json.Unmarshal(message, &env); err != nil {
			log.Warn().Err(err).Msg("failed to parse server message")
			continue
		}

		if env.Type != "" {
			c.mu.RLock()
			fn := c.onNotify
			c.mu.RUnlock()
			if fn != nil {
				fn(Notification{Type: env.Type, Data: env.Data})
			}
			continue
		}

		c.pendingMu.Lock()
		ch, ok := c.pending[env.ID]
		c.pendingMu.Unlock()
		if ok {
			ch <- &Response{JSONRPC: "2.0", ID: env.ID, Result: env.Result, Error: env.Error}
		}
	}
}

// SetNotificationHandler sets the callback for server pushes
func (c *Client) SetNotificationHandler(fn func(Notification)) {
	c.mu.Lock()
	c.onNotify = fn
	c.mu.Unlock()
}

// SetTimeout bounds how long a call waits for its response
func (c *Client) SetTimeout(d time.Duration) {
	c.mu.Lock()
	c.timeout = d
	c.mu.Unlock()
}

// IsAuthenticated returns whether Authenticate succeeded
func (c *Client) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.authenticated
}

// Token returns the bearer token from the last login, usable over HTTP
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// Close closes the connection
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return nil
	}

	close(c.done)
	c.closed = true
	return c.conn.Close()
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	var res PingResult
	return c.Call(ctx, MethodPing, nil, &res)
}

// Settle fixes a market's outcome; the signer must be the settlement authority
func (c *Client) Settle(ctx context.Context, market string, yesWon bool) (SettleResult, error) {
	var res SettleResult
	err := c.Call(ctx, MethodSettle, SettleParams{Market: market, YesWon: yesWon}, &res)
	return res, err
}

// BuyShares deposits amount token units on one side. The account must have
// approved the market beforehand.
func (c *Client) BuyShares(ctx context.Context, market string, isYes bool, amount uint64) (BuySharesResult, error) {
	var res BuySharesResult
	err := c.Call(ctx, MethodBuyShares, BuySharesParams{Market: market, IsYes: isYes, Amount: amount}, &res)
	return res, err
}

// ClaimWinnings redeems the caller's winning shares
func (c *Client) ClaimWinnings(ctx context.Context, market string) (ClaimResult, error) {
	var res ClaimResult
	err := c.Call(ctx, MethodClaimWinnings, MarketParams{Market: market}, &res)
	return res, err
}

// GetCurrentOdds reads a market's YES probability
func (c *Client) GetCurrentOdds(ctx context.Context, market string) (OddsResult, error) {
	var res OddsResult
	err := c.Call(ctx, MethodGetCurrentOdds, MarketParams{Market: market}, &res)
	return res, err
}

// GetAllMarkets lists market addresses in creation order
func (c *Client) GetAllMarkets(ctx context.Context) ([]string, error) {
	var res MarketsResult
	err := c.Call(ctx, MethodGetAllMarkets, nil, &res)
	return res.Markets, err
}
