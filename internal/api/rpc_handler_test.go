package api

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackmarket-backend/internal/auth"
	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/rpc"
	"hackmarket-backend/internal/token"
)

func (e *testEnv) call(t *testing.T, c *Client, method string, params any) *rpc.Response {
	t.Helper()
	req, err := rpc.NewRequest(method, params)
	require.NoError(t, err)
	raw, err := json.Marshal(req)
	require.NoError(t, err)

	resp := e.server.handleRPC(c, raw)
	require.NotNil(t, resp)
	assert.Equal(t, req.ID, resp.ID)
	return resp
}

func (e *testEnv) socketLogin(t *testing.T, c *Client, s *auth.Signer) {
	t.Helper()
	addr := s.Address().Hex()

	resp := e.call(t, c, rpc.MethodAuthRequest, rpc.AuthRequestParams{Address: addr})
	require.Nil(t, resp.Error)
	var ch rpc.AuthRequestResult
	require.NoError(t, json.Unmarshal(resp.Result, &ch))

	sig, err := s.SignMessageHex([]byte(ch.ChallengeMessage))
	require.NoError(t, err)

	resp = e.call(t, c, rpc.MethodAuthVerify, rpc.AuthVerifyParams{Address: addr, Signature: sig})
	require.Nil(t, resp.Error, "%+v", resp.Error)
}

func (e *testEnv) newSocketClient() *Client {
	return &Client{hub: e.server.wsHub, send: make(chan []byte, 8)}
}

func TestHandleRPC_Envelope(t *testing.T) {
	env := newTestEnv(t)
	c := env.newSocketClient()

	resp := env.server.handleRPC(c, []byte("{not json"))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeParseError, resp.Error.Code)

	resp = env.server.handleRPC(c, []byte(`{"jsonrpc":"1.0","id":4,"method":"ping"}`))
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidRequest, resp.Error.Code)
	assert.Equal(t, int64(4), resp.ID)

	resp = env.call(t, c, "launchRocket", nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeMethodNotFound, resp.Error.Code)

	resp = env.call(t, c, rpc.MethodPing, nil)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"pong":"pong"}`, string(resp.Result))
}

func TestHandleRPC_Reads(t *testing.T) {
	env := newTestEnv(t)
	c := env.newSocketClient()
	mktHex := env.market.Address().Hex()

	resp := env.call(t, c, rpc.MethodGetMarketCount, nil)
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"count":1}`, string(resp.Result))

	resp = env.call(t, c, rpc.MethodGetMarket, rpc.MarketIndexParams{Index: 0})
	require.Nil(t, resp.Error)
	var addr rpc.MarketAddressResult
	require.NoError(t, json.Unmarshal(resp.Result, &addr))
	assert.Equal(t, mktHex, addr.Market)

	resp = env.call(t, c, rpc.MethodGetMarket, rpc.MarketIndexParams{Index: 3})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeNotFound, resp.Error.Code)

	resp = env.call(t, c, rpc.MethodGetCurrentOdds, rpc.MarketParams{Market: mktHex})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"odds":50,"odds_bps":5000}`, string(resp.Result))

	resp = env.call(t, c, rpc.MethodCalculateSharesOut, rpc.BuySharesParams{Market: mktHex, IsYes: true, Amount: 50 * token.One})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"shares":66666666}`, string(resp.Result))

	resp = env.call(t, c, rpc.MethodCalculateSharesOut, nil)
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)

	resp = env.call(t, c, rpc.MethodGetProjectMetadata, rpc.MarketParams{Market: "0xnope"})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidParams, resp.Error.Code)

	resp = env.call(t, c, rpc.MethodGetProjectInfo, rpc.MarketParams{Market: mktHex})
	require.Nil(t, resp.Error)
	var info map[string]any
	require.NoError(t, json.Unmarshal(resp.Result, &info))
	assert.Equal(t, "ZK Voting", info["name"])
	assert.Equal(t, false, info["settled"])
}

func TestHandleRPC_MutationsNeedIdentity(t *testing.T) {
	env := newTestEnv(t)
	c := env.newSocketClient()
	mktHex := env.market.Address().Hex()

	for _, method := range []string{rpc.MethodBuyShares, rpc.MethodClaimWinnings, rpc.MethodSettle} {
		resp := env.call(t, c, method, rpc.BuySharesParams{Market: mktHex, IsYes: true, Amount: token.One})
		require.NotNil(t, resp.Error, method)
		assert.Equal(t, rpc.CodeUnauthorized, resp.Error.Code, method)
	}
}

func TestHandleRPC_TradeLifecycle(t *testing.T) {
	env := newTestEnv(t)
	mktHex := env.market.Address().Hex()
	env.ledger.Approve(env.alice.Address(), env.market.Address(), 100*token.One)

	alice := env.newSocketClient()
	env.socketLogin(t, alice, env.alice)
	account, ok := alice.identity()
	require.True(t, ok)
	assert.Equal(t, env.alice.Address(), account)

	resp := env.call(t, alice, rpc.MethodBuyShares, rpc.BuySharesParams{Market: mktHex, IsYes: false, Amount: 50 * token.One})
	require.Nil(t, resp.Error, "%+v", resp.Error)
	var buy rpc.BuySharesResult
	require.NoError(t, json.Unmarshal(resp.Result, &buy))
	assert.Equal(t, uint64(66_666_666), buy.Shares)
	assert.Equal(t, engine.OutcomeNO, buy.Event.Side)

	resp = env.call(t, alice, rpc.MethodBuyShares, rpc.BuySharesParams{Market: mktHex, IsYes: true, Amount: 1})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidAmount, resp.Error.Code)

	resp = env.call(t, alice, rpc.MethodClaimWinnings, rpc.MarketParams{Market: mktHex})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeInvalidState, resp.Error.Code)

	resp = env.call(t, alice, rpc.MethodSettle, rpc.SettleParams{Market: mktHex, YesWon: false})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeUnauthorized, resp.Error.Code)

	owner := env.newSocketClient()
	env.socketLogin(t, owner, env.owner)
	resp = env.call(t, owner, rpc.MethodSettle, rpc.SettleParams{Market: mktHex, YesWon: false})
	require.Nil(t, resp.Error, "%+v", resp.Error)

	resp = env.call(t, owner, rpc.MethodSettle, rpc.SettleParams{Market: mktHex, YesWon: true})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeAlreadySettled, resp.Error.Code)

	resp = env.call(t, alice, rpc.MethodClaimWinnings, rpc.MarketParams{Market: mktHex})
	require.Nil(t, resp.Error, "%+v", resp.Error)
	var claim rpc.ClaimResult
	require.NoError(t, json.Unmarshal(resp.Result, &claim))
	assert.Equal(t, uint64(66_666_666), claim.Payout)

	resp = env.call(t, alice, rpc.MethodClaimWinnings, rpc.MarketParams{Market: mktHex})
	require.NotNil(t, resp.Error)
	assert.Equal(t, rpc.CodeNothingToClaim, resp.Error.Code)

	resp = env.call(t, alice, rpc.MethodGetUserShares, rpc.UserSharesParams{Market: mktHex, Account: env.alice.Address().Hex()})
	require.Nil(t, resp.Error)
	assert.JSONEq(t, `{"yes_shares":0,"no_shares":0}`, string(resp.Result))
}

func TestWebSocket_SettleOverRPCClient(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go env.server.Hub().Run(ctx)

	srv := httptest.NewServer(env.handler)
	defer srv.Close()

	var (
		mu     sync.Mutex
		pushed []string
	)
	client := rpc.NewClient("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", env.owner)
	client.SetTimeout(5 * time.Second)
	client.SetNotificationHandler(func(n rpc.Notification) {
		mu.Lock()
		pushed = append(pushed, n.Type)
		mu.Unlock()
	})
	require.NoError(t, client.Connect(ctx))
	defer client.Close()

	require.NoError(t, client.Ping(ctx))
	require.NoError(t, client.Authenticate(ctx))
	assert.True(t, client.IsAuthenticated())

	markets, err := client.GetAllMarkets(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{env.market.Address().Hex()}, markets)

	res, err := client.Settle(ctx, markets[0], true)
	require.NoError(t, err)
	assert.True(t, res.Event.YesWon)
	assert.True(t, env.market.Settled())

	_, err = client.Settle(ctx, markets[0], false)
	var rpcErr *rpc.Error
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, rpc.CodeAlreadySettled, rpcErr.Code)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return assert.ObjectsAreEqual([]string{"connected", "settlement"}, pushed)
	}, 2*time.Second, 20*time.Millisecond)
}
