package rpc

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	a, err := NewRequest(MethodPing, nil)
	require.NoError(t, err)
	b, err := NewRequest(MethodSettle, SettleParams{Market: "0xabc", YesWon: true})
	require.NoError(t, err)

	assert.Equal(t, "2.0", a.JSONRPC)
	assert.Nil(t, a.Params)
	assert.Greater(t, b.ID, a.ID)
	assert.JSONEq(t, `{"market":"0xabc","yes_won":true}`, string(b.Params))
}

func TestResponseRoundTrip(t *testing.T) {
	ok, err := NewResult(7, CountResult{Count: 12})
	require.NoError(t, err)
	raw, err := json.Marshal(ok)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"error"`)

	parsed, err := ParseResponse(raw)
	require.NoError(t, err)
	assert.Equal(t, int64(7), parsed.ID)
	assert.JSONEq(t, `{"count":12}`, string(parsed.Result))

	failed := NewError(8, CodeNothingToClaim, "no winning shares")
	raw, err = json.Marshal(failed)
	require.NoError(t, err)
	parsed, err = ParseResponse(raw)
	require.NoError(t, err)
	require.NotNil(t, parsed.Error)
	assert.Equal(t, CodeNothingToClaim, parsed.Error.Code)
	assert.EqualError(t, parsed.Error, "rpc error -32005: no winning shares")
}
