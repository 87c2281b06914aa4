package token

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	tokenAddr = common.HexToAddress("0x20C000000000000000000000033aBB6ac7D235e5")
	minter    = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	alice     = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob       = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
	market    = common.HexToAddress("0x00000000000000000000000000000000000000cc")
)

func newFundedLedger(t *testing.T) *Ledger {
	t.Helper()
	l := NewLedger(tokenAddr, minter)
	require.NoError(t, l.Mint(minter, alice, 100*One))
	return l
}

func TestLedger_MintOnlyMinter(t *testing.T) {
	l := NewLedger(tokenAddr, minter)

	require.ErrorIs(t, l.Mint(alice, alice, One), ErrUnauthorized)
	require.ErrorIs(t, l.Mint(minter, alice, 0), ErrZeroAmount)
	require.NoError(t, l.Mint(minter, alice, One))

	assert.Equal(t, One, l.BalanceOf(alice))
	assert.Equal(t, One, l.TotalSupply())
}

func TestLedger_Transfer(t *testing.T) {
	l := newFundedLedger(t)

	require.NoError(t, l.Transfer(alice, bob, 40*One))
	assert.Equal(t, 60*One, l.BalanceOf(alice))
	assert.Equal(t, 40*One, l.BalanceOf(bob))

	err := l.Transfer(bob, alice, 41*One)
	require.ErrorIs(t, err, ErrInsufficientBalance)
	assert.Equal(t, 40*One, l.BalanceOf(bob), "failed transfer must not move funds")
}

func TestLedger_TransferFromConsumesAllowance(t *testing.T) {
	l := newFundedLedger(t)

	require.ErrorIs(t, l.TransferFrom(market, alice, market, One), ErrInsufficientAllowance)

	l.Approve(alice, market, 10*One)
	require.NoError(t, l.TransferFrom(market, alice, market, 4*One))
	assert.Equal(t, 6*One, l.Allowance(alice, market))
	assert.Equal(t, 4*One, l.BalanceOf(market))

	require.ErrorIs(t, l.TransferFrom(market, alice, market, 7*One), ErrInsufficientAllowance)

	// Approve overwrites instead of adding
	l.Approve(alice, market, One)
	assert.Equal(t, One, l.Allowance(alice, market))
}

func TestLedger_TransferFromInsufficientBalanceKeepsAllowance(t *testing.T) {
	l := newFundedLedger(t)
	l.Approve(bob, market, 5*One)

	require.ErrorIs(t, l.TransferFrom(market, bob, market, 5*One), ErrInsufficientBalance)
	assert.Equal(t, 5*One, l.Allowance(bob, market))
}

func TestLedger_DistributeIsAllOrNothing(t *testing.T) {
	l := newFundedLedger(t)
	recipients := []common.Address{bob, market}

	require.ErrorIs(t, l.Distribute(alice, recipients, 51*One), ErrInsufficientBalance)
	assert.Equal(t, 100*One, l.BalanceOf(alice))
	assert.Zero(t, l.BalanceOf(bob))

	require.NoError(t, l.Distribute(alice, recipients, 50*One))
	assert.Zero(t, l.BalanceOf(alice))
	assert.Equal(t, 50*One, l.BalanceOf(bob))
	assert.Equal(t, 50*One, l.BalanceOf(market))
}

func TestLedger_DistributeRejectsDuplicateRecipients(t *testing.T) {
	l := newFundedLedger(t)

	err := l.Distribute(alice, []common.Address{bob, market, bob}, 10*One)
	require.ErrorIs(t, err, ErrDuplicateRecipient)
	assert.Equal(t, 100*One, l.BalanceOf(alice))
	assert.Zero(t, l.BalanceOf(bob))
	assert.Zero(t, l.BalanceOf(market))
}

func TestParseUnits(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "1", want: One},
		{in: "0.5", want: 500_000},
		{in: "12.345678", want: 12_345_678},
		{in: " 3 ", want: 3 * One},
		{in: "0", want: 0},
		{in: "-1", wantErr: true},
		{in: "1.0000001", wantErr: true},
		{in: "abc", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseUnits(tt.in)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatUnits(t *testing.T) {
	assert.Equal(t, "1.00", FormatUnits(One))
	assert.Equal(t, "0.50", FormatUnits(500_000))
	assert.Equal(t, "66.666666", FormatUnits(66_666_666))
	assert.Equal(t, "0.00", FormatUnits(0))
}
