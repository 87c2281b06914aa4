// Package engine holds the AMM pricing curve and the per-market share
// accounting that the market package builds on.
//
// Pricing uses a hyperbolic curve over the two deposit pools:
//
//	curve(a) = a * (yes + no) / (chosen + a)
//
// For a small deposit one share costs chosen/(yes+no), which is exactly the
// displayed odds of that side, and the yield per unit falls as the chosen
// pool grows. The curve never returns more than yes+no shares. On top of
// the curve a solvency cap holds the outstanding shares of a side at or
// below the market's custody, so every winning share can be redeemed 1:1.
package engine

import (
	"errors"

	"github.com/holiman/uint256"
)

var (
	ErrZeroDeposit    = errors.New("deposit must be greater than 0")
	ErrEmptyPools     = errors.New("pools must be positive")
	ErrPoolOverflow   = errors.New("deposit overflows pool")
	ErrNoSharesMinted = errors.New("deposit too small to mint shares")
)

// MaxOddsBps is 100% in basis points
const MaxOddsBps = 10000

// Quote is the input to the pricing function
type Quote struct {
	Side        OutcomeID
	Amount      uint64
	YesPool     uint64
	NoPool      uint64
	Custody     uint64 // stablecoin held by the market before the deposit
	Outstanding uint64 // shares of Side already issued and not yet claimed
}

// SharesOut computes the shares minted for a deposit
func SharesOut(q Quote) (uint64, error) {
	if q.Amount == 0 {
		return 0, ErrZeroDeposit
	}
	if q.YesPool == 0 || q.NoPool == 0 {
		return 0, ErrEmptyPools
	}

	chosen := q.NoPool
	if q.Side == OutcomeYES {
		chosen = q.YesPool
	}

	amount := uint256.NewInt(q.Amount)
	total, _ := new(uint256.Int).AddOverflow(uint256.NewInt(q.YesPool), uint256.NewInt(q.NoPool))
	denom, _ := new(uint256.Int).AddOverflow(uint256.NewInt(chosen), amount)
	if !denom.IsUint64() {
		return 0, ErrPoolOverflow
	}

	curve, overflow := new(uint256.Int).MulDivOverflow(amount, total, denom)
	if overflow || !curve.IsUint64() {
		return 0, ErrPoolOverflow
	}

	custodyAfter, _ := new(uint256.Int).AddOverflow(uint256.NewInt(q.Custody), amount)
	headroom := new(uint256.Int)
	if outstanding := uint256.NewInt(q.Outstanding); custodyAfter.Gt(outstanding) {
		headroom.Sub(custodyAfter, outstanding)
	}

	shares := curve
	if headroom.Lt(shares) {
		shares = headroom
	}
	if shares.IsZero() {
		return 0, ErrNoSharesMinted
	}
	return shares.Uint64(), nil
}

// OddsBps returns the YES probability implied by the pools in basis points
func OddsBps(yesPool, noPool uint64) uint64 {
	total, _ := new(uint256.Int).AddOverflow(uint256.NewInt(yesPool), uint256.NewInt(noPool))
	if total.IsZero() {
		return MaxOddsBps / 2
	}
	bps, _ := new(uint256.Int).MulDivOverflow(uint256.NewInt(yesPool), uint256.NewInt(MaxOddsBps), total)
	return bps.Uint64()
}

// Odds returns the YES probability implied by the pools as a whole percentage
func Odds(yesPool, noPool uint64) uint64 {
	return OddsBps(yesPool, noPool) / 100
}
