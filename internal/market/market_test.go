package market

import (
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hackmarket-backend/internal/engine"
	"hackmarket-backend/internal/token"
)

var (
	factoryAddr = common.HexToAddress("0x5b2A05072262B0f9E934d144DB114B59220a46b4")
	tokenAddr   = common.HexToAddress("0x20C000000000000000000000033aBB6ac7D235e5")
	owner       = common.HexToAddress("0x00000000000000000000000000000000000000a0")
	alice       = common.HexToAddress("0x0000000000000000000000000000000000000a11")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

const seed = 100 * token.One

type fixture struct {
	ledger  *token.Ledger
	factory *Factory
	market  *Market
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ledger := token.NewLedger(tokenAddr, owner)
	require.NoError(t, ledger.Mint(owner, owner, 10_000*token.One))
	require.NoError(t, ledger.Mint(owner, alice, 1_000*token.One))
	require.NoError(t, ledger.Mint(owner, bob, 1_000*token.One))

	f, err := NewFactory(FactoryConfig{
		Address:       factoryAddr,
		Owner:         owner,
		Token:         ledger,
		SeedLiquidity: seed,
		MinBet:        token.One,
	})
	require.NoError(t, err)

	mkt, err := f.CreateMarket(owner, ProjectMetadata{
		Name:        "DeFi Yield Aggregator",
		Description: "Automated yield optimization across multiple protocols",
		Category:    "DeFi",
		TeamName:    "Yield Masters",
	})
	require.NoError(t, err)

	ledger.Approve(alice, mkt.Address(), 1_000*token.One)
	ledger.Approve(bob, mkt.Address(), 1_000*token.One)

	return &fixture{ledger: ledger, factory: f, market: mkt}
}

func TestMarket_StartsBalanced(t *testing.T) {
	fx := newFixture(t)

	yes, no := fx.market.Pools()
	assert.Equal(t, seed, yes)
	assert.Equal(t, seed, no)
	assert.Equal(t, uint64(50), fx.market.GetCurrentOdds())
	assert.Equal(t, 2*seed, fx.ledger.BalanceOf(fx.market.Address()))
	assert.Equal(t, StatusActive, fx.market.Status())
	assert.Equal(t, owner, fx.market.Owner())
}

func TestMarket_BuySharesMatchesQuote(t *testing.T) {
	fx := newFixture(t)
	amount := 50 * token.One

	quoted, err := fx.market.CalculateSharesOut(true, amount)
	require.NoError(t, err)
	assert.Equal(t, uint64(66_666_666), quoted)

	ev, err := fx.market.BuyShares(alice, true, amount)
	require.NoError(t, err)

	assert.Equal(t, engine.EventPurchase, ev.Kind)
	assert.Equal(t, quoted, ev.Shares)
	assert.Equal(t, seed+amount, ev.YesPool)
	assert.Equal(t, seed, ev.NoPool)

	yesShares, noShares := fx.market.GetUserShares(alice)
	assert.Equal(t, quoted, yesShares)
	assert.Zero(t, noShares)

	info := fx.market.GetProjectInfo()
	assert.Equal(t, amount, info.Volume)
	assert.False(t, info.Settled)

	assert.Equal(t, uint64(60), fx.market.GetCurrentOdds())
	assert.Greater(t, fx.market.GetCurrentOdds(), uint64(50))
	assert.Equal(t, 950*token.One, fx.ledger.BalanceOf(alice))
	assert.Equal(t, 950*token.One, fx.ledger.Allowance(alice, fx.market.Address()))
}

func TestMarket_BuySharesRoundTrip(t *testing.T) {
	fx := newFixture(t)

	var wantYes, wantNo uint64
	buys := []struct {
		isYes  bool
		amount uint64
	}{
		{true, 10 * token.One},
		{false, 25 * token.One},
		{true, 3 * token.One},
		{false, token.One},
		{true, 120 * token.One},
	}

	var volume uint64
	for _, b := range buys {
		before := fx.market.GetProjectInfo().Volume
		quoted, err := fx.market.CalculateSharesOut(b.isYes, b.amount)
		require.NoError(t, err)

		_, err = fx.market.BuyShares(alice, b.isYes, b.amount)
		require.NoError(t, err)

		assert.Equal(t, before+b.amount, fx.market.GetProjectInfo().Volume)
		if b.isYes {
			wantYes += quoted
		} else {
			wantNo += quoted
		}
		volume += b.amount
	}

	yes, no := fx.market.GetUserShares(alice)
	assert.Equal(t, wantYes, yes)
	assert.Equal(t, wantNo, no)

	snap := fx.market.Snapshot()
	assert.Equal(t, volume, snap.TotalVolume)
	assert.Equal(t, 2*seed+volume, snap.YesPool+snap.NoPool)
	assert.Equal(t, 2*seed+volume, snap.Custody)
}

func TestMarket_BuyBelowMinimum(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.market.BuyShares(alice, true, 500_000) // $0.50
	require.ErrorIs(t, err, ErrInvalidAmount)

	_, err = fx.market.BuyShares(alice, true, 0)
	require.ErrorIs(t, err, ErrInvalidAmount)

	assert.Zero(t, fx.market.GetProjectInfo().Volume)
	assert.Equal(t, 1_000*token.One, fx.ledger.BalanceOf(alice))
}

func TestMarket_BuyWithoutApproval(t *testing.T) {
	fx := newFixture(t)
	carol := common.HexToAddress("0xca401")
	require.NoError(t, fx.ledger.Mint(owner, carol, 10*token.One))

	_, err := fx.market.BuyShares(carol, false, 5*token.One)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.ErrorIs(t, err, token.ErrInsufficientAllowance)

	fx.ledger.Approve(carol, fx.market.Address(), 50*token.One)
	_, err = fx.market.BuyShares(carol, false, 20*token.One)
	require.ErrorIs(t, err, ErrInvalidAmount)
	require.ErrorIs(t, err, token.ErrInsufficientBalance)

	yes, no := fx.market.Pools()
	assert.Equal(t, seed, yes)
	assert.Equal(t, seed, no)
	yesShares, noShares := fx.market.GetUserShares(carol)
	assert.Zero(t, yesShares)
	assert.Zero(t, noShares)
}

func TestMarket_BuyAfterSettlement(t *testing.T) {
	fx := newFixture(t)
	_, err := fx.market.Settle(owner, false)
	require.NoError(t, err)

	_, err = fx.market.BuyShares(alice, true, 10*token.One)
	require.ErrorIs(t, err, ErrInvalidState)
	assert.Equal(t, 1_000*token.One, fx.ledger.BalanceOf(alice))
}

func TestMarket_SettleOwnerOnlyAndIrreversible(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.market.Settle(bob, true)
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.False(t, fx.market.Settled())

	ev, err := fx.market.Settle(owner, true)
	require.NoError(t, err)
	assert.Equal(t, engine.EventSettlement, ev.Kind)
	assert.True(t, ev.YesWon)

	for _, v := range []bool{true, false} {
		_, err = fx.market.Settle(owner, v)
		require.ErrorIs(t, err, ErrAlreadySettled)
	}

	assert.True(t, fx.market.Settled())
	assert.True(t, fx.market.YesWon())
	assert.Equal(t, StatusSettled, fx.market.Status())

	snap := fx.market.Snapshot()
	require.NotNil(t, snap.YesWon)
	assert.True(t, *snap.YesWon)
	assert.NotNil(t, snap.SettledAt)
}

func TestMarket_YesWonHiddenBeforeSettlement(t *testing.T) {
	fx := newFixture(t)

	assert.False(t, fx.market.YesWon())
	assert.Nil(t, fx.market.Snapshot().YesWon)
}

func TestMarket_ClaimPaysWinningSharesOnce(t *testing.T) {
	fx := newFixture(t)
	fx.market.shares.Credit(alice, engine.OutcomeYES, 20)

	_, err := fx.market.ClaimWinnings(alice)
	require.ErrorIs(t, err, ErrInvalidState, "claims open only after settlement")

	_, err = fx.market.Settle(owner, true)
	require.NoError(t, err)

	before := fx.ledger.BalanceOf(alice)
	ev, err := fx.market.ClaimWinnings(alice)
	require.NoError(t, err)
	assert.Equal(t, engine.EventClaim, ev.Kind)
	assert.Equal(t, uint64(20), ev.Amount)
	assert.Equal(t, before+20, fx.ledger.BalanceOf(alice))

	yes, _ := fx.market.GetUserShares(alice)
	assert.Zero(t, yes)

	_, err = fx.market.ClaimWinnings(alice)
	require.ErrorIs(t, err, ErrNothingToClaim)
	assert.Equal(t, before+20, fx.ledger.BalanceOf(alice))
}

func TestMarket_ClaimLosingSideOnly(t *testing.T) {
	fx := newFixture(t)

	_, err := fx.market.BuyShares(bob, false, 10*token.One)
	require.NoError(t, err)
	_, err = fx.market.Settle(owner, true)
	require.NoError(t, err)

	_, err = fx.market.ClaimWinnings(bob)
	require.ErrorIs(t, err, ErrNothingToClaim)

	_, no := fx.market.GetUserShares(bob)
	assert.NotZero(t, no, "losing shares are not burned")
	assert.Empty(t, fx.market.PendingPayouts())
}

func TestMarket_AllWinnersCanClaim(t *testing.T) {
	fx := newFixture(t)

	// Pump NO first so later YES buys get a generous curve
	for i := 0; i < 8; i++ {
		_, err := fx.market.BuyShares(bob, false, 100*token.One)
		require.NoError(t, err)
	}
	for i := 0; i < 9; i++ {
		_, err := fx.market.BuyShares(alice, true, 100*token.One)
		require.NoError(t, err)
	}

	snap := fx.market.Snapshot()
	assert.LessOrEqual(t, snap.OutstandingYes, snap.Custody)
	assert.LessOrEqual(t, snap.OutstandingNo, snap.Custody)

	_, err := fx.market.Settle(owner, true)
	require.NoError(t, err)

	payouts := fx.market.PendingPayouts()
	require.Len(t, payouts, 1)
	assert.Equal(t, alice, payouts[0].Account)

	ev, err := fx.market.ClaimWinnings(alice)
	require.NoError(t, err)
	assert.Equal(t, snap.OutstandingYes, ev.Amount)
	assert.Equal(t, snap.Custody-ev.Amount, fx.ledger.BalanceOf(fx.market.Address()))
}

func TestMarket_ConcurrentBuysStayConsistent(t *testing.T) {
	fx := newFixture(t)

	const buyers = 8
	const buysEach = 25
	accounts := make([]common.Address, buyers)
	for i := range accounts {
		accounts[i] = common.BigToAddress(big.NewInt(int64(0x1000 + i)))
		require.NoError(t, fx.ledger.Mint(owner, accounts[i], 1_000*token.One))
		fx.ledger.Approve(accounts[i], fx.market.Address(), 1_000*token.One)
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})
	inconsistent := make(chan Snapshot, 1)

	// Readers must never observe a pool update without its volume
	go func() {
		for {
			select {
			case <-stop:
				return
			default:
			}
			snap := fx.market.Snapshot()
			if snap.YesPool+snap.NoPool != 2*seed+snap.TotalVolume {
				select {
				case inconsistent <- snap:
				default:
				}
			}
		}
	}()

	for i, acct := range accounts {
		wg.Add(1)
		go func(acct common.Address, isYes bool) {
			defer wg.Done()
			for j := 0; j < buysEach; j++ {
				_, err := fx.market.BuyShares(acct, isYes, 2*token.One)
				assert.NoError(t, err)
			}
		}(acct, i%2 == 0)
	}
	wg.Wait()
	close(stop)

	select {
	case snap := <-inconsistent:
		t.Fatalf("torn read: %+v", snap)
	default:
	}

	snap := fx.market.Snapshot()
	assert.Equal(t, uint64(buyers*buysEach)*2*token.One, snap.TotalVolume)

	var yesTotal, noTotal uint64
	for _, acct := range accounts {
		y, n := fx.market.GetUserShares(acct)
		yesTotal += y
		noTotal += n
	}
	assert.Equal(t, snap.OutstandingYes, yesTotal)
	assert.Equal(t, snap.OutstandingNo, noTotal)
}

func TestMarket_EmitsEventsAfterCommit(t *testing.T) {
	fx := newFixture(t)

	var got []engine.Event
	fx.factory.SetEventCallback(func(ev engine.Event) {
		// reads from the callback must not deadlock
		_ = fx.market.Snapshot()
		got = append(got, ev)
	})

	_, err := fx.market.BuyShares(alice, true, 5*token.One)
	require.NoError(t, err)
	_, err = fx.market.Settle(owner, true)
	require.NoError(t, err)
	_, err = fx.market.ClaimWinnings(alice)
	require.NoError(t, err)

	require.Len(t, got, 3)
	assert.Equal(t, engine.EventPurchase, got[0].Kind)
	assert.Equal(t, engine.EventSettlement, got[1].Kind)
	assert.Equal(t, engine.EventClaim, got[2].Kind)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{got[0].Sequence, got[1].Sequence, got[2].Sequence})
}

func TestNew_Validates(t *testing.T) {
	ledger := token.NewLedger(tokenAddr, owner)

	_, err := New(Params{Authority: NewOwnerAuthority(owner), Token: ledger})
	require.ErrorIs(t, err, ErrInvalidParameter)

	_, err = New(Params{Seed: seed, Token: ledger})
	require.ErrorIs(t, err, ErrInvalidParameter)

	mkt, err := New(Params{Seed: seed, Token: ledger, Authority: NewOwnerAuthority(owner)})
	require.NoError(t, err)
	assert.Equal(t, token.One, mkt.MinBet())
}

func TestOwnerAuthority_ZeroOwnerSettlesNothing(t *testing.T) {
	auth := NewOwnerAuthority(common.Address{})
	assert.False(t, auth.CanSettle(common.Address{}))
	assert.True(t, NewOwnerAuthority(owner).CanSettle(owner))
	assert.False(t, NewOwnerAuthority(owner).CanSettle(bob))
}

func TestMarket_ConcurrentEventsArriveInSequence(t *testing.T) {
	fx := newFixture(t)

	var seqs []uint64
	fx.factory.SetEventCallback(func(ev engine.Event) {
		seqs = append(seqs, ev.Sequence)
	})

	const perBuyer = 25
	var wg sync.WaitGroup
	for _, buyer := range []common.Address{alice, bob} {
		wg.Add(1)
		go func(buyer common.Address) {
			defer wg.Done()
			for i := 0; i < perBuyer; i++ {
				_, err := fx.market.BuyShares(buyer, buyer == alice, token.One)
				assert.NoError(t, err)
			}
		}(buyer)
	}
	wg.Wait()

	want := make([]uint64, 2*perBuyer)
	for i := range want {
		want[i] = uint64(i + 1)
	}
	assert.Equal(t, want, seqs)
}
