package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livepredict/engine/internal/domain"
)

func TestSettlement_ResolvedCreditsWinnersAndForfeitsLosers(t *testing.T) {
	// Two even 100-unit bets; option 0 wins. The winner bet at 1.0x (first
	// bet on a fresh market) so the payout is exactly the stake; the loser's
	// stake is forfeited but their locked balance is freed.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	_, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 100})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, bob, domain.PlaceBetOp{MarketID: marketID, OptionID: 1, Amount: 100})
	require.NoError(t, err)

	_, err = eng.Execute(ctx, admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, admin, domain.ResolveMarketOp{MarketID: marketID, WinningOption: 0})
	require.NoError(t, err)

	aliceAcct := account(t, store, alice)
	assert.Equal(t, domain.Amount(1000), aliceAcct.Available)
	assert.Equal(t, domain.Amount(0), aliceAcct.Locked)

	bobAcct := account(t, store, bob)
	assert.Equal(t, domain.Amount(900), bobAcct.Available)
	assert.Equal(t, domain.Amount(0), bobAcct.Locked)

	normalizedBob, _ := domain.NormalizeOwner(bob)
	bobBets, err := store.Bets.ListByOwner(ctx, normalizedBob, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bobBets, 1)
	assert.True(t, bobBets[0].Settled)
	require.NotNil(t, bobBets[0].Payout)
	assert.Equal(t, domain.Amount(0), *bobBets[0].Payout)
}

func TestSettlement_SoleWinnerCollectsWholePool(t *testing.T) {
	// With no fee, the last bettor on the winning side is quoted against the
	// final pools, so their payout redistributes the entire pot: losing
	// stakes plus their own.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	_, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 1, Amount: 300})
	require.NoError(t, err)

	placed, err := eng.Execute(ctx, bob, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 100})
	require.NoError(t, err)
	assert.Equal(t, int64(4000), placed.Odds) // 400 / 100

	_, err = eng.Execute(ctx, admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, admin, domain.ResolveMarketOp{MarketID: marketID, WinningOption: 0})
	require.NoError(t, err)

	// Bob staked 100, receives 400: his stake plus Alice's 300.
	bobAcct := account(t, store, bob)
	assert.Equal(t, domain.Amount(1300), bobAcct.Available)
	assert.Equal(t, domain.Amount(0), bobAcct.Locked)

	aliceAcct := account(t, store, alice)
	assert.Equal(t, domain.Amount(700), aliceAcct.Available)
}

func TestSettlement_FeeChargedOnlyOnNetWinnings(t *testing.T) {
	// 100 bps fee. Winner staked 100 at 4.0x: gross 400, winnings 300,
	// fee 3, net 397.
	eng, store, clock := newTestEngine(t, 100)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	_, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 1, Amount: 300})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, bob, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 100})
	require.NoError(t, err)

	_, err = eng.Execute(ctx, admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, admin, domain.ResolveMarketOp{MarketID: marketID, WinningOption: 0})
	require.NoError(t, err)

	bobAcct := account(t, store, bob)
	assert.Equal(t, domain.Amount(900+397), bobAcct.Available)

	stats, err := store.Stats.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(3), stats.ProtocolFees)
	assert.Equal(t, domain.Amount(400), stats.TotalVolume)
}

func TestSettlement_CancelRefundsInFull(t *testing.T) {
	// Scenario: cancelling a locked market with one unsettled 50-unit bet
	// refunds the stake with no fee.
	eng, store, clock := newTestEngine(t, 100)
	deposit(t, eng, alice, 200)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	placed, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 50})
	require.NoError(t, err)

	_, err = eng.Execute(ctx, admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, admin, domain.CancelMarketOp{MarketID: marketID})
	require.NoError(t, err)

	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(200), acct.Available)
	assert.Equal(t, domain.Amount(0), acct.Locked)

	bet, err := store.Bets.GetByID(ctx, placed.BetID)
	require.NoError(t, err)
	assert.True(t, bet.Settled)
	require.NotNil(t, bet.Payout)
	assert.Equal(t, domain.Amount(50), *bet.Payout)
}

func TestSettlement_CancelOpenMarket(t *testing.T) {
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 100)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	_, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 1, Amount: 40})
	require.NoError(t, err)

	_, err = eng.Execute(ctx, admin, domain.CancelMarketOp{MarketID: marketID})
	require.NoError(t, err)

	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(100), acct.Available)
}

func TestSettlement_RerunIsNoOp(t *testing.T) {
	// Running the pass again over an already-settled market must not move a
	// single unit: every bet is settled, so the pass sees an empty set.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	_, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 100})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, bob, domain.PlaceBetOp{MarketID: marketID, OptionID: 1, Amount: 100})
	require.NoError(t, err)

	_, err = eng.Execute(ctx, admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, admin, domain.ResolveMarketOp{MarketID: marketID, WinningOption: 0})
	require.NoError(t, err)

	before := []domain.LedgerAccount{account(t, store, alice), account(t, store, bob)}

	market, err := store.Markets.GetByID(ctx, marketID)
	require.NoError(t, err)
	summary, err := eng.settle(ctx, market)
	require.NoError(t, err)
	assert.Equal(t, 0, summary.BetsPaid)
	assert.Equal(t, domain.Amount(0), summary.TotalPaid)

	after := []domain.LedgerAccount{account(t, store, alice), account(t, store, bob)}
	for i := range before {
		assert.Equal(t, before[i].Available, after[i].Available)
		assert.Equal(t, before[i].Locked, after[i].Locked)
	}
}

func TestSettlement_ResumesOverUnsettledBetsOnly(t *testing.T) {
	// Simulate a crash mid-pass: one bet already settled, one not. A re-run
	// must pay only the remaining bet.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	first, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 100})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, bob, domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 100})
	require.NoError(t, err)

	// Hand-settle the first bet as a crashed pass would have left it.
	normalizedAlice, _ := domain.NormalizeOwner(alice)
	require.NoError(t, store.Ledger.Release(ctx, normalizedAlice, 100, 150))
	settled, err := store.Bets.MarkSettled(ctx, first.BetID, 150)
	require.NoError(t, err)
	require.True(t, settled)

	clock.Advance(2 * time.Hour)
	_, err = eng.Execute(ctx, admin, domain.ResolveMarketOp{MarketID: marketID, WinningOption: 0})
	require.NoError(t, err)

	// Alice's balance is untouched by the resumed pass.
	assert.Equal(t, domain.Amount(1050), account(t, store, alice).Available)
	// Bob's bet settled normally: odds 200/200 = 1.0x on his placement.
	assert.Equal(t, domain.Amount(1000), account(t, store, bob).Available)
	assert.Equal(t, domain.Amount(0), account(t, store, bob).Locked)
}

func TestRelease_OverLockedIsFatal(t *testing.T) {
	eng, store, _ := newTestEngine(t, 0)
	deposit(t, eng, alice, 100)

	normalized, _ := domain.NormalizeOwner(alice)
	require.NoError(t, store.Ledger.Reserve(context.Background(), normalized, 60))

	err := store.Ledger.Release(context.Background(), normalized, 80, 0)
	assert.ErrorIs(t, err, domain.ErrLedgerCorrupt)
}
