package engine

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livepredict/engine/internal/domain"
	"github.com/livepredict/engine/internal/store/memory"
)

const (
	admin  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	alice  = "0x1111111111111111111111111111111111111111"
	bob    = "0x2222222222222222222222222222222222222222"
	mallet = "0x3333333333333333333333333333333333333333"
)

// fakeClock lets tests move time past a market's lock deadline.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestEngine(t *testing.T, feeBps int) (*Engine, domain.Store, *fakeClock) {
	t.Helper()
	store := memory.NewStore()
	clock := newFakeClock()
	eng := New(store, Config{FeeRateBps: feeBps, Admins: []string{admin}},
		nil, slog.Default()).WithNow(clock.Now)
	return eng, store, clock
}

func deposit(t *testing.T, eng *Engine, owner string, amount domain.Amount) {
	t.Helper()
	_, err := eng.Execute(context.Background(), owner, domain.DepositOp{Amount: amount})
	require.NoError(t, err)
}

func createMarket(t *testing.T, eng *Engine, clock *fakeClock, options ...string) int64 {
	t.Helper()
	if len(options) == 0 {
		options = []string{"NAVI wins", "FaZe wins"}
	}
	res, err := eng.Execute(context.Background(), admin, domain.CreateMarketOp{
		MatchID:    "match-42",
		MarketType: "match_winner",
		Title:      "Who takes the series?",
		Options:    options,
		LocksAt:    clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	return res.MarketID
}

func account(t *testing.T, store domain.Store, owner string) domain.LedgerAccount {
	t.Helper()
	normalized, ok := domain.NormalizeOwner(owner)
	require.True(t, ok)
	acct, err := store.Ledger.Get(context.Background(), normalized)
	require.NoError(t, err)
	return acct
}

func TestDeposit(t *testing.T) {
	eng, store, _ := newTestEngine(t, 0)

	res, err := eng.Execute(context.Background(), alice, domain.DepositOp{Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(1000), res.NewAvailable)

	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(1000), acct.Available)
	assert.Equal(t, domain.Amount(0), acct.Locked)
}

func TestDeposit_RejectsNonPositiveAmount(t *testing.T) {
	eng, _, _ := newTestEngine(t, 0)

	for _, amount := range []domain.Amount{0, -5} {
		_, err := eng.Execute(context.Background(), alice, domain.DepositOp{Amount: amount})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)
	}
}

func TestWithdraw_InsufficientFundsLeavesStateUnchanged(t *testing.T) {
	eng, store, _ := newTestEngine(t, 0)
	deposit(t, eng, alice, 100)

	_, err := eng.Execute(context.Background(), alice, domain.WithdrawOp{Amount: 250})
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(100), acct.Available)
}

func TestWithdraw(t *testing.T) {
	eng, _, _ := newTestEngine(t, 0)
	deposit(t, eng, alice, 100)

	res, err := eng.Execute(context.Background(), alice, domain.WithdrawOp{Amount: 40})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(60), res.NewAvailable)
}

func TestCreateMarket_Validation(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	future := clock.Now().Add(time.Hour)

	tests := []struct {
		name    string
		caller  string
		options []string
		locksAt time.Time
		wantErr error
	}{
		{"non-admin", alice, []string{"a", "b"}, future, domain.ErrUnauthorized},
		{"one option", admin, []string{"a"}, future, domain.ErrInvalidOptions},
		{"eleven options", admin, []string{"a", "b", "c", "d", "e", "f", "g", "h", "i", "j", "k"}, future, domain.ErrInvalidOptions},
		{"duplicate labels", admin, []string{"a", "a"}, future, domain.ErrInvalidOptions},
		{"empty label", admin, []string{"a", ""}, future, domain.ErrInvalidOptions},
		{"deadline in the past", admin, []string{"a", "b"}, clock.Now().Add(-time.Minute), domain.ErrInvalidDeadline},
		{"deadline exactly now", admin, []string{"a", "b"}, clock.Now(), domain.ErrInvalidDeadline},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Execute(context.Background(), tt.caller, domain.CreateMarketOp{
				MatchID: "m", Title: "t", Options: tt.options, LocksAt: tt.locksAt,
			})
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPlaceBet_FirstBetGetsEvenOdds(t *testing.T) {
	// Scenario: deposit 1000, first bet of 100 on a fresh market is quoted
	// against its own stake only.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	marketID := createMarket(t, eng, clock)

	res, err := eng.Execute(context.Background(), alice, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1000), res.Odds)

	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(900), acct.Available)
	assert.Equal(t, domain.Amount(100), acct.Locked)

	market, err := store.Markets.GetByID(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(100), market.Options[0].Pool)
	assert.Equal(t, domain.Amount(0), market.Options[1].Pool)
}

func TestPlaceBet_SecondBettorQuotedAgainstGrownPool(t *testing.T) {
	// Scenario: with 100 already on option 0, 100 on option 1 is quoted
	// 200/100 = 2.0x.
	eng, _, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	_, err := eng.Execute(context.Background(), alice, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 100,
	})
	require.NoError(t, err)

	res, err := eng.Execute(context.Background(), bob, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 1, Amount: 100,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2000), res.Odds)
}

func TestPlaceBet_OddsLockedAtPlacement(t *testing.T) {
	// A later bet that changes the pool must not alter an earlier bet's
	// stored odds.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	first, err := eng.Execute(context.Background(), alice, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 100,
	})
	require.NoError(t, err)

	_, err = eng.Execute(context.Background(), bob, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 500,
	})
	require.NoError(t, err)

	stored, err := store.Bets.GetByID(context.Background(), first.BetID)
	require.NoError(t, err)
	assert.Equal(t, first.Odds, stored.Odds)
	assert.Equal(t, int64(1000), stored.Odds)
}

func TestPlaceBet_Failures(t *testing.T) {
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 50)
	marketID := createMarket(t, eng, clock)

	tests := []struct {
		name    string
		op      domain.PlaceBetOp
		wantErr error
	}{
		{"zero amount", domain.PlaceBetOp{MarketID: marketID, OptionID: 0}, domain.ErrInvalidAmount},
		{"unknown market", domain.PlaceBetOp{MarketID: 999, OptionID: 0, Amount: 10}, domain.ErrNotFound},
		{"option out of range", domain.PlaceBetOp{MarketID: marketID, OptionID: 2, Amount: 10}, domain.ErrInvalidOption},
		{"negative option", domain.PlaceBetOp{MarketID: marketID, OptionID: -1, Amount: 10}, domain.ErrInvalidOption},
		{"insufficient funds", domain.PlaceBetOp{MarketID: marketID, OptionID: 0, Amount: 51}, domain.ErrInsufficientFunds},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := eng.Execute(context.Background(), alice, tt.op)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	// No failure left any partial mutation behind.
	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(50), acct.Available)
	assert.Equal(t, domain.Amount(0), acct.Locked)

	market, err := store.Markets.GetByID(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), market.TotalPool())
}

func TestPlaceBet_LazyLockRejectsLateBets(t *testing.T) {
	// Scenario: the deadline passed but the recorded status is still Open.
	// The bet must fail without touching pools or the ledger.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	marketID := createMarket(t, eng, clock)

	clock.Advance(2 * time.Hour)

	_, err := eng.Execute(context.Background(), alice, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrMarketClosed)

	market, err := store.Markets.GetByID(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusOpen, market.Status)
	assert.Equal(t, domain.MarketStatusLocked, market.EffectiveStatus(clock.Now()))
	assert.Equal(t, domain.Amount(0), market.TotalPool())

	acct := account(t, store, alice)
	assert.Equal(t, domain.Amount(1000), acct.Available)
}

func TestPlaceBet_RejectedOnExplicitlyLockedMarket(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	marketID := createMarket(t, eng, clock)

	_, err := eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)

	_, err = eng.Execute(context.Background(), alice, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 100,
	})
	assert.ErrorIs(t, err, domain.ErrMarketClosed)
}

func TestLockMarket_Authorization(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	marketID := createMarket(t, eng, clock)

	_, err := eng.Execute(context.Background(), mallet, domain.LockMarketOp{MarketID: marketID})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)

	// Locking twice is an invalid transition.
	_, err = eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestResolveMarket_RequiresLockedState(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	marketID := createMarket(t, eng, clock)

	// Still open, deadline not reached.
	_, err := eng.Execute(context.Background(), admin, domain.ResolveMarketOp{
		MarketID: marketID, WinningOption: 0,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestResolveMarket_LazyLockAllowsResolutionPastDeadline(t *testing.T) {
	// The explicit lock call never arrived, but the deadline passed: the
	// market is effectively Locked and resolvable.
	eng, store, clock := newTestEngine(t, 0)
	marketID := createMarket(t, eng, clock)

	clock.Advance(2 * time.Hour)

	_, err := eng.Execute(context.Background(), admin, domain.ResolveMarketOp{
		MarketID: marketID, WinningOption: 1,
	})
	require.NoError(t, err)

	market, err := store.Markets.GetByID(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.MarketStatusResolved, market.Status)
	require.NotNil(t, market.WinningOption)
	assert.Equal(t, 1, *market.WinningOption)
}

func TestResolveMarket_InvalidOption(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	marketID := createMarket(t, eng, clock)
	_, err := eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)

	_, err = eng.Execute(context.Background(), admin, domain.ResolveMarketOp{
		MarketID: marketID, WinningOption: 2,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidOption)
}

func TestResolveMarket_TerminalStatesAreFrozen(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	marketID := createMarket(t, eng, clock)
	_, err := eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(context.Background(), admin, domain.ResolveMarketOp{
		MarketID: marketID, WinningOption: 0,
	})
	require.NoError(t, err)

	_, err = eng.Execute(context.Background(), admin, domain.ResolveMarketOp{
		MarketID: marketID, WinningOption: 1,
	})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = eng.Execute(context.Background(), admin, domain.CancelMarketOp{MarketID: marketID})
	assert.ErrorIs(t, err, domain.ErrInvalidState)

	_, err = eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	assert.ErrorIs(t, err, domain.ErrInvalidState)
}

func TestClaimWinnings(t *testing.T) {
	eng, _, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	marketID := createMarket(t, eng, clock)

	placed, err := eng.Execute(context.Background(), alice, domain.PlaceBetOp{
		MarketID: marketID, OptionID: 0, Amount: 100,
	})
	require.NoError(t, err)

	// Unsettled: nothing to claim yet.
	_, err = eng.Execute(context.Background(), alice, domain.ClaimWinningsOp{BetID: placed.BetID})
	assert.ErrorIs(t, err, domain.ErrNotSettled)

	// Foreign bets cannot be claimed.
	_, err = eng.Execute(context.Background(), bob, domain.ClaimWinningsOp{BetID: placed.BetID})
	assert.ErrorIs(t, err, domain.ErrNotOwner)

	_, err = eng.Execute(context.Background(), admin, domain.LockMarketOp{MarketID: marketID})
	require.NoError(t, err)
	_, err = eng.Execute(context.Background(), admin, domain.ResolveMarketOp{
		MarketID: marketID, WinningOption: 0,
	})
	require.NoError(t, err)

	res, err := eng.Execute(context.Background(), alice, domain.ClaimWinningsOp{BetID: placed.BetID})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(100), res.Payout)
}

func TestLedgerLockedMatchesUnsettledStakes(t *testing.T) {
	// Invariant: locked always equals the sum of the owner's unsettled
	// stakes, across placement and settlement.
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	m1 := createMarket(t, eng, clock)
	m2 := createMarket(t, eng, clock)

	ctx := context.Background()
	_, err := eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: m1, OptionID: 0, Amount: 100})
	require.NoError(t, err)
	_, err = eng.Execute(ctx, alice, domain.PlaceBetOp{MarketID: m2, OptionID: 1, Amount: 250})
	require.NoError(t, err)

	assert.Equal(t, domain.Amount(350), account(t, store, alice).Locked)

	_, err = eng.Execute(ctx, admin, domain.CancelMarketOp{MarketID: m1})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(250), account(t, store, alice).Locked)

	_, err = eng.Execute(ctx, admin, domain.CancelMarketOp{MarketID: m2})
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(0), account(t, store, alice).Locked)
	assert.Equal(t, domain.Amount(1000), account(t, store, alice).Available)
}

func TestPoolSumMatchesPlacedStakes(t *testing.T) {
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	deposit(t, eng, bob, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	stakes := []struct {
		owner  string
		option int
		amount domain.Amount
	}{
		{alice, 0, 100}, {bob, 1, 200}, {alice, 1, 50}, {bob, 0, 25},
	}
	var total domain.Amount
	for _, s := range stakes {
		_, err := eng.Execute(ctx, s.owner, domain.PlaceBetOp{
			MarketID: marketID, OptionID: s.option, Amount: s.amount,
		})
		require.NoError(t, err)
		total += s.amount

		market, err := store.Markets.GetByID(ctx, marketID)
		require.NoError(t, err)
		assert.Equal(t, total, market.TotalPool())
	}
}

func TestGetBetsByOwner_DeterministicOrder(t *testing.T) {
	eng, store, clock := newTestEngine(t, 0)
	deposit(t, eng, alice, 1000)
	marketID := createMarket(t, eng, clock)

	ctx := context.Background()
	var ids []int64
	for i := 0; i < 3; i++ {
		res, err := eng.Execute(ctx, alice, domain.PlaceBetOp{
			MarketID: marketID, OptionID: i % 2, Amount: 10,
		})
		require.NoError(t, err)
		ids = append(ids, res.BetID)
		clock.Advance(time.Second)
	}

	normalized, _ := domain.NormalizeOwner(alice)
	bets, err := store.Bets.ListByOwner(ctx, normalized, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, bets, 3)
	for i, b := range bets {
		assert.Equal(t, ids[i], b.ID)
	}
}

func TestConcurrentBetsSerializePerMarket(t *testing.T) {
	eng, store, clock := newTestEngine(t, 0)
	marketID := createMarket(t, eng, clock)

	const bettors = 16
	const stake = domain.Amount(10)

	owners := make([]string, bettors)
	for i := range owners {
		owners[i] = common40(byte(0x40 + i))
		deposit(t, eng, owners[i], 100)
	}

	var wg sync.WaitGroup
	for i := range owners {
		wg.Add(1)
		go func(owner string, option int) {
			defer wg.Done()
			_, err := eng.Execute(context.Background(), owner, domain.PlaceBetOp{
				MarketID: marketID, OptionID: option % 2, Amount: stake,
			})
			assert.NoError(t, err)
		}(owners[i], i)
	}
	wg.Wait()

	market, err := store.Markets.GetByID(context.Background(), marketID)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(bettors)*stake, market.TotalPool())
}

// common40 builds a distinct 40-hex-char owner address from one byte.
func common40(b byte) string {
	const hexdigits = "0123456789abcdef"
	c := []byte{hexdigits[b>>4], hexdigits[b&0x0f]}
	addr := make([]byte, 0, 42)
	addr = append(addr, '0', 'x')
	for i := 0; i < 20; i++ {
		addr = append(addr, c...)
	}
	return string(addr)
}
