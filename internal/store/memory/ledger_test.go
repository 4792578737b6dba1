package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/livepredict/engine/internal/domain"
)

func TestLedgerDepositWithdraw(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	avail, err := s.Deposit(ctx, "alice", 500)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(500), avail)

	avail, err = s.Withdraw(ctx, "alice", 200)
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(300), avail)

	_, err = s.Withdraw(ctx, "alice", 301)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)

	_, err = s.Deposit(ctx, "alice", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)
}

func TestLedgerReserveRelease(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	_, err := s.Deposit(ctx, "alice", 500)
	require.NoError(t, err)

	require.NoError(t, s.Reserve(ctx, "alice", 300))

	acct, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(200), acct.Available)
	assert.Equal(t, domain.Amount(300), acct.Locked)

	// Reserving past available fails without touching balances.
	assert.ErrorIs(t, s.Reserve(ctx, "alice", 201), domain.ErrInsufficientFunds)

	// Release frees the stake and credits independently (winner payout).
	require.NoError(t, s.Release(ctx, "alice", 300, 450))

	acct, err = s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(650), acct.Available)
	assert.Zero(t, acct.Locked)
}

func TestLedgerReleaseOverLockedIsCorrupt(t *testing.T) {
	s := NewLedgerStore()
	ctx := context.Background()

	_, err := s.Deposit(ctx, "alice", 100)
	require.NoError(t, err)
	require.NoError(t, s.Reserve(ctx, "alice", 100))

	// Releasing more than is locked must fail loudly, never clamp.
	assert.ErrorIs(t, s.Release(ctx, "alice", 101, 0), domain.ErrLedgerCorrupt)

	acct, err := s.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, domain.Amount(100), acct.Locked)
}

func TestLedgerGetUnknownOwner(t *testing.T) {
	s := NewLedgerStore()

	acct, err := s.Get(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, "nobody", acct.Owner)
	assert.Zero(t, acct.Available)
	assert.Zero(t, acct.Locked)
}
