package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination for list queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// LedgerStore is the durable per-owner balance accounting. The four mutation
// entry points are the only code paths allowed to write available/locked;
// each is atomic with respect to a single owner's account.
type LedgerStore interface {
	// Deposit credits available and returns the new available balance. The
	// account is created lazily on first deposit.
	Deposit(ctx context.Context, owner string, amount Amount) (Amount, error)
	// Withdraw debits available, returning ErrInsufficientFunds when the
	// available balance does not cover the amount.
	Withdraw(ctx context.Context, owner string, amount Amount) (Amount, error)
	// Reserve moves amount from available to locked.
	Reserve(ctx context.Context, owner string, amount Amount) error
	// Release moves amount out of locked and separately credits available.
	// Releasing more than is locked returns ErrLedgerCorrupt.
	Release(ctx context.Context, owner string, amount, credit Amount) error
	// Get returns the account, or a zero-balance account for unknown owners.
	Get(ctx context.Context, owner string) (LedgerAccount, error)
}

// MarketStore persists markets and their embedded options.
type MarketStore interface {
	// Create allocates a monotonic market ID and persists the market.
	Create(ctx context.Context, m Market) (int64, error)
	GetByID(ctx context.Context, id int64) (Market, error)
	// ListOpen returns markets whose recorded status is Open and whose lock
	// deadline is still in the future, ordered by ID.
	ListOpen(ctx context.Context, now time.Time, opts ListOpts) ([]Market, error)
	ListByMatch(ctx context.Context, matchID string) ([]Market, error)
	// UpdateStatus transitions a market from one status to another,
	// optionally recording the winning option. It returns ErrInvalidState
	// when the stored status no longer matches from.
	UpdateStatus(ctx context.Context, id int64, from, to MarketStatus, winningOption *int) error
	// AddToPool increments one option's pool by the given stake.
	AddToPool(ctx context.Context, id int64, optionID int, amount Amount) error
}

// BetStore persists wagers and their settlement outcomes.
type BetStore interface {
	// Create allocates a monotonic bet ID and persists the bet.
	Create(ctx context.Context, b Bet) (int64, error)
	GetByID(ctx context.Context, id int64) (Bet, error)
	// ListByOwner returns the owner's bets ordered by placement time then ID.
	ListByOwner(ctx context.Context, owner string, opts ListOpts) ([]Bet, error)
	// ListUnsettledByMarket returns every bet on the market that has not been
	// settled, ordered by ID. The settlement pass iterates exactly this set,
	// which is what makes a re-run after a partial failure a no-op for bets
	// already processed.
	ListUnsettledByMarket(ctx context.Context, marketID int64) ([]Bet, error)
	// MarkSettled flips settled to true and records the payout. A bet that is
	// already settled is left untouched and reported via the bool return.
	MarkSettled(ctx context.Context, id int64, payout Amount) (bool, error)
}

// StatsStore persists lifetime engine counters.
type StatsStore interface {
	AddVolume(ctx context.Context, amount Amount) error
	AddFees(ctx context.Context, amount Amount) error
	Get(ctx context.Context) (EngineStats, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log. Every ledger mutation is
// attributed here so balances stay auditable.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

// Store bundles the persistent collections the engine operates on.
type Store struct {
	Ledger  LedgerStore
	Markets MarketStore
	Bets    BetStore
	Stats   StatsStore
	Audit   AuditStore
}
