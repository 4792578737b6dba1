package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livepredict/engine/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Every mutation
// is a single guarded statement, so the balance invariants hold per statement
// without an explicit transaction.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a new LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Deposit credits available and returns the new available balance, creating
// the account on first use.
func (s *LedgerStore) Deposit(ctx context.Context, owner string, amount domain.Amount) (domain.Amount, error) {
	const query = `
		INSERT INTO ledger_accounts (owner, available, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (owner) DO UPDATE
		SET available = ledger_accounts.available + EXCLUDED.available,
		    updated_at = NOW()
		RETURNING available`

	var available domain.Amount
	if err := s.pool.QueryRow(ctx, query, owner, amount).Scan(&available); err != nil {
		return 0, fmt.Errorf("postgres: deposit: %w", err)
	}
	return available, nil
}

// Withdraw debits available. The WHERE guard rejects the statement outright
// when the balance does not cover the amount.
func (s *LedgerStore) Withdraw(ctx context.Context, owner string, amount domain.Amount) (domain.Amount, error) {
	const query = `
		UPDATE ledger_accounts
		SET available = available - $2, updated_at = NOW()
		WHERE owner = $1 AND available >= $2
		RETURNING available`

	var available domain.Amount
	err := s.pool.QueryRow(ctx, query, owner, amount).Scan(&available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, domain.ErrInsufficientFunds
	}
	if err != nil {
		return 0, fmt.Errorf("postgres: withdraw: %w", err)
	}
	return available, nil
}

// Reserve moves amount from available to locked.
func (s *LedgerStore) Reserve(ctx context.Context, owner string, amount domain.Amount) error {
	const query = `
		UPDATE ledger_accounts
		SET available = available - $2, locked = locked + $2, updated_at = NOW()
		WHERE owner = $1 AND available >= $2`

	tag, err := s.pool.Exec(ctx, query, owner, amount)
	if err != nil {
		return fmt.Errorf("postgres: reserve: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrInsufficientFunds
	}
	return nil
}

// Release moves amount out of locked and credits available. A locked balance
// below amount means the books no longer match the unsettled stakes, which is
// unrecoverable here; the caller gets ErrLedgerCorrupt and must not clamp.
func (s *LedgerStore) Release(ctx context.Context, owner string, amount, credit domain.Amount) error {
	const query = `
		UPDATE ledger_accounts
		SET locked = locked - $2, available = available + $3, updated_at = NOW()
		WHERE owner = $1 AND locked >= $2`

	tag, err := s.pool.Exec(ctx, query, owner, amount, credit)
	if err != nil {
		return fmt.Errorf("postgres: release: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: release %d for %s: %w", amount, owner, domain.ErrLedgerCorrupt)
	}
	return nil
}

// Get returns the account, or a zero-balance account for unknown owners.
func (s *LedgerStore) Get(ctx context.Context, owner string) (domain.LedgerAccount, error) {
	const query = `SELECT owner, available, locked, updated_at FROM ledger_accounts WHERE owner = $1`

	var acct domain.LedgerAccount
	err := s.pool.QueryRow(ctx, query, owner).Scan(
		&acct.Owner, &acct.Available, &acct.Locked, &acct.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LedgerAccount{Owner: owner}, nil
	}
	if err != nil {
		return domain.LedgerAccount{}, fmt.Errorf("postgres: get account: %w", err)
	}
	return acct, nil
}
