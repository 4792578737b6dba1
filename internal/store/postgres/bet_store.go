package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livepredict/engine/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betSelectCols = `id, owner, market_id, option_id, amount, odds,
	placed_at, settled, payout`

func scanBetRows(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		var b domain.Bet
		if err := rows.Scan(
			&b.ID, &b.Owner, &b.MarketID, &b.OptionID,
			&b.Amount, &b.Odds, &b.PlacedAt, &b.Settled, &b.Payout,
		); err != nil {
			return nil, err
		}
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

// Create persists the bet and returns the allocated ID.
func (s *BetStore) Create(ctx context.Context, b domain.Bet) (int64, error) {
	const query = `
		INSERT INTO bets (owner, market_id, option_id, amount, odds, placed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		b.Owner, b.MarketID, b.OptionID, b.Amount, b.Odds, b.PlacedAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: create bet: %w", err)
	}
	return id, nil
}

// GetByID returns the bet, or ErrNotFound.
func (s *BetStore) GetByID(ctx context.Context, id int64) (domain.Bet, error) {
	var b domain.Bet
	err := s.pool.QueryRow(ctx,
		`SELECT `+betSelectCols+` FROM bets WHERE id = $1`, id,
	).Scan(
		&b.ID, &b.Owner, &b.MarketID, &b.OptionID,
		&b.Amount, &b.Odds, &b.PlacedAt, &b.Settled, &b.Payout,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Bet{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Bet{}, fmt.Errorf("postgres: get bet: %w", err)
	}
	return b, nil
}

// ListByOwner returns the owner's bets ordered by placement time then ID.
func (s *BetStore) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betSelectCols + ` FROM bets WHERE owner = $1 ORDER BY placed_at, id`
	args := []any{owner}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets by owner: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan bets by owner: %w", err)
	}
	return bets, nil
}

// ListUnsettledByMarket returns every unsettled bet on the market, ordered
// by ID so settlement passes walk bets in a stable order.
func (s *BetStore) ListUnsettledByMarket(ctx context.Context, marketID int64) ([]domain.Bet, error) {
	const query = `SELECT ` + betSelectCols + ` FROM bets
		WHERE market_id = $1 AND NOT settled ORDER BY id`

	rows, err := s.pool.Query(ctx, query, marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list unsettled bets: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan unsettled bets: %w", err)
	}
	return bets, nil
}

// ListSettledBefore returns all settled bets placed strictly before the
// cutoff, for archival.
func (s *BetStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Bet, error) {
	const query = `SELECT ` + betSelectCols + ` FROM bets
		WHERE settled AND placed_at < $1 ORDER BY id`

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled bets before: %w", err)
	}
	defer rows.Close()

	bets, err := scanBetRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled bets before: %w", err)
	}
	return bets, nil
}

// MarkSettled flips settled and records the payout. The NOT settled guard
// leaves already-settled bets untouched, reported via the bool return.
func (s *BetStore) MarkSettled(ctx context.Context, id int64, payout domain.Amount) (bool, error) {
	const query = `
		UPDATE bets SET settled = TRUE, payout = $2
		WHERE id = $1 AND NOT settled`

	tag, err := s.pool.Exec(ctx, query, id, payout)
	if err != nil {
		return false, fmt.Errorf("postgres: mark bet settled: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}
