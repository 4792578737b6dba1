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

// MarketStore implements domain.MarketStore using PostgreSQL. Options live in
// a child table keyed by (market_id, option_id) and are loaded alongside
// every market read.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `id, match_id, market_type, title, creator, status,
	created_at, locks_at, winning_option`

func scanMarketRow(row pgx.Row) (domain.Market, error) {
	var m domain.Market
	err := row.Scan(
		&m.ID, &m.MatchID, &m.MarketType, &m.Title, &m.Creator,
		&m.Status, &m.CreatedAt, &m.LocksAt, &m.WinningOption,
	)
	return m, err
}

// Create persists the market and its options in one transaction, returning
// the allocated ID.
func (s *MarketStore) Create(ctx context.Context, m domain.Market) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: create market: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	const insertMarket = `
		INSERT INTO markets (match_id, market_type, title, creator, status, created_at, locks_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err = tx.QueryRow(ctx, insertMarket,
		m.MatchID, m.MarketType, m.Title, m.Creator, m.Status, m.CreatedAt, m.LocksAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert market: %w", err)
	}

	const insertOption = `
		INSERT INTO market_options (market_id, option_id, label, pool)
		VALUES ($1, $2, $3, $4)`
	for i, opt := range m.Options {
		if _, err := tx.Exec(ctx, insertOption, id, i, opt.Label, opt.Pool); err != nil {
			return 0, fmt.Errorf("postgres: insert option %d: %w", i, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: create market: commit: %w", err)
	}
	return id, nil
}

// GetByID returns the market with its options, or ErrNotFound.
func (s *MarketStore) GetByID(ctx context.Context, id int64) (domain.Market, error) {
	m, err := scanMarketRow(s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Market{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Market{}, fmt.Errorf("postgres: get market: %w", err)
	}

	if err := s.loadOptions(ctx, &m); err != nil {
		return domain.Market{}, err
	}
	return m, nil
}

// ListOpen returns markets whose recorded status is Open and whose lock
// deadline is still in the future, ordered by ID.
func (s *MarketStore) ListOpen(ctx context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + `
		FROM markets WHERE status = $1 AND locks_at > $2 ORDER BY id`
	args := []any{domain.MarketStatusOpen, now}
	argIdx := 3

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryMarkets(ctx, "list open markets", query, args...)
}

// ListByMatch returns every market attached to the external match, ordered
// by ID.
func (s *MarketStore) ListByMatch(ctx context.Context, matchID string) ([]domain.Market, error) {
	query := `SELECT ` + marketSelectCols + ` FROM markets WHERE match_id = $1 ORDER BY id`
	return s.queryMarkets(ctx, "list markets by match", query, matchID)
}

// UpdateStatus transitions the market from one status to another. The guard
// on the current status makes the transition a compare-and-swap: a stale
// caller gets ErrInvalidState instead of clobbering a concurrent transition.
func (s *MarketStore) UpdateStatus(ctx context.Context, id int64, from, to domain.MarketStatus, winningOption *int) error {
	const query = `
		UPDATE markets
		SET status = $3, winning_option = COALESCE($4, winning_option)
		WHERE id = $1 AND status = $2`

	tag, err := s.pool.Exec(ctx, query, id, from, to, winningOption)
	if err != nil {
		return fmt.Errorf("postgres: update market status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := s.pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM markets WHERE id = $1)", id).Scan(&exists); err != nil {
			return fmt.Errorf("postgres: check market exists: %w", err)
		}
		if !exists {
			return domain.ErrNotFound
		}
		return domain.ErrInvalidState
	}
	return nil
}

// AddToPool increments one option's pool by the given stake. A negative
// amount backs out a stake when bet persistence fails after the pool was
// already bumped.
func (s *MarketStore) AddToPool(ctx context.Context, id int64, optionID int, amount domain.Amount) error {
	const query = `
		UPDATE market_options SET pool = pool + $3
		WHERE market_id = $1 AND option_id = $2`

	tag, err := s.pool.Exec(ctx, query, id, optionID, amount)
	if err != nil {
		return fmt.Errorf("postgres: add to pool: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *MarketStore) queryMarkets(ctx context.Context, op, query string, args ...any) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var markets []domain.Market
	for rows.Next() {
		m, err := scanMarketRow(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: %s: scan: %w", op, err)
		}
		markets = append(markets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s: rows: %w", op, err)
	}

	for i := range markets {
		if err := s.loadOptions(ctx, &markets[i]); err != nil {
			return nil, err
		}
	}
	return markets, nil
}

func (s *MarketStore) loadOptions(ctx context.Context, m *domain.Market) error {
	const query = `
		SELECT label, pool FROM market_options
		WHERE market_id = $1 ORDER BY option_id`

	rows, err := s.pool.Query(ctx, query, m.ID)
	if err != nil {
		return fmt.Errorf("postgres: load options: %w", err)
	}
	defer rows.Close()

	m.Options = nil
	for rows.Next() {
		var opt domain.Option
		if err := rows.Scan(&opt.Label, &opt.Pool); err != nil {
			return fmt.Errorf("postgres: scan option: %w", err)
		}
		m.Options = append(m.Options, opt)
	}
	return rows.Err()
}
