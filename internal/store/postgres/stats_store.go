package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livepredict/engine/internal/domain"
)

// StatsStore implements domain.StatsStore using PostgreSQL. The counters
// live in a single fixed row.
type StatsStore struct {
	pool *pgxpool.Pool
}

// NewStatsStore creates a new StatsStore backed by the given connection pool.
func NewStatsStore(pool *pgxpool.Pool) *StatsStore {
	return &StatsStore{pool: pool}
}

// AddVolume increments the lifetime wagered volume counter.
func (s *StatsStore) AddVolume(ctx context.Context, amount domain.Amount) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE engine_stats SET total_volume = total_volume + $1 WHERE id = 1`, amount)
	if err != nil {
		return fmt.Errorf("postgres: add volume: %w", err)
	}
	return nil
}

// AddFees increments the lifetime protocol fee counter.
func (s *StatsStore) AddFees(ctx context.Context, amount domain.Amount) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE engine_stats SET protocol_fees = protocol_fees + $1 WHERE id = 1`, amount)
	if err != nil {
		return fmt.Errorf("postgres: add fees: %w", err)
	}
	return nil
}

// Get returns the lifetime counters.
func (s *StatsStore) Get(ctx context.Context) (domain.EngineStats, error) {
	var stats domain.EngineStats
	err := s.pool.QueryRow(ctx,
		`SELECT total_volume, protocol_fees FROM engine_stats WHERE id = 1`,
	).Scan(&stats.TotalVolume, &stats.ProtocolFees)
	if err != nil {
		return domain.EngineStats{}, fmt.Errorf("postgres: get stats: %w", err)
	}
	return stats, nil
}
