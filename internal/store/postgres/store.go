package postgres

import (
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/livepredict/engine/internal/domain"
)

// NewStore bundles every PostgreSQL-backed store over one connection pool.
func NewStore(pool *pgxpool.Pool) domain.Store {
	return domain.Store{
		Ledger:  NewLedgerStore(pool),
		Markets: NewMarketStore(pool),
		Bets:    NewBetStore(pool),
		Stats:   NewStatsStore(pool),
		Audit:   NewAuditStore(pool),
	}
}
