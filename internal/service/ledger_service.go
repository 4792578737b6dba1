package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livepredict/engine/internal/domain"
)

// LedgerService serves balance and engine-wide counter reads.
type LedgerService struct {
	ledger domain.LedgerStore
	stats  domain.StatsStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewLedgerService creates a LedgerService.
func NewLedgerService(ledger domain.LedgerStore, stats domain.StatsStore, audit domain.AuditStore, logger *slog.Logger) *LedgerService {
	return &LedgerService{ledger: ledger, stats: stats, audit: audit, logger: logger}
}

// Balance returns the caller's account. Unknown owners get a zero-balance
// account rather than an error.
func (s *LedgerService) Balance(ctx context.Context, owner string) (domain.LedgerAccount, error) {
	acct, err := s.ledger.Get(ctx, owner)
	if err != nil {
		return domain.LedgerAccount{}, fmt.Errorf("ledger_service: get balance: %w", err)
	}
	return acct, nil
}

// Stats returns the lifetime volume and fee counters.
func (s *LedgerService) Stats(ctx context.Context) (domain.EngineStats, error) {
	stats, err := s.stats.Get(ctx)
	if err != nil {
		return domain.EngineStats{}, fmt.Errorf("ledger_service: get stats: %w", err)
	}
	return stats, nil
}

// AuditTrail returns recent audit entries, newest first.
func (s *LedgerService) AuditTrail(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	entries, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: list audit: %w", err)
	}
	return entries, nil
}
