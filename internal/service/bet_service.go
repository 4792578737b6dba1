package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livepredict/engine/internal/domain"
)

// BetService serves bet reads scoped to their owner.
type BetService struct {
	bets   domain.BetStore
	logger *slog.Logger
}

// NewBetService creates a BetService.
func NewBetService(bets domain.BetStore, logger *slog.Logger) *BetService {
	return &BetService{bets: bets, logger: logger}
}

// GetBet returns a single bet. Only the bet's owner may read it.
func (s *BetService) GetBet(ctx context.Context, caller string, id int64) (domain.Bet, error) {
	b, err := s.bets.GetByID(ctx, id)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("bet_service: get by id %d: %w", id, err)
	}
	if b.Owner != caller {
		return domain.Bet{}, domain.ErrNotOwner
	}
	return b, nil
}

// ListByOwner returns the caller's bets ordered by placement time then ID.
func (s *BetService) ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Bet, error) {
	bets, err := s.bets.ListByOwner(ctx, owner, opts)
	if err != nil {
		return nil, fmt.Errorf("bet_service: list by owner: %w", err)
	}
	return bets, nil
}
