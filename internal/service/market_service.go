// Package service provides the read-side query layer over the stores. All
// writes go through the engine; services only assemble views and quotes.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/livepredict/engine/internal/domain"
	"github.com/livepredict/engine/internal/odds"
)

// MarketService serves market reads, with a cache in front of the store.
type MarketService struct {
	markets domain.MarketStore
	cache   domain.MarketCache
	logger  *slog.Logger
	now     func() time.Time
}

// NewMarketService creates a MarketService. The cache may be nil, in which
// case every read goes straight to the store.
func NewMarketService(markets domain.MarketStore, cache domain.MarketCache, logger *slog.Logger) *MarketService {
	return &MarketService{
		markets: markets,
		cache:   cache,
		logger:  logger,
		now:     time.Now,
	}
}

// GetMarket retrieves a market by ID, checking the cache first and falling
// back to the persistent store on a miss. The returned status is the
// effective one: a market past its deadline reads as locked even before the
// transition is recorded.
func (s *MarketService) GetMarket(ctx context.Context, id int64) (domain.Market, error) {
	m, err := s.lookup(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	m.Status = m.EffectiveStatus(s.now())
	return m, nil
}

// lookup is the cache-aside read; it returns the market as stored.
func (s *MarketService) lookup(ctx context.Context, id int64) (domain.Market, error) {
	if s.cache != nil {
		if m, err := s.cache.Get(ctx, id); err == nil {
			return m, nil
		}
	}

	m, err := s.markets.GetByID(ctx, id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get by id %d: %w", id, err)
	}

	// Back-fill cache; log but do not fail on cache write errors.
	if s.cache != nil {
		if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
			s.logger.WarnContext(ctx, "market_service: cache set failed",
				slog.Int64("market_id", id),
				slog.String("error", cacheErr.Error()),
			)
		}
	}

	return m, nil
}

// ListOpen returns markets still accepting bets, ordered by ID.
func (s *MarketService) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	markets, err := s.markets.ListOpen(ctx, s.now(), opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list open: %w", err)
	}
	return markets, nil
}

// ListByMatch returns every market attached to an external match, each with
// its effective status.
func (s *MarketService) ListByMatch(ctx context.Context, matchID string) ([]domain.Market, error) {
	markets, err := s.markets.ListByMatch(ctx, matchID)
	if err != nil {
		return nil, fmt.Errorf("market_service: list by match %q: %w", matchID, err)
	}
	now := s.now()
	for i := range markets {
		markets[i].Status = markets[i].EffectiveStatus(now)
	}
	return markets, nil
}

// Quote computes the odds a bet of the given size would lock in right now.
// It is advisory: the authoritative quote happens inside bet placement, so
// the pools may have moved by the time the bet lands.
func (s *MarketService) Quote(ctx context.Context, marketID int64, optionID int, amount domain.Amount) (int64, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}

	m, err := s.GetMarket(ctx, marketID)
	if err != nil {
		return 0, err
	}
	if m.EffectiveStatus(s.now()) != domain.MarketStatusOpen {
		return 0, domain.ErrMarketClosed
	}
	if !m.ValidOption(optionID) {
		return 0, domain.ErrInvalidOption
	}

	return odds.Quote(m.Pools(), optionID, amount), nil
}
