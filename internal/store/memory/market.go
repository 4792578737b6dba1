package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/livepredict/engine/internal/domain"
)

// MarketStore implements domain.MarketStore with a mutex-guarded map and a
// monotonic ID counter.
type MarketStore struct {
	mu      sync.Mutex
	nextID  int64
	markets map[int64]*domain.Market
}

// NewMarketStore creates an empty in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{nextID: 1, markets: make(map[int64]*domain.Market)}
}

func cloneMarket(m *domain.Market) domain.Market {
	out := *m
	out.Options = make([]domain.Option, len(m.Options))
	copy(out.Options, m.Options)
	if m.WinningOption != nil {
		w := *m.WinningOption
		out.WinningOption = &w
	}
	return out
}

// Create allocates the next market ID and stores the market.
func (s *MarketStore) Create(_ context.Context, m domain.Market) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m.ID = s.nextID
	s.nextID++
	stored := cloneMarket(&m)
	s.markets[m.ID] = &stored
	return m.ID, nil
}

// GetByID returns a copy of the market.
func (s *MarketStore) GetByID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, domain.ErrNotFound
	}
	return cloneMarket(m), nil
}

// ListOpen returns open markets whose lock deadline has not passed, by ID.
func (s *MarketStore) ListOpen(_ context.Context, now time.Time, opts domain.ListOpts) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var open []domain.Market
	for _, m := range s.markets {
		if m.Status == domain.MarketStatusOpen && now.Before(m.LocksAt) {
			open = append(open, cloneMarket(m))
		}
	}
	sort.Slice(open, func(i, j int) bool { return open[i].ID < open[j].ID })
	return paginateMarkets(open, opts), nil
}

// ListByMatch returns every market referencing the given match, by ID.
func (s *MarketStore) ListByMatch(_ context.Context, matchID string) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Market
	for _, m := range s.markets {
		if m.MatchID == matchID {
			out = append(out, cloneMarket(m))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateStatus transitions the market's status, guarded on the expected
// current status.
func (s *MarketStore) UpdateStatus(_ context.Context, id int64, from, to domain.MarketStatus, winningOption *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Status != from {
		return domain.ErrInvalidState
	}
	m.Status = to
	if winningOption != nil {
		w := *winningOption
		m.WinningOption = &w
	}
	return nil
}

// AddToPool increments one option's pool.
func (s *MarketStore) AddToPool(_ context.Context, id int64, optionID int, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if optionID < 0 || optionID >= len(m.Options) {
		return domain.ErrInvalidOption
	}
	m.Options[optionID].Pool += amount
	return nil
}

func paginateMarkets(markets []domain.Market, opts domain.ListOpts) []domain.Market {
	if opts.Offset > 0 {
		if opts.Offset >= len(markets) {
			return nil
		}
		markets = markets[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(markets) {
		markets = markets[:opts.Limit]
	}
	return markets
}

var _ domain.MarketStore = (*MarketStore)(nil)
