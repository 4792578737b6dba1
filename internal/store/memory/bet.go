package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/livepredict/engine/internal/domain"
)

// BetStore implements domain.BetStore with a mutex-guarded map and a
// monotonic ID counter.
type BetStore struct {
	mu     sync.Mutex
	nextID int64
	bets   map[int64]*domain.Bet
}

// NewBetStore creates an empty in-memory bet store.
func NewBetStore() *BetStore {
	return &BetStore{nextID: 1, bets: make(map[int64]*domain.Bet)}
}

func cloneBet(b *domain.Bet) domain.Bet {
	out := *b
	if b.Payout != nil {
		p := *b.Payout
		out.Payout = &p
	}
	return out
}

// Create allocates the next bet ID and stores the bet.
func (s *BetStore) Create(_ context.Context, b domain.Bet) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b.ID = s.nextID
	s.nextID++
	stored := cloneBet(&b)
	s.bets[b.ID] = &stored
	return b.ID, nil
}

// GetByID returns a copy of the bet.
func (s *BetStore) GetByID(_ context.Context, id int64) (domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return domain.Bet{}, domain.ErrNotFound
	}
	return cloneBet(b), nil
}

// ListByOwner returns the owner's bets ordered by placement time, then ID.
func (s *BetStore) ListByOwner(_ context.Context, owner string, opts domain.ListOpts) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.Owner == owner {
			out = append(out, cloneBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PlacedAt.Equal(out[j].PlacedAt) {
			return out[i].PlacedAt.Before(out[j].PlacedAt)
		}
		return out[i].ID < out[j].ID
	})
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			return nil, nil
		}
		out = out[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	return out, nil
}

// ListUnsettledByMarket returns the market's unsettled bets ordered by ID.
func (s *BetStore) ListUnsettledByMarket(_ context.Context, marketID int64) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.MarketID == marketID && !b.Settled {
			out = append(out, cloneBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListSettledBefore returns all settled bets placed before the cutoff,
// ordered by ID.
func (s *BetStore) ListSettledBefore(_ context.Context, before time.Time) ([]domain.Bet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.Bet
	for _, b := range s.bets {
		if b.Settled && b.PlacedAt.Before(before) {
			out = append(out, cloneBet(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MarkSettled records the payout for an unsettled bet. Already-settled bets
// are left untouched and reported as false.
func (s *BetStore) MarkSettled(_ context.Context, id int64, payout domain.Amount) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.bets[id]
	if !ok {
		return false, domain.ErrNotFound
	}
	if b.Settled {
		return false, nil
	}
	b.Settled = true
	p := payout
	b.Payout = &p
	return true, nil
}

var _ domain.BetStore = (*BetStore)(nil)
