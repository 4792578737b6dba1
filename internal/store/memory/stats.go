package memory

import (
	"context"
	"sync"
	"time"

	"github.com/livepredict/engine/internal/domain"
)

// StatsStore implements domain.StatsStore with atomic in-memory counters.
type StatsStore struct {
	mu    sync.Mutex
	stats domain.EngineStats
}

// NewStatsStore creates a zeroed stats store.
func NewStatsStore() *StatsStore {
	return &StatsStore{}
}

// AddVolume adds to the lifetime wagered volume.
func (s *StatsStore) AddVolume(_ context.Context, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.TotalVolume += amount
	return nil
}

// AddFees adds to the accumulated protocol fees.
func (s *StatsStore) AddFees(_ context.Context, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.ProtocolFees += amount
	return nil
}

// Get returns the current counters.
func (s *StatsStore) Get(_ context.Context) (domain.EngineStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats, nil
}

// AuditStore implements domain.AuditStore with an in-memory append-only log.
type AuditStore struct {
	mu      sync.Mutex
	nextID  int64
	entries []domain.AuditEntry
}

// NewAuditStore creates an empty in-memory audit log.
func NewAuditStore() *AuditStore {
	return &AuditStore{nextID: 1}
}

// Log appends an audit entry.
func (s *AuditStore) Log(_ context.Context, event string, detail map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, domain.AuditEntry{
		ID:        s.nextID,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	})
	s.nextID++
	return nil
}

// List returns entries newest-first.
func (s *AuditStore) List(_ context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]domain.AuditEntry, 0, len(s.entries))
	for i := len(s.entries) - 1; i >= 0; i-- {
		out = append(out, s.entries[i])
	}
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

// ListBefore returns entries recorded before the cutoff, oldest first.
func (s *AuditStore) ListBefore(_ context.Context, before time.Time) ([]domain.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []domain.AuditEntry
	for _, e := range s.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

var (
	_ domain.StatsStore = (*StatsStore)(nil)
	_ domain.AuditStore = (*AuditStore)(nil)
)

// NewStore bundles a complete in-memory store set.
func NewStore() domain.Store {
	return domain.Store{
		Ledger:  NewLedgerStore(),
		Markets: NewMarketStore(),
		Bets:    NewBetStore(),
		Stats:   NewStatsStore(),
		Audit:   NewAuditStore(),
	}
}
