// Package memory implements the domain store interfaces with in-process
// maps. It backs the "memory" storage mode for local development and is the
// fixture for engine tests; semantics mirror the postgres implementations.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/livepredict/engine/internal/domain"
)

// LedgerStore implements domain.LedgerStore with a mutex-guarded map.
type LedgerStore struct {
	mu       sync.Mutex
	accounts map[string]*domain.LedgerAccount
}

// NewLedgerStore creates an empty in-memory ledger.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{accounts: make(map[string]*domain.LedgerAccount)}
}

func (s *LedgerStore) account(owner string) *domain.LedgerAccount {
	acct, ok := s.accounts[owner]
	if !ok {
		acct = &domain.LedgerAccount{Owner: owner}
		s.accounts[owner] = acct
	}
	return acct
}

// Deposit credits the owner's available balance, creating the account lazily.
func (s *LedgerStore) Deposit(_ context.Context, owner string, amount domain.Amount) (domain.Amount, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.account(owner)
	acct.Available += amount
	acct.UpdatedAt = time.Now().UTC()
	return acct.Available, nil
}

// Withdraw debits the owner's available balance.
func (s *LedgerStore) Withdraw(_ context.Context, owner string, amount domain.Amount) (domain.Amount, error) {
	if amount <= 0 {
		return 0, domain.ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.account(owner)
	if acct.Available < amount {
		return 0, domain.ErrInsufficientFunds
	}
	acct.Available -= amount
	acct.UpdatedAt = time.Now().UTC()
	return acct.Available, nil
}

// Reserve moves amount from available to locked.
func (s *LedgerStore) Reserve(_ context.Context, owner string, amount domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.account(owner)
	if acct.Available < amount {
		return domain.ErrInsufficientFunds
	}
	acct.Available -= amount
	acct.Locked += amount
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

// Release frees amount from locked and credits available separately.
func (s *LedgerStore) Release(_ context.Context, owner string, amount, credit domain.Amount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct := s.account(owner)
	if acct.Locked < amount {
		return domain.ErrLedgerCorrupt
	}
	acct.Locked -= amount
	acct.Available += credit
	acct.UpdatedAt = time.Now().UTC()
	return nil
}

// Get returns the owner's account, or a zero-balance account when unknown.
func (s *LedgerStore) Get(_ context.Context, owner string) (domain.LedgerAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct, ok := s.accounts[owner]; ok {
		return *acct, nil
	}
	return domain.LedgerAccount{Owner: owner}, nil
}

var _ domain.LedgerStore = (*LedgerStore)(nil)
