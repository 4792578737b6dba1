// Package engine implements the parimutuel betting core: ledger accounting,
// the market lifecycle state machine, bet placement with locked-in odds, and
// one-shot settlement. All mutation of shared state flows through Execute;
// the surrounding application only reads projections and submits operations.
package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/livepredict/engine/internal/domain"
	"github.com/livepredict/engine/internal/odds"
)

// Config holds the engine's economic and authorization parameters.
type Config struct {
	// FeeRateBps is the protocol fee in basis points, charged only on net
	// winnings at settlement. Bounded at 500 (5%).
	FeeRateBps int
	// Admins are owner addresses allowed to create markets and to
	// lock/resolve/cancel any market. Market creators may always transition
	// their own markets.
	Admins []string
}

// Validate checks the engine configuration.
func (c Config) Validate() error {
	if c.FeeRateBps < 0 || c.FeeRateBps > odds.MaxFeeBps {
		return fmt.Errorf("engine: fee rate %d bps out of range [0, %d]", c.FeeRateBps, odds.MaxFeeBps)
	}
	return nil
}

// Engine executes betting operations against the persistent store. Operations
// touching the same market or the same ledger account are strictly
// serialized; disjoint entities proceed in parallel.
type Engine struct {
	store  domain.Store
	bus    domain.EventBus    // optional; nil disables event publishing
	dlocks domain.LockManager // optional; guards settlement across instances
	cache  domain.MarketCache // optional; invalidated when a market row changes
	feeBps int
	admins map[string]bool
	locks  *entityLocks
	logger *slog.Logger
	now    func() time.Time
}

// New creates an Engine over the given store. bus may be nil.
func New(store domain.Store, cfg Config, bus domain.EventBus, logger *slog.Logger) *Engine {
	admins := make(map[string]bool, len(cfg.Admins))
	for _, a := range cfg.Admins {
		if normalized, ok := domain.NormalizeOwner(a); ok {
			admins[normalized] = true
		}
	}
	return &Engine{
		store:  store,
		bus:    bus,
		feeBps: cfg.FeeRateBps,
		admins: admins,
		locks:  newEntityLocks(),
		logger: logger.With(slog.String("component", "engine")),
		now:    time.Now,
	}
}

// WithLockManager installs a distributed lock manager. When set, settlement
// passes (resolve and cancel) additionally take a cross-instance lock so two
// replicas never settle the same market concurrently.
func (e *Engine) WithLockManager(lm domain.LockManager) *Engine {
	e.dlocks = lm
	return e
}

// WithMarketCache installs a market cache to invalidate whenever a write
// touches a market's pools or status, so reads never serve a stale lifecycle
// state past the next lookup.
func (e *Engine) WithMarketCache(c domain.MarketCache) *Engine {
	e.cache = c
	return e
}

// WithNow overrides the engine's clock. Intended for tests.
func (e *Engine) WithNow(now func() time.Time) *Engine {
	e.now = now
	return e
}

// FeeRateBps returns the configured protocol fee rate.
func (e *Engine) FeeRateBps() int { return e.feeBps }

// Execute runs one operation on behalf of caller. The caller identity is
// assumed to be verified by the transport boundary. Every operation either
// completes fully or fails with a typed error leaving no observable
// mutation.
func (e *Engine) Execute(ctx context.Context, caller string, op domain.Operation) (domain.OpResult, error) {
	owner, ok := domain.NormalizeOwner(caller)
	if !ok {
		return domain.OpResult{}, domain.ErrUnauthorized
	}

	switch op := op.(type) {
	case domain.DepositOp:
		return e.deposit(ctx, owner, op)
	case domain.WithdrawOp:
		return e.withdraw(ctx, owner, op)
	case domain.CreateMarketOp:
		return e.createMarket(ctx, owner, op)
	case domain.PlaceBetOp:
		return e.placeBet(ctx, owner, op)
	case domain.LockMarketOp:
		return e.lockMarket(ctx, owner, op)
	case domain.ResolveMarketOp:
		return e.resolveMarket(ctx, owner, op)
	case domain.CancelMarketOp:
		return e.cancelMarket(ctx, owner, op)
	case domain.ClaimWinningsOp:
		return e.claimWinnings(ctx, owner, op)
	default:
		return domain.OpResult{}, fmt.Errorf("engine: unknown operation %T", op)
	}
}

func (e *Engine) isAdmin(owner string) bool { return e.admins[owner] }

func (e *Engine) deposit(ctx context.Context, owner string, op domain.DepositOp) (domain.OpResult, error) {
	if op.Amount <= 0 {
		return domain.OpResult{}, domain.ErrInvalidAmount
	}

	unlock := e.locks.lock(ownerKey(owner))
	defer unlock()

	newAvailable, err := e.store.Ledger.Deposit(ctx, owner, op.Amount)
	if err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: deposit: %w", err)
	}

	e.audit(ctx, "ledger.deposit", map[string]any{
		"owner":  owner,
		"amount": op.Amount,
	})
	return domain.OpResult{NewAvailable: newAvailable}, nil
}

func (e *Engine) withdraw(ctx context.Context, owner string, op domain.WithdrawOp) (domain.OpResult, error) {
	if op.Amount <= 0 {
		return domain.OpResult{}, domain.ErrInvalidAmount
	}

	unlock := e.locks.lock(ownerKey(owner))
	defer unlock()

	newAvailable, err := e.store.Ledger.Withdraw(ctx, owner, op.Amount)
	if err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: withdraw: %w", err)
	}

	e.audit(ctx, "ledger.withdraw", map[string]any{
		"owner":  owner,
		"amount": op.Amount,
	})
	return domain.OpResult{NewAvailable: newAvailable}, nil
}

func (e *Engine) createMarket(ctx context.Context, owner string, op domain.CreateMarketOp) (domain.OpResult, error) {
	if !e.isAdmin(owner) {
		return domain.OpResult{}, domain.ErrUnauthorized
	}
	if err := validateOptions(op.Options); err != nil {
		return domain.OpResult{}, err
	}
	now := e.now()
	if !op.LocksAt.After(now) {
		return domain.OpResult{}, domain.ErrInvalidDeadline
	}

	options := make([]domain.Option, len(op.Options))
	for i, label := range op.Options {
		options[i] = domain.Option{Label: label}
	}

	market := domain.Market{
		MatchID:    op.MatchID,
		MarketType: op.MarketType,
		Title:      op.Title,
		Creator:    owner,
		Options:    options,
		Status:     domain.MarketStatusOpen,
		CreatedAt:  now,
		LocksAt:    op.LocksAt,
	}

	id, err := e.store.Markets.Create(ctx, market)
	if err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: create market: %w", err)
	}

	e.audit(ctx, "market.created", map[string]any{
		"market_id": id,
		"match_id":  op.MatchID,
		"creator":   owner,
	})
	e.publishMarketEvent(ctx, domain.MarketEvent{
		Kind: "created", MarketID: id, MatchID: op.MatchID, At: now,
	})
	return domain.OpResult{MarketID: id}, nil
}

// validateOptions enforces the option constraints: between 2 and 10 options,
// non-empty labels, no duplicates.
func validateOptions(labels []string) error {
	if len(labels) < 2 || len(labels) > 10 {
		return domain.ErrInvalidOptions
	}
	seen := make(map[string]bool, len(labels))
	for _, label := range labels {
		if label == "" || seen[label] {
			return domain.ErrInvalidOptions
		}
		seen[label] = true
	}
	return nil
}

func (e *Engine) placeBet(ctx context.Context, owner string, op domain.PlaceBetOp) (domain.OpResult, error) {
	if op.Amount <= 0 {
		return domain.OpResult{}, domain.ErrInvalidAmount
	}

	unlockMarket := e.locks.lock(marketKey(op.MarketID))
	defer unlockMarket()

	market, err := e.store.Markets.GetByID(ctx, op.MarketID)
	if err != nil {
		return domain.OpResult{}, err
	}

	now := e.now()
	if market.EffectiveStatus(now) != domain.MarketStatusOpen {
		return domain.OpResult{}, domain.ErrMarketClosed
	}
	if !market.ValidOption(op.OptionID) {
		return domain.OpResult{}, domain.ErrInvalidOption
	}

	unlockOwner := e.locks.lock(ownerKey(owner))
	defer unlockOwner()

	// Quote before any mutation; the odds are locked into the bet and never
	// recomputed.
	quoted := odds.Quote(market.Pools(), op.OptionID, op.Amount)

	if err := e.store.Ledger.Reserve(ctx, owner, op.Amount); err != nil {
		return domain.OpResult{}, err
	}

	if err := e.store.Markets.AddToPool(ctx, op.MarketID, op.OptionID, op.Amount); err != nil {
		e.compensateReserve(ctx, owner, op.Amount)
		return domain.OpResult{}, fmt.Errorf("engine: add to pool: %w", err)
	}
	e.invalidateMarket(ctx, op.MarketID)

	bet := domain.Bet{
		Owner:    owner,
		MarketID: op.MarketID,
		OptionID: op.OptionID,
		Amount:   op.Amount,
		Odds:     quoted,
		PlacedAt: now,
	}
	betID, err := e.store.Bets.Create(ctx, bet)
	if err != nil {
		if poolErr := e.store.Markets.AddToPool(ctx, op.MarketID, op.OptionID, -op.Amount); poolErr != nil {
			e.logger.ErrorContext(ctx, "pool rollback failed after bet create error",
				slog.Int64("market_id", op.MarketID),
				slog.String("error", poolErr.Error()),
			)
		}
		e.compensateReserve(ctx, owner, op.Amount)
		return domain.OpResult{}, fmt.Errorf("engine: create bet: %w", err)
	}

	if err := e.store.Stats.AddVolume(ctx, op.Amount); err != nil {
		e.logger.WarnContext(ctx, "volume counter update failed",
			slog.String("error", err.Error()),
		)
	}

	e.audit(ctx, "bet.placed", map[string]any{
		"bet_id":    betID,
		"owner":     owner,
		"market_id": op.MarketID,
		"option_id": op.OptionID,
		"amount":    op.Amount,
		"odds":      quoted,
	})
	e.publishBetEvent(ctx, domain.BetEvent{
		MarketID: op.MarketID, OptionID: op.OptionID,
		Amount: op.Amount, Odds: quoted, At: now,
	})
	return domain.OpResult{BetID: betID, Odds: quoted}, nil
}

// compensateReserve undoes a Reserve after a later step of placeBet failed.
// Failure here means the ledger is inconsistent and needs operator attention.
func (e *Engine) compensateReserve(ctx context.Context, owner string, amount domain.Amount) {
	if err := e.store.Ledger.Release(ctx, owner, amount, amount); err != nil {
		e.logger.ErrorContext(ctx, "reserve rollback failed, ledger needs repair",
			slog.String("owner", owner),
			slog.Int64("amount", amount),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) lockMarket(ctx context.Context, owner string, op domain.LockMarketOp) (domain.OpResult, error) {
	unlock := e.locks.lock(marketKey(op.MarketID))
	defer unlock()

	market, err := e.store.Markets.GetByID(ctx, op.MarketID)
	if err != nil {
		return domain.OpResult{}, err
	}
	if err := e.authorizeTransition(owner, market); err != nil {
		return domain.OpResult{}, err
	}
	if market.Status != domain.MarketStatusOpen {
		return domain.OpResult{}, domain.ErrInvalidState
	}

	if err := e.store.Markets.UpdateStatus(ctx, op.MarketID, domain.MarketStatusOpen, domain.MarketStatusLocked, nil); err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: lock market: %w", err)
	}
	e.invalidateMarket(ctx, op.MarketID)

	e.audit(ctx, "market.locked", map[string]any{"market_id": op.MarketID, "caller": owner})
	e.publishMarketEvent(ctx, domain.MarketEvent{
		Kind: "locked", MarketID: op.MarketID, MatchID: market.MatchID, At: e.now(),
	})
	return domain.OpResult{MarketID: op.MarketID}, nil
}

func (e *Engine) resolveMarket(ctx context.Context, owner string, op domain.ResolveMarketOp) (domain.OpResult, error) {
	unlock := e.locks.lock(marketKey(op.MarketID))
	defer unlock()

	release, err := e.acquireSettleLock(ctx, op.MarketID)
	if err != nil {
		return domain.OpResult{}, err
	}
	defer release()

	market, err := e.store.Markets.GetByID(ctx, op.MarketID)
	if err != nil {
		return domain.OpResult{}, err
	}
	if err := e.authorizeTransition(owner, market); err != nil {
		return domain.OpResult{}, err
	}

	now := e.now()
	// A market past its deadline is effectively Locked even when the
	// explicit lock call never arrived; record the transition on the way.
	if market.EffectiveStatus(now) != domain.MarketStatusLocked {
		return domain.OpResult{}, domain.ErrInvalidState
	}
	if !market.ValidOption(op.WinningOption) {
		return domain.OpResult{}, domain.ErrInvalidOption
	}

	if market.Status == domain.MarketStatusOpen {
		if err := e.store.Markets.UpdateStatus(ctx, op.MarketID, domain.MarketStatusOpen, domain.MarketStatusLocked, nil); err != nil {
			return domain.OpResult{}, fmt.Errorf("engine: record lazy lock: %w", err)
		}
		e.invalidateMarket(ctx, op.MarketID)
	}

	winning := op.WinningOption
	if err := e.store.Markets.UpdateStatus(ctx, op.MarketID, domain.MarketStatusLocked, domain.MarketStatusResolved, &winning); err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: resolve market: %w", err)
	}
	e.invalidateMarket(ctx, op.MarketID)
	market.Status = domain.MarketStatusResolved
	market.WinningOption = &winning

	summary, err := e.settle(ctx, market)
	if err != nil {
		// The market is already Resolved; the pass resumes over bets still
		// unsettled on the next invocation.
		return domain.OpResult{}, fmt.Errorf("engine: settlement: %w", err)
	}

	e.audit(ctx, "market.resolved", map[string]any{
		"market_id":      op.MarketID,
		"winning_option": op.WinningOption,
		"caller":         owner,
		"bets_paid":      summary.BetsPaid,
		"total_paid":     summary.TotalPaid,
		"fees_taken":     summary.FeesTaken,
	})
	e.publishMarketEvent(ctx, domain.MarketEvent{
		Kind: "resolved", MarketID: op.MarketID, MatchID: market.MatchID,
		WinningOption: &winning, At: now,
	})
	e.publishSettlementEvent(ctx, summary)
	return domain.OpResult{MarketID: op.MarketID, WinningOption: &winning}, nil
}

func (e *Engine) cancelMarket(ctx context.Context, owner string, op domain.CancelMarketOp) (domain.OpResult, error) {
	unlock := e.locks.lock(marketKey(op.MarketID))
	defer unlock()

	release, err := e.acquireSettleLock(ctx, op.MarketID)
	if err != nil {
		return domain.OpResult{}, err
	}
	defer release()

	market, err := e.store.Markets.GetByID(ctx, op.MarketID)
	if err != nil {
		return domain.OpResult{}, err
	}
	if err := e.authorizeTransition(owner, market); err != nil {
		return domain.OpResult{}, err
	}
	if market.Status.Terminal() {
		return domain.OpResult{}, domain.ErrInvalidState
	}

	if err := e.store.Markets.UpdateStatus(ctx, op.MarketID, market.Status, domain.MarketStatusCancelled, nil); err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: cancel market: %w", err)
	}
	e.invalidateMarket(ctx, op.MarketID)
	market.Status = domain.MarketStatusCancelled

	summary, err := e.settle(ctx, market)
	if err != nil {
		return domain.OpResult{}, fmt.Errorf("engine: refund pass: %w", err)
	}

	e.audit(ctx, "market.cancelled", map[string]any{
		"market_id":  op.MarketID,
		"caller":     owner,
		"bets_paid":  summary.BetsPaid,
		"total_paid": summary.TotalPaid,
	})
	e.publishMarketEvent(ctx, domain.MarketEvent{
		Kind: "cancelled", MarketID: op.MarketID, MatchID: market.MatchID, At: e.now(),
	})
	e.publishSettlementEvent(ctx, summary)
	return domain.OpResult{MarketID: op.MarketID}, nil
}

// acquireSettleLock takes the cross-instance settlement lock for a market.
// Without a lock manager it is a no-op.
func (e *Engine) acquireSettleLock(ctx context.Context, marketID int64) (func(), error) {
	if e.dlocks == nil {
		return func() {}, nil
	}
	release, err := e.dlocks.Acquire(ctx, fmt.Sprintf("settle:%d", marketID), settleLockTTL)
	if err != nil {
		return nil, fmt.Errorf("engine: settlement lock: %w", err)
	}
	return release, nil
}

// settleLockTTL bounds how long a crashed instance can hold a settlement lock.
const settleLockTTL = 30 * time.Second

// authorizeTransition allows the market creator and configured admins to
// drive lifecycle transitions.
func (e *Engine) authorizeTransition(owner string, market domain.Market) error {
	if owner == market.Creator || e.isAdmin(owner) {
		return nil
	}
	return domain.ErrUnauthorized
}

func (e *Engine) claimWinnings(ctx context.Context, owner string, op domain.ClaimWinningsOp) (domain.OpResult, error) {
	bet, err := e.store.Bets.GetByID(ctx, op.BetID)
	if err != nil {
		return domain.OpResult{}, err
	}
	if bet.Owner != owner {
		return domain.OpResult{}, domain.ErrNotOwner
	}
	// Settlement auto-credits the ledger, so claiming is a read: report the
	// payout once the settlement pass has assigned it.
	if !bet.Settled || bet.Payout == nil {
		return domain.OpResult{}, domain.ErrNotSettled
	}
	return domain.OpResult{BetID: bet.ID, Payout: *bet.Payout}, nil
}

// invalidateMarket drops a market's cache entry after its row changed.
// Failures are logged only; the cache TTL bounds the staleness window.
func (e *Engine) invalidateMarket(ctx context.Context, id int64) {
	if e.cache == nil {
		return
	}
	if err := e.cache.Invalidate(ctx, id); err != nil {
		e.logger.WarnContext(ctx, "market cache invalidate failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) audit(ctx context.Context, event string, detail map[string]any) {
	if e.store.Audit == nil {
		return
	}
	if err := e.store.Audit.Log(ctx, event, detail); err != nil {
		e.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publishMarketEvent(ctx context.Context, ev domain.MarketEvent) {
	e.publish(ctx, domain.ChannelMarkets, ev)
}

func (e *Engine) publishBetEvent(ctx context.Context, ev domain.BetEvent) {
	e.publish(ctx, domain.ChannelBets, ev)
}

func (e *Engine) publishSettlementEvent(ctx context.Context, ev domain.SettlementEvent) {
	e.publish(ctx, domain.ChannelSettlement, ev)
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.bus.StreamAppend(ctx, domain.StreamSettlement, payload); err != nil {
		e.logger.WarnContext(ctx, "settlement stream append failed",
			slog.String("error", err.Error()),
		)
	}
}

func (e *Engine) publish(ctx context.Context, channel string, ev any) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := e.bus.Publish(ctx, channel, payload); err != nil {
		e.logger.WarnContext(ctx, "event publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
