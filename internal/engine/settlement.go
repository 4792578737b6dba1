package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/livepredict/engine/internal/domain"
	"github.com/livepredict/engine/internal/odds"
)

// settle runs the settlement pass for a market that has just entered a
// terminal state. The caller must hold the market lock. The pass is
// structurally idempotent: it iterates only bets still unsettled, so a re-run
// after a partial failure picks up exactly where the previous pass stopped
// and an already-settled market is a no-op.
func (e *Engine) settle(ctx context.Context, market domain.Market) (domain.SettlementEvent, error) {
	summary := domain.SettlementEvent{
		MarketID:  market.ID,
		Status:    string(market.Status),
		SettledAt: e.now(),
	}

	bets, err := e.store.Bets.ListUnsettledByMarket(ctx, market.ID)
	if err != nil {
		return summary, fmt.Errorf("list unsettled bets: %w", err)
	}

	for _, bet := range bets {
		payout, fee := e.outcome(market, bet)

		// Market lock before account lock, same order as placeBet.
		unlock := e.locks.lock(ownerKey(bet.Owner))
		err := e.store.Ledger.Release(ctx, bet.Owner, bet.Amount, payout)
		unlock()
		if err != nil {
			// ErrLedgerCorrupt here means locked balances diverged from
			// unsettled stakes somewhere else; abort loudly, do not clamp.
			e.logger.ErrorContext(ctx, "settlement release failed",
				slog.Int64("bet_id", bet.ID),
				slog.String("owner", bet.Owner),
				slog.String("error", err.Error()),
			)
			return summary, fmt.Errorf("release bet %d: %w", bet.ID, err)
		}

		if _, err := e.store.Bets.MarkSettled(ctx, bet.ID, payout); err != nil {
			e.logger.ErrorContext(ctx, "settlement mark failed after credit",
				slog.Int64("bet_id", bet.ID),
				slog.String("error", err.Error()),
			)
			return summary, fmt.Errorf("mark bet %d settled: %w", bet.ID, err)
		}

		e.audit(ctx, "bet.settled", map[string]any{
			"bet_id":    bet.ID,
			"owner":     bet.Owner,
			"market_id": market.ID,
			"payout":    payout,
			"fee":       fee,
		})

		summary.BetsPaid++
		summary.TotalPaid += payout
		summary.FeesTaken += fee
	}

	if summary.FeesTaken > 0 {
		if err := e.store.Stats.AddFees(ctx, summary.FeesTaken); err != nil {
			e.logger.WarnContext(ctx, "fee counter update failed",
				slog.String("error", err.Error()),
			)
		}
	}
	return summary, nil
}

// outcome computes the amount credited back to the bettor when the market
// settles, and the protocol fee withheld from it.
func (e *Engine) outcome(market domain.Market, bet domain.Bet) (payout, fee domain.Amount) {
	switch market.Status {
	case domain.MarketStatusCancelled:
		// Full refund, no fee.
		return bet.Amount, 0
	case domain.MarketStatusResolved:
		if market.WinningOption != nil && bet.OptionID == *market.WinningOption {
			return odds.Payout(bet.Amount, bet.Odds, e.feeBps)
		}
		// Stake forfeited; it already funded the winning side's pool.
		return 0, 0
	default:
		return 0, 0
	}
}
