package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/livepredict/engine/internal/domain"
)

// Listener bridges the event bus to the Notifier so operators hear about
// market lifecycle changes and settlement results without watching logs.
type Listener struct {
	bus      domain.EventBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewListener creates a Listener over the given bus and notifier.
func NewListener(bus domain.EventBus, notifier *Notifier, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// Run subscribes to the market and settlement channels and forwards events
// until the context is cancelled.
func (l *Listener) Run(ctx context.Context) error {
	marketCh, err := l.bus.Subscribe(ctx, domain.ChannelMarkets)
	if err != nil {
		return fmt.Errorf("notify: subscribe markets: %w", err)
	}
	settleCh, err := l.bus.Subscribe(ctx, domain.ChannelSettlement)
	if err != nil {
		return fmt.Errorf("notify: subscribe settlement: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case payload, ok := <-marketCh:
			if !ok {
				return nil
			}
			l.handleMarketEvent(ctx, payload)
		case payload, ok := <-settleCh:
			if !ok {
				return nil
			}
			l.handleSettlementEvent(ctx, payload)
		}
	}
}

func (l *Listener) handleMarketEvent(ctx context.Context, payload []byte) {
	var ev domain.MarketEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.WarnContext(ctx, "bad market event payload", slog.String("error", err.Error()))
		return
	}

	switch ev.Kind {
	case "resolved":
		winning := -1
		if ev.WinningOption != nil {
			winning = *ev.WinningOption
		}
		title := fmt.Sprintf("Market %d resolved", ev.MarketID)
		msg := fmt.Sprintf("Match %s settled on option %d.", ev.MatchID, winning)
		if err := l.notifier.Notify(ctx, "market.resolved", title, msg); err != nil {
			l.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	case "cancelled":
		title := fmt.Sprintf("Market %d cancelled", ev.MarketID)
		msg := fmt.Sprintf("Match %s voided; all stakes refunded.", ev.MatchID)
		if err := l.notifier.Notify(ctx, "market.cancelled", title, msg); err != nil {
			l.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
		}
	}
}

func (l *Listener) handleSettlementEvent(ctx context.Context, payload []byte) {
	var ev domain.SettlementEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		l.logger.WarnContext(ctx, "bad settlement event payload", slog.String("error", err.Error()))
		return
	}

	title := fmt.Sprintf("Settlement pass: market %d", ev.MarketID)
	msg := fmt.Sprintf("%d bets paid, %d units out, %d units in fees.",
		ev.BetsPaid, ev.TotalPaid, ev.FeesTaken)
	if err := l.notifier.Notify(ctx, "settlement.completed", title, msg); err != nil {
		l.logger.WarnContext(ctx, "notify failed", slog.String("error", err.Error()))
	}
}
