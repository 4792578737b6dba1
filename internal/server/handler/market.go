package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/livepredict/engine/internal/domain"
	"github.com/livepredict/engine/internal/odds"
)

// MarketService defines what the market handler needs from the read side.
type MarketService interface {
	GetMarket(ctx context.Context, id int64) (domain.Market, error)
	ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	ListByMatch(ctx context.Context, matchID string) ([]domain.Market, error)
	Quote(ctx context.Context, marketID int64, optionID int, amount domain.Amount) (int64, error)
}

// MarketHandler serves market lifecycle and discovery endpoints.
type MarketHandler struct {
	markets MarketService
	exec    OperationExecutor
	feeBps  int
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. feeBps is the protocol fee rate
// used to report prospective payouts on quotes.
func NewMarketHandler(markets MarketService, exec OperationExecutor, feeBps int, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{markets: markets, exec: exec, feeBps: feeBps, logger: logger}
}

type createMarketRequest struct {
	MatchID    string    `json:"match_id"`
	MarketType string    `json:"market_type"`
	Title      string    `json:"title"`
	Options    []string  `json:"options"`
	LocksAt    time.Time `json:"locks_at"`
}

type resolveMarketRequest struct {
	WinningOption int `json:"winning_option"`
}

type listMarketsResponse struct {
	Markets []domain.Market `json:"markets"`
	Limit   int             `json:"limit"`
	Offset  int             `json:"offset"`
}

// ListMarkets returns markets still accepting bets.
// GET /api/markets?limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	if matchID := r.URL.Query().Get("match_id"); matchID != "" {
		markets, err := h.markets.ListByMatch(r.Context(), matchID)
		if err != nil {
			h.logger.ErrorContext(r.Context(), "handler: list markets by match failed",
				slog.String("match_id", matchID),
				slog.String("error", err.Error()),
			)
			writeError(w, http.StatusInternalServerError, "failed to list markets")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"markets": markets})
		return
	}

	opts := parseListOpts(r)
	markets, err := h.markets.ListOpen(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list markets failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list markets")
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: markets,
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, market)
}

// CreateMarket opens a new market. Admin only.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.exec.Execute(r.Context(), caller, domain.CreateMarketOp{
		MatchID:    req.MatchID,
		MarketType: req.MarketType,
		Title:      req.Title,
		Options:    req.Options,
		LocksAt:    req.LocksAt,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: create market failed",
			slog.String("caller", caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"market_id": res.MarketID})
}

// LockMarket closes a market to new bets ahead of its deadline.
// POST /api/markets/{id}/lock
func (h *MarketHandler) LockMarket(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64) domain.Operation {
		return domain.LockMarketOp{MarketID: id}
	})
}

// CancelMarket voids a market and refunds all stakes.
// POST /api/markets/{id}/cancel
func (h *MarketHandler) CancelMarket(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(id int64) domain.Operation {
		return domain.CancelMarketOp{MarketID: id}
	})
}

// ResolveMarket declares the winning option and settles every bet.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.exec.Execute(r.Context(), caller, domain.ResolveMarketOp{
		MarketID:      id,
		WinningOption: req.WinningOption,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: resolve market failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":      res.MarketID,
		"winning_option": res.WinningOption,
	})
}

func (h *MarketHandler) transition(w http.ResponseWriter, r *http.Request, mkOp func(int64) domain.Operation) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	res, err := h.exec.Execute(r.Context(), caller, mkOp(id))
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: market transition failed",
			slog.Int64("market_id", id),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"market_id": res.MarketID})
}

// Quote returns the odds a bet would lock in against the current pools.
// GET /api/quote?market_id=1&option_id=0&amount=100
func (h *MarketHandler) Quote(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	marketID, err := parseInt64(q.Get("market_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market_id")
		return
	}
	optionID, err := parseInt64(q.Get("option_id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid option_id")
		return
	}
	amount, err := parseInt64(q.Get("amount"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	quoted, err := h.markets.Quote(r.Context(), marketID, int(optionID), amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	potential, _ := odds.Payout(amount, quoted, h.feeBps)
	writeJSON(w, http.StatusOK, map[string]any{
		"market_id":        marketID,
		"option_id":        optionID,
		"amount":           amount,
		"odds":             quoted,
		"potential_payout": potential,
	})
}
