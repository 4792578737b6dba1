package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/livepredict/engine/internal/domain"
)

// BetService defines what the bet handler needs from the read side.
type BetService interface {
	GetBet(ctx context.Context, caller string, id int64) (domain.Bet, error)
	ListByOwner(ctx context.Context, owner string, opts domain.ListOpts) ([]domain.Bet, error)
}

// BetHandler serves bet placement and history endpoints.
type BetHandler struct {
	bets   BetService
	exec   OperationExecutor
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler.
func NewBetHandler(bets BetService, exec OperationExecutor, logger *slog.Logger) *BetHandler {
	return &BetHandler{bets: bets, exec: exec, logger: logger}
}

type placeBetRequest struct {
	MarketID int64         `json:"market_id"`
	OptionID int           `json:"option_id"`
	Amount   domain.Amount `json:"amount"`
}

// PlaceBet wagers part of the caller's available balance on a market option.
// The response carries the locked-in odds.
// POST /api/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.exec.Execute(r.Context(), caller, domain.PlaceBetOp{
		MarketID: req.MarketID,
		OptionID: req.OptionID,
		Amount:   req.Amount,
	})
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: place bet failed",
			slog.Int64("market_id", req.MarketID),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"bet_id": res.BetID,
		"odds":   res.Odds,
	})
}

// ListBets returns the caller's bets, oldest first.
// GET /api/bets
func (h *BetHandler) ListBets(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	bets, err := h.bets.ListByOwner(r.Context(), caller, parseListOpts(r))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list bets failed",
			slog.String("owner", caller),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list bets")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"bets": bets})
}

// GetBet returns one of the caller's bets.
// GET /api/bets/{id}
func (h *BetHandler) GetBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bet id")
		return
	}

	bet, err := h.bets.GetBet(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bet)
}

// ClaimWinnings reports the settled payout of the caller's bet. Settlement
// credits the ledger directly, so this endpoint confirms rather than moves
// funds.
// POST /api/bets/{id}/claim
func (h *BetHandler) ClaimWinnings(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid bet id")
		return
	}

	res, err := h.exec.Execute(r.Context(), caller, domain.ClaimWinningsOp{BetID: id})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"bet_id": res.BetID,
		"payout": res.Payout,
	})
}
