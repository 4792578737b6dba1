package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/livepredict/engine/internal/domain"
)

// LedgerService defines what the ledger handler needs from the read side.
type LedgerService interface {
	Balance(ctx context.Context, owner string) (domain.LedgerAccount, error)
	Stats(ctx context.Context) (domain.EngineStats, error)
}

// OperationExecutor submits write operations to the betting engine.
type OperationExecutor interface {
	Execute(ctx context.Context, caller string, op domain.Operation) (domain.OpResult, error)
}

// LedgerHandler serves balance and funding endpoints.
type LedgerHandler struct {
	ledger LedgerService
	exec   OperationExecutor
	logger *slog.Logger
}

// NewLedgerHandler creates a LedgerHandler.
func NewLedgerHandler(ledger LedgerService, exec OperationExecutor, logger *slog.Logger) *LedgerHandler {
	return &LedgerHandler{ledger: ledger, exec: exec, logger: logger}
}

type amountRequest struct {
	Amount domain.Amount `json:"amount"`
}

type balanceResponse struct {
	Owner     string        `json:"owner"`
	Available domain.Amount `json:"available"`
	Locked    domain.Amount `json:"locked"`
}

// Deposit credits the caller's available balance.
// POST /api/ledger/deposit
func (h *LedgerHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "deposit")
}

// Withdraw debits the caller's available balance. Locked stakes cannot be
// withdrawn.
// POST /api/ledger/withdraw
func (h *LedgerHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.move(w, r, "withdraw")
}

func (h *LedgerHandler) move(w http.ResponseWriter, r *http.Request, kind string) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var op domain.Operation
	if kind == "deposit" {
		op = domain.DepositOp{Amount: req.Amount}
	} else {
		op = domain.WithdrawOp{Amount: req.Amount}
	}

	res, err := h.exec.Execute(r.Context(), caller, op)
	if err != nil {
		h.logger.WarnContext(r.Context(), "handler: ledger "+kind+" failed",
			slog.String("owner", caller),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"owner":     caller,
		"available": res.NewAvailable,
	})
}

// Balance returns the caller's account balances.
// GET /api/ledger/balance
func (h *LedgerHandler) Balance(w http.ResponseWriter, r *http.Request) {
	caller, ok := callerOwner(r)
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing owner identity")
		return
	}

	acct, err := h.ledger.Balance(r.Context(), caller)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get balance failed",
			slog.String("owner", caller),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get balance")
		return
	}

	writeJSON(w, http.StatusOK, balanceResponse{
		Owner:     caller,
		Available: acct.Available,
		Locked:    acct.Locked,
	})
}

// Stats returns the lifetime engine counters.
// GET /api/stats
func (h *LedgerHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.ledger.Stats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: get stats failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
