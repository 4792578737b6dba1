package domain

import "errors"

// Caller-facing errors. Retrying with identical inputs reproduces the same
// error; transient failures belong to the transport boundary, not this core.
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidAmount     = errors.New("amount must be greater than zero")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidOptions    = errors.New("invalid market options")
	ErrInvalidDeadline   = errors.New("lock deadline must be in the future")
	ErrInvalidState      = errors.New("invalid market state for this transition")
	ErrInvalidOption     = errors.New("option index out of range")
	ErrMarketClosed      = errors.New("market is closed to new bets")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrNotSettled        = errors.New("bet is not settled yet")
	ErrNotOwner          = errors.New("bet belongs to another owner")
	ErrLockHeld          = errors.New("lock already held")
)

// ErrLedgerCorrupt signals a broken internal invariant (locked balance lower
// than a stake being released). It is a bug indicator, never a user error,
// and must abort the operation rather than be clamped.
var ErrLedgerCorrupt = errors.New("ledger invariant violated")
