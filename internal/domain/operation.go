package domain

import "time"

// Operation is the closed set of commands the engine executes. Each variant
// carries exactly the inputs of one external operation; the executor matches
// exhaustively, so adding an operation is a compile-time-checked change.
type Operation interface {
	isOperation()
}

// DepositOp credits the caller's available balance.
type DepositOp struct {
	Amount Amount
}

// WithdrawOp debits the caller's available balance.
type WithdrawOp struct {
	Amount Amount
}

// CreateMarketOp opens a new market. Options are labels in canonical index
// order.
type CreateMarketOp struct {
	MatchID    string
	MarketType string
	Title      string
	Options    []string
	LocksAt    time.Time
}

// PlaceBetOp wagers Amount on one option of a market.
type PlaceBetOp struct {
	MarketID int64
	OptionID int
	Amount   Amount
}

// LockMarketOp stops a market from accepting new bets.
type LockMarketOp struct {
	MarketID int64
}

// ResolveMarketOp settles a locked market with the winning option.
type ResolveMarketOp struct {
	MarketID      int64
	WinningOption int
}

// CancelMarketOp voids a market and refunds every unsettled bet.
type CancelMarketOp struct {
	MarketID int64
}

// ClaimWinningsOp reads back a settled bet's payout. Settlement auto-credits
// the ledger, so this is a read-only convenience for API parity.
type ClaimWinningsOp struct {
	BetID int64
}

func (DepositOp) isOperation()       {}
func (WithdrawOp) isOperation()      {}
func (CreateMarketOp) isOperation()  {}
func (PlaceBetOp) isOperation()      {}
func (LockMarketOp) isOperation()    {}
func (ResolveMarketOp) isOperation() {}
func (CancelMarketOp) isOperation()  {}
func (ClaimWinningsOp) isOperation() {}

// OpResult is the success payload of an executed operation. Only the fields
// relevant to the operation kind are populated.
type OpResult struct {
	NewAvailable  Amount `json:"new_available,omitempty"`
	MarketID      int64  `json:"market_id,omitempty"`
	BetID         int64  `json:"bet_id,omitempty"`
	Odds          int64  `json:"odds,omitempty"`
	Payout        Amount `json:"payout,omitempty"`
	WinningOption *int   `json:"winning_option,omitempty"`
}
