package domain

import "time"

// Event channel names published on the EventBus and mirrored to WebSocket
// clients.
const (
	ChannelMarkets    = "ch:markets"
	ChannelBets       = "ch:bets"
	ChannelSettlement = "ch:settlement"

	StreamSettlement = "stream:settlement"
)

// MarketEvent announces a market lifecycle change.
type MarketEvent struct {
	Kind          string    `json:"kind"` // "created", "locked", "resolved", "cancelled"
	MarketID      int64     `json:"market_id"`
	MatchID       string    `json:"match_id"`
	WinningOption *int      `json:"winning_option,omitempty"`
	At            time.Time `json:"at"`
}

// BetEvent announces a placed bet. The owner is omitted; pool movement is
// public, individual attribution is not.
type BetEvent struct {
	MarketID int64     `json:"market_id"`
	OptionID int       `json:"option_id"`
	Amount   Amount    `json:"amount"`
	Odds     int64     `json:"odds"`
	At       time.Time `json:"at"`
}

// SettlementEvent summarizes a completed settlement pass.
type SettlementEvent struct {
	MarketID   int64     `json:"market_id"`
	Status     string    `json:"status"` // "resolved" or "cancelled"
	BetsPaid   int       `json:"bets_paid"`
	TotalPaid  Amount    `json:"total_paid"`
	FeesTaken  Amount    `json:"fees_taken"`
	SettledAt  time.Time `json:"settled_at"`
}
