package domain

import "time"

// Bet records a single wager. Amount and Odds are fixed at placement and
// never recomputed; Settled flips true exactly once, when the settlement
// pass assigns the payout.
type Bet struct {
	ID       int64  `json:"id"`
	Owner    string `json:"owner"`
	MarketID int64  `json:"market_id"`
	OptionID int    `json:"option_id"`
	Amount   Amount `json:"amount"`
	// Odds is the payout multiplier locked in at placement, scaled by 1000
	// (1500 = 1.5x).
	Odds     int64     `json:"odds"`
	PlacedAt time.Time `json:"placed_at"`
	Settled  bool      `json:"settled"`
	Payout   *Amount   `json:"payout,omitempty"`
}

// EngineStats aggregates lifetime counters across all markets.
type EngineStats struct {
	TotalVolume  Amount `json:"total_volume"`
	ProtocolFees Amount `json:"protocol_fees"`
}
