package domain

import "time"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusOpen      MarketStatus = "open"
	MarketStatusLocked    MarketStatus = "locked"
	MarketStatusResolved  MarketStatus = "resolved"
	MarketStatusCancelled MarketStatus = "cancelled"
)

// Terminal reports whether no further transitions are permitted.
func (s MarketStatus) Terminal() bool {
	return s == MarketStatusResolved || s == MarketStatusCancelled
}

// Option is one selectable outcome within a market. Its index in the
// market's option list is its identity; Pool accumulates every stake wagered
// on it and is frozen once the market settles.
type Option struct {
	Label string `json:"label"`
	Pool  Amount `json:"pool"`
}

// Market is a single prediction question with mutually exclusive options and
// a pooled-stake structure. Options are fixed at creation.
type Market struct {
	ID            int64        `json:"id"`
	MatchID       string       `json:"match_id"`
	MarketType    string       `json:"market_type"`
	Title         string       `json:"title"`
	Creator       string       `json:"creator"`
	Options       []Option     `json:"options"`
	Status        MarketStatus `json:"status"`
	CreatedAt     time.Time    `json:"created_at"`
	LocksAt       time.Time    `json:"locks_at"`
	WinningOption *int         `json:"winning_option,omitempty"`
}

// EffectiveStatus promotes Open to Locked once the lock deadline has passed,
// independent of whether the explicit transition has been recorded. Every
// read and bet attempt goes through this predicate so a delayed lock call
// cannot admit late bets.
func (m Market) EffectiveStatus(now time.Time) MarketStatus {
	if m.Status == MarketStatusOpen && !now.Before(m.LocksAt) {
		return MarketStatusLocked
	}
	return m.Status
}

// TotalPool returns the sum of all option pools.
func (m Market) TotalPool() Amount {
	var total Amount
	for _, o := range m.Options {
		total += o.Pool
	}
	return total
}

// ValidOption reports whether idx is a valid index into the option list.
func (m Market) ValidOption(idx int) bool {
	return idx >= 0 && idx < len(m.Options)
}

// Pools returns the per-option pool sizes in canonical option order.
func (m Market) Pools() []Amount {
	pools := make([]Amount, len(m.Options))
	for i, o := range m.Options {
		pools[i] = o.Pool
	}
	return pools
}
