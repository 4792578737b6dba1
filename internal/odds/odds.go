// Package odds computes parimutuel payout multipliers and settlement payouts
// as pure functions of pool composition. All arithmetic is fixed-point
// integer math so results are reproducible and auditable.
package odds

import "github.com/livepredict/engine/internal/domain"

const (
	// Scale is the fixed-point factor for odds: 1000 = 1.0x.
	Scale int64 = 1000

	// MaxOdds caps the multiplier at 10x.
	MaxOdds int64 = 10 * Scale

	// MaxFeeBps bounds the protocol fee rate at 5%.
	MaxFeeBps = 500

	bpsDenominator int64 = 10000
)

// Quote returns the odds that would be locked in if amount were wagered on
// optionID right now, given the current per-option pools. The quote is
// prospective: both the total pool and the chosen option's pool include the
// new stake, so the first bettor on a fresh option is quoted against
// totalPool/amount rather than dividing by zero.
//
// Callers must validate optionID and amount before quoting; Quote assumes
// 0 <= optionID < len(pools) and amount > 0.
func Quote(pools []domain.Amount, optionID int, amount domain.Amount) int64 {
	var total domain.Amount
	for _, p := range pools {
		total += p
	}
	total += amount
	matched := pools[optionID] + amount

	q := (total * Scale) / matched
	if q > MaxOdds {
		q = MaxOdds
	}
	return q
}

// Payout converts a winning bet's locked-in odds into the net amount credited
// at settlement. The gross payout is stake times odds; the protocol fee is
// charged only on winnings above the stake, never on the stake itself, so a
// 1.0x bet pays back exactly its stake at any fee rate.
func Payout(amount domain.Amount, betOdds int64, feeBps int) (net, fee domain.Amount) {
	gross := (amount * betOdds) / Scale
	winnings := gross - amount
	if winnings > 0 && feeBps > 0 {
		fee = (winnings * int64(feeBps)) / bpsDenominator
	}
	return gross - fee, fee
}
