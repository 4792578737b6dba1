package domain

import (
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Amount is a token quantity in fixed-point base units (6 decimals). All
// balance and pool arithmetic stays in integers so settlement is reproducible.
type Amount = int64

// LedgerAccount tracks one owner's funds. Available is spendable; Locked is
// the sum of stakes reserved by that owner's unsettled bets. Accounts are
// created lazily on first deposit and never deleted.
type LedgerAccount struct {
	Owner     string    `json:"owner"`
	Available Amount    `json:"available"`
	Locked    Amount    `json:"locked"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeOwner canonicalizes an owner identifier. Owners are chain
// addresses; hex addresses are checksummed so the same account never appears
// under two spellings. Non-address identifiers pass through lowercased.
func NormalizeOwner(owner string) (string, bool) {
	owner = strings.TrimSpace(owner)
	if owner == "" {
		return "", false
	}
	if common.IsHexAddress(owner) {
		return common.HexToAddress(owner).Hex(), true
	}
	return strings.ToLower(owner), true
}
