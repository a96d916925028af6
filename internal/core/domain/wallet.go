package domain

import (
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Wallet is a ledger row: an address and its balance in wei.
// Balance is never negative; the database enforces it with a CHECK constraint.
type Wallet struct {
	Address   string    `json:"address"` // lower-cased 0x-prefixed hex
	Balance   *big.Int  `json:"balance_wei"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NormalizeAddress returns the ledger key for an address.
// Addresses are case-insensitive, so the key is the lower-cased hex form.
func NormalizeAddress(addr string) string {
	return strings.ToLower(addr)
}

// SameAddress compares two addresses ignoring checksum casing.
func SameAddress(a, b string) bool {
	return strings.EqualFold(a, b)
}

// IsValidAddress reports whether addr is a 0x-prefixed 20-byte hex address.
// All-lower and all-upper forms are accepted as is; a mixed-case address must
// carry a valid EIP-55 checksum.
func IsValidAddress(addr string) bool {
	if !strings.HasPrefix(addr, "0x") || !common.IsHexAddress(addr) {
		return false
	}
	body := addr[2:]
	if body == strings.ToLower(body) || body == strings.ToUpper(body) {
		return true
	}
	return common.HexToAddress(addr).Hex() == addr
}
