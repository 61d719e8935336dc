// Package types provides common type definitions for the collection watcher.
package types

import (
	"fmt"
	"strings"
	"time"
)

// ActivityKind classifies an on-chain event
type ActivityKind string

const (
	// KindSale represents a marketplace trade
	KindSale ActivityKind = "sale"
	// KindMint represents a token mint
	KindMint ActivityKind = "mint"
	// KindBurn represents a token burn
	KindBurn ActivityKind = "burn"
)

// Kinds lists all activity kinds in a stable order
var Kinds = []ActivityKind{KindSale, KindMint, KindBurn}

// Provider identifies an upstream data source
type Provider string

const (
	// ProviderMagicEden is the primary activity source
	ProviderMagicEden Provider = "magiceden"
	// ProviderOpenSea is the optional secondary sales source
	ProviderOpenSea Provider = "opensea"
)

// Activity is a canonical, provider-agnostic record of one on-chain event.
// It is created per poll cycle from raw provider payloads and never mutated;
// only its identity survives the cycle, via the dedup store.
type Activity struct {
	Kind        ActivityKind
	TokenID     string
	TxHash      string
	TokenName   string
	FromAddress string
	ToAddress   string
	// PriceNative is the sale price in the chain's native currency.
	// Zero for mints and burns, and for sales whose source omitted it.
	PriceNative float64
	HasPrice    bool
	Currency    string
	Timestamp   time.Time
	Source      Provider
}

// Identity returns the cross-source dedup key. A (tokenId, txHash) pair
// uniquely identifies the underlying on-chain event regardless of which
// provider reported it.
func (a *Activity) Identity() string {
	return FormatIdentity(a.TokenID, a.TxHash)
}

// FormatIdentity builds the persisted identity string for a token/tx pair.
func FormatIdentity(tokenID, txHash string) string {
	return fmt.Sprintf("%s-%s", tokenID, txHash)
}

// ValidIdentity reports whether s is a well-formed persisted identity:
// a numeric token ID, a hyphen, and a 0x-prefixed transaction hash.
// Entries that fail this check are pruned when loading persisted state.
func ValidIdentity(s string) bool {
	tokenID, txHash, ok := strings.Cut(s, "-")
	if !ok || tokenID == "" {
		return false
	}
	for _, r := range tokenID {
		if r < '0' || r > '9' {
			return false
		}
	}
	return strings.HasPrefix(txHash, "0x")
}
