package types

import (
	"strings"
	"time"
)

// DefaultZeroAddress is the conventional EVM zero address, used to detect
// mint-shaped trades when a collection config does not override it.
const DefaultZeroAddress = "0x0000000000000000000000000000000000000000"

// BurnMessage is one weighted entry of a collection's burn-message table.
// The table is opaque to the core and carried through for the notifier.
type BurnMessage struct {
	Weight  float64 `json:"weight"`
	Message string  `json:"message"`
}

// Collection is the static configuration for one monitored collection.
// Immutable after load; one instance is owned by the scheduler per
// collection for the process lifetime.
type Collection struct {
	Name            string `json:"name"`
	Chain           string `json:"chain"`
	ContractAddress string `json:"contract_address"`

	// OpenSeaSlug enables the secondary adapter when set (and the process
	// has an OpenSea API key).
	OpenSeaSlug string `json:"opensea_collection_slug,omitempty"`

	PollIntervalSeconds int `json:"poll_interval,omitempty"`
	ActivityLimit       int `json:"activity_limit,omitempty"`
	SalesLimit          int `json:"sales_limit,omitempty"`

	MaxKnownSales int `json:"max_known_sales,omitempty"`
	MaxKnownMints int `json:"max_known_mints,omitempty"`
	MaxKnownBurns int `json:"max_known_burns,omitempty"`

	// CooldownMinutes suppresses repeat emissions for a token after a sale.
	CooldownMinutes int `json:"id_cooldown,omitempty"`

	ZeroAddress string `json:"zero_address,omitempty"`

	// Notifier-facing fields, not interpreted by the core.
	TransactionLinkBase   string        `json:"transaction_link_base,omitempty"`
	DiscordSalesChannelID int64         `json:"discord_sales_channel_id,omitempty"`
	DiscordMintChannelID  int64         `json:"discord_mint_channel_id,omitempty"`
	DiscordBurnChannelID  int64         `json:"discord_burn_channel_id,omitempty"`
	BurnMessages          []BurnMessage `json:"burn_messages,omitempty"`
}

// PollInterval returns the configured poll interval, defaulting to 5 minutes.
func (c *Collection) PollInterval() time.Duration {
	if c.PollIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// Cooldown returns the token cooldown window, defaulting to 60 minutes.
func (c *Collection) Cooldown() time.Duration {
	if c.CooldownMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.CooldownMinutes) * time.Minute
}

// FetchLimit returns the per-request activity limit for the primary source.
func (c *Collection) FetchLimit() int {
	if c.ActivityLimit <= 0 {
		return 50
	}
	return c.ActivityLimit
}

// SalesFetchLimit returns the per-request limit for the secondary source.
func (c *Collection) SalesFetchLimit() int {
	if c.SalesLimit <= 0 {
		return 50
	}
	return c.SalesLimit
}

// Capacity returns the dedup set capacity for the given activity kind.
func (c *Collection) Capacity(kind ActivityKind) int {
	switch kind {
	case KindSale:
		if c.MaxKnownSales > 0 {
			return c.MaxKnownSales
		}
		return 50
	case KindMint:
		if c.MaxKnownMints > 0 {
			return c.MaxKnownMints
		}
		return 100
	case KindBurn:
		if c.MaxKnownBurns > 0 {
			return c.MaxKnownBurns
		}
		return 100
	default:
		return 50
	}
}

// FilterAddress returns the zero/burn address used to filter mint-shaped
// trades, lowercased.
func (c *Collection) FilterAddress() string {
	if c.ZeroAddress != "" {
		return strings.ToLower(c.ZeroAddress)
	}
	return DefaultZeroAddress
}
