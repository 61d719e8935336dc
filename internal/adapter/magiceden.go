package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/types"
	"github.com/collection-watcher/internal/watcherrors"
)

const magicEdenBaseURL = "https://api-mainnet.magiceden.dev/v4/activity/nft"

// MagicEdenAdapter is the primary activity source. One request returns
// trades, mints, and burns for a collection, most recent first.
type MagicEdenAdapter struct {
	client  *RateLimitedClient
	baseURL string
	logger  *logging.Logger
}

// NewMagicEdenAdapter creates the primary adapter
func NewMagicEdenAdapter(client *RateLimitedClient, logger *logging.Logger) *MagicEdenAdapter {
	return &MagicEdenAdapter{
		client:  client,
		baseURL: magicEdenBaseURL,
		logger:  logger,
	}
}

// SetBaseURL overrides the API endpoint (used by tests)
func (a *MagicEdenAdapter) SetBaseURL(url string) {
	a.baseURL = url
}

// Provider identifies this adapter's upstream source
func (a *MagicEdenAdapter) Provider() types.Provider {
	return types.ProviderMagicEden
}

// magicEdenResponse mirrors the v4 activity API payload
type magicEdenResponse struct {
	Activities []magicEdenActivity `json:"activities"`
}

type magicEdenActivity struct {
	ActivityType string `json:"activityType"`
	FromAddress  string `json:"fromAddress"`
	ToAddress    string `json:"toAddress"`
	Timestamp    string `json:"timestamp"`
	Asset        struct {
		TokenID string `json:"tokenId"`
		Name    string `json:"name"`
	} `json:"asset"`
	TransactionInfo struct {
		TransactionID string `json:"transactionId"`
	} `json:"transactionInfo"`
	UnitPrice struct {
		Amount struct {
			Native float64 `json:"native"`
		} `json:"amount"`
		Currency struct {
			Symbol string `json:"symbol"`
		} `json:"currency"`
	} `json:"unitPrice"`
}

// FetchActivity fetches trades, mints, and burns for the collection.
// Trades whose fromAddress is the configured zero address are dropped:
// the provider reports mints as zero-address trades on some chains and
// emits a distinct MINT record for the same event.
func (a *MagicEdenAdapter) FetchActivity(ctx context.Context, coll *types.Collection, since time.Time) ([]*types.Activity, error) {
	url := fmt.Sprintf(
		"%s?chain=%s&activityTypes[]=TRADE&activityTypes[]=MINT&activityTypes[]=BURN&collectionId=%s&limit=%d&sortBy=timestamp&sortDir=desc",
		a.baseURL, coll.Chain, coll.ContractAddress, coll.FetchLimit(),
	)

	body, err := a.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp magicEdenResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, watcherrors.NewPermanent(string(a.Provider()), "failed to parse activity response", err)
	}

	zeroAddr := coll.FilterAddress()
	activities := make([]*types.Activity, 0, len(resp.Activities))
	for _, raw := range resp.Activities {
		act, err := a.convert(raw, zeroAddr)
		if err != nil {
			a.logger.WithError(err).WithField("collection", coll.Name).Warn("Skipping malformed activity record")
			continue
		}
		if act == nil {
			continue
		}
		if act.Timestamp.Before(since) {
			continue
		}
		activities = append(activities, act)
	}

	return activities, nil
}

// convert maps one raw record to a canonical Activity. Returns (nil, nil)
// for records that are filtered rather than malformed.
func (a *MagicEdenAdapter) convert(raw magicEdenActivity, zeroAddr string) (*types.Activity, error) {
	var kind types.ActivityKind
	switch raw.ActivityType {
	case "TRADE":
		kind = types.KindSale
	case "MINT":
		kind = types.KindMint
	case "BURN":
		kind = types.KindBurn
	default:
		return nil, nil
	}

	fromAddr := strings.ToLower(raw.FromAddress)
	if kind == types.KindSale && fromAddr == zeroAddr {
		return nil, nil
	}

	if raw.Asset.TokenID == "" {
		return nil, watcherrors.NewPartialData(string(a.Provider()), "record missing tokenId", nil)
	}
	if raw.TransactionInfo.TransactionID == "" {
		return nil, watcherrors.NewPartialData(string(a.Provider()), "record missing transactionId", nil)
	}

	ts, err := time.Parse(time.RFC3339, raw.Timestamp)
	if err != nil {
		return nil, watcherrors.NewPartialData(string(a.Provider()),
			fmt.Sprintf("record has invalid timestamp %q", raw.Timestamp), err)
	}

	act := &types.Activity{
		Kind:        kind,
		TokenID:     raw.Asset.TokenID,
		TxHash:      raw.TransactionInfo.TransactionID,
		TokenName:   raw.Asset.Name,
		FromAddress: fromAddr,
		ToAddress:   strings.ToLower(raw.ToAddress),
		Timestamp:   ts.UTC(),
		Source:      types.ProviderMagicEden,
	}
	if kind == types.KindSale && raw.UnitPrice.Amount.Native > 0 {
		act.PriceNative = raw.UnitPrice.Amount.Native
		act.HasPrice = true
		act.Currency = raw.UnitPrice.Currency.Symbol
		if act.Currency == "" {
			act.Currency = "ETH"
		}
	}
	return act, nil
}
