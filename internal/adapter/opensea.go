package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/collection-watcher/internal/logging"
	"github.com/collection-watcher/internal/types"
	"github.com/collection-watcher/internal/watcherrors"
)

const openSeaBaseURL = "https://api.opensea.io/api/v2/events/collection"

// OpenSeaAdapter is the optional secondary source. It reports sales only,
// keyed by the collection's OpenSea slug, and requires an API key. The
// adapter is constructed only for collections that configure a slug.
type OpenSeaAdapter struct {
	client  *RateLimitedClient
	baseURL string
	logger  *logging.Logger
}

// NewOpenSeaAdapter creates the secondary adapter. The API key is attached
// by the client's header configuration.
func NewOpenSeaAdapter(client *RateLimitedClient, logger *logging.Logger) *OpenSeaAdapter {
	return &OpenSeaAdapter{
		client:  client,
		baseURL: openSeaBaseURL,
		logger:  logger,
	}
}

// SetBaseURL overrides the API endpoint (used by tests)
func (a *OpenSeaAdapter) SetBaseURL(url string) {
	a.baseURL = url
}

// Provider identifies this adapter's upstream source
func (a *OpenSeaAdapter) Provider() types.Provider {
	return types.ProviderOpenSea
}

// openSeaResponse mirrors the v2 collection events payload
type openSeaResponse struct {
	AssetEvents []openSeaEvent `json:"asset_events"`
}

type openSeaEvent struct {
	EventType      string `json:"event_type"`
	Transaction    string `json:"transaction"`
	Seller         string `json:"seller"`
	Buyer          string `json:"buyer"`
	EventTimestamp int64  `json:"event_timestamp"`
	NFT            *struct {
		Identifier string `json:"identifier"`
		Name       string `json:"name"`
	} `json:"nft"`
	Payment *struct {
		Quantity string `json:"quantity"`
		Decimals int    `json:"decimals"`
		Symbol   string `json:"symbol"`
	} `json:"payment"`
}

// FetchActivity fetches recent sale events for the collection's slug.
func (a *OpenSeaAdapter) FetchActivity(ctx context.Context, coll *types.Collection, since time.Time) ([]*types.Activity, error) {
	if coll.OpenSeaSlug == "" {
		return nil, watcherrors.NewPermanent(string(a.Provider()), "collection has no OpenSea slug configured", nil)
	}

	url := fmt.Sprintf("%s/%s?limit=%d&event_type=sale", a.baseURL, coll.OpenSeaSlug, coll.SalesFetchLimit())

	body, err := a.client.Get(ctx, url)
	if err != nil {
		return nil, err
	}

	var resp openSeaResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, watcherrors.NewPermanent(string(a.Provider()), "failed to parse events response", err)
	}

	zeroAddr := coll.FilterAddress()
	activities := make([]*types.Activity, 0, len(resp.AssetEvents))
	for _, raw := range resp.AssetEvents {
		act, err := a.convert(raw, zeroAddr)
		if err != nil {
			a.logger.WithError(err).WithField("collection", coll.Name).Warn("Skipping malformed sale event")
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

func (a *OpenSeaAdapter) convert(raw openSeaEvent, zeroAddr string) (*types.Activity, error) {
	// The request filters on event_type, but the payload restates it;
	// skip anything that is not a sale instead of mislabeling it.
	if raw.EventType != "" && raw.EventType != "sale" {
		return nil, nil
	}
	if raw.NFT == nil {
		return nil, watcherrors.NewPartialData(string(a.Provider()), "event missing nft data", nil)
	}
	if raw.NFT.Identifier == "" {
		return nil, watcherrors.NewPartialData(string(a.Provider()), "event missing token identifier", nil)
	}
	if raw.Transaction == "" {
		return nil, watcherrors.NewPartialData(string(a.Provider()), "event missing transaction hash", nil)
	}

	seller := strings.ToLower(raw.Seller)
	if seller == zeroAddr {
		// Zero-address sellers are mint-shaped transfers, not sales.
		return nil, nil
	}

	act := &types.Activity{
		Kind:        types.KindSale,
		TokenID:     raw.NFT.Identifier,
		TxHash:      raw.Transaction,
		TokenName:   raw.NFT.Name,
		FromAddress: seller,
		ToAddress:   strings.ToLower(raw.Buyer),
		Timestamp:   time.Unix(raw.EventTimestamp, 0).UTC(),
		Source:      types.ProviderOpenSea,
	}

	if raw.Payment != nil && raw.Payment.Quantity != "" && raw.Payment.Quantity != "0" {
		quantity, err := strconv.ParseFloat(raw.Payment.Quantity, 64)
		if err != nil {
			return nil, watcherrors.NewPartialData(string(a.Provider()),
				fmt.Sprintf("event has invalid payment quantity %q", raw.Payment.Quantity), err)
		}
		decimals := raw.Payment.Decimals
		if decimals <= 0 {
			decimals = 18
		}
		act.PriceNative = quantity / math.Pow10(decimals)
		act.HasPrice = true
		act.Currency = raw.Payment.Symbol
		if act.Currency == "" {
			act.Currency = "ETH"
		}
	}

	return act, nil
}
