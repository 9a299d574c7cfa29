package pricefeed

import (
	"context"
	"net/http"
	"strings"
)

// CoinGeckoFeed reads the bitcoin/usd simple price from CoinGecko.
type CoinGeckoFeed struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
}

// NewCoinGeckoFeed creates a new CoinGecko price feed.
func NewCoinGeckoFeed(httpClient *http.Client) *CoinGeckoFeed {
	return &CoinGeckoFeed{
		httpClient: httpClient,
		baseURL:    "https://api.coingecko.com/api/v3",
	}
}

// Name returns the feed's display name.
func (f *CoinGeckoFeed) Name() string { return "CoinGecko" }

// CurrentPrice fetches the bitcoin price in USD.
func (f *CoinGeckoFeed) CurrentPrice(ctx context.Context) (float64, error) {
	url := strings.TrimRight(f.baseURL, "/") + "/simple/price?ids=bitcoin&vs_currencies=usd"

	var body map[string]map[string]*float64
	if err := getJSON(ctx, f.httpClient, url, &body); err != nil {
		return 0, err
	}

	price := body["bitcoin"]["usd"]
	if price == nil {
		return 0, ErrMissingPrice
	}
	return checkPrice(*price)
}
