package pricefeed

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

const binanceSymbol = "BTCUSDT"

// BinanceFeed reads the BTCUSDT ticker from Binance.
type BinanceFeed struct {
	httpClient *http.Client
	baseURL    string // overridable for tests
}

// NewBinanceFeed creates a new Binance price feed.
func NewBinanceFeed(httpClient *http.Client) *BinanceFeed {
	return &BinanceFeed{
		httpClient: httpClient,
		baseURL:    "https://api.binance.com",
	}
}

// Name returns the feed's display name.
func (f *BinanceFeed) Name() string { return "Binance" }

type binanceTicker struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// CurrentPrice fetches the latest BTCUSDT trade price. Binance encodes the
// price as a decimal string.
func (f *BinanceFeed) CurrentPrice(ctx context.Context) (float64, error) {
	url := strings.TrimRight(f.baseURL, "/") + "/api/v3/ticker/price?symbol=" + binanceSymbol

	var ticker binanceTicker
	if err := getJSON(ctx, f.httpClient, url, &ticker); err != nil {
		return 0, err
	}

	raw := strings.TrimSpace(ticker.Price)
	if raw == "" {
		return 0, ErrMissingPrice
	}

	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, raw)
	}
	return checkPrice(price)
}
