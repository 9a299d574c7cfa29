// Package pricefeed reads the current BTC/USD price from public market APIs.
package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"
)

var (
	ErrUnexpectedStatus = errors.New("unexpected status from price feed")
	ErrMissingPrice     = errors.New("price missing from feed response")
	ErrInvalidPrice     = errors.New("feed returned an invalid price")
	ErrUnknownSource    = errors.New("unknown price feed source")
)

// maxBodyBytes caps how much of a response is read
const maxBodyBytes = 1 << 20

// Feed returns the current BTC/USD price. Implementations return an error
// rather than a zero or non-finite price.
type Feed interface {
	Name() string
	CurrentPrice(ctx context.Context) (float64, error)
}

// NewHTTPClient returns the client shared by the feeds
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: 15 * time.Second}
}

// New builds the feed named by source. An empty baseURL keeps the public endpoint.
func New(source, baseURL string, httpClient *http.Client) (Feed, error) {
	switch source {
	case "binance":
		f := NewBinanceFeed(httpClient)
		if baseURL != "" {
			f.baseURL = baseURL
		}
		return f, nil
	case "coingecko":
		f := NewCoinGeckoFeed(httpClient)
		if baseURL != "" {
			f.baseURL = baseURL
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}
}

// getJSON performs a GET and decodes a 2xx JSON body into out
func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch price: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return fmt.Errorf("%w: %d", ErrUnexpectedStatus, resp.StatusCode)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		return fmt.Errorf("failed to decode price response: %w", err)
	}
	return nil
}

// checkPrice rejects readings that cannot be stored as a snapshot
func checkPrice(price float64) (float64, error) {
	if math.IsNaN(price) || math.IsInf(price, 0) || price < 0 {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, price)
	}
	return price, nil
}
