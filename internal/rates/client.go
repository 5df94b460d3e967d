package rates

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"bookkeep/internal/cache"
)

// Client fetches exchange rates from a currencyapi-compatible endpoint.
// Responses are cached per base currency so repeated conversions within
// the TTL do not hit the provider.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *cache.LRU[map[string]decimal.Decimal]
	logger     *slog.Logger
}

const (
	requestTimeout = 30 * time.Second
	cacheTTL       = 15 * time.Minute
	cacheSize      = 32
)

func NewClient(baseURL, apiKey string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
		cache:      cache.NewLRU[map[string]decimal.Decimal](cacheSize, cacheTTL),
		logger:     logger,
	}
}

type latestResponse struct {
	Data map[string]struct {
		Code  string          `json:"code"`
		Value decimal.Decimal `json:"value"`
	} `json:"data"`
}

// GetRates returns the latest rates quoted against base: one unit of
// base equals rates[C] units of currency C.
func (c *Client) GetRates(ctx context.Context, base string) (map[string]decimal.Decimal, error) {
	if cached, ok := c.cache.Get(base); ok {
		return cached, nil
	}

	endpoint, err := url.Parse(c.baseURL + "/v3/latest")
	if err != nil {
		return nil, fmt.Errorf("parsing rates endpoint: %w", err)
	}
	q := endpoint.Query()
	q.Set("apikey", c.apiKey)
	q.Set("base_currency", base)
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating rates request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("rates provider returned status %d: %s", resp.StatusCode, string(body))
	}

	var payload latestResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding rates response: %w", err)
	}
	if len(payload.Data) == 0 {
		return nil, fmt.Errorf("rates provider returned no rates for base %s", base)
	}

	result := make(map[string]decimal.Decimal, len(payload.Data))
	for code, entry := range payload.Data {
		result[code] = entry.Value
	}

	c.cache.Set(base, result)
	c.logger.InfoContext(ctx, "Fetched exchange rates",
		"base", base,
		"currencies", len(result))
	return result, nil
}
