package coingecko

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"crypto_tracker/metrics"
	"crypto_tracker/models"
	"crypto_tracker/utils"
)

const (
	DefaultBaseURL  = "https://api.coingecko.com/api/v3"
	DefaultPageSize = 50
	DefaultTimeout  = 10 * time.Second

	// maxBodyBytes bounds how much of an upstream response is read.
	maxBodyBytes = 8 << 20
)

// Client fetches the top assets by market capitalization. It holds no
// mutable state and is safe for concurrent use.
type Client struct {
	baseURL    string
	apiKey     string
	currency   string
	pageSize   int
	timeout    time.Duration
	httpClient *http.Client
}

type ClientOption func(*Client)

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:  DefaultBaseURL,
		currency: "usd",
		pageSize: DefaultPageSize,
		timeout:  DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c
}

func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = u }
}

// WithAPIKey sends key as the demo API key header.
func WithAPIKey(key string) ClientOption {
	return func(c *Client) { c.apiKey = key }
}

func WithCurrency(currency string) ClientOption {
	return func(c *Client) { c.currency = currency }
}

func WithPageSize(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.pageSize = n
		}
	}
}

func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// Fetch retrieves one page of assets ordered by market cap. On failure it
// returns an empty batch and a *FetchError.
func (c *Client) Fetch(ctx context.Context) (models.MarketBatch, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	start := time.Now()
	body, status, err := c.get(ctx, "/coins/markets", c.query())
	metrics.RecordUpstreamDuration(statusLabel(status, err), time.Since(start))
	if err != nil {
		return models.MarketBatch{}, err
	}

	var coins []coin
	if err := json.Unmarshal(body, &coins); err != nil {
		return models.MarketBatch{}, &FetchError{Kind: ParseError, Err: fmt.Errorf("decode markets: %w", err)}
	}

	batch := make(models.MarketBatch, 0, len(coins))
	for _, cn := range coins {
		batch = append(batch, cn.toRecord())
	}

	if len(batch) == 0 {
		utils.Logger.Warnw("No cryptocurrency data received")
	} else {
		utils.Logger.Infow("Fetched market data", "count", len(batch))
	}
	return batch, nil
}

func (c *Client) query() url.Values {
	q := url.Values{}
	q.Set("vs_currency", c.currency)
	q.Set("order", "market_cap_desc")
	q.Set("per_page", strconv.Itoa(c.pageSize))
	q.Set("page", "1")
	q.Set("sparkline", "false")
	q.Set("price_change_percentage", "24h,7d,30d")
	return q
}

func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	fullURL := c.baseURL + path + "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, &FetchError{Kind: NetworkError, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, &FetchError{Kind: NetworkError, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, resp.StatusCode, &FetchError{Kind: NetworkError, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, resp.StatusCode, &FetchError{
			Kind:       UpstreamError,
			StatusCode: resp.StatusCode,
			Err:        errors.New(http.StatusText(resp.StatusCode)),
		}
	}

	return body, resp.StatusCode, nil
}

func statusLabel(status int, err error) string {
	if status == 0 {
		if err != nil {
			return "error"
		}
		return "unknown"
	}
	return strconv.Itoa(status)
}
