// Package profitability checks wallet track records against an external
// profitability API before an address is taken on as a whale candidate.
package profitability

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Summary is the wallet profitability summary returned by the API.
type Summary struct {
	RealizedProfitUSD float64 `json:"total_realized_profit_usd"`
	RealizedProfitPct float64 `json:"total_realized_profit_percentage"`
	TradeCount        int     `json:"total_count_of_trades"`
}

// Criteria are the minimums an address must show to be worth tracking.
type Criteria struct {
	MinROIPercent float64 `yaml:"min_roi_percent"`
	MinProfitUSD  float64 `yaml:"min_profit_usd"`
	MinTrades     int     `yaml:"min_trades"`
}

// DefaultCriteria returns the standard bootstrap thresholds.
func DefaultCriteria() Criteria {
	return Criteria{
		MinROIPercent: 5,
		MinProfitUSD:  500,
		MinTrades:     5,
	}
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	APIKey   string
	Criteria Criteria
	CacheTTL time.Duration // defaults to 1 hour
	Timeout  time.Duration // defaults to 15 seconds
	Logger   zerolog.Logger
	Now      func() time.Time // defaults to time.Now
}

// Client is a caching profitability API client. It implements
// discovery.Validator.
type Client struct {
	http     *resty.Client
	criteria Criteria
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time

	mu    sync.Mutex
	cache map[string]cachedVerdict
}

type cachedVerdict struct {
	ok      bool
	fetched time.Time
}

// New creates a profitability client.
func New(opts Options) *Client {
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = time.Hour
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	http := resty.New().
		SetBaseURL(opts.BaseURL).
		SetTimeout(opts.Timeout).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)
	if opts.APIKey != "" {
		http.SetHeader("X-API-Key", opts.APIKey)
	}

	return &Client{
		http:     http,
		criteria: opts.Criteria,
		ttl:      opts.CacheTTL,
		log:      opts.Logger.With().Str("component", "profitability").Logger(),
		now:      opts.Now,
		cache:    make(map[string]cachedVerdict),
	}
}

// WalletSummary fetches the profitability summary for an address.
func (c *Client) WalletSummary(ctx context.Context, address string) (*Summary, error) {
	var summary Summary
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&summary).
		SetPathParam("address", address).
		Get("/wallets/{address}/profitability/summary")
	if err != nil {
		return nil, fmt.Errorf("fetch wallet summary: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wallet summary for %s: status %d", address, resp.StatusCode())
	}
	return &summary, nil
}

// Validate reports whether the address meets the bootstrap criteria.
// Verdicts are cached per address.
func (c *Client) Validate(ctx context.Context, address string) (bool, error) {
	c.mu.Lock()
	if v, ok := c.cache[address]; ok && c.now().Sub(v.fetched) < c.ttl {
		c.mu.Unlock()
		return v.ok, nil
	}
	c.mu.Unlock()

	summary, err := c.WalletSummary(ctx, address)
	if err != nil {
		return false, err
	}

	ok := c.meetsCriteria(summary)
	if !ok {
		c.log.Debug().
			Str("address", address).
			Float64("roi_pct", summary.RealizedProfitPct).
			Float64("profit_usd", summary.RealizedProfitUSD).
			Int("trades", summary.TradeCount).
			Msg("address below bootstrap criteria")
	}

	c.mu.Lock()
	c.cache[address] = cachedVerdict{ok: ok, fetched: c.now()}
	c.mu.Unlock()
	return ok, nil
}

func (c *Client) meetsCriteria(s *Summary) bool {
	return s.RealizedProfitPct >= c.criteria.MinROIPercent &&
		s.RealizedProfitUSD >= c.criteria.MinProfitUSD &&
		s.TradeCount >= c.criteria.MinTrades
}
