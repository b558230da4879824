// Package search wraps a news-search HTTP API with domain fallback and
// rotation across configured mirrors (spec §4.2).
package search

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// Result is one search hit.
type Result struct {
	URL   string `json:"url"`
	Title string `json:"title"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

// Client rotates across a list of base URLs, falling over to the next on
// failure so a single down mirror doesn't stall a job.
type Client struct {
	client   *resty.Client
	baseURLs []string
	cursor   uint64
	log      zerolog.Logger
}

// Config configures a Client.
type Config struct {
	BaseURLs []string
	Log      zerolog.Logger
}

// New constructs a search Client.
func New(cfg Config) *Client {
	return &Client{
		client:   resty.New().SetTimeout(30 * time.Second),
		baseURLs: cfg.BaseURLs,
		log:      cfg.Log.With().Str("client", "search").Logger(),
	}
}

// Health reports whether at least one configured mirror responds.
func (c *Client) Health() bool {
	for _, base := range c.baseURLs {
		resp, err := c.client.R().Get(base + "/health")
		if err == nil && resp.IsSuccess() {
			return true
		}
	}
	return false
}

// Search queries, trying each configured mirror in rotation until one
// succeeds (spec §4.2 "domain fallback and rotation").
func (c *Client) Search(query string, limit int) ([]Result, error) {
	if len(c.baseURLs) == 0 {
		return nil, fmt.Errorf("no search base URLs configured")
	}

	var lastErr error
	start := atomic.AddUint64(&c.cursor, 1)
	for i := 0; i < len(c.baseURLs); i++ {
		base := c.baseURLs[(int(start)+i)%len(c.baseURLs)]

		var result searchResponse
		resp, err := c.client.R().
			SetQueryParams(map[string]string{"q": query, "limit": fmt.Sprintf("%d", limit)}).
			SetResult(&result).
			Get(base + "/search")
		if err != nil {
			lastErr = fmt.Errorf("search mirror %s failed: %w", base, err)
			c.log.Warn().Err(err).Str("mirror", base).Msg("search mirror failed, rotating")
			continue
		}
		if !resp.IsSuccess() {
			lastErr = fmt.Errorf("search mirror %s returned status %d", base, resp.StatusCode())
			continue
		}
		return result.Results, nil
	}
	return nil, fmt.Errorf("all search mirrors failed: %w", lastErr)
}
