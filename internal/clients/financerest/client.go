// Package financerest wraps the congressional-disclosure REST endpoints.
// The upstream service's documented per-page size is wrong in practice: it
// silently truncates past page 0, so callers must not paginate (spec §4.2,
// §4.5 Congress Trades Fetch job).
package financerest

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// DisclosureLimit is the effective page size honored by the upstream
// service regardless of the limit requested (spec §4.5).
const DisclosureLimit = 10

// Disclosure is one raw trade disclosure row as returned by the API, in the
// service's native (unnormalized) date-format and owner vocabulary.
type Disclosure struct {
	Politician      string  `json:"politician"`
	Ticker          string  `json:"ticker"`
	Chamber         string  `json:"chamber"`
	Party           string  `json:"party"`
	State           string  `json:"state"`
	Owner           string  `json:"owner"`
	TransactionDate string  `json:"transaction_date"`
	DisclosureDate  string  `json:"disclosure_date"`
	Type            string  `json:"type"`
	Amount          string  `json:"amount"`
	Price           *float64 `json:"price"`
	AssetType       string  `json:"asset_type"`
	Notes           string  `json:"notes"`
}

// Client talks to the financial-disclosure REST API.
type Client struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Log     zerolog.Logger
}

// New constructs a financerest Client.
func New(cfg Config) *Client {
	c := resty.New().SetTimeout(30 * time.Second).SetBaseURL(cfg.BaseURL)
	if cfg.APIKey != "" {
		c.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	}
	return &Client{client: c, baseURL: cfg.BaseURL, log: cfg.Log.With().Str("client", "financerest").Logger()}
}

// Health reports whether the API responds.
func (c *Client) Health() bool {
	resp, err := c.client.R().Get("/health")
	return err == nil && resp.IsSuccess()
}

// FetchHouseDisclosures fetches page 0 of House trade disclosures. The
// service's documented per-page limit is unreliable above page 0, so this
// never requests page 1+ (spec §4.5).
func (c *Client) FetchHouseDisclosures() ([]Disclosure, error) {
	return c.fetchPageZero("/disclosures/house")
}

// FetchSenateDisclosures fetches page 0 of Senate trade disclosures.
func (c *Client) FetchSenateDisclosures() ([]Disclosure, error) {
	return c.fetchPageZero("/disclosures/senate")
}

func (c *Client) fetchPageZero(path string) ([]Disclosure, error) {
	var result struct {
		Disclosures []Disclosure `json:"disclosures"`
	}
	resp, err := c.client.R().
		SetQueryParams(map[string]string{"page": "0", "limit": fmt.Sprintf("%d", DisclosureLimit)}).
		SetResult(&result).
		Get(path)
	if err != nil {
		return nil, fmt.Errorf("disclosure fetch failed: %w", err)
	}
	if !resp.IsSuccess() {
		return nil, fmt.Errorf("disclosure fetch returned status %d", resp.StatusCode())
	}
	return result.Disclosures, nil
}
