// Package archive wraps the Wayback-Machine-style archive service: submit a
// URL, poll availability, and fetch archived HTML with browser-like headers
// (spec §4.2, §6).
package archive

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/domain"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// Client talks to the archive service.
type Client struct {
	client  *resty.Client
	baseURL string
	log     zerolog.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL string
	Log     zerolog.Logger
}

// New constructs an archive Client.
func New(cfg Config) *Client {
	return &Client{
		client:  resty.New().SetTimeout(30 * time.Second).SetHeader("User-Agent", userAgent),
		baseURL: cfg.BaseURL,
		log:     cfg.Log.With().Str("client", "archive").Logger(),
	}
}

// Health reports whether the archive service responds.
func (c *Client) Health() bool {
	resp, err := c.client.R().Get(c.baseURL)
	return err == nil && resp.IsSuccess()
}

// Submit requests the archive service snapshot a URL. It does not wait for
// the snapshot to become available; the caller marks archive_submitted_at
// and the archive-retry job checks back later (spec §4.4 step 4, §4.5).
func (c *Client) Submit(url string) error {
	resp, err := c.client.R().SetQueryParam("url", url).Get(c.baseURL + "/save")
	if err != nil {
		return fmt.Errorf("archive submit failed: %w", err)
	}
	if !resp.IsSuccess() {
		return fmt.Errorf("archive submit returned status %d", resp.StatusCode())
	}
	return nil
}

// CheckAvailability polls whether an archived snapshot of url is ready,
// returning its archive URL if so, or domain.ErrArchiveNotReady otherwise.
func (c *Client) CheckAvailability(url string) (string, error) {
	var result struct {
		ArchivedSnapshots struct {
			Closest struct {
				Available bool   `json:"available"`
				URL       string `json:"url"`
			} `json:"closest"`
		} `json:"archived_snapshots"`
	}
	resp, err := c.client.R().
		SetQueryParam("url", url).
		SetResult(&result).
		Get(c.baseURL + "/wayback/available")
	if err != nil {
		return "", fmt.Errorf("archive availability check failed: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("archive availability check returned status %d", resp.StatusCode())
	}
	if !result.ArchivedSnapshots.Closest.Available {
		return "", domain.ErrArchiveNotReady
	}
	return result.ArchivedSnapshots.Closest.URL, nil
}

// FetchArchived retrieves the archived HTML for an archive URL using
// browser-like headers, since many archive mirrors reject bare HTTP clients.
func (c *Client) FetchArchived(archiveURL string) (string, error) {
	resp, err := c.client.R().Get(archiveURL)
	if err != nil {
		return "", fmt.Errorf("failed to fetch archived page: %w", err)
	}
	if !resp.IsSuccess() {
		return "", fmt.Errorf("archived page fetch returned status %d", resp.StatusCode())
	}
	return resp.String(), nil
}
