// Package stocktwits fetches per-ticker message streams through the
// anti-bot proxy (with its built-in direct-fetch fallback), for the
// Social-Sentiment Collect job (spec §4.5).
package stocktwits

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/antibotproxy"
)

// Post is one StockTwits message, labeled where the author tagged a sentiment.
type Post struct {
	ID        int64  `json:"id"`
	Body      string `json:"body"`
	CreatedAt string `json:"created_at"`
	Sentiment string `json:"sentiment"` // "Bullish", "Bearish", or "" if unlabeled
}

type streamResponse struct {
	Messages []struct {
		ID        int64  `json:"id"`
		Body      string `json:"body"`
		CreatedAt string `json:"created_at"`
		Entities  struct {
			Sentiment *struct {
				Basic string `json:"basic"`
			} `json:"sentiment"`
		} `json:"entities"`
	} `json:"messages"`
}

const streamURLTemplate = "https://api.stocktwits.com/api/2/streams/symbol/%s.json"

// Client fetches StockTwits per-ticker streams via the anti-bot proxy.
type Client struct {
	proxy *antibotproxy.Client
	log   zerolog.Logger
}

// Config configures a Client.
type Config struct {
	Proxy *antibotproxy.Client
	Log   zerolog.Logger
}

// New constructs a stocktwits Client.
func New(cfg Config) *Client {
	return &Client{proxy: cfg.Proxy, log: cfg.Log.With().Str("client", "stocktwits").Logger()}
}

// Health delegates to the underlying anti-bot proxy's health check.
func (c *Client) Health() bool { return c.proxy.Health() }

// Fetch retrieves the recent message stream for ticker.
func (c *Client) Fetch(ticker string) ([]Post, error) {
	body, err := c.proxy.Fetch(fmt.Sprintf(streamURLTemplate, ticker), 30000)
	if err != nil {
		return nil, fmt.Errorf("stocktwits fetch failed: %w", err)
	}

	var parsed streamResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		return nil, fmt.Errorf("failed to decode stocktwits response: %w", err)
	}

	posts := make([]Post, 0, len(parsed.Messages))
	for _, m := range parsed.Messages {
		sentiment := ""
		if m.Entities.Sentiment != nil {
			sentiment = m.Entities.Sentiment.Basic
		}
		posts = append(posts, Post{ID: m.ID, Body: m.Body, CreatedAt: m.CreatedAt, Sentiment: sentiment})
	}
	return posts, nil
}
