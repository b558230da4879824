// Package rss parses RSS/Atom feeds, filtering out low-content "junk" items
// before handing results to the pipeline (spec §4.2, §4.5).
package rss

import (
	"context"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"
)

// Item is one feed entry, normalized to the pipeline's expected shape.
type Item struct {
	URL         string
	Title       string
	Content     string
	PublishedAt time.Time
	Tickers     []string
	Source      string
}

// FetchResult is the outcome of parsing one feed.
type FetchResult struct {
	Items         []Item
	JunkFiltered int
}

// junkContentFloor is the content length below which an item with an empty
// title is considered junk (spec §4.5: RSS ingest falls back to the extractor
// when content is missing or under 200 chars — the junk filter here uses a
// much lower floor that only drops empty stub entries).
const junkContentFloor = 20

// Client parses feeds via gofeed.
type Client struct {
	parser *gofeed.Parser
	log    zerolog.Logger
}

// Config configures a Client.
type Config struct {
	Log zerolog.Logger
}

// New constructs an rss Client.
func New(cfg Config) *Client {
	return &Client{parser: gofeed.NewParser(), log: cfg.Log.With().Str("client", "rss").Logger()}
}

// Health always reports true: there is no persistent upstream connection,
// only per-feed fetches.
func (c *Client) Health() bool { return true }

// Fetch parses the feed at url, filtering empty-title/empty-content junk entries.
func (c *Client) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	feed, err := c.parser.ParseURLWithContext(url, ctx)
	if err != nil {
		return nil, err
	}

	result := &FetchResult{}
	for _, entry := range feed.Items {
		title := strings.TrimSpace(entry.Title)
		content := strings.TrimSpace(firstNonEmpty(entry.Content, entry.Description))
		if title == "" && len(content) < junkContentFloor {
			result.JunkFiltered++
			continue
		}

		item := Item{
			URL:     entry.Link,
			Title:   title,
			Content: content,
			Source:  feed.Title,
		}
		if entry.PublishedParsed != nil {
			item.PublishedAt = *entry.PublishedParsed
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
