// Package reddit polls the public (unauthenticated) JSON listing endpoints
// of a fixed whitelist of stock-related subreddits, rate-limited to avoid
// tripping Reddit's abuse heuristics (spec §4.5).
package reddit

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// MinRequestInterval is the minimum spacing enforced between requests
// (spec §4.5: "rate-limited to 2 s between requests").
const MinRequestInterval = 2 * time.Second

// MaxPostsPerTicker is the early-termination cap once enough matching
// posts have been retained for a ticker.
const MaxPostsPerTicker = 10

// Subreddits is the fixed whitelist of stock-related communities polled.
var Subreddits = []string{"stocks", "investing", "wallstreetbets", "StockMarket", "options"}

// Post is one retained Reddit submission mentioning the ticker.
type Post struct {
	ID        string
	Title     string
	Body      string
	CreatedAt time.Time
}

type listingResponse struct {
	Data struct {
		Children []struct {
			Data struct {
				ID        string  `json:"id"`
				Title     string  `json:"title"`
				Selftext  string  `json:"selftext"`
				CreatedAt float64 `json:"created_utc"`
			} `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

// Client polls Reddit's public JSON endpoints with a shared rate limiter
// across all calls, since Reddit enforces the limit per client IP, not per ticker.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger

	mu       sync.Mutex
	lastCall time.Time
}

// Config configures a Client.
type Config struct {
	Log zerolog.Logger
}

// New constructs a reddit Client.
func New(cfg Config) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		log:        cfg.Log.With().Str("client", "reddit").Logger(),
	}
}

// Health always reports true: Reddit's public JSON endpoints have no
// meaningful standalone health probe.
func (c *Client) Health() bool { return true }

// SearchTicker polls every whitelisted subreddit's "new" listing for posts
// mentioning ticker (as a cashtag or a bare word), stopping once
// MaxPostsPerTicker posts have been retained.
func (c *Client) SearchTicker(ticker string) ([]Post, error) {
	mentionPattern := regexp.MustCompile(`(?i)(\$` + regexp.QuoteMeta(ticker) + `\b|\b` + regexp.QuoteMeta(ticker) + `\b)`)

	var posts []Post
	for _, sub := range Subreddits {
		if len(posts) >= MaxPostsPerTicker {
			break
		}

		c.throttle()

		body, err := c.fetchListing(sub)
		if err != nil {
			c.log.Warn().Err(err).Str("subreddit", sub).Msg("reddit listing fetch failed")
			continue
		}

		for _, child := range body.Data.Children {
			text := child.Data.Title + " " + child.Data.Selftext
			if !mentionPattern.MatchString(text) {
				continue
			}
			posts = append(posts, Post{
				ID:        child.Data.ID,
				Title:     child.Data.Title,
				Body:      child.Data.Selftext,
				CreatedAt: time.Unix(int64(child.Data.CreatedAt), 0),
			})
			if len(posts) >= MaxPostsPerTicker {
				break
			}
		}
	}
	return posts, nil
}

// throttle blocks until at least MinRequestInterval has elapsed since the
// previous request, serializing all callers sharing this client.
func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elapsed := time.Since(c.lastCall); elapsed < MinRequestInterval {
		time.Sleep(MinRequestInterval - elapsed)
	}
	c.lastCall = time.Now()
}

func (c *Client) fetchListing(subreddit string) (*listingResponse, error) {
	url := fmt.Sprintf("https://www.reddit.com/r/%s/new.json?limit=25", subreddit)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build reddit request: %w", err)
	}
	req.Header.Set("User-Agent", "finintel-social-collector/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("reddit request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("reddit returned status %d", resp.StatusCode)
	}

	var parsed listingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode reddit listing: %w", err)
	}
	return &parsed, nil
}
