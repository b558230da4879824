// Package extractor fetches a URL and extracts article text from the HTML,
// classifying failures into the closed ExtractionErrorKind set (spec §4.2).
package extractor

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/domain"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// paywallMarkers are substrings in page text that indicate a paid-subscription wall.
var paywallMarkers = []string{
	"subscribe to continue reading",
	"this content is reserved for subscribers",
	"sign in to continue reading",
	"already a subscriber",
}

// Result is the outcome of a successful extraction.
type Result struct {
	Title       string
	Content     string
	Source      string
	PublishedAt time.Time
}

// ExtractionError carries a closed-set failure reason plus the offending URL.
type ExtractionError struct {
	Kind domain.ExtractionErrorKind
	URL  string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extraction failed for %s: %s", e.URL, e.Kind)
}

// Client fetches and extracts article content.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger
}

// Config configures a Client.
type Config struct {
	Timeout time.Duration
	Log     zerolog.Logger
}

// New constructs an extractor Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        cfg.Log.With().Str("client", "extractor").Logger(),
	}
}

// Health always reports true: the extractor has no persistent upstream
// connection to probe, only per-request fetches.
func (c *Client) Health() bool { return true }

// Extract fetches url and extracts {title, content, source, published_at}.
// On failure it returns an *ExtractionError with a closed-set Kind.
func (c *Client) Extract(url string) (*Result, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, &ExtractionError{Kind: domain.ExtractionUnknown, URL: url}
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if strings.Contains(err.Error(), "Client.Timeout") || strings.Contains(err.Error(), "deadline exceeded") {
			return nil, &ExtractionError{Kind: domain.ExtractionTimeout, URL: url}
		}
		return nil, &ExtractionError{Kind: domain.ExtractionUnknown, URL: url}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		kind := domain.ExtractionErrorKind(domain.ExtractionHTTPPrefix + strconv.Itoa(resp.StatusCode))
		return nil, &ExtractionError{Kind: kind, URL: url}
	}

	return parseDocument(resp.Body, url)
}

// ExtractHTML runs the same extraction rules as Extract over HTML already
// fetched by another client (e.g. the archive retry job's anti-bot-proxied
// archived snapshot), avoiding a second HTTP round trip.
func (c *Client) ExtractHTML(html, sourceURL string) (*Result, error) {
	return parseDocument(strings.NewReader(html), sourceURL)
}

func parseDocument(body io.Reader, url string) (*Result, error) {
	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return nil, &ExtractionError{Kind: domain.ExtractionUnknown, URL: url}
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	bodyText := extractBodyText(doc)

	lowered := strings.ToLower(bodyText)
	for _, marker := range paywallMarkers {
		if strings.Contains(lowered, marker) {
			return nil, &ExtractionError{Kind: domain.ExtractionPaidSubscription, URL: url}
		}
	}

	if strings.TrimSpace(bodyText) == "" {
		return nil, &ExtractionError{Kind: domain.ExtractionEmpty, URL: url}
	}

	return &Result{
		Title:       title,
		Content:     bodyText,
		Source:      hostOf(url),
		PublishedAt: publishedAtOf(doc),
	}, nil
}

// extractBodyText prefers <article> content, falling back to <p> tags
// throughout the document body.
func extractBodyText(doc *goquery.Document) string {
	if article := doc.Find("article").First(); article.Length() > 0 {
		if text := strings.TrimSpace(article.Text()); text != "" {
			return collapseWhitespace(text)
		}
	}
	var sb strings.Builder
	doc.Find("p").Each(func(_ int, s *goquery.Selection) {
		sb.WriteString(strings.TrimSpace(s.Text()))
		sb.WriteString("\n")
	})
	return collapseWhitespace(sb.String())
}

func collapseWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func publishedAtOf(doc *goquery.Document) time.Time {
	if v, ok := doc.Find(`meta[property="article:published_time"]`).Attr("content"); ok {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return time.Time{}
}

func hostOf(rawURL string) string {
	rawURL = strings.TrimPrefix(rawURL, "https://")
	rawURL = strings.TrimPrefix(rawURL, "http://")
	if idx := strings.IndexByte(rawURL, '/'); idx != -1 {
		return rawURL[:idx]
	}
	return rawURL
}
