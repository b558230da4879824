// Package antibotproxy wraps a bot-challenge-solving proxy for sites that
// block bare HTTP clients, with graceful fallback to a direct fetch (spec
// §4.2, §6).
package antibotproxy

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/llmjson"
)

// proxyTimeout is unusually long because the proxy service performs its own
// challenge-solving wait before responding (spec §5).
const proxyTimeout = 65 * time.Second

type proxyRequest struct {
	Cmd        string `json:"cmd"`
	URL        string `json:"url"`
	MaxTimeout int    `json:"maxTimeout"`
}

type proxyResponse struct {
	Status   string `json:"status"`
	Solution struct {
		Status   int    `json:"status"`
		Response string `json:"response"`
	} `json:"solution"`
}

// Client fetches a URL via the anti-bot proxy, falling back to a direct
// HTTP GET if the proxy is unreachable or misconfigured.
type Client struct {
	client     *resty.Client
	directHTTP *http.Client
	proxyURL   string
	log        zerolog.Logger
}

// Config configures a Client. ProxyURL may be empty, in which case the
// client always falls back to direct fetches.
type Config struct {
	ProxyURL string
	Log      zerolog.Logger
}

// New constructs an antibotproxy Client.
func New(cfg Config) *Client {
	return &Client{
		client:     resty.New().SetTimeout(proxyTimeout),
		directHTTP: &http.Client{Timeout: 30 * time.Second},
		proxyURL:   cfg.ProxyURL,
		log:        cfg.Log.With().Str("client", "antibotproxy").Logger(),
	}
}

// Health reports whether the proxy (if configured) is reachable.
func (c *Client) Health() bool {
	if c.proxyURL == "" {
		return true // direct-fetch fallback is always "available"
	}
	resp, err := c.client.R().Get(c.proxyURL)
	return err == nil && resp.IsSuccess()
}

// Fetch retrieves url's body, preferring the anti-bot proxy and falling back
// to a direct GET on any proxy failure (spec §4.2).
func (c *Client) Fetch(url string, maxTimeoutMs int) (string, error) {
	if c.proxyURL != "" {
		if body, err := c.fetchViaProxy(url, maxTimeoutMs); err == nil {
			return body, nil
		} else {
			c.log.Warn().Err(err).Str("url", url).Msg("anti-bot proxy failed, falling back to direct fetch")
		}
	}
	return c.fetchDirect(url)
}

func (c *Client) fetchViaProxy(url string, maxTimeoutMs int) (string, error) {
	var result proxyResponse
	resp, err := c.client.R().
		SetBody(proxyRequest{Cmd: "request.get", URL: url, MaxTimeout: maxTimeoutMs}).
		SetResult(&result).
		Post(c.proxyURL + "/v1")
	if err != nil {
		return "", fmt.Errorf("proxy request failed: %w", err)
	}
	if !resp.IsSuccess() || result.Status != "ok" {
		return "", fmt.Errorf("proxy returned non-ok status %q", result.Status)
	}
	return ExtractJSONOrRaw(result.Solution.Response), nil
}

func (c *Client) fetchDirect(url string) (string, error) {
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build direct request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)")

	resp, err := c.directHTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("direct fetch failed: %w", err)
	}
	defer resp.Body.Close()

	var buf strings.Builder
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return "", fmt.Errorf("failed to read direct fetch body: %w", err)
	}
	return buf.String(), nil
}

// ExtractJSONOrRaw returns the first {...} JSON block in s if one parses
// cleanly, else returns s unchanged (the proxy may return raw HTML
// containing an embedded JSON payload, per spec §4.2/§6).
func ExtractJSONOrRaw(s string) string {
	block, err := llmjson.FirstObject(s)
	if err != nil {
		return s
	}
	var probe map[string]interface{}
	if json.Unmarshal([]byte(block), &probe) != nil {
		return s
	}
	return block
}
