// Package llm talks to a local Ollama-compatible inference server: a
// streaming, line-delimited-JSON wire contract (not the OpenAI-style
// chat-completions shape), per spec §6.
package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/llmjson"
)

// Client is a single long-lived handle to the inference server.
type Client struct {
	baseURL      string
	defaultModel string
	httpClient   *http.Client
	log          zerolog.Logger
}

// Config configures a Client.
type Config struct {
	BaseURL      string
	DefaultModel string
	Timeout      time.Duration // default 30s, per spec §5 suspension points
	Log          zerolog.Logger
}

// New constructs an LLM Client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		defaultModel: cfg.DefaultModel,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     90 * time.Second,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		log: cfg.Log.With().Str("client", "llm").Logger(),
	}
}

// Health reports whether the inference server is reachable.
func (c *Client) Health(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

type generateRequest struct {
	Prompt  string          `json:"prompt"`
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Stream  bool            `json:"stream"`
	Format  string          `json:"format,omitempty"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
}

type generateChunk struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete issues a completion request, concatenating the streamed
// `response` chunks into the full output string (spec §6 wire contract).
func (c *Client) Complete(ctx context.Context, prompt, system string, jsonMode bool, temperature float64) (string, error) {
	reqBody := generateRequest{
		Prompt:  prompt,
		Model:   c.defaultModel,
		System:  system,
		Stream:  true,
		Options: generateOptions{Temperature: temperature},
	}
	if jsonMode {
		reqBody.Format = "json"
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal LLM request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build LLM request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("LLM request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("LLM server returned status %d", resp.StatusCode)
	}

	var out strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var chunk generateChunk
		if err := json.Unmarshal(line, &chunk); err != nil {
			c.log.Warn().Err(err).Msg("failed to decode LLM stream chunk")
			continue
		}
		out.WriteString(chunk.Response)
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read LLM stream: %w", err)
	}
	return out.String(), nil
}

// Relationship is one cross-ticker edge the LLM proposed from an article's claims.
type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// SummaryResult is the structured output of Summarize (spec §4.2).
type SummaryResult struct {
	Summary         string                 `json:"summary"`
	Tickers         []string               `json:"tickers"`
	Sectors         []string               `json:"sectors"`
	Claims          []string               `json:"claims"`
	FactCheck       string                 `json:"fact_check"`
	Conclusion      string                 `json:"conclusion"`
	Sentiment       domain.Sentiment       `json:"sentiment"`
	SentimentScore  float64                `json:"sentiment_score"`
	LogicCheck      domain.LogicCheck      `json:"logic_check"`
	MarketRelevance domain.MarketRelevance `json:"market_relevance"`
	Reason          string                 `json:"reason"`
	Relationships   []Relationship         `json:"relationships"`
	KeyThemes       []string               `json:"key_themes"`
}

const summarizeSystemPrompt = `You are a financial news analyst. Respond with JSON only, matching exactly the requested schema. No prose outside the JSON object.`

const summarizeUserPromptTemplate = `Analyze the following article text and return a JSON object with fields:
summary (string), tickers (array of stock tickers mentioned or inferred, uncertain ones suffixed with "?"),
sectors (array of strings), claims (array of factual claims), fact_check (string),
conclusion (string), sentiment (one of VeryBullish, Bullish, Neutral, Bearish, VeryBearish),
sentiment_score (float -1..1), logic_check (one of DataBacked, HypeDetected, Neutral),
market_relevance (one of MarketRelated, NotMarketRelated), reason (string),
relationships (array of {source, target, type}), key_themes (array of strings).

Article text:
%s`

// Summarize runs the article-enrichment prompt and parses the structured
// result, retrying on malformed JSON per the extractor contract (spec §4.6).
func (c *Client) Summarize(ctx context.Context, text string) (*SummaryResult, error) {
	var result SummaryResult
	prompt := fmt.Sprintf(summarizeUserPromptTemplate, text)
	err := llmjson.ExtractWithRetry(&result, func() (string, error) {
		return c.Complete(ctx, prompt, summarizeSystemPrompt, true, 0.1)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedJSON, err)
	}
	return &result, nil
}

// CrowdSentimentResult is the structured output of CrowdSentiment.
type CrowdSentimentResult struct {
	Label  string  `json:"label"`
	Score  float64 `json:"score"`
	Reason string  `json:"reason"`
}

const crowdSentimentSystemPrompt = `You are a crowd-sentiment analyst for retail stock discussion. Respond with JSON only.`

const crowdSentimentUserPromptTemplate = `Classify the aggregate crowd sentiment toward %s from the following posts.
Return JSON: {"label": one of Euphoric|Bullish|Neutral|Bearish|Fearful, "score": float -2..2, "reason": string}.

Posts:
%s`

// CrowdSentiment runs the analyze_crowd_sentiment prompt over a ticker's
// batched post bodies for one sessioning window (spec §4.5 Social-Sentiment
// Analysis job).
func (c *Client) CrowdSentiment(ctx context.Context, ticker string, posts []string) (*CrowdSentimentResult, error) {
	var result CrowdSentimentResult
	prompt := fmt.Sprintf(crowdSentimentUserPromptTemplate, ticker, strings.Join(posts, "\n---\n"))
	err := llmjson.ExtractWithRetry(&result, func() (string, error) {
		return c.Complete(ctx, prompt, crowdSentimentSystemPrompt, true, 0.2)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrMalformedJSON, err)
	}
	return &result, nil
}

type embedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed generates a dense vector for text, truncated by the caller to the
// first 6,000 characters per the token-budget safety rule (spec §4.4 step 7).
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	payload, err := json.Marshal(embedRequest{Model: c.defaultModel, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed server returned status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode embed response: %w", err)
	}
	if len(out.Embedding) != domain.EmbeddingDimension {
		return nil, fmt.Errorf("embed response dimension %d != %d", len(out.Embedding), domain.EmbeddingDimension)
	}
	return out.Embedding, nil
}
