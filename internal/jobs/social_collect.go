package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/clients/reddit"
	"github.com/aristath/finintel/internal/clients/stocktwits"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

// socialCollectWindow bounds the per-ticker StockTwits lookback (spec §4.5).
const socialCollectWindow = 60 * time.Minute

// sentimentLabelScores maps the LLM's analyze_crowd_sentiment label onto the
// closed -2..2 numeric scale (spec §4.5).
var sentimentLabelScores = map[string]float64{
	"Euphoric": 2, "Bullish": 1, "Neutral": 0, "Bearish": -1, "Fearful": -2,
}

// SocialCollectJob fetches StockTwits and Reddit activity for every owned
// ticker and persists one sentiment metric row per (ticker, platform) window.
type SocialCollectJob struct {
	JobBase
	ownedTickers *store.OwnedTickersRepo
	stocktwits   *stocktwits.Client
	reddit       *reddit.Client
	llm          *llm.Client
	social       *store.SocialRepo
	log          zerolog.Logger
}

// SocialCollectJobConfig wires a SocialCollectJob's dependencies.
type SocialCollectJobConfig struct {
	OwnedTickers *store.OwnedTickersRepo
	Stocktwits   *stocktwits.Client
	Reddit       *reddit.Client
	LLM          *llm.Client
	Social       *store.SocialRepo
	Log          zerolog.Logger
}

// NewSocialCollectJob constructs a SocialCollectJob.
func NewSocialCollectJob(cfg SocialCollectJobConfig) *SocialCollectJob {
	return &SocialCollectJob{
		JobBase:      NewJobBase("social_collect"),
		ownedTickers: cfg.OwnedTickers,
		stocktwits:   cfg.Stocktwits,
		reddit:       cfg.Reddit,
		llm:          cfg.LLM,
		social:       cfg.Social,
		log:          cfg.Log.With().Str("job", "social_collect").Logger(),
	}
}

// Run collects and scores one window's worth of social activity per owned ticker.
func (j *SocialCollectJob) Run(ctx context.Context) (Result, error) {
	tickers, err := j.ownedTickers.All()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load owned tickers: %w", err)
	}

	window := time.Now().UTC().Truncate(time.Hour)
	for _, t := range tickers {
		if ctx.Err() != nil {
			break
		}
		mentionPattern := regexp.MustCompile(`(?i)(\$` + regexp.QuoteMeta(t.Ticker) + `\b|\b` + regexp.QuoteMeta(t.Ticker) + `\b)`)

		if err := j.collectStocktwits(ctx, t.Ticker, window, mentionPattern); err != nil {
			j.log.Warn().Err(err).Str("ticker", t.Ticker).Msg("stocktwits collection failed")
		}
		if err := j.collectReddit(ctx, t.Ticker, window); err != nil {
			j.log.Warn().Err(err).Str("ticker", t.Ticker).Msg("reddit collection failed")
		}
	}
	return Result{}, nil
}

func (j *SocialCollectJob) collectStocktwits(ctx context.Context, ticker string, window time.Time, mentionPattern *regexp.Regexp) error {
	posts, err := j.stocktwits.Fetch(ticker)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	cutoff := window.Add(-socialCollectWindow)
	var labeled, bullish, bearish int
	var bodies []string
	var raw []stocktwits.Post
	for _, p := range posts {
		createdAt, parseErr := time.Parse(time.RFC3339, p.CreatedAt)
		if parseErr == nil && createdAt.Before(cutoff) {
			continue
		}
		if !mentionPattern.MatchString(p.Body) {
			continue
		}
		raw = append(raw, p)
		bodies = append(bodies, p.Body)
		switch p.Sentiment {
		case "Bullish":
			labeled++
			bullish++
		case "Bearish":
			labeled++
			bearish++
		}
	}
	if len(raw) == 0 {
		return nil
	}

	var bullBear *float64
	if labeled > 0 {
		ratio := float64(bullish) / float64(labeled)
		bullBear = &ratio
	}

	sentiment, err := j.llm.CrowdSentiment(ctx, ticker, bodies)
	if err != nil {
		return fmt.Errorf("crowd sentiment scoring failed: %w", err)
	}

	rawJSON, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("failed to marshal raw posts: %w", err)
	}

	return j.social.UpsertMetric(&domain.SocialMetric{
		Ticker:         ticker,
		Platform:       domain.PlatformStocktwits,
		CreatedAt:      window,
		Volume:         len(raw),
		BullBearRatio:  bullBear,
		SentimentLabel: sentiment.Label,
		SentimentScore: sentimentLabelScores[sentiment.Label],
		RawPosts:       rawJSON,
	})
}

func (j *SocialCollectJob) collectReddit(ctx context.Context, ticker string, window time.Time) error {
	posts, err := j.reddit.SearchTicker(ticker)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}

	bodies := make([]string, 0, len(posts))
	for _, p := range posts {
		bodies = append(bodies, p.Title+"\n"+p.Body)
	}

	sentiment, err := j.llm.CrowdSentiment(ctx, ticker, bodies)
	if err != nil {
		return fmt.Errorf("crowd sentiment scoring failed: %w", err)
	}

	rawJSON, err := json.Marshal(posts)
	if err != nil {
		return fmt.Errorf("failed to marshal raw posts: %w", err)
	}

	return j.social.UpsertMetric(&domain.SocialMetric{
		Ticker:         ticker,
		Platform:       domain.PlatformReddit,
		CreatedAt:      window,
		Volume:         len(posts),
		SentimentLabel: sentiment.Label,
		SentimentScore: sentimentLabelScores[sentiment.Label],
		RawPosts:       rawJSON,
	})
}
