package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/reddit"
	"github.com/aristath/finintel/internal/clients/stocktwits"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

const socialPostExtractionBatchLimit = 100

// SocialPostExtractionJob explodes the raw_posts JSON blob stored on each
// social metric row into individual social_posts rows for sessioning
// (spec §4.5 Social-Sentiment Post Extraction job).
type SocialPostExtractionJob struct {
	JobBase
	social *store.SocialRepo
	log    zerolog.Logger
}

// SocialPostExtractionJobConfig wires a SocialPostExtractionJob's dependencies.
type SocialPostExtractionJobConfig struct {
	Social *store.SocialRepo
	Log    zerolog.Logger
}

// NewSocialPostExtractionJob constructs a SocialPostExtractionJob.
func NewSocialPostExtractionJob(cfg SocialPostExtractionJobConfig) *SocialPostExtractionJob {
	return &SocialPostExtractionJob{
		JobBase: NewJobBase("social_post_extraction"),
		social:  cfg.Social,
		log:     cfg.Log.With().Str("job", "social_post_extraction").Logger(),
	}
}

// Run explodes every pending metric's raw_posts blob into social_posts rows.
func (j *SocialPostExtractionJob) Run(ctx context.Context) (Result, error) {
	metrics, err := j.social.PendingPostExtraction(socialPostExtractionBatchLimit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load metrics pending extraction: %w", err)
	}

	for _, m := range metrics {
		if ctx.Err() != nil {
			break
		}
		if err := j.extractOne(m); err != nil {
			j.log.Warn().Err(err).Str("ticker", m.Ticker).Str("platform", string(m.Platform)).Msg("post extraction failed")
			continue
		}
		if err := j.social.MarkPostsExtracted(m.Ticker, m.Platform, m.CreatedAt); err != nil {
			j.log.Warn().Err(err).Str("ticker", m.Ticker).Msg("failed to mark posts extracted")
		}
	}
	return Result{}, nil
}

func (j *SocialPostExtractionJob) extractOne(m *domain.SocialMetric) error {
	switch m.Platform {
	case domain.PlatformStocktwits:
		var posts []stocktwits.Post
		if err := json.Unmarshal(m.RawPosts, &posts); err != nil {
			return fmt.Errorf("failed to decode stocktwits raw posts: %w", err)
		}
		for _, p := range posts {
			createdAt, err := time.Parse(time.RFC3339, p.CreatedAt)
			if err != nil {
				createdAt = m.CreatedAt
			}
			if err := j.social.InsertPost(m.Ticker, m.Platform, createdAt, p.Body); err != nil {
				return fmt.Errorf("failed to insert post: %w", err)
			}
		}
	case domain.PlatformReddit:
		var posts []reddit.Post
		if err := json.Unmarshal(m.RawPosts, &posts); err != nil {
			return fmt.Errorf("failed to decode reddit raw posts: %w", err)
		}
		for _, p := range posts {
			if err := j.social.InsertPost(m.Ticker, m.Platform, p.CreatedAt, p.Title+"\n"+p.Body); err != nil {
				return fmt.Errorf("failed to insert post: %w", err)
			}
		}
	default:
		return fmt.Errorf("unknown social platform %q", m.Platform)
	}
	return nil
}
