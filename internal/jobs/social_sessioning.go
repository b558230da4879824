package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/store"
)

// socialSessionWindow is the width of one sentiment sessioning bucket
// (spec §4.5 Social-Sentiment Sessioning job).
const socialSessionWindow = 4 * time.Hour

// SocialSessioningJob groups extracted posts per (ticker, platform) into
// fixed-width windows, creating a social_sessions row once a window closes.
type SocialSessioningJob struct {
	JobBase
	social *store.SocialRepo
	log    zerolog.Logger
}

// SocialSessioningJobConfig wires a SocialSessioningJob's dependencies.
type SocialSessioningJobConfig struct {
	Social *store.SocialRepo
	Log    zerolog.Logger
}

// NewSocialSessioningJob constructs a SocialSessioningJob.
func NewSocialSessioningJob(cfg SocialSessioningJobConfig) *SocialSessioningJob {
	return &SocialSessioningJob{
		JobBase: NewJobBase("social_sessioning"),
		social:  cfg.Social,
		log:     cfg.Log.With().Str("job", "social_sessioning").Logger(),
	}
}

// Run groups every (ticker, platform) pair's ungrouped posts into
// consecutive socialSessionWindow buckets.
func (j *SocialSessioningJob) Run(ctx context.Context) (Result, error) {
	pairs, err := j.social.TickerPlatformsWithUngroupedPosts()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load ticker/platform pairs: %w", err)
	}

	for _, pair := range pairs {
		if ctx.Err() != nil {
			break
		}
		if err := j.sessionOne(pair); err != nil {
			j.log.Warn().Err(err).Str("ticker", pair.Ticker).Str("platform", string(pair.Platform)).Msg("sessioning failed")
		}
	}
	return Result{}, nil
}

func (j *SocialSessioningJob) sessionOne(pair store.TickerPlatformPair) error {
	posts, err := j.social.UngroupedPosts(pair.Ticker, pair.Platform)
	if err != nil {
		return fmt.Errorf("failed to load ungrouped posts: %w", err)
	}
	if len(posts) == 0 {
		return nil
	}

	windowStart := posts[0].CreatedAt
	windowEnd := windowStart.Add(socialSessionWindow)
	var bucket []string

	flush := func() error {
		if len(bucket) == 0 {
			return nil
		}
		_, err := j.social.CreateSession(pair.Ticker, pair.Platform, windowStart, windowEnd, bucket)
		return err
	}

	for _, p := range posts {
		if p.CreatedAt.After(windowEnd) {
			if err := flush(); err != nil {
				return fmt.Errorf("failed to create session: %w", err)
			}
			bucket = nil
			windowStart = p.CreatedAt
			windowEnd = windowStart.Add(socialSessionWindow)
		}
		bucket = append(bucket, p.ID)
	}
	// The trailing bucket becomes a session only once its window has ended;
	// until then its posts are left ungrouped for a later run.
	if time.Now().UTC().After(windowEnd) {
		if err := flush(); err != nil {
			return fmt.Errorf("failed to create session: %w", err)
		}
	}
	return nil
}
