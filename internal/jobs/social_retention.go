package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/store"
)

// Social-sentiment retention windows (spec §4.5 retention job).
const (
	socialRawPostRetention       = 14 * 24 * time.Hour
	socialMetricRetention        = 60 * 24 * time.Hour
	socialSessionAnalysisRetain  = 90 * 24 * time.Hour
)

// SocialRetentionJob enforces the social-sentiment data lifecycle: raw JSON
// cleared at 14 days, metric rows deleted at 60 days, analyzed sessions
// deleted at 90 days (spec §4.5).
type SocialRetentionJob struct {
	JobBase
	social *store.SocialRepo
	log    zerolog.Logger
}

// SocialRetentionJobConfig wires a SocialRetentionJob's dependencies.
type SocialRetentionJobConfig struct {
	Social *store.SocialRepo
	Log    zerolog.Logger
}

// NewSocialRetentionJob constructs a SocialRetentionJob.
func NewSocialRetentionJob(cfg SocialRetentionJobConfig) *SocialRetentionJob {
	return &SocialRetentionJob{
		JobBase: NewJobBase("social_retention"),
		social:  cfg.Social,
		log:     cfg.Log.With().Str("job", "social_retention").Logger(),
	}
}

// Run applies all three retention cutoffs in sequence.
func (j *SocialRetentionJob) Run(ctx context.Context) (Result, error) {
	if cleared, err := j.social.PurgeRawPostsOlderThan(socialRawPostRetention); err != nil {
		j.log.Warn().Err(err).Msg("failed to purge raw posts")
	} else {
		j.log.Info().Int64("rows", cleared).Msg("cleared aged raw posts")
	}

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	if deleted, err := j.social.DeleteMetricsOlderThan(socialMetricRetention); err != nil {
		j.log.Warn().Err(err).Msg("failed to delete aged metrics")
	} else {
		j.log.Info().Int64("rows", deleted).Msg("deleted aged social metrics")
	}

	if ctx.Err() != nil {
		return Result{}, ctx.Err()
	}

	if deleted, err := j.social.DeleteSessionAnalysesOlderThan(socialSessionAnalysisRetain); err != nil {
		return Result{}, fmt.Errorf("failed to delete aged session analyses: %w", err)
	} else {
		j.log.Info().Int64("rows", deleted).Msg("deleted aged session analyses")
	}

	return Result{}, nil
}
