package jobs

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/store"
)

const socialAnalysisBatchLimit = 50

// SocialAnalysisJob runs the crowd-sentiment prompt over each sessioning
// window's pooled post bodies (spec §4.5 Social-Sentiment Analysis job).
type SocialAnalysisJob struct {
	JobBase
	social *store.SocialRepo
	llm    *llm.Client
	log    zerolog.Logger
}

// SocialAnalysisJobConfig wires a SocialAnalysisJob's dependencies.
type SocialAnalysisJobConfig struct {
	Social *store.SocialRepo
	LLM    *llm.Client
	Log    zerolog.Logger
}

// NewSocialAnalysisJob constructs a SocialAnalysisJob.
func NewSocialAnalysisJob(cfg SocialAnalysisJobConfig) *SocialAnalysisJob {
	return &SocialAnalysisJob{
		JobBase: NewJobBase("social_analysis"),
		social:  cfg.Social,
		llm:     cfg.LLM,
		log:     cfg.Log.With().Str("job", "social_analysis").Logger(),
	}
}

// Run scores every open session still awaiting an AI analysis pass.
func (j *SocialAnalysisJob) Run(ctx context.Context) (Result, error) {
	sessions, err := j.social.OpenSessionsNeedingAnalysis(socialAnalysisBatchLimit)
	if err != nil {
		return Result{}, fmt.Errorf("failed to load open sessions: %w", err)
	}

	for _, session := range sessions {
		if ctx.Err() != nil {
			break
		}
		bodies, err := j.social.PostBodiesForSession(session.ID)
		if err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to load session post bodies")
			continue
		}
		if len(bodies) == 0 {
			continue
		}

		result, err := j.llm.CrowdSentiment(ctx, session.Ticker, bodies)
		if err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("crowd sentiment scoring failed")
			continue
		}
		if err := j.social.SetSessionSentiment(session.ID, result.Label, result.Score); err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to record session sentiment")
		}

		if err := j.social.MarkSessionAnalyzed(session.ID); err != nil {
			j.log.Warn().Err(err).Str("session_id", session.ID).Msg("failed to mark session analyzed")
		}
	}
	return Result{}, nil
}
