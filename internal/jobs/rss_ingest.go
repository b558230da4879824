package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/extractor"
	"github.com/aristath/finintel/internal/clients/rss"
	"github.com/aristath/finintel/internal/pipeline"
	"github.com/aristath/finintel/internal/store"
)

// rssShortContentFloor is the length below which a feed item's inline
// content is considered too thin and the full page is fetched instead
// (spec §4.5: "missing or <200 chars").
const rssShortContentFloor = 200

// RSSIngestJob polls every enabled feed, filling in thin items via the
// extractor before routing everything through ArticlePipeline.
type RSSIngestJob struct {
	JobBase
	feeds     *store.FeedsRepo
	rss       *rss.Client
	extractor *extractor.Client
	pipeline  *pipeline.Pipeline
	log       zerolog.Logger
}

// RSSIngestJobConfig wires an RSSIngestJob's dependencies.
type RSSIngestJobConfig struct {
	Feeds     *store.FeedsRepo
	RSS       *rss.Client
	Extractor *extractor.Client
	Pipeline  *pipeline.Pipeline
	Log       zerolog.Logger
}

// NewRSSIngestJob constructs an RSSIngestJob.
func NewRSSIngestJob(cfg RSSIngestJobConfig) *RSSIngestJob {
	return &RSSIngestJob{
		JobBase:   NewJobBase("rss_ingest"),
		feeds:     cfg.Feeds,
		rss:       cfg.RSS,
		extractor: cfg.Extractor,
		pipeline:  cfg.Pipeline,
		log:       cfg.Log.With().Str("job", "rss_ingest").Logger(),
	}
}

// Run fetches every enabled feed and pipelines its items.
func (j *RSSIngestJob) Run(ctx context.Context) (Result, error) {
	feeds, err := j.feeds.Enabled()
	if err != nil {
		return Result{}, fmt.Errorf("failed to load enabled feeds: %w", err)
	}

	for _, feed := range feeds {
		if ctx.Err() != nil {
			break
		}
		result, err := j.rss.Fetch(ctx, feed.URL)
		if err != nil {
			j.log.Warn().Err(err).Str("feed", feed.URL).Msg("feed fetch failed")
			continue
		}

		for _, item := range result.Items {
			title := item.Title
			if len(item.Content) < rssShortContentFloor {
				if extracted, err := j.extractor.Extract(item.URL); err == nil {
					item.Content = extracted.Content
					if title == "" {
						title = extracted.Title
					}
				}
			}

			if _, _, err := j.pipeline.Run(ctx, pipeline.Input{
				URL: item.URL, Title: title, JobContext: j.Name(),
			}); err != nil {
				j.log.Warn().Err(err).Str("url", item.URL).Msg("pipeline run failed")
			}
		}

		if err := j.feeds.MarkFetched(feed.ID, time.Now().UTC().Format(time.RFC3339)); err != nil {
			j.log.Warn().Err(err).Str("feed", feed.URL).Msg("failed to mark feed fetched")
		}
	}

	return Result{}, nil
}
