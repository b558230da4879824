// Package di wires every layer built across the other packages into one
// running process: config, both stores, every repo, every external client,
// the pipeline/analyzer, every job, and finally the scheduler. One
// container, built once at startup (spec §4, ground: teacher's main.go
// wiring sequence, generalized into its own package since this repo's
// dependency graph is far wider than the teacher's).
package di

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/aianalyzer"
	"github.com/aristath/finintel/internal/clients/antibotproxy"
	"github.com/aristath/finintel/internal/clients/archive"
	"github.com/aristath/finintel/internal/clients/extractor"
	"github.com/aristath/finintel/internal/clients/financerest"
	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/clients/reddit"
	"github.com/aristath/finintel/internal/clients/rss"
	"github.com/aristath/finintel/internal/clients/search"
	"github.com/aristath/finintel/internal/clients/stocktwits"
	"github.com/aristath/finintel/internal/config"
	"github.com/aristath/finintel/internal/domainhealth"
	"github.com/aristath/finintel/internal/jobs"
	"github.com/aristath/finintel/internal/pipeline"
	"github.com/aristath/finintel/internal/reliability"
	"github.com/aristath/finintel/internal/scheduler"
	"github.com/aristath/finintel/internal/store"
)

// Container holds every wired component a running process needs: the HTTP
// server (server.New, wired by cmd/server/main.go) consumes Scheduler; the
// rest exist to let tests and the backup service reach in
// without re-wiring.
type Container struct {
	Config *config.Config
	Log    zerolog.Logger

	Meta     *store.MetaStore
	Research *store.ResearchStore

	Settings     *store.SettingsStore
	Articles     *store.ArticleRepo
	Relationships *store.RelationshipRepo
	Congress     *store.CongressRepo
	Politicians  *store.PoliticiansRepo
	Securities   *store.SecuritiesRepo
	Feeds        *store.FeedsRepo
	DomainHealth *store.DomainHealthRepo
	OwnedTickers *store.OwnedTickersRepo
	Retry        *store.RetryRepo
	Social       *store.SocialRepo
	Jobs         *store.JobsRepo

	LLM         *llm.Client
	Search      *search.Client
	Archive     *archive.Client
	Extractor   *extractor.Client
	AntiBot     *antibotproxy.Client
	FinanceREST *financerest.Client
	Stocktwits  *stocktwits.Client
	Reddit      *reddit.Client
	RSS         *rss.Client

	Health   *domainhealth.Tracker
	Pipeline *pipeline.Pipeline
	Analyzer *aianalyzer.Analyzer

	Scheduler *scheduler.Scheduler

	R2Backup *reliability.R2BackupService // nil unless R2 credentials are configured
}

// Build constructs every component and registers every job on the
// scheduler, but does not start it — callers decide when via
// scheduler.StartScheduler (cmd/server/main.go).
func Build(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	meta, err := store.NewMetaStore(store.MetaStoreConfig{Path: cfg.MetaDBPath, Log: log})
	if err != nil {
		return nil, fmt.Errorf("failed to open meta store: %w", err)
	}
	if err := meta.Migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate meta store: %w", err)
	}

	research, err := store.NewResearchStore(store.ResearchStoreConfig{DSN: cfg.ResearchDSN, Log: log})
	if err != nil {
		return nil, fmt.Errorf("failed to open research store: %w", err)
	}
	if err := research.Migrate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to migrate research store: %w", err)
	}

	c := &Container{
		Config:   cfg,
		Log:      log,
		Meta:     meta,
		Research: research,
	}

	c.Settings = store.NewSettingsStore(meta)
	if err := cfg.UpdateFromSettings(c.Settings); err != nil {
		c.Log.Warn().Err(err).Msg("failed to apply settings-db overrides, continuing on env defaults")
	}

	c.Articles = store.NewArticleRepo(research)
	c.Relationships = store.NewRelationshipRepo(research)
	c.Congress = store.NewCongressRepo(meta)
	c.Politicians = store.NewPoliticiansRepo(meta)
	c.Securities = store.NewSecuritiesRepo(meta)
	c.Feeds = store.NewFeedsRepo(meta)
	c.DomainHealth = store.NewDomainHealthRepo(meta)
	c.OwnedTickers = store.NewOwnedTickersRepo(meta)
	c.Retry = store.NewRetryRepo(meta)
	c.Social = store.NewSocialRepo(meta)
	c.Jobs = store.NewJobsRepo(meta)

	c.LLM = llm.New(llm.Config{BaseURL: cfg.LLMBaseURL, DefaultModel: cfg.LLMDefaultModel, Log: log})
	c.Search = search.New(search.Config{BaseURLs: []string{cfg.SearchBaseURL}, Log: log})
	c.Archive = archive.New(archive.Config{BaseURL: cfg.ArchiveBaseURL, Log: log})
	c.Extractor = extractor.New(extractor.Config{Log: log})
	c.AntiBot = antibotproxy.New(antibotproxy.Config{ProxyURL: cfg.AntiBotProxyURL, Log: log})
	c.FinanceREST = financerest.New(financerest.Config{BaseURL: cfg.FinanceAPIBaseURL, APIKey: cfg.FinanceAPIKey, Log: log})
	c.Stocktwits = stocktwits.New(stocktwits.Config{Proxy: c.AntiBot, Log: log})
	c.Reddit = reddit.New(reddit.Config{Log: log})
	c.RSS = rss.New(rss.Config{Log: log})

	c.Health = domainhealth.New(c.DomainHealth, cfg.AutoBlacklistThreshold, log)

	c.Pipeline = pipeline.New(pipeline.Config{
		Articles:      c.Articles,
		Relationships: c.Relationships,
		OwnedTickers:  c.OwnedTickers,
		Health:        c.Health,
		Extractor:     c.Extractor,
		Archive:       c.Archive,
		LLM:           c.LLM,
		Log:           log,
	})

	etfWhitelist, err := c.OwnedTickers.ETFWhitelist()
	if err != nil {
		return nil, fmt.Errorf("failed to load etf whitelist: %w", err)
	}
	c.Analyzer = aianalyzer.New(aianalyzer.Config{
		LLM:          c.LLM,
		Politicians:  c.Politicians,
		ETFWhitelist: etfWhitelist,
		Model:        cfg.LLMDefaultModel,
		Log:          log,
	})

	if cfg.R2AccountID != "" {
		r2Client, err := reliability.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2BucketName, log)
		if err != nil {
			c.Log.Warn().Err(err).Msg("failed to initialize R2 client, backup job disabled")
		} else {
			backupService := reliability.NewBackupService(cfg.MetaDBPath, filepath.Join(cfg.RootDir, "research"), filepath.Join(cfg.RootDir, "data", "backup-staging"), log)
			c.R2Backup = reliability.NewR2BackupService(r2Client, backupService, filepath.Join(cfg.RootDir, "data"), log)
		}
	}

	heartbeat, err := scheduler.NewHeartbeatLock(cfg.RootDir, log)
	if err != nil {
		return nil, fmt.Errorf("failed to set up scheduler heartbeat/lock: %w", err)
	}
	c.Scheduler = scheduler.New(scheduler.Config{
		Jobs:      c.Jobs,
		Retry:     c.Retry,
		Heartbeat: heartbeat,
		Log:       log,
	})

	if err := c.registerJobs(); err != nil {
		return nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	return c, nil
}

// registrationSpec ties a job to its trigger and calculation-class flag,
// read top-to-bottom against the cadence spec §4.5 lists per job.
type registrationSpec struct {
	job              jobs.Job
	trigger          scheduler.Trigger
	calculationClass bool
}

// registerJobs adds every job to the scheduler. Not started here: the
// caller runs scheduler.StartScheduler once, after Build returns (the
// health-check job is registered by StartScheduler itself, spec §4.7 step 7).
func (c *Container) registerJobs() error {
	rssIngest := jobs.NewRSSIngestJob(jobs.RSSIngestJobConfig{
		Feeds: c.Feeds, RSS: c.RSS, Extractor: c.Extractor, Pipeline: c.Pipeline, Log: c.Log,
	})
	marketNews := jobs.NewMarketNewsJob(jobs.MarketNewsJobConfig{
		Search: c.Search, Pipeline: c.Pipeline, Log: c.Log,
	})
	tickerResearch := jobs.NewTickerResearchJob(jobs.TickerResearchJobConfig{
		OwnedTickers: c.OwnedTickers, Search: c.Search, Pipeline: c.Pipeline, Log: c.Log,
	})
	archiveRetry := jobs.NewArchiveRetryJob(jobs.ArchiveRetryJobConfig{
		Articles: c.Articles, Archive: c.Archive, Proxy: c.AntiBot, Extractor: c.Extractor, LLM: c.LLM, Log: c.Log,
	})
	researchReports := jobs.NewResearchReportsJob(jobs.ResearchReportsJobConfig{
		RootDir: c.Config.RootDir, Articles: c.Articles, LLM: c.LLM, Log: c.Log,
	})

	congressFetch := jobs.NewCongressFetchJob(jobs.CongressFetchJobConfig{
		FinanceREST: c.FinanceREST, Politicians: c.Politicians, Securities: c.Securities,
		Congress: c.Congress, Analyzer: c.Analyzer, ModelUsed: c.Config.LLMDefaultModel, Log: c.Log,
	})
	congressScrape := jobs.NewCongressScrapeJob(jobs.CongressScrapeJobConfig{
		BinaryPath: c.Config.CongressScraperBinaryPath,
		Params:     jobs.CongressScrapeParams{MonthsBack: 3, PageSize: 100, MaxPages: 20},
		Log:        c.Log,
	})
	congressAnalysis := jobs.NewCongressAnalysisJob(jobs.CongressAnalysisJobConfig{
		Congress: c.Congress, Politicians: c.Politicians, Securities: c.Securities,
		Analyzer: c.Analyzer, ModelUsed: c.Config.LLMDefaultModel, Log: c.Log,
	})
	congressRescore := jobs.NewCongressSessionsRescoreJob(jobs.CongressSessionsRescoreJobConfig{
		Congress: c.Congress, Politicians: c.Politicians, Securities: c.Securities,
		Analyzer: c.Analyzer, ModelUsed: c.Config.LLMDefaultModel, Log: c.Log,
	})

	socialCollect := jobs.NewSocialCollectJob(jobs.SocialCollectJobConfig{
		OwnedTickers: c.OwnedTickers, Stocktwits: c.Stocktwits, Reddit: c.Reddit, LLM: c.LLM, Social: c.Social, Log: c.Log,
	})
	socialExtraction := jobs.NewSocialPostExtractionJob(jobs.SocialPostExtractionJobConfig{Social: c.Social, Log: c.Log})
	socialSessioning := jobs.NewSocialSessioningJob(jobs.SocialSessioningJobConfig{Social: c.Social, Log: c.Log})
	socialAnalysis := jobs.NewSocialAnalysisJob(jobs.SocialAnalysisJobConfig{Social: c.Social, LLM: c.LLM, Log: c.Log})
	socialRetention := jobs.NewSocialRetentionJob(jobs.SocialRetentionJobConfig{Social: c.Social, Log: c.Log})

	specs := []registrationSpec{
		{rssIngest, scheduler.Trigger{Interval: 15 * time.Minute}, false},
		{marketNews, scheduler.Trigger{Interval: 30 * time.Minute}, false},
		{tickerResearch, scheduler.Trigger{CronSpec: "0 0 8 * * *"}, false},
		{archiveRetry, scheduler.Trigger{Interval: 20 * time.Minute}, true},
		{researchReports, scheduler.Trigger{CronSpec: "0 0 7 * * *"}, false},

		{congressFetch, scheduler.Trigger{Interval: 1 * time.Hour}, true},
		{congressScrape, scheduler.Trigger{CronSpec: "0 0 3 * * 0"}, false},
		{congressAnalysis, scheduler.Trigger{Interval: 2 * time.Hour}, true},
		{congressRescore, scheduler.Trigger{CronSpec: "0 0 4 * * *"}, false},

		{socialCollect, scheduler.Trigger{Interval: 10 * time.Minute}, true},
		{socialExtraction, scheduler.Trigger{Interval: 10 * time.Minute}, false},
		{socialSessioning, scheduler.Trigger{Interval: 30 * time.Minute}, false},
		{socialAnalysis, scheduler.Trigger{Interval: 30 * time.Minute}, true},
		{socialRetention, scheduler.Trigger{CronSpec: "0 0 2 * * *"}, false},
	}

	if c.R2Backup != nil {
		backup := jobs.NewBackupJob(jobs.BackupJobConfig{
			DB: c.Meta.Conn(), R2Backup: c.R2Backup, RetentionDays: c.Config.BackupRetentionDays, Log: c.Log,
		})
		specs = append(specs, registrationSpec{backup, scheduler.Trigger{CronSpec: "0 0 1 * * *"}, false})
	}

	for _, s := range specs {
		if err := c.Scheduler.RegisterJob(s.job, s.trigger, s.calculationClass); err != nil {
			return fmt.Errorf("failed to register job %q: %w", s.job.Name(), err)
		}
	}
	return nil
}

// HealthCheckJob builds the health-check job handed to StartScheduler's
// StartOptions; it is not in registerJobs because the scheduler registers
// it itself at a fixed 5-minute cadence (spec §4.7 step 7).
func (c *Container) HealthCheckJob() jobs.Job {
	return jobs.NewHealthCheckJob(jobs.HealthCheckJobConfig{
		LLM: c.LLM, Search: c.Search, Archive: c.Archive, AntiBot: c.AntiBot,
		FinanceREST: c.FinanceREST, Stocktwits: c.Stocktwits, Log: c.Log,
	})
}

// StartupBackfill runs once, in the background, right after the scheduler
// reports running — a single RunNow per job that has no recorded execution,
// so a freshly provisioned deployment doesn't wait a full cycle for its first
// data (spec §4.7 step 7). A job with any previous execution, however old, is
// not run.
func (c *Container) StartupBackfill() {
	for _, name := range c.Scheduler.ListJobNames() {
		last, err := c.Jobs.LastExecution(name)
		if err != nil {
			c.Log.Warn().Err(err).Str("job", name).Msg("startup backfill: failed to check last execution")
			continue
		}
		if last != nil {
			continue
		}
		if _, err := c.Scheduler.RunNow(name); err != nil {
			c.Log.Warn().Err(err).Str("job", name).Msg("startup backfill: failed to run job")
		}
	}
}

// Close releases both store connections. Call on graceful shutdown, after
// scheduler.ShutdownScheduler.
func (c *Container) Close() error {
	if err := c.Meta.Close(); err != nil {
		return fmt.Errorf("failed to close meta store: %w", err)
	}
	c.Research.Close()
	return nil
}

// HealthCheck reports whether both stores are reachable. The HTTP server's
// /health endpoint does not call it.
func (c *Container) HealthCheck(ctx context.Context) error {
	if err := c.Meta.HealthCheck(ctx); err != nil {
		return fmt.Errorf("meta store unhealthy: %w", err)
	}
	if err := c.Research.HealthCheck(ctx); err != nil {
		return fmt.Errorf("research store unhealthy: %w", err)
	}
	return nil
}
