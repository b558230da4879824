package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/finintel/internal/clients/antibotproxy"
	"github.com/aristath/finintel/internal/clients/archive"
	"github.com/aristath/finintel/internal/clients/financerest"
	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/clients/search"
	"github.com/aristath/finintel/internal/clients/stocktwits"
)

// HealthCheckJob polls every external client's Health check once per run,
// the scheduler's own 5-minute registration rather than a job file's own
// trigger choice (spec §4.7 step 7, §4.2 Health aggregate).
type HealthCheckJob struct {
	JobBase
	llm         *llm.Client
	search      *search.Client
	archive     *archive.Client
	antibot     *antibotproxy.Client
	financerest *financerest.Client
	stocktwits  *stocktwits.Client
	log         zerolog.Logger
}

// HealthCheckJobConfig wires a HealthCheckJob's dependencies.
type HealthCheckJobConfig struct {
	LLM         *llm.Client
	Search      *search.Client
	Archive     *archive.Client
	AntiBot     *antibotproxy.Client
	FinanceREST *financerest.Client
	Stocktwits  *stocktwits.Client
	Log         zerolog.Logger
}

// NewHealthCheckJob constructs a HealthCheckJob.
func NewHealthCheckJob(cfg HealthCheckJobConfig) *HealthCheckJob {
	return &HealthCheckJob{
		JobBase:     NewJobBase("heartbeat"),
		llm:         cfg.LLM,
		search:      cfg.Search,
		archive:     cfg.Archive,
		antibot:     cfg.AntiBot,
		financerest: cfg.FinanceREST,
		stocktwits:  cfg.Stocktwits,
		log:         cfg.Log.With().Str("job", "heartbeat").Logger(),
	}
}

// Run polls all six external clients and logs any that report unhealthy.
// Named "heartbeat" so the scheduler's worker-pool load accounting excludes
// it from the saturation count (spec §4.7).
func (j *HealthCheckJob) Run(ctx context.Context) (Result, error) {
	checks := map[string]bool{
		"llm":         j.llm.Health(ctx),
		"search":      j.search.Health(),
		"archive":     j.archive.Health(),
		"antibot":     j.antibot.Health(),
		"financerest": j.financerest.Health(),
		"stocktwits":  j.stocktwits.Health(),
	}
	for name, healthy := range checks {
		if !healthy {
			j.log.Warn().Str("client", name).Msg("client reported unhealthy")
		}
	}

	j.logResourceUsage()
	return Result{}, nil
}

// logResourceUsage reports host CPU and memory utilization alongside the
// client checks, the same signal the teacher's system handlers surface on
// its dashboard, here folded into the heartbeat log line instead.
func (j *HealthCheckJob) logResourceUsage() {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to read cpu usage")
		return
	}
	memStat, err := mem.VirtualMemory()
	if err != nil {
		j.log.Warn().Err(err).Msg("failed to read memory usage")
		return
	}

	event := j.log.Info()
	if len(cpuPercent) > 0 {
		event = event.Float64("cpu_percent", cpuPercent[0])
	}
	event.Float64("mem_percent", memStat.UsedPercent).Msg("host resource usage")
}
