package jobs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"

	"github.com/rs/zerolog"
)

// CongressScrapeParams bounds a manual scrape invocation.
type CongressScrapeParams struct {
	MonthsBack int
	PageSize   int // capped at congressScrapeMaxPageSize
	MaxPages   int
	StartPage  int
	SkipRecent bool
}

const congressScrapeMaxPageSize = 100

// CongressScrapeJob wraps an external scraper binary, streaming its stdout
// line-by-line into the job's logger as it runs (spec §4.5).
type CongressScrapeJob struct {
	JobBase
	binaryPath string
	params     CongressScrapeParams
	log        zerolog.Logger
}

// CongressScrapeJobConfig wires a CongressScrapeJob's dependencies.
type CongressScrapeJobConfig struct {
	BinaryPath string
	Params     CongressScrapeParams
	Log        zerolog.Logger
}

// NewCongressScrapeJob constructs a CongressScrapeJob.
func NewCongressScrapeJob(cfg CongressScrapeJobConfig) *CongressScrapeJob {
	params := cfg.Params
	if params.PageSize > congressScrapeMaxPageSize {
		params.PageSize = congressScrapeMaxPageSize
	}
	return &CongressScrapeJob{
		JobBase:    NewJobBase("congress_scrape"),
		binaryPath: cfg.BinaryPath,
		params:     params,
		log:        cfg.Log.With().Str("job", "congress_scrape").Logger(),
	}
}

// Run invokes the scraper subprocess and relays its stdout to the job log.
func (j *CongressScrapeJob) Run(ctx context.Context) (Result, error) {
	cmd := exec.CommandContext(ctx, j.binaryPath,
		"--months-back", strconv.Itoa(j.params.MonthsBack),
		"--page-size", strconv.Itoa(j.params.PageSize),
		"--max-pages", strconv.Itoa(j.params.MaxPages),
		"--start-page", strconv.Itoa(j.params.StartPage),
		"--skip-recent", strconv.FormatBool(j.params.SkipRecent),
	)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to attach scraper stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return Result{}, fmt.Errorf("failed to attach scraper stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return Result{}, fmt.Errorf("failed to start scraper: %w", err)
	}

	done := make(chan struct{})
	go j.streamLines(stdout, done)
	go j.streamLines(stderr, done)
	<-done
	<-done

	if err := cmd.Wait(); err != nil {
		return Result{}, fmt.Errorf("scraper exited with error: %w", err)
	}
	return Result{}, nil
}

func (j *CongressScrapeJob) streamLines(r io.Reader, done chan<- struct{}) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		j.log.Info().Str("scraper_output", scanner.Text()).Msg("congress scrape")
	}
	done <- struct{}{}
}
