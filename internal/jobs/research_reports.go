package jobs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/clients/llm"
	"github.com/aristath/finintel/internal/domain"
	"github.com/aristath/finintel/internal/store"
)

// researchReportRelevance is the fixed relevance score assigned to every
// persisted research report, regardless of ticker/sector overlap (spec §4.5).
const researchReportRelevance = 0.9

var datePrefixPattern = regexp.MustCompile(`^\d{8}_`)

// ResearchReportsJob walks a directory of PDF research reports, extracting
// and AI-enriching any not already ingested.
type ResearchReportsJob struct {
	JobBase
	rootDir  string
	articles *store.ArticleRepo
	llm      *llm.Client
	log      zerolog.Logger
}

// ResearchReportsJobConfig wires a ResearchReportsJob's dependencies.
type ResearchReportsJobConfig struct {
	RootDir  string
	Articles *store.ArticleRepo
	LLM      *llm.Client
	Log      zerolog.Logger
}

// NewResearchReportsJob constructs a ResearchReportsJob.
func NewResearchReportsJob(cfg ResearchReportsJobConfig) *ResearchReportsJob {
	return &ResearchReportsJob{
		JobBase:  NewJobBase("research_reports"),
		rootDir:  cfg.RootDir,
		articles: cfg.Articles,
		llm:      cfg.LLM,
		log:      cfg.Log.With().Str("job", "research_reports").Logger(),
	}
}

// Run walks rootDir, ingesting every not-yet-seen PDF.
func (j *ResearchReportsJob) Run(ctx context.Context) (Result, error) {
	if j.rootDir == "" {
		return Result{}, nil
	}

	var paths []string
	err := filepath.Walk(j.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && strings.EqualFold(filepath.Ext(path), ".pdf") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("failed to walk research reports directory: %w", err)
	}

	for _, path := range paths {
		if ctx.Err() != nil {
			break
		}
		if err := j.processOne(ctx, path); err != nil {
			j.log.Warn().Err(err).Str("path", path).Msg("failed to process research report")
		}
	}
	return Result{}, nil
}

func (j *ResearchReportsJob) processOne(ctx context.Context, path string) error {
	relPath, err := filepath.Rel(j.rootDir, path)
	if err != nil {
		relPath = path
	}

	exists, err := j.articles.ExistsByURL(ctx, relPath)
	if err != nil {
		return fmt.Errorf("failed to check existing report: %w", err)
	}
	if exists {
		return nil
	}

	base := filepath.Base(path)
	if !datePrefixPattern.MatchString(base) {
		renamed := filepath.Join(filepath.Dir(path), time.Now().UTC().Format("20060102")+"_"+base)
		if err := os.Rename(path, renamed); err != nil {
			return fmt.Errorf("failed to rename undated report: %w", err)
		}
		path = renamed
		relPath, _ = filepath.Rel(j.rootDir, path)
	}

	content, err := extractPDFText(path)
	if err != nil {
		return fmt.Errorf("failed to extract PDF text: %w", err)
	}

	summary, err := j.llm.Summarize(ctx, content)
	if err != nil {
		return fmt.Errorf("failed to summarize report: %w", err)
	}

	var embedding []float32
	embedInput := content
	if len(embedInput) > 6000 {
		embedInput = embedInput[:6000]
	}
	if vec, err := j.llm.Embed(ctx, embedInput); err == nil {
		embedding = vec
	}

	article := &domain.Article{
		Title:          base,
		URL:            relPath,
		Content:        content,
		Summary:        summary.Summary,
		Source:         "research_reports",
		PublishedAt:    time.Now(),
		ArticleType:    domain.ArticleResearchReport,
		Tickers:        summary.Tickers,
		Sector:         firstNonEmptyStr(summary.Sectors),
		RelevanceScore: researchReportRelevance,
		Embedding:      embedding,
		Claims:         summary.Claims,
		FactCheck:      summary.FactCheck,
		Conclusion:     summary.Conclusion,
		Sentiment:      summary.Sentiment,
		SentimentScore: summary.SentimentScore,
		LogicCheck:     summary.LogicCheck,
		Fund:           reportFundName(path),
	}

	_, err = j.articles.SaveArticle(ctx, article)
	return err
}

// reportFundName derives the report's fund scope from its parent folder
// name: a "market" folder has no fund scope; anything else is treated as
// that fund's name (spec §4.5: "determines report type from the folder name").
func reportFundName(path string) *string {
	folder := filepath.Base(filepath.Dir(path))
	if strings.EqualFold(folder, "market") {
		return nil
	}
	return &folder
}

// extractPDFText reads every page's plain text via ledongthuc/pdf.
func extractPDFText(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	textReader, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}

	var sb strings.Builder
	buf := make([]byte, 4096)
	for {
		n, err := textReader.Read(buf)
		if n > 0 {
			sb.Write(buf[:n])
		}
		if err != nil {
			break
		}
	}
	return sb.String(), nil
}

func firstNonEmptyStr(values []string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
