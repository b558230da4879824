package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/aristath/finintel/internal/domain"
)

// SocialRepo persists social-sentiment metrics, raw extracted posts, and
// the sessioning windows used to batch them for AI analysis (spec §4.8, C6).
type SocialRepo struct {
	db *sql.DB
}

// NewSocialRepo constructs a SocialRepo over the MetaStore connection.
func NewSocialRepo(ms *MetaStore) *SocialRepo { return &SocialRepo{db: ms.Conn()} }

// UpsertMetric writes one (ticker, platform, window) sentiment observation.
func (r *SocialRepo) UpsertMetric(m *domain.SocialMetric) error {
	var bullBear sql.NullFloat64
	if m.BullBearRatio != nil {
		bullBear = sql.NullFloat64{Float64: *m.BullBearRatio, Valid: true}
	}
	_, err := r.db.Exec(`
		INSERT INTO social_metrics (
			ticker, platform, created_at, volume, bull_bear_ratio, sentiment_label,
			sentiment_score, raw_posts, analysis_session_id
		) VALUES (?,?,?,?,?,?,?,?,?)
		ON CONFLICT(ticker, platform, created_at) DO UPDATE SET
			volume = excluded.volume,
			bull_bear_ratio = excluded.bull_bear_ratio,
			sentiment_label = excluded.sentiment_label,
			sentiment_score = excluded.sentiment_score,
			raw_posts = excluded.raw_posts,
			analysis_session_id = excluded.analysis_session_id`,
		m.Ticker, string(m.Platform), m.CreatedAt.UTC().Format(time.RFC3339), m.Volume, bullBear,
		m.SentimentLabel, m.SentimentScore, m.RawPosts, m.AnalysisSessionID)
	if err != nil {
		return fmt.Errorf("failed to upsert social metric: %w", err)
	}
	return nil
}

// PendingPostExtraction returns metric rows whose raw_posts blob has not yet
// been exploded into social_posts rows (spec §4.5 Post Extraction job).
func (r *SocialRepo) PendingPostExtraction(limit int) ([]*domain.SocialMetric, error) {
	rows, err := r.db.Query(`
		SELECT ticker, platform, created_at, raw_posts
		FROM social_metrics
		WHERE posts_extracted = 0 AND raw_posts IS NOT NULL
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics pending post extraction: %w", err)
	}
	defer rows.Close()

	var out []*domain.SocialMetric
	for rows.Next() {
		var m domain.SocialMetric
		var createdAt string
		var platform string
		var raw sql.NullString
		if err := rows.Scan(&m.Ticker, &platform, &createdAt, &raw); err != nil {
			return nil, err
		}
		m.Platform = domain.SocialPlatform(platform)
		m.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse metric created_at: %w", err)
		}
		if raw.Valid {
			m.RawPosts = []byte(raw.String)
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// MarkPostsExtracted flags a metric row's raw_posts as already exploded into
// social_posts, so the extraction job does not reprocess it.
func (r *SocialRepo) MarkPostsExtracted(ticker string, platform domain.SocialPlatform, createdAt time.Time) error {
	_, err := r.db.Exec(`
		UPDATE social_metrics SET posts_extracted = 1
		WHERE ticker = ? AND platform = ? AND created_at = ?`,
		ticker, string(platform), createdAt.UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to mark posts extracted: %w", err)
	}
	return nil
}

// TickerPlatformPair identifies one (ticker, platform) combination.
type TickerPlatformPair struct {
	Ticker   string
	Platform domain.SocialPlatform
}

// TickerPlatformsWithUngroupedPosts returns the distinct (ticker, platform)
// pairs that currently have at least one extracted post not yet assigned to
// a sessioning window (spec §4.5 Sessioning job).
func (r *SocialRepo) TickerPlatformsWithUngroupedPosts() ([]TickerPlatformPair, error) {
	rows, err := r.db.Query(`
		SELECT DISTINCT sp.ticker, sp.platform
		FROM social_posts sp
		WHERE NOT EXISTS (
			SELECT 1 FROM social_session_posts ssp WHERE ssp.post_id = sp.id
		)`)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticker/platform pairs: %w", err)
	}
	defer rows.Close()

	var out []TickerPlatformPair
	for rows.Next() {
		var p TickerPlatformPair
		var platform string
		if err := rows.Scan(&p.Ticker, &platform); err != nil {
			return nil, err
		}
		p.Platform = domain.SocialPlatform(platform)
		out = append(out, p)
	}
	return out, rows.Err()
}

// UngroupedPosts returns extracted posts for (ticker, platform) not yet
// assigned to a sessioning window, ordered oldest-first (spec §4.5 Sessioning job).
func (r *SocialRepo) UngroupedPosts(ticker string, platform domain.SocialPlatform) ([]SocialPost, error) {
	rows, err := r.db.Query(`
		SELECT sp.id, sp.ticker, sp.platform, sp.created_at, sp.body
		FROM social_posts sp
		WHERE sp.ticker = ? AND sp.platform = ?
		AND NOT EXISTS (
			SELECT 1 FROM social_session_posts ssp WHERE ssp.post_id = sp.id
		)
		ORDER BY sp.created_at ASC`, ticker, string(platform))
	if err != nil {
		return nil, fmt.Errorf("failed to query ungrouped posts: %w", err)
	}
	defer rows.Close()

	var out []SocialPost
	for rows.Next() {
		var p SocialPost
		var createdAt, platformStr string
		if err := rows.Scan(&p.ID, &p.Ticker, &platformStr, &createdAt, &p.Body); err != nil {
			return nil, err
		}
		p.Platform = domain.SocialPlatform(platformStr)
		p.CreatedAt, err = time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse post created_at: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// SocialPost is one raw extracted post, read back for sessioning.
type SocialPost struct {
	ID        string
	Ticker    string
	Platform  domain.SocialPlatform
	CreatedAt time.Time
	Body      string
}

// CreateSession records a new sessioning window spanning the given posts.
func (r *SocialRepo) CreateSession(ticker string, platform domain.SocialPlatform, start, end time.Time, postIDs []string) (string, error) {
	id := uuid.NewString()
	tx, err := r.db.Begin()
	if err != nil {
		return "", fmt.Errorf("failed to begin session transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO social_sessions (id, ticker, platform, window_start, window_end, analyzed)
		VALUES (?,?,?,?,?,0)`,
		id, ticker, string(platform), start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return "", fmt.Errorf("failed to insert session: %w", err)
	}

	for _, postID := range postIDs {
		if _, err := tx.Exec(`INSERT INTO social_session_posts (session_id, post_id) VALUES (?,?)`, id, postID); err != nil {
			return "", fmt.Errorf("failed to link session post: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit session transaction: %w", err)
	}
	return id, nil
}

// PostBodiesForSession returns the body text of every post grouped into a session.
func (r *SocialRepo) PostBodiesForSession(sessionID string) ([]string, error) {
	rows, err := r.db.Query(`
		SELECT sp.body FROM social_posts sp
		JOIN social_session_posts ssp ON ssp.post_id = sp.id
		WHERE ssp.session_id = ?`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session post bodies: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		out = append(out, body)
	}
	return out, rows.Err()
}

// DeleteMetricsOlderThan removes entire social_metrics rows past the
// hard-delete retention window (spec §4.5 retention job, 60-day default).
func (r *SocialRepo) DeleteMetricsOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	res, err := r.db.Exec(`DELETE FROM social_metrics WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete aged social metrics: %w", err)
	}
	return res.RowsAffected()
}

// DeleteSessionAnalysesOlderThan removes analyzed sessioning windows (and
// their post links) past the retention window (spec §4.5 retention job,
// 90-day default).
func (r *SocialRepo) DeleteSessionAnalysesOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin retention transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		DELETE FROM social_session_posts WHERE session_id IN (
			SELECT id FROM social_sessions WHERE analyzed = 1 AND window_end < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to delete aged session post links: %w", err)
	}

	res, err := tx.Exec(`DELETE FROM social_sessions WHERE analyzed = 1 AND window_end < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete aged sessions: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit retention transaction: %w", err)
	}
	return affected, nil
}

// PurgeRawPostsOlderThan clears the raw_posts payload (not the aggregate
// scores) for social_metrics rows older than the retention window, freeing
// storage while keeping the historical sentiment trend intact (spec §4.8
// retention job, 14-day default).
func (r *SocialRepo) PurgeRawPostsOlderThan(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention).UTC().Format(time.RFC3339)
	res, err := r.db.Exec(`
		UPDATE social_metrics SET raw_posts = NULL
		WHERE created_at < ? AND raw_posts IS NOT NULL`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge raw posts: %w", err)
	}
	return res.RowsAffected()
}

// InsertPost records one extracted social post, deduplicated by the caller
// before insert (platform-specific rate limiting applies upstream in the
// fetch client, not here).
func (r *SocialRepo) InsertPost(ticker string, platform domain.SocialPlatform, createdAt time.Time, body string) error {
	_, err := r.db.Exec(`
		INSERT INTO social_posts (id, ticker, platform, created_at, body, extracted_at)
		VALUES (?,?,?,?,?,?)`,
		uuid.NewString(), ticker, string(platform), createdAt.UTC().Format(time.RFC3339), body,
		time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert social post: %w", err)
	}
	return nil
}

// OpenSessionsNeedingAnalysis returns unanalyzed sessioning windows ready
// for the next social-analysis job run.
func (r *SocialRepo) OpenSessionsNeedingAnalysis(limit int) ([]socialSessionRow, error) {
	rows, err := r.db.Query(`
		SELECT id, ticker, platform, window_start, window_end, analyzed
		FROM social_sessions WHERE analyzed = 0 LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query open social sessions: %w", err)
	}
	defer rows.Close()

	var out []socialSessionRow
	for rows.Next() {
		var s socialSessionRow
		var analyzed int
		if err := rows.Scan(&s.ID, &s.Ticker, &s.Platform, &s.WindowStart, &s.WindowEnd, &analyzed); err != nil {
			return nil, err
		}
		s.Analyzed = analyzed != 0
		out = append(out, s)
	}
	return out, rows.Err()
}

// MarkSessionAnalyzed flips a session's analyzed flag once the AI pass completes.
func (r *SocialRepo) MarkSessionAnalyzed(id string) error {
	_, err := r.db.Exec(`UPDATE social_sessions SET analyzed = 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to mark session analyzed: %w", err)
	}
	return nil
}

// SetSessionSentiment records the crowd-sentiment verdict for a session,
// distinct from MarkSessionAnalyzed so a session that failed scoring can
// still be marked analyzed without a misleading label/score pair.
func (r *SocialRepo) SetSessionSentiment(id, label string, score float64) error {
	_, err := r.db.Exec(`UPDATE social_sessions SET sentiment_label = ?, sentiment_score = ? WHERE id = ?`,
		label, score, id)
	if err != nil {
		return fmt.Errorf("failed to set session sentiment: %w", err)
	}
	return nil
}

// socialSessionRow is the sessioning window shape read back for analysis.
type socialSessionRow struct {
	ID          string
	Ticker      string
	Platform    string
	WindowStart string
	WindowEnd   string
	Analyzed    bool
}
