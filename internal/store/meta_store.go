// Package store provides the two connection pools the platform runs on:
// MetaStore (operational metadata, sqlite) and ResearchStore (relational +
// vector search, Postgres/pgvector). Both expose a uniform query/execute
// shape and a scoped transaction primitive, per spec §4.1 (C1).
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/finintel/internal/domain"

	_ "modernc.org/sqlite" // pure Go sqlite driver, no cgo
)

// MetaStore holds operational metadata: job executions, retry queue,
// domain health, settings, feeds, politicians/committees, social metrics.
// It intentionally never holds article content or embeddings — that is
// ResearchStore's job.
type MetaStore struct {
	conn *sql.DB
	path string
	log  zerolog.Logger
}

// MetaStoreConfig configures the MetaStore connection.
type MetaStoreConfig struct {
	Path string
	Log  zerolog.Logger
}

// NewMetaStore opens (creating if needed) the sqlite-backed operational store.
func NewMetaStore(cfg MetaStoreConfig) (*MetaStore, error) {
	path := cfg.Path
	if !strings.HasPrefix(path, "file:") {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve meta db path: %w", err)
		}
		if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create meta db directory: %w", err)
		}
		path = absPath
	}

	connStr := path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(NORMAL)" +
		"&_pragma=foreign_keys(1)" +
		"&_pragma=wal_autocheckpoint(1000)" +
		"&_pragma=cache_size(-64000)" +
		"&_pragma=busy_timeout(10000)"

	conn, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open meta store: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(24 * time.Hour)
	conn.SetConnMaxIdleTime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		return nil, &domain.ConnectivityError{Store: "meta", Cause: err}
	}

	return &MetaStore{conn: conn, path: path, log: cfg.Log.With().Str("store", "meta").Logger()}, nil
}

// Conn exposes the underlying *sql.DB for repositories in this package.
func (m *MetaStore) Conn() *sql.DB { return m.conn }

// Close closes the connection.
func (m *MetaStore) Close() error { return m.conn.Close() }

// Migrate applies the operational schema. Idempotent: duplicate-object
// errors from re-applying CREATE TABLE IF NOT EXISTS style statements are
// swallowed the way the teacher's db.go tolerates re-application.
func (m *MetaStore) Migrate() error {
	tx, err := m.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin schema transaction: %w", err)
	}
	if _, err := tx.Exec(metaSchema); err != nil {
		_ = tx.Rollback()
		if strings.Contains(err.Error(), "already exists") || strings.Contains(err.Error(), "duplicate column") {
			return nil
		}
		return fmt.Errorf("failed to apply meta schema: %w", err)
	}
	return tx.Commit()
}

// WithTransaction runs fn inside a transaction, committing on success and
// rolling back (recovering any panic) on error, mirroring the teacher's
// database.WithTransaction helper.
func (m *MetaStore) WithTransaction(fn func(*sql.Tx) error) (err error) {
	tx, err := m.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			err = fmt.Errorf("panic in transaction: %v", p)
		} else if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				err = fmt.Errorf("transaction failed: %w (rollback also failed: %v)", err, rbErr)
			}
		} else {
			err = tx.Commit()
		}
	}()
	err = fn(tx)
	return err
}

// HealthCheck runs a ping plus integrity check, as the teacher's
// database.DB.HealthCheck does for each of its seven sqlite files.
func (m *MetaStore) HealthCheck(ctx context.Context) error {
	if err := m.conn.PingContext(ctx); err != nil {
		return fmt.Errorf("meta store ping failed: %w", err)
	}
	var result string
	if err := m.conn.QueryRowContext(ctx, "PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("meta store integrity check failed: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("meta store integrity check failed: %s", result)
	}
	return nil
}

// WALCheckpoint forces a WAL checkpoint to bound WAL growth (ground:
// teacher's check_wal_checkpoints job + database.DB.WALCheckpoint). No
// scheduled job calls it; routine checkpoints come from the connection's
// wal_autocheckpoint pragma.
func (m *MetaStore) WALCheckpoint(mode string) error {
	if mode == "" {
		mode = "TRUNCATE"
	}
	if _, err := m.conn.Exec(fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)); err != nil {
		return fmt.Errorf("WAL checkpoint failed: %w", err)
	}
	return nil
}

const metaSchema = `
CREATE TABLE IF NOT EXISTS job_executions (
	id TEXT PRIMARY KEY,
	job_name TEXT NOT NULL,
	target_date TEXT NOT NULL,
	fund_name TEXT,
	status TEXT NOT NULL,
	started_at TEXT NOT NULL,
	completed_at TEXT,
	duration_ms INTEGER,
	error_message TEXT,
	funds_processed TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_job_executions_lookup ON job_executions(job_name, target_date, status);

CREATE TABLE IF NOT EXISTS retry_queue (
	id TEXT PRIMARY KEY,
	job_name TEXT NOT NULL,
	target_date TEXT NOT NULL,
	entity_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	failure_reason TEXT NOT NULL,
	attempts INTEGER NOT NULL DEFAULT 0,
	next_attempt_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS domain_health (
	domain TEXT PRIMARY KEY,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_failure_reason TEXT,
	last_failure_at TEXT,
	last_success_at TEXT,
	auto_blacklisted INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS feeds (
	id TEXT PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	last_fetched_at TEXT
);

CREATE TABLE IF NOT EXISTS politicians (
	id TEXT PRIMARY KEY,
	canonical_name TEXT NOT NULL,
	aliases TEXT NOT NULL DEFAULT '[]',
	party TEXT,
	state TEXT,
	chamber TEXT,
	is_leadership INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS committees (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	target_sectors TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS committee_assignments (
	politician_id TEXT NOT NULL,
	committee_id TEXT NOT NULL,
	title TEXT,
	PRIMARY KEY (politician_id, committee_id)
);

CREATE TABLE IF NOT EXISTS congress_trades (
	id TEXT PRIMARY KEY,
	politician_id TEXT NOT NULL,
	ticker TEXT NOT NULL,
	chamber TEXT NOT NULL,
	party TEXT,
	state TEXT,
	owner TEXT NOT NULL,
	transaction_date TEXT NOT NULL,
	disclosure_date TEXT NOT NULL,
	type TEXT NOT NULL,
	amount TEXT NOT NULL,
	price REAL,
	asset_type TEXT NOT NULL,
	notes TEXT,
	UNIQUE(politician_id, ticker, transaction_date, amount, type, owner)
);
CREATE INDEX IF NOT EXISTS idx_congress_trades_cursor ON congress_trades(transaction_date DESC, id DESC);

CREATE TABLE IF NOT EXISTS trade_analyses (
	trade_id TEXT NOT NULL,
	model_used TEXT NOT NULL,
	analysis_version INTEGER NOT NULL,
	conflict_score REAL NOT NULL,
	confidence_score REAL NOT NULL,
	risk_pattern TEXT NOT NULL,
	reasoning TEXT,
	session_id TEXT,
	analyzed_at TEXT NOT NULL,
	confidence_defaulted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (trade_id, model_used, analysis_version)
);

CREATE TABLE IF NOT EXISTS trade_sessions (
	id TEXT PRIMARY KEY,
	politician_name TEXT NOT NULL,
	start_date TEXT NOT NULL,
	end_date TEXT NOT NULL,
	trade_count INTEGER NOT NULL,
	conflict_score REAL,
	confidence_score REAL,
	ai_summary TEXT,
	risk_pattern TEXT,
	model_used TEXT,
	needs_ai_analysis INTEGER NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS social_metrics (
	ticker TEXT NOT NULL,
	platform TEXT NOT NULL,
	created_at TEXT NOT NULL,
	volume INTEGER NOT NULL DEFAULT 0,
	bull_bear_ratio REAL,
	sentiment_label TEXT,
	sentiment_score REAL,
	raw_posts TEXT,
	analysis_session_id TEXT,
	posts_extracted INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (ticker, platform, created_at)
);

CREATE TABLE IF NOT EXISTS social_posts (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	platform TEXT NOT NULL,
	created_at TEXT NOT NULL,
	body TEXT NOT NULL,
	extracted_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS social_sessions (
	id TEXT PRIMARY KEY,
	ticker TEXT NOT NULL,
	platform TEXT NOT NULL,
	window_start TEXT NOT NULL,
	window_end TEXT NOT NULL,
	analyzed INTEGER NOT NULL DEFAULT 0,
	sentiment_label TEXT,
	sentiment_score REAL
);

CREATE TABLE IF NOT EXISTS social_session_posts (
	session_id TEXT NOT NULL,
	post_id TEXT NOT NULL,
	PRIMARY KEY (session_id, post_id)
);

CREATE TABLE IF NOT EXISTS securities (
	ticker TEXT PRIMARY KEY,
	company_name TEXT NOT NULL DEFAULT '',
	sector TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS owned_tickers (
	ticker TEXT PRIMARY KEY,
	sector TEXT,
	fund_name TEXT
);

CREATE TABLE IF NOT EXISTS etf_whitelist (
	ticker TEXT PRIMARY KEY
);
`
