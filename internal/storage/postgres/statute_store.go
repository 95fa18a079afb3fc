// Package postgres provides Postgres-backed statute and checkpoint persistence.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// SQLSTATE codes treated as transient lock contention.
var lockCodes = map[string]struct{}{
	"55P03": {}, // lock_not_available
	"40P01": {}, // deadlock_detected
	"40001": {}, // serialization_failure
}

// Config controls the Postgres connection pool and table names.
type Config struct {
	DSN             string
	Table           string
	CheckpointTable string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Close()
}

// StatuteStore persists statutes keyed by citation plus run checkpoints.
type StatuteStore struct {
	pool        pool
	table       string
	checkpoints string
}

// NewStatuteStore connects to Postgres using cfg.
func NewStatuteStore(ctx context.Context, cfg Config) (*StatuteStore, error) {
	if cfg.DSN == "" {
		return nil, errors.New("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewStatuteStoreWithPool(p, cfg.Table, cfg.CheckpointTable)
	if err != nil {
		p.Close()
		return nil, err
	}
	return store, nil
}

// NewStatuteStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewStatuteStoreWithPool(p pool, table, checkpointTable string) (*StatuteStore, error) {
	if p == nil {
		return nil, errors.New("pool is required")
	}
	if table == "" {
		table = "statutes"
	}
	if checkpointTable == "" {
		checkpointTable = "crawl_checkpoints"
	}
	for _, name := range []string{table, checkpointTable} {
		if !validTableName.MatchString(name) {
			return nil, fmt.Errorf("invalid table name %q", name)
		}
	}
	return &StatuteStore{pool: p, table: table, checkpoints: checkpointTable}, nil
}

// Close releases the underlying pool resources.
func (s *StatuteStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// EnsureSchema creates the statute and checkpoint tables when missing.
func (s *StatuteStore) EnsureSchema(ctx context.Context) error {
	statutes := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	citation    TEXT PRIMARY KEY,
	title_num   TEXT NOT NULL,
	chapter_num TEXT NOT NULL,
	section_num TEXT NOT NULL,
	url         TEXT NOT NULL,
	full_text   TEXT NOT NULL,
	crawled_at  TIMESTAMPTZ NOT NULL DEFAULT now()
)`, s.table)
	if _, err := s.pool.Exec(ctx, statutes); err != nil {
		return fmt.Errorf("create %s: %w", s.table, err)
	}
	checkpoints := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
	run_id        TEXT PRIMARY KEY,
	title_label   TEXT NOT NULL DEFAULT '',
	chapter_label TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`, s.checkpoints)
	if _, err := s.pool.Exec(ctx, checkpoints); err != nil {
		return fmt.Errorf("create %s: %w", s.checkpoints, err)
	}
	return nil
}

// Exists reports whether a statute with citation is stored.
func (s *StatuteStore) Exists(ctx context.Context, citation string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE citation = $1)`, s.table)
	var found bool
	if err := s.pool.QueryRow(ctx, query, citation).Scan(&found); err != nil {
		return false, classify(fmt.Errorf("lookup %s: %w", citation, err))
	}
	return found, nil
}

// Upsert inserts the statute or replaces every field of the existing row.
func (s *StatuteStore) Upsert(ctx context.Context, statute crawler.Statute) error {
	if statute.Citation == "" {
		return errors.New("citation is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	citation,
	title_num,
	chapter_num,
	section_num,
	url,
	full_text,
	crawled_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (citation) DO UPDATE SET
	title_num = EXCLUDED.title_num,
	chapter_num = EXCLUDED.chapter_num,
	section_num = EXCLUDED.section_num,
	url = EXCLUDED.url,
	full_text = EXCLUDED.full_text,
	crawled_at = EXCLUDED.crawled_at`, s.table)

	_, err := s.pool.Exec(ctx, query,
		statute.Citation,
		statute.TitleLabel,
		statute.ChapterLabel,
		statute.SectionLabel,
		statute.SourceURL,
		statute.BodyText,
		statute.CrawledAt,
	)
	if err != nil {
		return classify(fmt.Errorf("upsert statute: %w", err))
	}
	return nil
}

// Get loads a single statute.
func (s *StatuteStore) Get(ctx context.Context, citation string) (crawler.Statute, error) {
	query := fmt.Sprintf(`
SELECT citation, title_num, chapter_num, section_num, url, full_text, crawled_at
FROM %s WHERE citation = $1`, s.table)
	var st crawler.Statute
	err := s.pool.QueryRow(ctx, query, citation).Scan(
		&st.Citation,
		&st.TitleLabel,
		&st.ChapterLabel,
		&st.SectionLabel,
		&st.SourceURL,
		&st.BodyText,
		&st.CrawledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Statute{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Statute{}, fmt.Errorf("get statute: %w", err)
	}
	return st, nil
}

// Count returns the number of stored statutes.
func (s *StatuteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count statutes: %w", err)
	}
	return n, nil
}

// SaveCheckpoint records the run's current position.
func (s *StatuteStore) SaveCheckpoint(ctx context.Context, cp crawler.Checkpoint) error {
	if cp.RunID == "" {
		return errors.New("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, title_label, chapter_label, status, updated_at)
VALUES ($1,$2,$3,$4,$5)
ON CONFLICT (run_id) DO UPDATE SET
	title_label = EXCLUDED.title_label,
	chapter_label = EXCLUDED.chapter_label,
	status = EXCLUDED.status,
	updated_at = EXCLUDED.updated_at`, s.checkpoints)
	if _, err := s.pool.Exec(ctx, query, cp.RunID, cp.Title, cp.Chapter, string(cp.Status), cp.UpdatedAt); err != nil {
		return classify(fmt.Errorf("save checkpoint: %w", err))
	}
	return nil
}

// LatestCheckpoint returns the most recently updated checkpoint.
func (s *StatuteStore) LatestCheckpoint(ctx context.Context) (crawler.Checkpoint, error) {
	query := fmt.Sprintf(`
SELECT run_id, title_label, chapter_label, status, updated_at
FROM %s ORDER BY updated_at DESC LIMIT 1`, s.checkpoints)
	var (
		cp     crawler.Checkpoint
		status string
	)
	err := s.pool.QueryRow(ctx, query).Scan(&cp.RunID, &cp.Title, &cp.Chapter, &status, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return crawler.Checkpoint{}, crawler.ErrNoCheckpoint
	}
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("latest checkpoint: %w", err)
	}
	cp.Status = crawler.RunStatus(status)
	return cp, nil
}

// classify tags lock contention errors with crawler.ErrStoreLocked.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := lockCodes[pgErr.Code]; ok {
			return fmt.Errorf("%w: %w", crawler.ErrStoreLocked, err)
		}
	}
	return err
}
