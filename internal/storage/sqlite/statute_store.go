// Package sqlite provides a single-file statute store for local crawls.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
)

// The statutes table keeps the column layout of existing wa_caselaw.db files.
const schema = `
CREATE TABLE IF NOT EXISTS statutes (
	citation    TEXT PRIMARY KEY,
	title_num   TEXT,
	chapter_num TEXT,
	section_num TEXT,
	url         TEXT,
	full_text   TEXT,
	crawled_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS crawl_checkpoints (
	run_id        TEXT PRIMARY KEY,
	title_label   TEXT NOT NULL DEFAULT '',
	chapter_label TEXT NOT NULL DEFAULT '',
	status        TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);`

// Config controls where the database file lives.
type Config struct {
	Path string
	// BusyTimeout is how long the driver itself waits on a locked database.
	BusyTimeout time.Duration
}

// StatuteStore persists statutes and checkpoints in SQLite.
type StatuteStore struct {
	db *sql.DB
}

// Open creates the database file and schema when missing.
func Open(ctx context.Context, cfg Config) (*StatuteStore, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("store.path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 30 * time.Second
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=%d", cfg.Path, busy.Milliseconds())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := NewStatuteStoreWithDB(db)
	if err := store.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewStatuteStoreWithDB wraps an open handle (primarily for testing).
func NewStatuteStoreWithDB(db *sql.DB) *StatuteStore {
	return &StatuteStore{db: db}
}

// Close closes the database handle.
func (s *StatuteStore) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the tables when missing.
func (s *StatuteStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

// Exists reports whether a statute with citation is stored.
func (s *StatuteStore) Exists(ctx context.Context, citation string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM statutes WHERE citation = ?`, citation).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(fmt.Errorf("lookup %s: %w", citation, err))
	}
	return true, nil
}

// Upsert inserts the statute or replaces the row with the same citation.
func (s *StatuteStore) Upsert(ctx context.Context, statute crawler.Statute) error {
	if statute.Citation == "" {
		return errors.New("citation is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO statutes (
	citation, title_num, chapter_num, section_num, url, full_text, crawled_at
) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		statute.Citation,
		statute.TitleLabel,
		statute.ChapterLabel,
		statute.SectionLabel,
		statute.SourceURL,
		statute.BodyText,
		formatTime(statute.CrawledAt),
	)
	if err != nil {
		return classify(fmt.Errorf("upsert statute: %w", err))
	}
	return nil
}

// Get loads a single statute.
func (s *StatuteStore) Get(ctx context.Context, citation string) (crawler.Statute, error) {
	var (
		st                           crawler.Statute
		title, chapter, section, url sql.NullString
		body                         sql.NullString
		crawled                      any
	)
	err := s.db.QueryRowContext(ctx, `
SELECT citation, title_num, chapter_num, section_num, url, full_text, crawled_at
FROM statutes WHERE citation = ?`, citation).Scan(
		&st.Citation, &title, &chapter, &section, &url, &body, &crawled,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Statute{}, crawler.ErrNotFound
	}
	if err != nil {
		return crawler.Statute{}, fmt.Errorf("get statute: %w", err)
	}
	st.TitleLabel = title.String
	st.ChapterLabel = chapter.String
	st.SectionLabel = section.String
	st.SourceURL = url.String
	st.BodyText = body.String
	if st.CrawledAt, err = storedTime(crawled); err != nil {
		return crawler.Statute{}, err
	}
	return st, nil
}

// Count returns the number of stored statutes.
func (s *StatuteStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM statutes`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count statutes: %w", err)
	}
	return n, nil
}

// SaveCheckpoint records the run's current position.
func (s *StatuteStore) SaveCheckpoint(ctx context.Context, cp crawler.Checkpoint) error {
	if cp.RunID == "" {
		return errors.New("run id is required")
	}
	_, err := s.db.ExecContext(ctx, `
INSERT OR REPLACE INTO crawl_checkpoints (run_id, title_label, chapter_label, status, updated_at)
VALUES (?, ?, ?, ?, ?)`, cp.RunID, cp.Title, cp.Chapter, string(cp.Status), formatTime(cp.UpdatedAt))
	if err != nil {
		return classify(fmt.Errorf("save checkpoint: %w", err))
	}
	return nil
}

// LatestCheckpoint returns the most recently updated checkpoint.
func (s *StatuteStore) LatestCheckpoint(ctx context.Context) (crawler.Checkpoint, error) {
	var (
		cp      crawler.Checkpoint
		status  string
		updated string
	)
	err := s.db.QueryRowContext(ctx, `
SELECT run_id, title_label, chapter_label, status, updated_at
FROM crawl_checkpoints ORDER BY updated_at DESC LIMIT 1`).Scan(&cp.RunID, &cp.Title, &cp.Chapter, &status, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return crawler.Checkpoint{}, crawler.ErrNoCheckpoint
	}
	if err != nil {
		return crawler.Checkpoint{}, fmt.Errorf("latest checkpoint: %w", err)
	}
	cp.Status = crawler.RunStatus(status)
	if cp.UpdatedAt, err = parseTime(updated); err != nil {
		return crawler.Checkpoint{}, err
	}
	return cp, nil
}

// Timestamps are stored as fixed-width UTC text so they sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// sqliteDefaultLayout is what CURRENT_TIMESTAMP produces.
const sqliteDefaultLayout = "2006-01-02 15:04:05"

func parseTime(s string) (time.Time, error) {
	for _, layout := range []string{timeLayout, time.RFC3339Nano, sqliteDefaultLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q", s)
}

// storedTime converts a TIMESTAMP column value. The driver already decodes
// values it recognizes into time.Time; anything else arrives as text.
func storedTime(v any) (time.Time, error) {
	switch t := v.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return t.UTC(), nil
	case string:
		return parseTime(t)
	case []byte:
		return parseTime(string(t))
	default:
		return time.Time{}, fmt.Errorf("unexpected timestamp type %T", v)
	}
}

// classify tags SQLite BUSY and LOCKED errors with crawler.ErrStoreLocked.
func classify(err error) error {
	if isBusy(err) {
		return fmt.Errorf("%w: %w", crawler.ErrStoreLocked, err)
	}
	return err
}

func isBusy(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked
}
