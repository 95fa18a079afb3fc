package crawler

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/metrics"
)

// WalkerConfig controls the traversal root and optional side outputs.
type WalkerConfig struct {
	RootURL       string
	RunID         string
	ArchivePrefix string
	Topic         string
}

// Walker drives the depth-first titles → chapters → sections traversal.
type Walker struct {
	cfg         WalkerConfig
	fetcher     Fetcher
	parser      PageParser
	store       StatuteStore
	checkpoints CheckpointStore
	archive     BlobStore
	publisher   Publisher
	hasher      Hasher
	clock       Clock
	logger      *zap.Logger
	stats       RunStats
	pos         ResumptionTarget
}

// WalkerOption customizes optional Walker collaborators.
type WalkerOption func(*Walker)

// WithCheckpoints records the traversal position as structured checkpoints.
func WithCheckpoints(store CheckpointStore) WalkerOption {
	return func(w *Walker) { w.checkpoints = store }
}

// WithArchive writes the raw HTML of every stored statute to blobs.
func WithArchive(blobs BlobStore) WalkerOption {
	return func(w *Walker) { w.archive = blobs }
}

// WithPublisher announces every stored statute on cfg.Topic.
func WithPublisher(p Publisher) WalkerOption {
	return func(w *Walker) { w.publisher = p }
}

// WithHasher adds a body_sha256 fingerprint to published events.
func WithHasher(h Hasher) WalkerOption {
	return func(w *Walker) { w.hasher = h }
}

// WithClock overrides the time source used for crawled_at.
func WithClock(c Clock) WalkerOption {
	return func(w *Walker) { w.clock = c }
}

// NewWalker constructs a Walker.
func NewWalker(
	cfg WalkerConfig,
	fetcher Fetcher,
	parser PageParser,
	store StatuteStore,
	logger *zap.Logger,
	opts ...WalkerOption,
) *Walker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Walker{
		cfg:     cfg,
		fetcher: fetcher,
		parser:  parser,
		store:   store,
		clock:   UTCClock{},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Stats returns the counters accumulated by the last Run.
func (w *Walker) Stats() RunStats {
	return w.stats
}

// Position returns the last title and chapter the walker entered.
func (w *Walker) Position() ResumptionTarget {
	return w.pos
}

// Run traverses the hierarchy starting from the root listing, honoring target.
// Fetch failures and parse misses abandon only the affected subtree; the only
// error returned is context cancellation.
func (w *Walker) Run(ctx context.Context, target ResumptionTarget) error {
	w.stats = RunStats{}
	w.pos = ResumptionTarget{}
	w.logger.Info("Step 1: Fetching Main Page...")
	page, ok := w.fetchListing(ctx, w.cfg.RootURL)
	if !ok {
		return ctx.Err()
	}
	titles, err := w.parser.Links(KindTitleIndex, page)
	if err != nil {
		w.subtreeFailed("Could not parse title index", w.cfg.RootURL, err)
		return nil
	}

	w.logger.Info("Step 2: Parsing Titles...")
	if target.Title != "" && !containsLabel(titles, target.Title) {
		w.logger.Warn(fmt.Sprintf("Resume title %s not found on index; crawling all titles.", target.Title))
		target = ResumptionTarget{}
	}
	for _, title := range titles {
		if err := ctx.Err(); err != nil {
			return err
		}
		resuming := target.Title != ""
		if resuming {
			if title.Label != target.Title {
				continue
			}
			w.logger.Info(fmt.Sprintf("Resumed at %s.", title.Label))
		}
		w.logger.Info(fmt.Sprintf("Found %s. Drilling down...", title.Label), zap.String("url", title.URL))
		w.stats.Titles++
		w.checkpoint(ctx, title.Label, "")
		target = w.crawlChapters(ctx, title, target)
		if resuming {
			// Chapters are scoped to their title, so both labels retire here.
			target = ResumptionTarget{}
		}
	}
	return ctx.Err()
}

func (w *Walker) crawlChapters(ctx context.Context, title Link, target ResumptionTarget) ResumptionTarget {
	page, ok := w.fetchListing(ctx, title.URL)
	if !ok {
		return target
	}
	chapters, err := w.parser.Links(KindChapterIndex, page)
	if err != nil {
		w.subtreeFailed("Could not parse chapter index for "+title.Label, title.URL, err)
		return target
	}
	if target.Chapter != "" && !containsLabel(chapters, target.Chapter) {
		w.logger.Warn(fmt.Sprintf("Resume chapter %s not found in %s; crawling all chapters.", target.Chapter, title.Label))
		target = ResumptionTarget{}
	}
	for _, chapter := range chapters {
		if ctx.Err() != nil {
			return target
		}
		if target.Chapter != "" {
			if chapter.Label != target.Chapter {
				continue
			}
			w.logger.Info(fmt.Sprintf("Resumed at Chapter %s.", chapter.Label))
			target = ResumptionTarget{}
		}
		w.logger.Info(fmt.Sprintf("Found Chapter %s. Drilling down...", chapter.Label), zap.String("url", chapter.URL))
		w.stats.Chapters++
		w.checkpoint(ctx, title.Label, chapter.Label)
		w.crawlSections(ctx, title.Label, chapter)
	}
	return target
}

func (w *Walker) crawlSections(ctx context.Context, titleLabel string, chapter Link) {
	page, ok := w.fetchListing(ctx, chapter.URL)
	if !ok {
		return
	}
	links, err := w.parser.Links(KindSectionIndex, page)
	if err != nil {
		w.subtreeFailed("Could not parse section index for chapter "+chapter.Label, chapter.URL, err)
		return
	}
	for _, link := range links {
		if ctx.Err() != nil {
			return
		}
		citation, err := CitationFromURL(link.URL)
		if err != nil {
			w.logger.Debug("Skipping link without citation", zap.String("url", link.URL), zap.Error(err))
			continue
		}
		if w.stored(ctx, citation) {
			w.stats.StatutesSkipped++
			metrics.ObserveStatute(metrics.StatuteSkipped)
			continue
		}
		w.extractStatute(ctx, titleLabel, chapter.Label, citation, link.URL)
	}
}

func (w *Walker) stored(ctx context.Context, citation string) bool {
	exists, err := w.store.Exists(ctx, citation)
	if err != nil {
		w.logger.Warn("Existence check failed; fetching anyway", zap.String("citation", citation), zap.Error(err))
		return false
	}
	return exists
}

func (w *Walker) extractStatute(ctx context.Context, titleLabel, chapterLabel, citation, url string) {
	page, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		w.leafFailed(ctx)
		return
	}
	text, err := w.parser.Text(page)
	if err != nil {
		w.logger.Error(fmt.Sprintf("Could not extract statute text on final page for %s.", citation), zap.Error(err))
		w.leafFailed(ctx)
		return
	}
	statute := Statute{
		Citation:     citation,
		TitleLabel:   titleLabel,
		ChapterLabel: chapterLabel,
		SectionLabel: citation,
		SourceURL:    url,
		BodyText:     text,
		CrawledAt:    w.clock.Now(),
	}
	if err := w.store.Upsert(ctx, statute); err != nil {
		w.logger.Error(fmt.Sprintf("Database error saving %s", citation), zap.Error(err))
		w.leafFailed(ctx)
		return
	}
	w.stats.StatutesSaved++
	metrics.ObserveStatute(metrics.StatuteSaved)
	w.logger.Info(fmt.Sprintf("SUCCESS: Saved %s", citation), zap.Int("chars", len(text)))
	w.sideOutputs(ctx, statute, page)
}

func (w *Walker) leafFailed(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	w.stats.StatutesFailed++
	metrics.ObserveStatute(metrics.StatuteFailed)
}

// sideOutputs archives and announces a stored statute; failures never stop the crawl.
func (w *Walker) sideOutputs(ctx context.Context, statute Statute, page Page) {
	uri := ""
	if w.archive != nil {
		var err error
		uri, err = w.archive.PutObject(ctx, w.archivePath(statute.Citation), "text/html; charset=utf-8", bytes.NewReader(page.Body))
		if err != nil {
			w.logger.Warn("Archive write failed", zap.String("citation", statute.Citation), zap.Error(err))
		}
	}
	if w.publisher == nil || w.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"run_id":     w.cfg.RunID,
		"citation":   statute.Citation,
		"title":      statute.TitleLabel,
		"chapter":    statute.ChapterLabel,
		"url":        statute.SourceURL,
		"blob_uri":   uri,
		"crawled_at": statute.CrawledAt.Format(time.RFC3339),
	}
	if w.hasher != nil {
		if digest, err := w.hasher.Hash([]byte(statute.BodyText)); err == nil {
			payload["body_sha256"] = digest
		}
	}
	if _, err := w.publisher.Publish(ctx, w.cfg.Topic, payload); err != nil {
		w.logger.Warn("Publish failed", zap.String("citation", statute.Citation), zap.Error(err))
	}
}

func (w *Walker) archivePath(citation string) string {
	return path.Join(w.cfg.ArchivePrefix, SafeName(citation)+".html")
}

func (w *Walker) fetchListing(ctx context.Context, url string) (Page, bool) {
	page, err := w.fetcher.Fetch(ctx, url)
	if err != nil {
		if !errors.Is(err, context.Canceled) && ctx.Err() == nil {
			w.stats.SubtreesFailed++
		}
		return Page{}, false
	}
	return page, true
}

func (w *Walker) subtreeFailed(msg, url string, err error) {
	w.stats.SubtreesFailed++
	w.logger.Error(msg, zap.String("url", url), zap.Error(err))
}

func (w *Walker) checkpoint(ctx context.Context, title, chapter string) {
	w.pos = ResumptionTarget{Title: title, Chapter: chapter}
	if w.checkpoints == nil || w.cfg.RunID == "" {
		return
	}
	cp := Checkpoint{
		RunID:     w.cfg.RunID,
		Title:     title,
		Chapter:   chapter,
		Status:    RunRunning,
		UpdatedAt: w.clock.Now(),
	}
	if err := w.checkpoints.SaveCheckpoint(ctx, cp); err != nil {
		w.logger.Warn("Checkpoint write failed", zap.String("title", title), zap.String("chapter", chapter), zap.Error(err))
	}
}

func containsLabel(links []Link, label string) bool {
	for _, l := range links {
		if l.Label == label {
			return true
		}
	}
	return false
}

// UTCClock is the wall clock in UTC.
type UTCClock struct{}

// Now returns the current time in UTC.
func (UTCClock) Now() time.Time { return time.Now().UTC() }
