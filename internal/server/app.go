// Package server assembles the crawler's dependencies and runs crawls.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/config"
	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/rcw-statute-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/rcw-statute-crawler/internal/hash/sha256"
	"github.com/JakeFAU/rcw-statute-crawler/internal/id/uuid"
	"github.com/JakeFAU/rcw-statute-crawler/internal/logging"
	"github.com/JakeFAU/rcw-statute-crawler/internal/metrics"
	"github.com/JakeFAU/rcw-statute-crawler/internal/parser/rcw"
	"github.com/JakeFAU/rcw-statute-crawler/internal/policy/ratelimit"
	gcppublisher "github.com/JakeFAU/rcw-statute-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/rcw-statute-crawler/internal/resume"
	"github.com/JakeFAU/rcw-statute-crawler/internal/telemetry"
	gcsstorage "github.com/JakeFAU/rcw-statute-crawler/internal/storage/gcs"
	localstorage "github.com/JakeFAU/rcw-statute-crawler/internal/storage/local"
	memorystorage "github.com/JakeFAU/rcw-statute-crawler/internal/storage/memory"
	pgstore "github.com/JakeFAU/rcw-statute-crawler/internal/storage/postgres"
	sqlitestore "github.com/JakeFAU/rcw-statute-crawler/internal/storage/sqlite"
)

const (
	startMarker  = "=== Statute crawl started ==="
	finishMarker = "=== Statute crawl finished ==="
)

// statuteStore is what every configured store backend provides.
type statuteStore interface {
	crawler.StatuteStore
	crawler.CheckpointStore
	Count(ctx context.Context) (int64, error)
	Close() error
}

// App contains the application's dependencies.
type App struct {
	cfg           config.Config
	logger        *zap.Logger
	closeLog      func() error
	store         statuteStore
	archive       crawler.BlobStore
	publisher     *gcppublisher.Publisher
	storage       *storage.Client
	fetcher       crawler.Fetcher
	parser        crawler.PageParser
	ids           crawler.IDGenerator
	hasher        crawler.Hasher
	clock         crawler.Clock
	tracer        *sdktrace.TracerProvider
	pauser        crawler.Pauser
	metricsServer *http.Server
}

// RunResult summarizes one crawl.
type RunResult struct {
	RunID    string                   `json:"run_id"`
	Status   crawler.RunStatus        `json:"status"`
	Resumed  crawler.ResumptionTarget `json:"resumed_from"`
	Position crawler.ResumptionTarget `json:"position"`
	Stats    crawler.RunStats         `json:"stats"`
}

// Summary describes what the store currently holds.
type Summary struct {
	Statutes   int64               `json:"statutes"`
	Checkpoint *crawler.Checkpoint `json:"checkpoint,omitempty"`
}

// Build creates the application's dependencies.
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	logger, closeLog, err := logging.NewRunLogger(logging.RunLogConfig{
		Path:        cfg.Logging.File,
		Development: cfg.Logging.Development,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		Compress:    cfg.Logging.Compress,
	})
	if err != nil {
		return nil, fmt.Errorf("logger init failed: %w", err)
	}
	app := &App{
		cfg:      cfg,
		logger:   logger,
		closeLog: closeLog,
		parser:   rcw.New(cfg.Crawler.RootURL),
		ids:      uuid.New(),
		hasher:   sha256.New(),
		clock:    crawler.UTCClock{},
		pauser:   crawler.TimerPauser{},
	}
	app.fetcher = crawler.NewPoliteFetcher(
		collyfetcher.New(collyfetcher.Config{UserAgent: cfg.Crawler.UserAgent, Timeout: cfg.HTTP.Timeout}),
		crawler.PoliteConfig{
			MinDelay:    cfg.Crawler.MinDelay,
			MaxDelay:    cfg.Crawler.MaxDelay,
			MaxAttempts: cfg.Crawler.FetchAttempts,
			BackoffUnit: cfg.Crawler.BackoffUnit,
			Limiter:     ratelimit.New(ratelimit.Config{RPS: cfg.Crawler.RequestsPerSecond}),
		},
		app.pauser,
		logger.Named("fetch"),
	)

	tp, err := telemetry.InitTracerProvider(ctx, telemetry.ServiceName)
	if err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.tracer = tp

	if err := app.setupStore(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupArchive(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	if err := app.setupPublisher(ctx); err != nil {
		app.Close(ctx)
		return nil, err
	}
	app.startMetrics()
	return app, nil
}

// Logger returns the run logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

func (a *App) setupStore(ctx context.Context) error {
	switch a.cfg.Store.Provider {
	case config.StorePostgres:
		store, err := pgstore.NewStatuteStore(ctx, pgstore.Config{
			DSN:             a.cfg.Store.DSN,
			Table:           a.cfg.Store.Table,
			CheckpointTable: a.cfg.Store.CheckpointTable,
			MaxConns:        a.cfg.Store.MaxConns,
		})
		if err != nil {
			return fmt.Errorf("postgres store init failed: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return fmt.Errorf("postgres schema init failed: %w", err)
		}
		a.store = store
	case config.StoreSQLite:
		a.logger.Info(fmt.Sprintf("Connecting to database: %s", a.cfg.Store.Path))
		store, err := sqlitestore.Open(ctx, sqlitestore.Config{
			Path:        a.cfg.Store.Path,
			BusyTimeout: a.cfg.Store.BusyTimeout,
		})
		if err != nil {
			return fmt.Errorf("sqlite store init failed: %w", err)
		}
		a.store = store
	default:
		a.logger.Warn("Using in-memory statute store; nothing will persist across runs")
		a.store = memorystorage.NewStatuteStore()
	}
	a.logger.Info("statute store ready", zap.String("provider", a.cfg.Store.Provider))
	return nil
}

func (a *App) setupArchive(ctx context.Context) error {
	switch a.cfg.Archive.Provider {
	case config.ArchiveGCS:
		client, err := storage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("gcs client init failed: %w", err)
		}
		a.storage = client
		blobs, err := gcsstorage.New(client, gcsstorage.Config{Bucket: a.cfg.Archive.Bucket})
		if err != nil {
			return fmt.Errorf("gcs archive init failed: %w", err)
		}
		a.archive = blobs
		a.logger.Info("archiving statute pages to GCS", zap.String("bucket", a.cfg.Archive.Bucket))
	case config.ArchiveLocal:
		blobs, err := localstorage.New(localstorage.Config{BaseDir: a.cfg.Archive.BaseDir})
		if err != nil {
			return fmt.Errorf("local archive init failed: %w", err)
		}
		a.archive = blobs
		a.logger.Info("archiving statute pages locally", zap.String("path", a.cfg.Archive.BaseDir))
	case config.ArchiveMemory:
		a.archive = memorystorage.NewBlobStore()
	default:
		a.logger.Debug("statute page archive disabled")
	}
	return nil
}

func (a *App) setupPublisher(ctx context.Context) error {
	if !a.cfg.Notify.Enabled {
		return nil
	}
	pub, err := gcppublisher.Dial(ctx, a.cfg.Notify.ProjectID, a.cfg.Notify.Topic)
	if err != nil {
		return err
	}
	a.publisher = pub
	a.logger.Info(
		"Pub/Sub publisher initialized",
		zap.String("project", a.cfg.Notify.ProjectID),
		zap.String("topic", a.cfg.Notify.Topic),
	)
	return nil
}

func (a *App) startMetrics() {
	if a.cfg.Metrics.Addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	a.metricsServer = &http.Server{
		Addr:              a.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		a.logger.Info("metrics server started", zap.String("addr", a.cfg.Metrics.Addr))
		if err := a.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server error", zap.Error(err))
		}
	}()
}

// Locator returns the resume locator over the configured log and store.
func (a *App) Locator() *resume.Locator {
	return resume.NewLocator(a.cfg.Logging.File, a.store, a.logger.Named("resume"))
}

// Crawl recovers the resume point, walks the hierarchy and records the final
// checkpoint. Cancellation yields an interrupted run, not an error.
func (a *App) Crawl(ctx context.Context) (result RunResult, err error) {
	a.logger.Info(startMarker)
	defer a.logger.Info(finishMarker)

	result.RunID, err = a.ids.NewID()
	if err != nil {
		return result, err
	}
	ctx, span := telemetry.StartRun(ctx, result.RunID)
	defer span.End()
	result.Resumed = a.Locator().Recover(ctx)

	opts := []crawler.WalkerOption{
		crawler.WithCheckpoints(a.store),
		crawler.WithHasher(a.hasher),
		crawler.WithClock(a.clock),
	}
	if a.archive != nil {
		opts = append(opts, crawler.WithArchive(a.archive))
	}
	if a.publisher != nil {
		opts = append(opts, crawler.WithPublisher(a.publisher))
	}
	store := crawler.NewLockRetryStore(a.store, a.cfg.Store.LockAttempts, a.cfg.Store.LockBackoff, a.pauser, a.logger.Named("store"))
	walker := crawler.NewWalker(crawler.WalkerConfig{
		RootURL:       a.cfg.Crawler.RootURL,
		RunID:         result.RunID,
		ArchivePrefix: a.cfg.Archive.Prefix,
		Topic:         a.cfg.Notify.Topic,
	}, a.fetcher, a.parser, store, a.logger.Named("walker"), opts...)

	result.Status = a.walk(ctx, walker, result.Resumed)
	result.Position = walker.Position()
	result.Stats = walker.Stats()

	// A run that entered no title keeps the position it was asked to resume from.
	pos := result.Position
	if pos.IsZero() {
		pos = result.Resumed
	}
	cp := crawler.Checkpoint{
		RunID:     result.RunID,
		Title:     pos.Title,
		Chapter:   pos.Chapter,
		Status:    result.Status,
		UpdatedAt: a.clock.Now(),
	}
	if saveErr := a.store.SaveCheckpoint(context.WithoutCancel(ctx), cp); saveErr != nil {
		a.logger.Error("Final checkpoint write failed", zap.Error(saveErr))
	}
	metrics.ObserveRun(string(result.Status))
	a.logger.Info("Crawl summary",
		zap.String("run_id", result.RunID),
		zap.String("status", string(result.Status)),
		zap.Any("stats", result.Stats),
	)
	return result, nil
}

func (a *App) walk(ctx context.Context, walker *crawler.Walker, target crawler.ResumptionTarget) (status crawler.RunStatus) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("CRITICAL: Unhandled exception", zap.Any("panic", r), zap.Stack("stack"))
			status = crawler.RunFailed
		}
	}()
	err := walker.Run(ctx, target)
	switch {
	case err == nil && ctx.Err() == nil:
		if stats := walker.Stats(); stats.Titles == 0 && stats.SubtreesFailed > 0 {
			a.logger.Error("Crawl failed before any title was reached")
			return crawler.RunFailed
		}
		return crawler.RunCompleted
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) || ctx.Err() != nil:
		a.logger.Warn("Spider stopped by user.")
		return crawler.RunInterrupted
	default:
		a.logger.Error("Crawl failed", zap.Error(err))
		return crawler.RunFailed
	}
}

// Summary reports the stored statute count and the latest checkpoint.
func (a *App) Summary(ctx context.Context) (Summary, error) {
	n, err := a.store.Count(ctx)
	if err != nil {
		return Summary{}, err
	}
	out := Summary{Statutes: n}
	cp, err := a.store.LatestCheckpoint(ctx)
	switch {
	case err == nil:
		out.Checkpoint = &cp
	case !errors.Is(err, crawler.ErrNoCheckpoint):
		return Summary{}, err
	}
	return out, nil
}

// Close releases every resource Build acquired.
func (a *App) Close(ctx context.Context) {
	if a.metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if err := a.metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics server shutdown error", zap.Error(err))
		}
		cancel()
	}
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
	if a.store != nil {
		a.logger.Info("Closing database connection.")
		if err := a.store.Close(); err != nil {
			a.logger.Warn("statute store close failed", zap.Error(err))
		}
	}
	if a.tracer != nil {
		if err := a.tracer.Shutdown(context.WithoutCancel(ctx)); err != nil {
			a.logger.Warn("tracer shutdown failed", zap.Error(err))
		}
	}
	if a.closeLog != nil {
		_ = a.closeLog()
	}
}

// ResumePoint reports where the next crawl would start.
func (a *App) ResumePoint(ctx context.Context) crawler.ResumptionTarget {
	return a.Locator().Recover(ctx)
}
