// Package resume reconstructs where an interrupted crawl left off.
package resume

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
)

var (
	chapterEvent = regexp.MustCompile(`Found Chapter (.+?)\. Drilling down`)
	titleEvent   = regexp.MustCompile(`Found (.+?)\. Drilling down`)
)

// Locator recovers the resumption target, preferring the latest structured
// checkpoint and falling back to scanning the run log.
type Locator struct {
	logPath     string
	checkpoints crawler.CheckpointStore
	logger      *zap.Logger
}

// NewLocator builds a Locator. checkpoints may be nil.
func NewLocator(logPath string, checkpoints crawler.CheckpointStore, logger *zap.Logger) *Locator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locator{logPath: logPath, checkpoints: checkpoints, logger: logger}
}

// Recover returns where to resume. A zero target means start fresh.
func (l *Locator) Recover(ctx context.Context) crawler.ResumptionTarget {
	if target, ok := l.fromCheckpoint(ctx); ok {
		return l.announce(target)
	}
	return l.announce(l.fromLog())
}

func (l *Locator) fromCheckpoint(ctx context.Context) (crawler.ResumptionTarget, bool) {
	if l.checkpoints == nil {
		return crawler.ResumptionTarget{}, false
	}
	cp, err := l.checkpoints.LatestCheckpoint(ctx)
	if errors.Is(err, crawler.ErrNoCheckpoint) {
		return crawler.ResumptionTarget{}, false
	}
	if err != nil {
		l.logger.Warn("Could not read checkpoint; falling back to log scan", zap.Error(err))
		return crawler.ResumptionTarget{}, false
	}
	l.logger.Info("Recovered checkpoint",
		zap.String("run_id", cp.RunID),
		zap.String("status", string(cp.Status)),
		zap.Time("updated_at", cp.UpdatedAt),
	)
	return cp.Target(), true
}

func (l *Locator) fromLog() crawler.ResumptionTarget {
	if l.logPath == "" {
		return crawler.ResumptionTarget{}
	}
	files := append(backups(l.logPath), l.logPath)
	var target crawler.ResumptionTarget
	read := false
	for _, name := range files {
		t, err := scanFile(name, target)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			l.logger.Error("Error parsing log file", zap.String("path", name), zap.Error(err))
			return crawler.ResumptionTarget{}
		}
		if !read {
			l.logger.Info("Reading log file to recover state...")
			read = true
		}
		target = t
	}
	if !read {
		l.logger.Info("No log file found. Starting fresh.")
	}
	return target
}

func (l *Locator) announce(target crawler.ResumptionTarget) crawler.ResumptionTarget {
	if target.Title == "" {
		return crawler.ResumptionTarget{}
	}
	l.logger.Info(fmt.Sprintf("RESUMING: Will fast-forward to %s", target.Title))
	if target.Chapter != "" {
		l.logger.Info(fmt.Sprintf("RESUMING: Will fast-forward to Chapter %s", target.Chapter))
	}
	return target
}

// ScanLog replays traversal events from r on top of prior and returns the
// last title entered and the last chapter entered within it.
func ScanLog(r io.Reader, prior crawler.ResumptionTarget) (crawler.ResumptionTarget, error) {
	target := prior
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if m := chapterEvent.FindStringSubmatch(line); m != nil {
			target.Chapter = strings.TrimSpace(m[1])
			continue
		}
		if m := titleEvent.FindStringSubmatch(line); m != nil {
			target = crawler.ResumptionTarget{Title: strings.TrimSpace(m[1])}
		}
	}
	if err := scanner.Err(); err != nil {
		return crawler.ResumptionTarget{}, fmt.Errorf("scan log: %w", err)
	}
	return target, nil
}

func scanFile(name string, prior crawler.ResumptionTarget) (crawler.ResumptionTarget, error) {
	// #nosec G304 -- path comes from operator configuration.
	f, err := os.Open(name)
	if err != nil {
		return crawler.ResumptionTarget{}, err
	}
	defer func() { _ = f.Close() }()

	var r io.Reader = f
	if strings.HasSuffix(name, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			return crawler.ResumptionTarget{}, fmt.Errorf("open %s: %w", name, err)
		}
		defer func() { _ = gz.Close() }()
		r = gz
	}
	return ScanLog(r, prior)
}

// backups lists rotated copies of logPath oldest first. Rotated names embed a
// sortable timestamp: name-2006-01-02T15-04-05.000.ext[.gz].
func backups(logPath string) []string {
	dir := filepath.Dir(logPath)
	base := filepath.Base(logPath)
	ext := filepath.Ext(base)
	prefix := strings.TrimSuffix(base, ext) + "-"

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == base || !strings.HasPrefix(name, prefix) {
			continue
		}
		trimmed := strings.TrimSuffix(name, ".gz")
		if !strings.HasSuffix(trimmed, ext) {
			continue
		}
		out = append(out, filepath.Join(dir, name))
	}
	sort.Strings(out)
	return out
}
