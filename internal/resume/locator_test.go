package resume

import (
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
	"github.com/JakeFAU/rcw-statute-crawler/internal/storage/memory"
)

const sampleLog = `2024-03-01T10:00:00.000Z	INFO	=== Statute crawl started ===
2024-03-01T10:00:01.000Z	INFO	Found Title 1. Drilling down...	{"url": "https://app.leg.wa.gov/RCW/default.aspx?Cite=1"}
2024-03-01T10:00:02.000Z	INFO	Found Chapter 1.04. Drilling down...
2024-03-01T10:00:03.000Z	INFO	SUCCESS: Saved 1.04.010
2024-03-01T10:00:04.000Z	INFO	Found Title 3. Drilling down...
2024-03-01T10:00:05.000Z	INFO	Found Chapter 3.02. Drilling down...
2024-03-01T10:00:06.000Z	INFO	Found Chapter 3.04. Drilling down...
2024-03-01T10:00:07.000Z	WARN	Fetch attempt 1 failed for https://app.leg.wa.gov/RCW/default.aspx?cite=3.04.010
`

func TestScanLogLastTitleAndChapter(t *testing.T) {
	target, err := ScanLog(strings.NewReader(sampleLog), crawler.ResumptionTarget{})
	require.NoError(t, err)
	assert.Equal(t, crawler.ResumptionTarget{Title: "Title 3", Chapter: "3.04"}, target)
}

func TestScanLogTitleResetsChapter(t *testing.T) {
	log := sampleLog + "2024-03-01T10:00:08.000Z\tINFO\tFound Title 4. Drilling down...\n"
	target, err := ScanLog(strings.NewReader(log), crawler.ResumptionTarget{})
	require.NoError(t, err)
	assert.Equal(t, crawler.ResumptionTarget{Title: "Title 4"}, target)
}

func TestScanLogWithoutEventsKeepsPrior(t *testing.T) {
	prior := crawler.ResumptionTarget{Title: "Title 2", Chapter: "2.08"}
	target, err := ScanLog(strings.NewReader("nothing relevant\n"), prior)
	require.NoError(t, err)
	assert.Equal(t, prior, target)
}

func TestRecoverMissingLogStartsFresh(t *testing.T) {
	loc := NewLocator(filepath.Join(t.TempDir(), "missing.log"), nil, nil)
	assert.True(t, loc.Recover(context.Background()).IsZero())
}

func TestRecoverFromLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	loc := NewLocator(path, nil, nil)
	assert.Equal(t, crawler.ResumptionTarget{Title: "Title 3", Chapter: "3.04"}, loc.Recover(context.Background()))
}

func TestRecoverReadsRotatedBackupsOldestFirst(t *testing.T) {
	dir := t.TempDir()
	writeGzip(t, filepath.Join(dir, "crawl-2024-03-01T09-00-00.000.log.gz"),
		"x\tINFO\tFound Title 1. Drilling down...\n")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crawl-2024-03-01T10-00-00.000.log"),
		[]byte("x\tINFO\tFound Title 2. Drilling down...\nx\tINFO\tFound Chapter 2.08. Drilling down...\n"), 0o600))
	active := filepath.Join(dir, "crawl.log")
	require.NoError(t, os.WriteFile(active, []byte("x\tINFO\tSUCCESS: Saved 2.08.010\n"), 0o600))

	loc := NewLocator(active, nil, nil)
	assert.Equal(t, crawler.ResumptionTarget{Title: "Title 2", Chapter: "2.08"}, loc.Recover(context.Background()))
}

func TestRecoverIgnoresChapterWithoutTitle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte("x\tINFO\tFound Chapter 9.01. Drilling down...\n"), 0o600))

	assert.True(t, NewLocator(path, nil, nil).Recover(context.Background()).IsZero())
}

func TestRecoverPrefersCheckpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	store := memory.NewStatuteStore()
	require.NoError(t, store.SaveCheckpoint(context.Background(), crawler.Checkpoint{
		RunID: "run-1", Title: "Title 5", Chapter: "5.60", Status: crawler.RunInterrupted, UpdatedAt: time.Now(),
	}))

	loc := NewLocator(path, store, nil)
	assert.Equal(t, crawler.ResumptionTarget{Title: "Title 5", Chapter: "5.60"}, loc.Recover(context.Background()))
}

func TestRecoverCompletedCheckpointMeansFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	store := memory.NewStatuteStore()
	require.NoError(t, store.SaveCheckpoint(context.Background(), crawler.Checkpoint{
		RunID: "run-1", Title: "Title 90", Status: crawler.RunCompleted, UpdatedAt: time.Now(),
	}))

	assert.True(t, NewLocator(path, store, nil).Recover(context.Background()).IsZero())
}

func TestRecoverFallsBackWhenCheckpointReadFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "crawl.log")
	require.NoError(t, os.WriteFile(path, []byte(sampleLog), 0o600))

	loc := NewLocator(path, failingCheckpoints{}, nil)
	assert.Equal(t, crawler.ResumptionTarget{Title: "Title 3", Chapter: "3.04"}, loc.Recover(context.Background()))
}

type failingCheckpoints struct{}

func (failingCheckpoints) SaveCheckpoint(context.Context, crawler.Checkpoint) error {
	return errors.New("unavailable")
}

func (failingCheckpoints) LatestCheckpoint(context.Context) (crawler.Checkpoint, error) {
	return crawler.Checkpoint{}, errors.New("unavailable")
}

func writeGzip(t *testing.T, path, content string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	_, err = gz.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}
