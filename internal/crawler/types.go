// Package crawler defines core types shared across subsystems.
package crawler

import (
	"errors"
	"time"
)

// Sentinel errors shared by the walker, fetchers, parsers and stores.
var (
	// ErrFetchFailed signals that a URL could not be retrieved after all attempts.
	ErrFetchFailed = errors.New("fetch failed")
	// ErrStructure signals that a page lacks the container the parser expects.
	ErrStructure = errors.New("expected page structure not found")
	// ErrStoreLocked marks storage errors caused by external lock contention.
	ErrStoreLocked = errors.New("store resource locked")
	// ErrNoCheckpoint is returned when no run checkpoint has been recorded yet.
	ErrNoCheckpoint = errors.New("no checkpoint recorded")
	// ErrNotFound is returned when a statute is not present in the store.
	ErrNotFound = errors.New("statute not found")
)

// Statute is the only persisted entity. Citation is the primary key.
type Statute struct {
	Citation     string    `json:"citation"`
	TitleLabel   string    `json:"title_label"`
	ChapterLabel string    `json:"chapter_label"`
	SectionLabel string    `json:"section_label"`
	SourceURL    string    `json:"source_url"`
	BodyText     string    `json:"body_text"`
	CrawledAt    time.Time `json:"crawled_at"`
}

// PageKind tells the parser which listing level a page belongs to.
type PageKind string

// Listing levels of the code hierarchy.
const (
	KindTitleIndex   PageKind = "title_index"
	KindChapterIndex PageKind = "chapter_index"
	KindSectionIndex PageKind = "section_index"
)

// Page is the raw result of a successful fetch.
type Page struct {
	URL        string
	StatusCode int
	Body       []byte
}

// Link is a labeled hyperlink extracted from a listing page, in document order.
type Link struct {
	Label string
	URL   string
}

// ResumptionTarget marks where a previous run left off. An empty field is unset.
// Values are passed and returned by the walker, never shared.
type ResumptionTarget struct {
	Title   string `json:"title,omitempty"`
	Chapter string `json:"chapter,omitempty"`
}

// IsZero reports whether no resumption is pending.
func (t ResumptionTarget) IsZero() bool {
	return t.Title == "" && t.Chapter == ""
}

// RunStatus is the lifecycle state recorded in checkpoints.
type RunStatus string

// Checkpoint statuses.
const (
	RunRunning     RunStatus = "running"
	RunCompleted   RunStatus = "completed"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// Checkpoint is the structured record of the traversal position of a run.
type Checkpoint struct {
	RunID     string    `json:"run_id"`
	Title     string    `json:"title"`
	Chapter   string    `json:"chapter"`
	Status    RunStatus `json:"status"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Target converts the checkpoint into the position to resume from.
// A completed run yields no resumption.
func (c Checkpoint) Target() ResumptionTarget {
	if c.Status == RunCompleted {
		return ResumptionTarget{}
	}
	return ResumptionTarget{Title: c.Title, Chapter: c.Chapter}
}

// RunStats tracks what a traversal did.
type RunStats struct {
	Titles          int `json:"titles"`
	Chapters        int `json:"chapters"`
	StatutesSaved   int `json:"statutes_saved"`
	StatutesSkipped int `json:"statutes_skipped"`
	StatutesFailed  int `json:"statutes_failed"`
	SubtreesFailed  int `json:"subtrees_failed"`
}
