package crawler

import (
	"context"
	"io"
	"time"
)

// Fetcher retrieves a URL and returns the page body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (Page, error)
}

// PageParser extracts structured items from fetched pages using site-specific rules.
type PageParser interface {
	// Links returns the labeled child links of a listing page in document order.
	Links(kind PageKind, page Page) ([]Link, error)
	// Text returns the plain body text of a statute detail page.
	Text(page Page) (string, error)
}

// StatuteStore is durable keyed storage for statutes.
type StatuteStore interface {
	Exists(ctx context.Context, citation string) (bool, error)
	Upsert(ctx context.Context, statute Statute) error
}

// CheckpointStore persists the structured traversal position of runs.
type CheckpointStore interface {
	SaveCheckpoint(ctx context.Context, checkpoint Checkpoint) error
	// LatestCheckpoint returns the most recently updated checkpoint or ErrNoCheckpoint.
	LatestCheckpoint(ctx context.Context) (Checkpoint, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Publisher pushes "statute stored" events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher fingerprints statute text for downstream change detection.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
