// Package memory provides in-memory stores for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/JakeFAU/rcw-statute-crawler/internal/crawler"
)

// StatuteStore keeps statutes and checkpoints in maps.
type StatuteStore struct {
	mu          sync.RWMutex
	statutes    map[string]crawler.Statute
	checkpoints map[string]crawler.Checkpoint
}

// NewStatuteStore constructs an empty StatuteStore.
func NewStatuteStore() *StatuteStore {
	return &StatuteStore{
		statutes:    make(map[string]crawler.Statute),
		checkpoints: make(map[string]crawler.Checkpoint),
	}
}

// Exists reports whether citation has been stored.
func (s *StatuteStore) Exists(_ context.Context, citation string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.statutes[citation]
	return ok, nil
}

// Upsert stores statute, replacing any record with the same citation.
func (s *StatuteStore) Upsert(_ context.Context, statute crawler.Statute) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statutes[statute.Citation] = statute
	return nil
}

// Get returns the statute stored under citation.
func (s *StatuteStore) Get(_ context.Context, citation string) (crawler.Statute, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	statute, ok := s.statutes[citation]
	if !ok {
		return crawler.Statute{}, crawler.ErrNotFound
	}
	return statute, nil
}

// Count returns the number of stored statutes.
func (s *StatuteStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.statutes)), nil
}

// List returns all statutes ordered by citation.
func (s *StatuteStore) List(_ context.Context) []crawler.Statute {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]crawler.Statute, 0, len(s.statutes))
	for _, st := range s.statutes {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Citation < out[j].Citation })
	return out
}

// SaveCheckpoint records the checkpoint for its run, replacing earlier ones.
func (s *StatuteStore) SaveCheckpoint(_ context.Context, checkpoint crawler.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.RunID] = checkpoint
	return nil
}

// LatestCheckpoint returns the most recently updated checkpoint.
func (s *StatuteStore) LatestCheckpoint(_ context.Context) (crawler.Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		latest crawler.Checkpoint
		found  bool
	)
	for _, cp := range s.checkpoints {
		if !found || cp.UpdatedAt.After(latest.UpdatedAt) {
			latest = cp
			found = true
		}
	}
	if !found {
		return crawler.Checkpoint{}, crawler.ErrNoCheckpoint
	}
	return latest, nil
}

// Close is a no-op.
func (s *StatuteStore) Close() error { return nil }
