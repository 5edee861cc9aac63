// Package seen persists the set of report identifiers already surfaced to the
// user, plus the last-check watermark used to narrow each poll.
package seen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cerberusteck/sirse-watch/internal/kv"
	"github.com/cerberusteck/sirse-watch/internal/report"
)

const (
	// MaxEntries bounds the persisted set; the oldest identifiers go first.
	MaxEntries = 1000

	// FirstRunLookback is how far back the watermark starts when nothing
	// has been persisted yet.
	FirstRunLookback = 24 * time.Hour

	seenKey      = "sirse.seen_reports"
	lastCheckKey = "sirse.last_check_timestamp"
)

// Store is the in-memory seen-set backed by a kv.Store. Insertion order is
// recency order.
type Store struct {
	mu        sync.Mutex
	kv        kv.Store
	order     []report.ID
	set       map[report.ID]struct{}
	pending   []report.ID // marked since the last successful write
	lastCheck time.Time
	now       func() time.Time
	logger    *slog.Logger
}

// New creates an empty store. Call Load to rehydrate persisted state.
func New(store kv.Store, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:     store,
		set:    make(map[report.ID]struct{}),
		now:    time.Now,
		logger: logger,
	}
	s.lastCheck = s.now().Add(-FirstRunLookback)
	return s
}

// Load reads the persisted identifiers and watermark. Missing or unreadable
// values fall back to an empty set and a watermark FirstRunLookback ago, so
// a first run only surfaces recent activity.
func (s *Store) Load(ctx context.Context) {
	var ids []report.ID
	if err := kv.GetJSON(ctx, s.kv, seenKey, &ids); err != nil && !errors.Is(err, kv.ErrNotFound) {
		s.logger.Warn("Failed to load seen reports", "error", err)
		ids = nil
	}

	var lastMillis int64
	lastErr := kv.GetJSON(ctx, s.kv, lastCheckKey, &lastMillis)
	if lastErr != nil && !errors.Is(lastErr, kv.ErrNotFound) {
		s.logger.Warn("Failed to load last check timestamp", "error", lastErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.order = nil
	s.set = make(map[report.ID]struct{}, len(ids))
	s.pending = nil
	for _, id := range ids {
		s.addLocked(id)
	}
	if lastErr == nil {
		s.lastCheck = time.UnixMilli(lastMillis)
	} else {
		s.lastCheck = s.now().Add(-FirstRunLookback)
	}
	s.logger.Info("Seen reports loaded", "count", len(s.order), "last_check", s.lastCheck)
}

// Refresh re-reads the persisted identifiers and watermark so that writes
// made by another process sharing the same kv.Store are picked up.
// Identifiers marked here but not yet written are kept. Keys that were never
// persisted leave the in-memory value alone. On a read or decode error the
// in-memory state is kept and the error is returned.
func (s *Store) Refresh(ctx context.Context) error {
	var ids []report.ID
	idsErr := kv.GetJSON(ctx, s.kv, seenKey, &ids)
	if idsErr != nil && !errors.Is(idsErr, kv.ErrNotFound) {
		return fmt.Errorf("refresh seen reports: %w", idsErr)
	}
	var lastMillis int64
	lastErr := kv.GetJSON(ctx, s.kv, lastCheckKey, &lastMillis)
	if lastErr != nil && !errors.Is(lastErr, kv.ErrNotFound) {
		return fmt.Errorf("refresh last check timestamp: %w", lastErr)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if idsErr == nil {
		s.order = nil
		s.set = make(map[report.ID]struct{}, len(ids)+len(s.pending))
		for _, id := range ids {
			s.addLocked(id)
		}
		for _, id := range s.pending {
			s.addLocked(id)
		}
	}
	if lastErr == nil {
		s.lastCheck = time.UnixMilli(lastMillis)
	}
	return nil
}

// MarkSeen adds identifiers to the set. Already-present identifiers keep
// their original position.
func (s *Store) MarkSeen(ids ...report.ID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if _, ok := s.set[id]; ok {
			continue
		}
		s.addLocked(id)
		s.pending = append(s.pending, id)
	}
}

// Persist merges the identifiers marked since the last write into whatever
// is currently stored, keeps the most recent MaxEntries and writes them back.
// A concurrent Clear from another process therefore is not undone. Failures
// are logged and returned; the in-memory set stays authoritative until the
// next write.
func (s *Store) Persist(ctx context.Context) error {
	var stored []report.ID
	storedErr := kv.GetJSON(ctx, s.kv, seenKey, &stored)
	if storedErr != nil && !errors.Is(storedErr, kv.ErrNotFound) {
		s.logger.Warn("Failed to read seen reports before persisting", "error", storedErr)
	}

	s.mu.Lock()
	if storedErr == nil {
		s.order = nil
		s.set = make(map[report.ID]struct{}, len(stored)+len(s.pending))
		for _, id := range stored {
			s.addLocked(id)
		}
		for _, id := range s.pending {
			s.addLocked(id)
		}
	}
	s.trimLocked()
	ids := append([]report.ID(nil), s.order...)
	written := len(s.pending)
	s.mu.Unlock()

	if err := kv.SetJSON(ctx, s.kv, seenKey, ids); err != nil {
		s.logger.Error("Failed to persist seen reports", "count", len(ids), "error", err)
		return fmt.Errorf("persist seen reports: %w", err)
	}

	s.mu.Lock()
	if written <= len(s.pending) {
		s.pending = append([]report.ID(nil), s.pending[written:]...)
	} else {
		s.pending = nil
	}
	s.mu.Unlock()
	return nil
}

// Clear empties the set, both in memory and in storage, and moves the
// watermark to now.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.order = nil
	s.set = make(map[report.ID]struct{})
	s.pending = nil
	now := s.now()
	s.mu.Unlock()

	if err := kv.SetJSON(ctx, s.kv, seenKey, []report.ID{}); err != nil {
		s.logger.Error("Failed to clear seen reports", "error", err)
		return fmt.Errorf("clear seen reports: %w", err)
	}
	if err := s.UpdateLastCheck(ctx, now); err != nil {
		return err
	}
	s.logger.Info("Seen reports cleared")
	return nil
}

// UpdateLastCheck overwrites the watermark in memory and in storage.
func (s *Store) UpdateLastCheck(ctx context.Context, t time.Time) error {
	s.mu.Lock()
	s.lastCheck = t
	s.mu.Unlock()

	if err := kv.SetJSON(ctx, s.kv, lastCheckKey, t.UnixMilli()); err != nil {
		s.logger.Error("Failed to persist last check timestamp", "error", err)
		return fmt.Errorf("persist last check: %w", err)
	}
	return nil
}

// LastCheck returns the current watermark.
func (s *Store) LastCheck() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCheck
}

// Has reports whether id has been seen.
func (s *Store) Has(id report.ID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.set[id]
	return ok
}

// Len returns the number of identifiers held in memory.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// IDs returns a copy of the identifiers, oldest first.
func (s *Store) IDs() []report.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report.ID(nil), s.order...)
}

func (s *Store) addLocked(id report.ID) {
	if _, ok := s.set[id]; ok {
		return
	}
	s.set[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Store) trimLocked() {
	excess := len(s.order) - MaxEntries
	if excess <= 0 {
		return
	}
	for _, id := range s.order[:excess] {
		delete(s.set, id)
	}
	s.order = append([]report.ID(nil), s.order[excess:]...)
}
