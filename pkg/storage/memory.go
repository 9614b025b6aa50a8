package storage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore keeps the latest run snapshot in process memory.
// It is safe for concurrent use by multiple goroutines.
//
// If TTL is configured, a background goroutine expires a snapshot older than
// the TTL so the API stops serving runs that are no longer fresh. For
// multi-instance deployments use RedisStore instead.
type MemoryStore struct {
	mu            sync.RWMutex
	latest        Snapshot
	hasLatest     bool
	ttl           time.Duration
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	cleanupDone   chan struct{}
	stopped       bool
	stopMu        sync.Mutex
}

// NewMemoryStore creates an in-memory snapshot store with no TTL.
// The stored snapshot is kept until the next Put replaces it.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWithTTL creates an in-memory snapshot store that expires the
// stored run after ttl. The cleanup goroutine must be stopped with Stop()
// when the store is no longer needed.
//
// cleanupInterval determines how often expiry is checked (typically 1 minute).
func NewMemoryStoreWithTTL(ttl, cleanupInterval time.Duration) *MemoryStore {
	if ttl <= 0 {
		panic("TTL must be positive")
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	store := &MemoryStore{
		ttl:           ttl,
		cleanupTicker: time.NewTicker(cleanupInterval),
		stopCleanup:   make(chan struct{}),
		cleanupDone:   make(chan struct{}),
	}

	go store.runCleanup()

	return store
}

// Stop shuts down the background cleanup goroutine. It blocks until cleanup
// is complete. Calling Stop multiple times or on a store without TTL is safe.
func (s *MemoryStore) Stop() {
	if s.cleanupTicker == nil {
		return
	}

	s.stopMu.Lock()
	defer s.stopMu.Unlock()

	if s.stopped {
		return
	}

	close(s.stopCleanup)
	<-s.cleanupDone
	s.cleanupTicker.Stop()
	s.stopped = true
}

func (s *MemoryStore) runCleanup() {
	defer close(s.cleanupDone)

	for {
		select {
		case <-s.cleanupTicker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ttl == 0 || !s.hasLatest {
		return
	}
	if time.Since(s.latest.GeneratedAt) > s.ttl {
		s.latest = Snapshot{}
		s.hasLatest = false
	}
}

// Put stores a run snapshot, replacing any previous run.
//
// Returns an error if the snapshot's RunID is empty or the context is
// canceled.
func (s *MemoryStore) Put(ctx context.Context, snapshot Snapshot) error {
	if snapshot.RunID == "" {
		return fmt.Errorf("snapshot run id cannot be empty")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.latest = snapshot
	s.hasLatest = true
	return nil
}

// Latest retrieves the most recent run snapshot. found is false when no run
// has been stored yet or the stored run has expired.
func (s *MemoryStore) Latest(ctx context.Context) (Snapshot, bool, error) {
	select {
	case <-ctx.Done():
		return Snapshot{}, false, ctx.Err()
	default:
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.latest, s.hasLatest, nil
}

// Clear removes the stored snapshot. Returns true if one existed.
// This method is primarily useful for testing.
func (s *MemoryStore) Clear() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed := s.hasLatest
	s.latest = Snapshot{}
	s.hasLatest = false
	return existed
}
