package queue

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrNotFound is returned for unknown or expired runs
var ErrNotFound = errors.New("run not found")

const cleanupInterval = time.Hour

// Store is an in-memory run store with TTL support. It hands out copies, so
// callers never share a record with the worker.
type Store struct {
	runs           map[string]*Run
	idempotencyMap map[string]string // idempotency_key -> run_id
	mu             sync.RWMutex
	logger         *zap.Logger
	stopCleanup    chan struct{}
	stopOnce       sync.Once
	done           chan struct{}
}

// NewStore creates a new run store and starts its TTL cleanup
func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		runs:           make(map[string]*Run),
		idempotencyMap: make(map[string]string),
		logger:         logger,
		stopCleanup:    make(chan struct{}),
		done:           make(chan struct{}),
	}

	go s.cleanupLoop(cleanupInterval)

	return s
}

func (s *Store) cleanupLoop(interval time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.CleanupExpired()
		case <-s.stopCleanup:
			return
		}
	}
}

// CleanupExpired removes expired runs and returns how many were dropped
func (s *Store) CleanupExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, run := range s.runs {
		if run.IsExpired() {
			// The key may already belong to a newer run.
			if key := run.IdempotencyKey; key != "" && s.idempotencyMap[key] == id {
				delete(s.idempotencyMap, key)
			}
			delete(s.runs, id)
			deleted++
		}
	}

	if deleted > 0 {
		s.logger.Info("Cleaned up expired runs", zap.Int("count", deleted))
	}
	return deleted
}

// Stop stops the cleanup goroutine and waits for it to exit
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
	<-s.done
}

// Save saves a run to the store
func (s *Store) Save(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[run.ID]; exists {
		return fmt.Errorf("run already exists: %s", run.ID)
	}
	s.runs[run.ID] = run.Clone()

	if run.IdempotencyKey != "" {
		s.idempotencyMap[run.IdempotencyKey] = run.ID
	}

	return nil
}

// SaveIdempotent saves run unless a live run already holds its idempotency
// key, in which case that run is returned with duplicate set.
func (s *Store) SaveIdempotent(run *Run) (*Run, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key := run.IdempotencyKey; key != "" {
		if id, ok := s.idempotencyMap[key]; ok {
			if existing, ok := s.runs[id]; ok && !existing.IsExpired() {
				return existing.Clone(), true, nil
			}
		}
	}
	if _, exists := s.runs[run.ID]; exists {
		return nil, false, fmt.Errorf("run already exists: %s", run.ID)
	}
	s.runs[run.ID] = run.Clone()
	if run.IdempotencyKey != "" {
		s.idempotencyMap[run.IdempotencyKey] = run.ID
	}
	return run, false, nil
}

// GetByIdempotencyKey retrieves a run by idempotency key
func (s *Store) GetByIdempotencyKey(key string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.idempotencyMap[key]
	if !exists {
		return nil, false
	}
	run, exists := s.runs[id]
	if !exists || run.IsExpired() {
		return nil, false
	}
	return run.Clone(), true
}

// Get retrieves a run by ID
func (s *Store) Get(id string) (*Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[id]
	if !ok || run.IsExpired() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run.Clone(), nil
}

// Update replaces a stored run
func (s *Store) Update(run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[run.ID]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, run.ID)
	}
	s.runs[run.ID] = run.Clone()
	return nil
}

// Transition applies fn to the stored run under the store lock, so a
// check-then-set on the status cannot race with the worker.
func (s *Store) Transition(id string, fn func(run *Run) error) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[id]
	if !ok || run.IsExpired() {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	next := run.Clone()
	if err := fn(next); err != nil {
		return nil, err
	}
	s.runs[id] = next
	return next.Clone(), nil
}

// List returns all live runs, newest first
func (s *Store) List() []*Run {
	s.mu.RLock()
	defer s.mu.RUnlock()

	runs := make([]*Run, 0, len(s.runs))
	for _, run := range s.runs {
		if !run.IsExpired() {
			runs = append(runs, run.Clone())
		}
	}
	sort.Slice(runs, func(i, j int) bool {
		if runs[i].CreatedAt != runs[j].CreatedAt {
			return runs[i].CreatedAt > runs[j].CreatedAt
		}
		return runs[i].ID > runs[j].ID
	})
	return runs
}
