package jobs

import (
	"context"
	"sync"
	"time"

	"sonopix/pkg/models"

	"github.com/google/uuid"
)

// Store persists job records and their result blobs
type Store interface {
	Save(ctx context.Context, job *models.Job) error
	Get(ctx context.Context, id uuid.UUID) (*models.Job, error)
	SaveResult(ctx context.Context, id uuid.UUID, data []byte) error
	// TakeResult returns the result and removes it. A second call returns
	// models.ErrJobResultConsumed.
	TakeResult(ctx context.Context, id uuid.UUID) ([]byte, error)
	Delete(ctx context.Context, id uuid.UUID) error
	Close() error
}

type memoryEntry struct {
	job     models.Job
	expires time.Time
}

type memoryResult struct {
	data    []byte
	expires time.Time
}

// MemoryStore keeps jobs in process. Entries expire ttl after their last save.
type MemoryStore struct {
	jobs    map[uuid.UUID]memoryEntry
	results map[uuid.UUID]memoryResult
	ttl     time.Duration
	now     func() time.Time
	mu      sync.RWMutex
}

// NewMemoryStore creates a new in-memory job store
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &MemoryStore{
		jobs:    make(map[uuid.UUID]memoryEntry),
		results: make(map[uuid.UUID]memoryResult),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Save stores a copy of job
func (s *MemoryStore) Save(ctx context.Context, job *models.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purge(now)
	s.jobs[job.ID] = memoryEntry{job: *job, expires: now.Add(s.ttl)}
	return nil
}

// Get returns a copy of the stored job
func (s *MemoryStore) Get(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.jobs[id]
	if !ok || !s.now().Before(entry.expires) {
		return nil, models.ErrJobNotFound
	}
	job := entry.job
	return &job, nil
}

// SaveResult stores the output bytes of a finished job
func (s *MemoryStore) SaveResult(ctx context.Context, id uuid.UUID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[id] = memoryResult{data: data, expires: s.now().Add(s.ttl)}
	return nil
}

// TakeResult returns and forgets the result of a job
func (s *MemoryStore) TakeResult(ctx context.Context, id uuid.UUID) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, ok := s.results[id]
	delete(s.results, id)
	if !ok || !s.now().Before(result.expires) {
		return nil, models.ErrJobResultConsumed
	}
	return result.data, nil
}

// Delete removes a job and any result
func (s *MemoryStore) Delete(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.jobs, id)
	delete(s.results, id)
	return nil
}

// Close does nothing
func (s *MemoryStore) Close() error {
	return nil
}

// purge drops expired entries. Caller holds the write lock.
func (s *MemoryStore) purge(now time.Time) {
	for id, entry := range s.jobs {
		if !now.Before(entry.expires) {
			delete(s.jobs, id)
		}
	}
	for id, result := range s.results {
		if !now.Before(result.expires) {
			delete(s.results, id)
		}
	}
}
