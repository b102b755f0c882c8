package tracking

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
)

// MemoryStore keeps tracking records in process memory. It is a test double
// for Store; deployed binaries use FirestoreStore.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]models.TrackingRecord
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]models.TrackingRecord)}
}

func (s *MemoryStore) Create(_ context.Context, rec models.TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; ok {
		return fmt.Errorf("tracking record %s already exists", rec.ID)
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *MemoryStore) Update(_ context.Context, rec models.TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[rec.ID]; !ok {
		return fmt.Errorf("update %s: %w", rec.ID, ErrNotFound)
	}
	s.records[rec.ID] = clone(rec)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (models.TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return models.TrackingRecord{}, ErrNotFound
	}
	return clone(rec), nil
}

func (s *MemoryStore) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for id, rec := range s.records {
		if rec.ExpiresAt.Before(before) {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

func clone(rec models.TrackingRecord) models.TrackingRecord {
	rec.Results = slices.Clone(rec.Results)
	return rec
}

// MemoryJournal keeps job records in process memory. It is a test double for
// JobJournal; deployed binaries use FirestoreJournal.
type MemoryJournal struct {
	mu      sync.Mutex
	records map[string]models.JobRecord
}

var _ JobJournal = (*MemoryJournal)(nil)

func NewMemoryJournal() *MemoryJournal {
	return &MemoryJournal{records: make(map[string]models.JobRecord)}
}

func (j *MemoryJournal) Put(_ context.Context, rec models.JobRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records[rec.Resource.ID] = rec
	return nil
}

func (j *MemoryJournal) Delete(_ context.Context, id string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	delete(j.records, id)
	return nil
}

func (j *MemoryJournal) ListStale(_ context.Context, before time.Time) ([]models.JobRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var out []models.JobRecord
	for _, rec := range j.records {
		if rec.UpdatedAt.Before(before) {
			out = append(out, rec)
		}
	}
	return out, nil
}
