// Package tracking owns the state that outlives a single orchestrator call:
// dispatched batches keyed by tracking id, and the journal of staged resources
// used to release orphans after a crash.
package tracking

import (
	"context"
	"errors"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/extraction"
	"github.com/Lllllllleong/documentextraction/internal/models"
)

// ErrNotFound is returned when a tracking id is unknown or has expired.
var ErrNotFound = errors.New("tracking record not found")

// Store persists tracking records.
type Store interface {
	Create(ctx context.Context, rec models.TrackingRecord) error
	Update(ctx context.Context, rec models.TrackingRecord) error
	Get(ctx context.Context, id string) (models.TrackingRecord, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}

// JobJournal persists staged resources until they are released.
type JobJournal interface {
	extraction.Journal
	ListStale(ctx context.Context, before time.Time) ([]models.JobRecord, error)
}
