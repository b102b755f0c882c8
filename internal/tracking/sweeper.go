package tracking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
)

// DefaultOrphanTTL is the age after which a staged object with no live job is
// treated as orphaned.
const DefaultOrphanTTL = 30 * time.Minute

// KeyReleaser deletes a staged object by key.
type KeyReleaser interface {
	ReleaseKey(ctx context.Context, key string) error
}

// ObjectLister lists staged object keys last written before a cutoff.
type ObjectLister interface {
	ListOlder(ctx context.Context, prefix string, before time.Time) ([]string, error)
}

// Sweeper removes expired tracking records and releases staged objects left
// behind by runs that never reached their release step.
type Sweeper struct {
	store     Store
	journal   JobJournal
	releaser  KeyReleaser
	lister    ObjectLister
	prefix    string
	orphanTTL time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepJournal releases every journaled resource older than the orphan TTL.
func WithSweepJournal(j JobJournal) SweeperOption {
	return func(s *Sweeper) {
		s.journal = j
	}
}

// WithObjectScan also lists the staging prefix directly, catching objects
// staged while no journal was configured.
func WithObjectScan(lister ObjectLister, prefix string) SweeperOption {
	return func(s *Sweeper) {
		s.lister = lister
		s.prefix = prefix
	}
}

// WithOrphanTTL overrides DefaultOrphanTTL. Non-positive values are ignored.
func WithOrphanTTL(ttl time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if ttl > 0 {
			s.orphanTTL = ttl
		}
	}
}

// NewSweeper creates a Sweeper. store and releaser may be nil to skip the
// corresponding step.
func NewSweeper(store Store, releaser KeyReleaser, logger *slog.Logger, opts ...SweeperOption) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Sweeper{
		store:     store,
		releaser:  releaser,
		orphanTTL: DefaultOrphanTTL,
		logger:    logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Sweep runs one cleanup pass as of now. Individual release failures are
// counted in the report; only failures to query a store are returned.
func (s *Sweeper) Sweep(ctx context.Context, now time.Time) (models.SweepReport, error) {
	var report models.SweepReport
	var errs []error

	if s.store != nil {
		n, err := s.store.DeleteExpired(ctx, now)
		report.ExpiredRecords = n
		if err != nil {
			errs = append(errs, err)
		}
	}

	released, failed, err := s.ReleaseOrphans(ctx, now.Add(-s.orphanTTL))
	report.OrphansReleased = released
	report.OrphanReleaseErr = failed
	if err != nil {
		errs = append(errs, err)
	}

	s.logger.Info("Sweep complete.",
		"expiredRecords", report.ExpiredRecords,
		"orphansReleased", report.OrphansReleased,
		"orphanReleaseErrors", report.OrphanReleaseErr)
	return report, errors.Join(errs...)
}

// ReleaseOrphans deletes staged objects older than before. It returns the
// number released and the number that could not be.
func (s *Sweeper) ReleaseOrphans(ctx context.Context, before time.Time) (released, failed int, err error) {
	if s.releaser == nil {
		return 0, 0, nil
	}
	seen := make(map[string]bool)
	var errs []error

	if s.journal != nil {
		records, lerr := s.journal.ListStale(ctx, before)
		if lerr != nil {
			errs = append(errs, fmt.Errorf("failed to list stale job records: %w", lerr))
		}
		for _, rec := range records {
			key := rec.Resource.Key
			logCtx := s.logger.With("key", key, "document", rec.DocumentName, "jobId", rec.JobID)
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			if rerr := s.releaser.ReleaseKey(ctx, key); rerr != nil {
				logCtx.Warn("Failed to release orphaned object.", "error", rerr)
				failed++
				continue
			}
			if derr := s.journal.Delete(ctx, rec.Resource.ID); derr != nil {
				logCtx.Warn("Released orphan but failed to delete its job record.", "error", derr)
			}
			logCtx.Info("Released orphaned object.")
			released++
		}
	}

	if s.lister != nil {
		keys, lerr := s.lister.ListOlder(ctx, s.prefix, before)
		if lerr != nil {
			errs = append(errs, fmt.Errorf("failed to list staged objects: %w", lerr))
		}
		for _, key := range keys {
			if seen[key] {
				continue
			}
			seen[key] = true
			if rerr := s.releaser.ReleaseKey(ctx, key); rerr != nil {
				s.logger.Warn("Failed to release unjournaled object.", "key", key, "error", rerr)
				failed++
				continue
			}
			released++
		}
	}
	return released, failed, errors.Join(errs...)
}

// RunEvery sweeps on a fixed interval until ctx is done.
func (s *Sweeper) RunEvery(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx, s.now()); err != nil {
				s.logger.Error("Sweep failed.", "error", err)
			}
		}
	}
}
