package tracking

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/google/uuid"
)

// DefaultRecordTTL is how long a finished record stays readable.
const DefaultRecordTTL = time.Hour

// processingExpiry bounds how long a record may stay in processing if the
// process running it dies.
const processingExpiry = 24 * time.Hour

// Runner runs an extraction batch to completion.
type Runner interface {
	Run(ctx context.Context, docs []models.Document, maxConcurrency int, onProgress models.ProgressFunc) []models.ExtractionResult
}

// Dispatcher accepts batches, runs them in the background and records their
// progress under a tracking id.
type Dispatcher struct {
	runner Runner
	store  Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
	wg     sync.WaitGroup
}

func NewDispatcher(runner Runner, store Store, ttl time.Duration, logger *slog.Logger) *Dispatcher {
	if ttl <= 0 {
		ttl = DefaultRecordTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner: runner,
		store:  store,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// Submit records a new batch and starts it. It returns as soon as the record
// exists; the batch keeps running after ctx is done.
func (d *Dispatcher) Submit(ctx context.Context, docs []models.Document, maxConcurrency int) (models.TrackingRecord, error) {
	now := d.now()
	rec := models.TrackingRecord{
		ID:        uuid.NewString(),
		Status:    models.TrackingProcessing,
		Total:     len(docs),
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(processingExpiry),
	}
	if err := d.store.Create(ctx, rec); err != nil {
		return models.TrackingRecord{}, fmt.Errorf("failed to create tracking record: %w", err)
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(context.WithoutCancel(ctx), rec, docs, maxConcurrency)
	}()
	return rec, nil
}

// Status returns the current record for a tracking id.
func (d *Dispatcher) Status(ctx context.Context, id string) (models.TrackingRecord, error) {
	rec, err := d.store.Get(ctx, id)
	if err != nil {
		return models.TrackingRecord{}, err
	}
	if rec.ExpiresAt.Before(d.now()) {
		return models.TrackingRecord{}, ErrNotFound
	}
	return rec, nil
}

// Wait blocks until every dispatched batch has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

func (d *Dispatcher) run(ctx context.Context, rec models.TrackingRecord, docs []models.Document, maxConcurrency int) {
	logCtx := d.logger.With("trackingId", rec.ID)

	defer func() {
		if r := recover(); r != nil {
			logCtx.Error("Batch panicked.", "panic", r)
			rec.Status = models.TrackingFailed
			rec.ErrorDetails = fmt.Sprint(r)
			_ = d.save(ctx, logCtx, &rec, d.ttl)
		}
	}()

	results := d.runner.Run(ctx, docs, maxConcurrency, func(s models.ProgressSnapshot) {
		rec.Completed = s.Completed
		rec.SuccessCount = s.SuccessCount
		rec.FailureCount = s.FailureCount
		rec.CurrentBatch = s.CurrentBatch
		rec.BatchCount = s.BatchCount
		_ = d.save(ctx, logCtx, &rec, processingExpiry)
	})

	rec.Status = models.TrackingCompleted
	rec.Results = results
	rec.Completed = len(results)
	rec.SuccessCount, rec.FailureCount = 0, 0
	for _, r := range results {
		if r.Success {
			rec.SuccessCount++
		} else {
			rec.FailureCount++
		}
	}
	if err := d.save(ctx, logCtx, &rec, d.ttl); err != nil {
		// The record must not stay in processing once its batch has ended.
		rec.Status = models.TrackingFailed
		rec.Results = nil
		rec.ErrorDetails = fmt.Sprintf("failed to save results: %v", err)
		_ = d.save(ctx, logCtx, &rec, d.ttl)
		return
	}
	logCtx.Info("Batch finished.", "successCount", rec.SuccessCount, "failureCount", rec.FailureCount)
}

func (d *Dispatcher) save(ctx context.Context, logCtx *slog.Logger, rec *models.TrackingRecord, ttl time.Duration) error {
	now := d.now()
	rec.UpdatedAt = now
	rec.ExpiresAt = now.Add(ttl)
	if err := d.store.Update(ctx, *rec); err != nil {
		logCtx.Error("Failed to update tracking record.", "status", rec.Status, "error", err)
		return err
	}
	return nil
}
