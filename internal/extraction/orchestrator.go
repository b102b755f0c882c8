package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
	"golang.org/x/sync/errgroup"
)

// Journal persists staged-resource state so orphans can be found after a crash.
type Journal interface {
	Put(ctx context.Context, rec models.JobRecord) error
	Delete(ctx context.Context, id string) error
}

// Orchestrator drives documents through stage, submit, poll, parse and
// release in concurrency-bounded batches.
type Orchestrator struct {
	stager  *Stager
	jobs    *JobClient
	journal Journal
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithJournal records every staged resource until it is released.
func WithJournal(j Journal) Option {
	return func(o *Orchestrator) {
		o.journal = j
	}
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(stager *Stager, jobs *JobClient, logger *slog.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	o := &Orchestrator{
		stager: stager,
		jobs:   jobs,
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// unit is the per-document pipeline state. Between stages only the control
// goroutine touches it; during a stage only the unit's own worker does.
type unit struct {
	index    int
	doc      models.Document
	started  time.Time
	resource *models.StagedResource
	job      *models.ExtractionJob
	done     bool
	released bool
}

// Run processes documents in consecutive batches of maxConcurrency, emitting a
// progress snapshot after each batch. It returns exactly one result per
// document, ordered by completion. Per-document failures are reported in the
// results and never abort the run.
func (o *Orchestrator) Run(ctx context.Context, docs []models.Document, maxConcurrency int, onProgress models.ProgressFunc) []models.ExtractionResult {
	if maxConcurrency < 1 {
		o.logger.Warn("Invalid concurrency ceiling, using 1.", "maxConcurrency", maxConcurrency)
		maxConcurrency = 1
	}
	total := len(docs)
	batchCount := (total + maxConcurrency - 1) / maxConcurrency
	o.logger.Info("Starting extraction run.", "documents", total, "maxConcurrency", maxConcurrency, "batches", batchCount)

	results := make([]models.ExtractionResult, 0, total)
	var succeeded, failed int
	for b := 0; b < batchCount; b++ {
		start := b * maxConcurrency
		end := min(start+maxConcurrency, total)

		batch := o.runBatch(ctx, b+1, batchCount, start, docs[start:end])
		for _, r := range batch {
			if r.Success {
				succeeded++
			} else {
				failed++
			}
		}
		results = append(results, batch...)

		o.emit(onProgress, models.ProgressSnapshot{
			Completed:    len(results),
			Total:        total,
			CurrentBatch: b + 1,
			BatchCount:   batchCount,
			SuccessCount: succeeded,
			FailureCount: failed,
			Results:      slices.Clone(results),
		})
	}

	o.logger.Info("Extraction run complete.", "documents", total, "succeeded", succeeded, "failed", failed)
	return results
}

func (o *Orchestrator) runBatch(ctx context.Context, batchNo, batchCount, offset int, docs []models.Document) (results []models.ExtractionResult) {
	out := make(chan models.ExtractionResult, len(docs))
	units := make([]*unit, len(docs))
	for i, d := range docs {
		units[i] = &unit{index: offset + i, doc: d}
	}
	logCtx := o.logger

	defer func() {
		if r := recover(); r != nil {
			results = o.abortBatch(ctx, logCtx, units, drain(out, results), r)
		}
	}()

	logCtx = o.logger.With("batch", batchNo, "batchCount", batchCount)
	logCtx.Info("Starting batch.", "size", len(docs))
	started := o.now()
	for _, u := range units {
		u.started = started
	}

	// Stage every document.
	o.fanOut(logCtx, units, func(u *unit) bool { return true }, out, func(u *unit) {
		res, err := o.stager.Stage(ctx, u.doc.Content, u.doc.Name)
		if err != nil {
			o.finish(out, u, nil, err)
			return
		}
		u.resource = &res
		o.record(ctx, u, models.JobRecordStaged)
	})
	logCtx.Debug("Batch staged.", "staged", countStaged(units))

	// Submit every staged document.
	o.fanOut(logCtx, units, func(u *unit) bool { return u.resource != nil && !u.done }, out, func(u *unit) {
		job, err := o.jobs.Submit(ctx, *u.resource)
		if err != nil {
			o.finish(out, u, nil, err)
			return
		}
		u.job = job
		o.record(ctx, u, models.JobRecordSubmitted)
	})

	// Poll submitted jobs; every staged resource is released here, whatever happened before.
	o.fanOut(logCtx, units, func(u *unit) bool { return u.resource != nil }, out, func(u *unit) {
		defer o.release(ctx, u)
		if u.done || u.job == nil {
			return
		}
		raw, err := o.jobs.PollUntilDone(ctx, u.job)
		o.release(ctx, u)
		if err != nil {
			o.finish(out, u, nil, err)
			return
		}
		rec := Parse(raw)
		o.finish(out, u, &rec, nil)
	})

	results = drain(out, make([]models.ExtractionResult, 0, len(docs)))
	logCtx.Info("Batch complete.", "results", len(results))
	return results
}

// abortBatch releases every staged resource and fills in a failed result for
// each document that has none yet. It runs after a fault outside any
// per-document step, so every call that may fault again is guarded.
func (o *Orchestrator) abortBatch(ctx context.Context, logCtx *slog.Logger, units []*unit, results []models.ExtractionResult, fault any) []models.ExtractionResult {
	safely(func() { logCtx.Error("Batch interrupted by an unexpected fault.", "panic", fault) })
	for _, u := range units {
		safely(func() { o.release(ctx, u) })
		if u.done {
			continue
		}
		u.done = true
		r := models.ExtractionResult{
			Index: u.index,
			Name:  u.doc.Name,
			Error: fmt.Sprintf("batch aborted: %v", fault),
		}
		if !u.started.IsZero() {
			safely(func() { r.Elapsed = o.now().Sub(u.started) })
		}
		results = append(results, r)
	}
	return results
}

func safely(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func countStaged(units []*unit) int {
	n := 0
	for _, u := range units {
		if u.resource != nil {
			n++
		}
	}
	return n
}

// fanOut runs step for every included unit concurrently and waits for all of
// them. A panicking step fails only its own document.
func (o *Orchestrator) fanOut(logCtx *slog.Logger, units []*unit, include func(*unit) bool, out chan<- models.ExtractionResult, step func(*unit)) {
	var eg errgroup.Group
	defer func() { _ = eg.Wait() }()

	for _, u := range units {
		if !include(u) {
			continue
		}
		eg.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logCtx.Error("Recovered panic while processing document.", "document", u.doc.Name, "panic", r)
					if !u.done {
						o.finish(out, u, nil, fmt.Errorf("internal error: %v", r))
					}
				}
			}()
			step(u)
			return nil
		})
	}
}

func (o *Orchestrator) finish(out chan<- models.ExtractionResult, u *unit, rec *models.ExtractionRecord, err error) {
	u.done = true
	out <- o.result(u, rec, err)
}

func (o *Orchestrator) result(u *unit, rec *models.ExtractionRecord, err error) models.ExtractionResult {
	r := models.ExtractionResult{
		Index:   u.index,
		Name:    u.doc.Name,
		Elapsed: o.now().Sub(u.started),
	}
	if err != nil {
		r.Error = err.Error()
		o.logger.Warn("Document failed.", "document", u.doc.Name, "index", u.index, "error", err)
		return r
	}
	r.Success = true
	r.Record = rec
	return r
}

func (o *Orchestrator) release(ctx context.Context, u *unit) {
	if u.resource == nil || u.released {
		return
	}
	u.released = true
	o.stager.Release(ctx, *u.resource)
	if o.journal != nil {
		if err := o.journal.Delete(context.WithoutCancel(ctx), u.resource.ID); err != nil {
			o.logger.Warn("Failed to remove job journal entry.", "resourceId", u.resource.ID, "error", err)
		}
	}
}

func (o *Orchestrator) record(ctx context.Context, u *unit, status string) {
	if o.journal == nil {
		return
	}
	rec := models.JobRecord{
		Resource:     *u.resource,
		DocumentName: u.doc.Name,
		Status:       status,
		UpdatedAt:    o.now(),
	}
	if u.job != nil {
		rec.JobID = u.job.ID
	}
	if err := o.journal.Put(ctx, rec); err != nil {
		o.logger.Warn("Failed to write job journal entry.", "resourceId", u.resource.ID, "status", status, "error", err)
	}
}

func (o *Orchestrator) emit(onProgress models.ProgressFunc, snapshot models.ProgressSnapshot) {
	if onProgress == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("Progress callback panicked.", "batch", snapshot.CurrentBatch, "panic", r)
		}
	}()
	onProgress(snapshot)
}

func drain(out <-chan models.ExtractionResult, results []models.ExtractionResult) []models.ExtractionResult {
	for len(out) > 0 {
		results = append(results, <-out)
	}
	return results
}
