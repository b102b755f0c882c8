package extraction

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/models"
)

// AnalysisService is the remote document-analysis capability.
type AnalysisService interface {
	StartJob(ctx context.Context, locationRef string) (string, error)
	GetJobStatus(ctx context.Context, jobID string) (models.JobStatusReport, error)
}

// JobCanceller is implemented by services that can stop a job early. The
// JobClient cancels jobs that outlive the poll ceiling so they stop reading a
// resource that is about to be released.
type JobCanceller interface {
	CancelJob(ctx context.Context, jobID string) error
}

const (
	DefaultPollInterval    = 3 * time.Second
	DefaultMaxPollAttempts = 60
)

// JobClient submits staged documents and polls their jobs to completion.
type JobClient struct {
	service     AnalysisService
	interval    time.Duration
	maxAttempts int
	logger      *slog.Logger
}

// JobClientOption configures a JobClient.
type JobClientOption func(*JobClient)

// WithPollInterval sets the fixed pause between status queries.
func WithPollInterval(d time.Duration) JobClientOption {
	return func(c *JobClient) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithMaxPollAttempts sets the number of status queries before giving up.
func WithMaxPollAttempts(n int) JobClientOption {
	return func(c *JobClient) {
		if n > 0 {
			c.maxAttempts = n
		}
	}
}

// NewJobClient creates a JobClient with a 3s interval and 60 attempts unless overridden.
func NewJobClient(service AnalysisService, logger *slog.Logger, opts ...JobClientOption) *JobClient {
	if logger == nil {
		logger = slog.Default()
	}
	c := &JobClient{
		service:     service,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxPollAttempts,
		logger:      logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Submit starts one analysis job for the staged resource. It never retries.
func (c *JobClient) Submit(ctx context.Context, res models.StagedResource) (*models.ExtractionJob, error) {
	jobID, err := c.service.StartJob(ctx, res.URI)
	if err != nil {
		return nil, &SubmissionError{Location: res.URI, Err: err}
	}
	if jobID == "" {
		return nil, &SubmissionError{Location: res.URI, Err: fmt.Errorf("service returned an empty job id")}
	}
	return &models.ExtractionJob{ID: jobID, Resource: res, Status: models.JobSubmitted}, nil
}

// PollUntilDone queries the job at a fixed interval until it reaches a terminal
// status or the attempt ceiling is hit. On success the ordered text fragments
// are joined into one raw-text blob. job.Status is updated as it transitions.
func (c *JobClient) PollUntilDone(ctx context.Context, job *models.ExtractionJob) (string, error) {
	if job.Status.Terminal() {
		return "", fmt.Errorf("job %s is already in terminal state %s", job.ID, job.Status)
	}
	logCtx := c.logger.With("jobId", job.ID)

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(c.interval):
			case <-ctx.Done():
				job.Status = models.JobFailed
				return "", &AnalysisFailedError{JobID: job.ID, Reason: "polling cancelled", Err: ctx.Err()}
			}
		}

		job.Status = models.JobPolling
		job.Attempts = attempt
		report, err := c.service.GetJobStatus(ctx, job.ID)
		if err != nil {
			job.Status = models.JobFailed
			return "", &AnalysisFailedError{JobID: job.ID, Reason: "status query failed", Err: err}
		}

		switch report.State {
		case models.ServiceSucceeded:
			job.Status = models.JobSucceeded
			logCtx.Debug("Analysis job succeeded.", "attempts", attempt, "fragments", len(report.Fragments))
			return strings.Join(report.Fragments, "\n"), nil
		case models.ServiceFailed:
			job.Status = models.JobFailed
			reason := report.Reason
			if reason == "" {
				reason = "no reason given"
			}
			return "", &AnalysisFailedError{JobID: job.ID, Reason: reason}
		case models.ServiceInProgress:
		default:
			logCtx.Warn("Unknown job state reported, treating as in progress.", "state", report.State)
		}
	}

	job.Status = models.JobTimedOut
	logCtx.Warn("Analysis job did not finish within the poll ceiling.", "attempts", c.maxAttempts)
	c.cancel(ctx, logCtx, job.ID)
	return "", &AnalysisTimeoutError{JobID: job.ID, Attempts: c.maxAttempts}
}

func (c *JobClient) cancel(ctx context.Context, logCtx *slog.Logger, jobID string) {
	canceller, ok := c.service.(JobCanceller)
	if !ok {
		return
	}
	if err := canceller.CancelJob(context.WithoutCancel(ctx), jobID); err != nil {
		logCtx.Warn("Failed to cancel timed-out analysis job.", "error", err)
	}
}
