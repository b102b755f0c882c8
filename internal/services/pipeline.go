package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/Lllllllleong/documentextraction/internal/config"
	"github.com/Lllllllleong/documentextraction/internal/extraction"
	"github.com/Lllllllleong/documentextraction/internal/gcp"
	"github.com/Lllllllleong/documentextraction/internal/tracking"
)

// Pipeline bundles the GCP-backed components every entry point shares.
type Pipeline struct {
	Config       config.Config
	Store        *gcp.BucketStore
	Stager       *extraction.Stager
	Jobs         *extraction.JobClient
	Journal      *tracking.FirestoreJournal
	Tracking     *tracking.FirestoreStore
	Orchestrator *extraction.Orchestrator

	storageClient   *storage.Client
	firestoreClient *firestore.Client
	workflows       *gcp.WorkflowService
}

// NewPipeline creates the clients and wires the orchestrator to them.
func NewPipeline(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Pipeline, error) {
	if err := cfg.ValidateRun(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.ValidateTracking(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	workflows, err := gcp.NewWorkflowService(ctx, cfg.ProjectID, cfg.Workflow.Location, cfg.Workflow.ID)
	if err != nil {
		storageClient.Close()
		return nil, fmt.Errorf("failed to create workflow service: %w", err)
	}
	firestoreClient, err := gcp.NewFirestoreClient(ctx, cfg.ProjectID, cfg.Firestore.Database)
	if err != nil {
		storageClient.Close()
		workflows.Close()
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}

	store := gcp.NewBucketStore(storageClient, cfg.Staging.Bucket)
	stager := extraction.NewStager(store, cfg.Staging.Prefix, logger)
	jobs := extraction.NewJobClient(workflows, logger,
		extraction.WithPollInterval(cfg.Extraction.PollInterval),
		extraction.WithMaxPollAttempts(cfg.Extraction.MaxPollAttempts),
	)
	journal := tracking.NewFirestoreJournal(firestoreClient, cfg.Firestore.JobCollection)

	p := &Pipeline{
		Config:          cfg,
		Store:           store,
		Stager:          stager,
		Jobs:            jobs,
		Journal:         journal,
		Tracking:        tracking.NewFirestoreStore(firestoreClient, cfg.Firestore.TrackingCollection),
		Orchestrator:    extraction.NewOrchestrator(stager, jobs, logger, extraction.WithJournal(journal)),
		storageClient:   storageClient,
		firestoreClient: firestoreClient,
		workflows:       workflows,
	}
	logger.Info("Pipeline initialized.",
		"bucket", cfg.Staging.Bucket,
		"workflowId", cfg.Workflow.ID,
		"pollInterval", cfg.Extraction.PollInterval,
		"maxPollAttempts", cfg.Extraction.MaxPollAttempts)
	return p, nil
}

// Sweeper returns a sweeper over the pipeline's tracking store, journal and
// staging prefix.
func (p *Pipeline) Sweeper(logger *slog.Logger) *tracking.Sweeper {
	return tracking.NewSweeper(p.Tracking, p.Stager, logger,
		tracking.WithSweepJournal(p.Journal),
		tracking.WithObjectScan(p.Store, p.Stager.KeyPrefix()),
		tracking.WithOrphanTTL(p.Config.Tracking.OrphanTTL),
	)
}

func (p *Pipeline) Close() error {
	return errors.Join(
		p.storageClient.Close(),
		p.workflows.Close(),
		p.firestoreClient.Close(),
	)
}
