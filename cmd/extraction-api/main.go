// Command extraction-api accepts batches over HTTP and reports their progress
// by tracking id.
//
// Batches keep running after the 202 response is written, so the service needs
// CPU allocated outside requests: deploy it to Cloud Run with CPU always
// allocated (--no-cpu-throttling) and a minimum of one instance. On Cloud
// Functions, or on Cloud Run with request-based billing, in-flight batches
// stall once the response is sent.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/GoogleCloudPlatform/functions-framework-go/funcframework"
	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentextraction/internal/config"
	"github.com/Lllllllleong/documentextraction/internal/logging"
	"github.com/Lllllllleong/documentextraction/internal/services"
	"github.com/Lllllllleong/documentextraction/internal/tracking"
)

var (
	apiInstance *services.ExtractionAPI
	pipeline    *services.Pipeline
	once        sync.Once
	initErr     error
)

func init() {
	slog.SetDefault(logging.NewFunctionLogger(slog.LevelInfo))
	functions.HTTP("HandleExtraction", handleExtraction)
}

// main serves the function directly, for Cloud Run and local use, and sweeps
// expired records and orphaned objects in the background.
func main() {
	cfg, err := config.Load("")
	if err != nil {
		slog.Error("Failed to load configuration.", "error", err)
		os.Exit(1)
	}
	if level, err := logging.ParseLevel(cfg.Log.Level); err == nil {
		slog.SetDefault(logging.NewFunctionLogger(level))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	initOnce(ctx)
	if initErr != nil {
		slog.Error("Extraction API initialization failed.", "error", initErr)
		os.Exit(1)
	}
	if cfg.Tracking.SweepInterval > 0 {
		slog.Info("Starting background sweeper.", "interval", cfg.Tracking.SweepInterval)
		go pipeline.Sweeper(slog.Default()).RunEvery(ctx, cfg.Tracking.SweepInterval)
	}

	if err := funcframework.Start(cfg.Port); err != nil {
		slog.Error("Server stopped.", "error", err)
		os.Exit(1)
	}
}

func newAPI(ctx context.Context) (*services.ExtractionAPI, *services.Pipeline, error) {
	cfg, err := config.Load("")
	if err != nil {
		return nil, nil, err
	}
	p, err := services.NewPipeline(ctx, cfg, slog.Default())
	if err != nil {
		return nil, nil, err
	}
	dispatcher := tracking.NewDispatcher(p.Orchestrator, p.Tracking, cfg.Tracking.RecordTTL, slog.Default())
	return services.NewExtractionAPI(dispatcher, cfg.Extraction.MaxConcurrency, slog.Default()), p, nil
}

func initOnce(ctx context.Context) {
	once.Do(func() {
		apiInstance, pipeline, initErr = newAPI(ctx)
	})
}

func handleExtraction(w http.ResponseWriter, r *http.Request) {
	initOnce(context.Background())
	if initErr != nil {
		slog.Error("Extraction API initialization failed.", "error", initErr)
		http.Error(w, "Internal Server Error: failed to initialize service", http.StatusInternalServerError)
		return
	}
	apiInstance.ServeHTTP(w, r)
}
