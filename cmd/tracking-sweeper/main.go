package main

import (
	"context"
	"log/slog"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/Lllllllleong/documentextraction/internal/config"
	"github.com/Lllllllleong/documentextraction/internal/logging"
	"github.com/Lllllllleong/documentextraction/internal/services"
	cloudevents "github.com/cloudevents/sdk-go/v2"
)

var (
	sweeperInstance *services.SweeperFunction
	once            sync.Once
	initErr         error
)

func init() {
	slog.SetDefault(logging.NewFunctionLogger(slog.LevelInfo))

	// Triggered by a Cloud Scheduler job publishing to Pub/Sub.
	functions.CloudEvent("SweepTracking", sweepTracking)
}

// main is required by the Go Functions Framework.
func main() {}

func sweepTracking(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		var cfg config.Config
		cfg, initErr = config.Load("")
		if initErr != nil {
			return
		}
		sweeperInstance, initErr = services.NewSweeperFunction(context.Background(), cfg, slog.Default())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	logCtx := slog.With("eventId", e.ID(), "eventType", e.Type())
	report, err := sweeperInstance.Process(ctx)
	if err != nil {
		// Returning the error marks the invocation failed so the scheduler retries.
		return err
	}
	logCtx.Info("Sweep triggered.", "expiredRecords", report.ExpiredRecords, "orphansReleased", report.OrphansReleased)
	return nil
}
