package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/config"
	"github.com/Lllllllleong/documentextraction/internal/models"
)

// Sweep runs one cleanup pass.
type Sweep interface {
	Sweep(ctx context.Context, now time.Time) (models.SweepReport, error)
}

// SweeperFunction is the scheduled cleanup of expired tracking records and
// orphaned staged objects.
type SweeperFunction struct {
	sweeper Sweep
	logger  *slog.Logger
	now     func() time.Time
	close   func() error
}

// NewSweeperFunction creates a SweeperFunction over the GCP pipeline.
func NewSweeperFunction(ctx context.Context, cfg config.Config, logger *slog.Logger) (*SweeperFunction, error) {
	p, err := NewPipeline(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	f := NewSweeperFunctionWith(p.Sweeper(logger), logger)
	f.close = p.Close
	return f, nil
}

func NewSweeperFunctionWith(sweeper Sweep, logger *slog.Logger) *SweeperFunction {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweeperFunction{sweeper: sweeper, logger: logger, now: time.Now}
}

func (f *SweeperFunction) Process(ctx context.Context) (models.SweepReport, error) {
	report, err := f.sweeper.Sweep(ctx, f.now())
	if err != nil {
		f.logger.Error("Sweep finished with errors.", "error", err)
		return report, fmt.Errorf("sweep: %w", err)
	}
	return report, nil
}

func (f *SweeperFunction) Close() error {
	if f.close == nil {
		return nil
	}
	return f.close()
}
