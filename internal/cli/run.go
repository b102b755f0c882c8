package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Lllllllleong/documentextraction/internal/export"
	"github.com/Lllllllleong/documentextraction/internal/models"
	"github.com/Lllllllleong/documentextraction/internal/services"
	"github.com/spf13/cobra"
)

var (
	runConcurrency int
	runXLSX        string
	runOut         string
)

var runCmd = &cobra.Command{
	Use:   "run <path>...",
	Short: "Extract fields from local documents",
	Long: `Extract fields from local documents.

Directories are walked for supported files (.pdf .png .jpg .jpeg .tif .tiff
.gif .webp). Documents that fail are reported in the results; the command only
exits non-zero when it cannot start.

Examples:
  docextract run invoices/
  docextract run a.pdf b.png --concurrency 4 --xlsx results.xlsx`,
	Args: cobra.MinimumNArgs(1),
	RunE: runExtract,
}

func init() {
	runCmd.Flags().IntVarP(&runConcurrency, "concurrency", "n", 0, "documents in flight per batch (default from config)")
	runCmd.Flags().StringVar(&runXLSX, "xlsx", "", "also write results to this XLSX file")
	runCmd.Flags().StringVarP(&runOut, "out", "o", "", "write JSON results here instead of stdout")
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	docs, err := collectDocuments(args)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		return fmt.Errorf("no supported documents found in %v", args)
	}

	concurrency := runConcurrency
	if concurrency == 0 {
		concurrency = cfg.Extraction.MaxConcurrency
	}

	p, err := services.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	results := p.Orchestrator.Run(ctx, docs, concurrency, func(s models.ProgressSnapshot) {
		logger.Info("Progress.",
			"batch", fmt.Sprintf("%d/%d", s.CurrentBatch, s.BatchCount),
			"completed", fmt.Sprintf("%d/%d", s.Completed, s.Total),
			"succeeded", s.SuccessCount,
			"failed", s.FailureCount)
	})

	if err := writeResults(cmd.OutOrStdout(), runOut, results); err != nil {
		return err
	}
	if runXLSX != "" {
		data, err := export.XLSX(results)
		if err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
		if err := os.WriteFile(runXLSX, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", runXLSX, err)
		}
		logger.Info("Wrote workbook.", "path", runXLSX)
	}
	return nil
}

func writeResults(stdout io.Writer, path string, results []models.ExtractionResult) error {
	w := stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(results); err != nil {
		return fmt.Errorf("encode results: %w", err)
	}
	return nil
}
