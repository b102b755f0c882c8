package cli

import (
	"fmt"
	"time"

	"github.com/Lllllllleong/documentextraction/internal/services"
	"github.com/spf13/cobra"
)

var cleanupOlderThan time.Duration

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Release staged documents left behind by interrupted runs",
	Long: `Release staged documents left behind by interrupted runs.

Deletes staged objects whose journal entry, or whose object itself, is older
than --older-than. Keep this above the longest expected run of a single
document so in-flight work is not removed.

Examples:
  docextract cleanup
  docextract cleanup --older-than 2h`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().DurationVar(&cleanupOlderThan, "older-than", 0, "minimum age of released objects (default from config, 30m)")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	olderThan := cleanupOlderThan
	if olderThan <= 0 {
		olderThan = cfg.Tracking.OrphanTTL
	}

	p, err := services.NewPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close()

	released, failed, err := p.Sweeper(logger).ReleaseOrphans(ctx, time.Now().Add(-olderThan))
	fmt.Fprintf(cmd.OutOrStdout(), "Released %d orphaned objects (%d failed).\n", released, failed)
	if err != nil {
		return fmt.Errorf("cleanup incomplete: %w", err)
	}
	return nil
}
