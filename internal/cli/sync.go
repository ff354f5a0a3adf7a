package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/theotherzach/project-brain-bot/internal/core/domain"
	"github.com/theotherzach/project-brain-bot/internal/core/ports/driving"
)

var syncCmd = &cobra.Command{
	Use:   "sync [source]",
	Short: "Synchronise documents into the index",
	Long: `Runs an incremental sync for indexable sources in the foreground.
If a source is provided, only that source is synchronised. Otherwise,
every indexable source is synchronised in turn.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSyncCmd,
}

var syncHistoryLimit int

var syncHistoryCmd = &cobra.Command{
	Use:   "history [source]",
	Short: "Show recent sync runs for a source",
	Args:  cobra.ExactArgs(1),
	RunE:  runSyncHistory,
}

func init() {
	syncHistoryCmd.Flags().IntVarP(&syncHistoryLimit, "limit", "n", 10, "maximum number of runs to show")
	syncCmd.AddCommand(syncHistoryCmd)
	rootCmd.AddCommand(syncCmd)
}

func runSyncCmd(cmd *cobra.Command, args []string) error {
	if services == nil || services.SyncRunner == nil {
		return errors.New("sync service not configured")
	}

	ctx := context.Background()

	if len(args) > 0 {
		kind, err := domain.ParseSourceKind(args[0])
		if err != nil {
			return fmt.Errorf("unknown source %q", args[0])
		}
		return syncOne(ctx, cmd, kind)
	}

	if services.Registry == nil {
		return errors.New("connector registry not configured")
	}

	kinds := services.Registry.IndexableKinds()
	if len(kinds) == 0 {
		cmd.Println("No indexable sources configured.")
		return nil
	}

	var failed int
	for _, kind := range kinds {
		if err := syncOne(ctx, cmd, kind); err != nil {
			cmd.PrintErrf("Sync failed for %s: %v\n", kind, err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d sources failed to sync", failed, len(kinds))
	}
	return nil
}

func syncOne(ctx context.Context, cmd *cobra.Command, kind domain.SourceKind) error {
	cmd.Printf("Synchronising %s...\n", kind)

	report, err := services.SyncRunner.Run(ctx, kind)
	if err != nil {
		return err
	}

	printReport(cmd, report)
	return nil
}

func printReport(cmd *cobra.Command, report *driving.SyncReport) {
	cmd.Printf("  %d documents indexed, %d deleted, %d chunks upserted in %s\n",
		report.DocumentsIndexed, report.DocumentsDeleted, report.ChunksUpserted,
		report.Duration.Round(time.Millisecond))
	if !report.Checkpoint.LastSynced.IsZero() {
		cmd.Printf("  checkpoint: %s\n", report.Checkpoint.LastSynced.Format(time.RFC3339))
	}
}

func runSyncHistory(cmd *cobra.Command, args []string) error {
	if services == nil || services.SyncHistory == nil {
		return errors.New("sync history not configured")
	}

	kind, err := domain.ParseSourceKind(args[0])
	if err != nil {
		return fmt.Errorf("unknown source %q", args[0])
	}

	records, err := services.SyncHistory.Recent(context.Background(), kind, syncHistoryLimit)
	if err != nil {
		return fmt.Errorf("failed to read sync history: %w", err)
	}

	if len(records) == 0 {
		cmd.Printf("No sync runs recorded for %s.\n", kind)
		return nil
	}

	for _, rec := range records {
		status := "ok"
		if !rec.Success {
			status = "failed: " + rec.Error
		}
		cmd.Printf("%s  %s  +%d -%d  %s\n",
			rec.StartedAt.Format(time.RFC3339),
			rec.EndedAt.Sub(rec.StartedAt).Round(time.Millisecond),
			rec.DocumentsIndexed, rec.DocumentsDeleted, status)
	}
	return nil
}
