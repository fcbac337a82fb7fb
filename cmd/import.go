package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harvestiq/siteingest/internal/runs"
)

// newImportCmd runs one import (or maintenance run) to completion and
// reports its outcome, for cron-driven use without the HTTP server.
func newImportCmd() *cobra.Command {
	var kindFlag string
	cmd := &cobra.Command{
		Use:   "import",
		Short: "Run a single ingestion pass over the inbox and exit.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFromContext(cmd)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var runID string
			switch kindFlag {
			case "import":
				runID, err = a.Pipeline().StartImport()
			case "blacklist", "phone":
				runID, err = a.Pipeline().StartMaintenance(runs.Kind(kindFlag))
			default:
				return fmt.Errorf("unknown run kind %q", kindFlag)
			}
			if err != nil {
				return err
			}
			a.Logger().Info("run started", zap.String("run_id", runID))

			ticker := time.NewTicker(200 * time.Millisecond)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					// Cooperative stop; the run drains its current batch.
					_ = a.Registry().RequestStop(runID)
				case <-ticker.C:
				}
				snap, snapErr := a.Registry().Snapshot(runID)
				if snapErr != nil {
					return snapErr
				}
				if !snap.IsComplete {
					continue
				}
				a.Logger().Info("run complete",
					zap.Int64("processed", snap.ProcessedRecords),
					zap.Int64("created", snap.CreatedCount),
					zap.Int64("updated", snap.UpdatedCount),
					zap.Int64("skipped", snap.SkippedRecords),
					zap.Int("errors", len(snap.Errors)),
				)
				if len(snap.Errors) > 0 {
					return fmt.Errorf("run finished with %d errors, first: %s",
						len(snap.Errors), snap.Errors[0])
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&kindFlag, "kind", "import", "run kind: import, blacklist, or phone")
	return cmd
}
