package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/pkg/tracestats"
	"github.com/dkoosis/tracekit/pkg/tracestore"
)

func (a *app) newIngestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest PATH...",
		Short: "Store reports and their statistics in SQLite",
		Long: `Ingest parses every report under PATH and stores its rows and recomputed
statistics in the SQLite database given by --db. A report already stored
under the same path is replaced. A store missing tables or columns is left
untouched and reported; see db-check.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.rules()
			if err != nil {
				return err
			}
			reports, err := a.loadReports(cmd.Context(), args, nil)
			if err != nil {
				return err
			}

			store, err := tracestore.Open(cmd.Context(), a.v.GetString(keyDB))
			if err != nil {
				return err
			}
			defer store.Close()

			changed := 0
			for _, rep := range reports {
				ok, err := store.Ingest(cmd.Context(), rep, tracestats.ForReport(rep, cfg.StatsOptions()))
				if err != nil {
					return err
				}
				if ok {
					changed++
				}
				a.log.Debug("ingested", zap.String("path", rep.Path), zap.Bool("changed", ok))
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "ingested %d reports (%d changed) into %s\n", len(reports), changed, store.Path())
			return err
		},
	}
	cmd.Flags().String(keyDB, "", "SQLite database path (default: tracekit.db)")
	cmd.Flags().String(keyRules, "", "rule configuration YAML (thresholds)")
	cmd.Flags().Int(keyJobs, 0, "parallel parses (default: number of CPUs)")
	return cmd
}
