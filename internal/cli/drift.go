package cli

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/pkg/tracestore"
)

func (a *app) newDriftCmd() *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "drift",
		Short: "Snapshot stored statistics and compare with last week",
		Long: `Drift snapshots the statistics of every report in --db, compares them with
the most recent snapshot from an earlier ISO week in --history, prints the
changes larger than --threshold percent as SARIF and appends the snapshot
to the history file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			store, err := tracestore.Open(ctx, a.v.GetString(keyDB))
			if err != nil {
				return err
			}
			defer store.Close()

			snap, err := store.Snapshot(ctx, time.Now())
			if err != nil {
				return err
			}

			historyPath := a.v.GetString(keyHistory)
			history, err := tracestore.LoadHistory(historyPath)
			if err != nil {
				return err
			}

			log := tracestore.DriftLog(nil)
			if prev := history.LastWeekSnapshot(snap.Week); prev != nil {
				log = tracestore.DriftLog(tracestore.Drift(*prev, snap, a.v.GetFloat64(keyThreshold)))
				a.log.Debug("compared snapshots", zap.String("previous", prev.Week), zap.String("current", snap.Week))
			} else if last := history.LastSnapshot(); last != nil {
				a.log.Info("only snapshots from this week; nothing to compare", zap.Time("last", last.Timestamp))
			} else {
				a.log.Info("no earlier snapshot to compare", zap.String("history", historyPath))
			}

			if !dryRun {
				history.AddSnapshot(snap)
				if err := tracestore.SaveHistory(historyPath, history); err != nil {
					return err
				}
			}
			return writeSARIF(cmd.OutOrStdout(), log)
		},
	}
	cmd.Flags().String(keyDB, "", "SQLite database path (default: tracekit.db)")
	cmd.Flags().String(keyHistory, "", "snapshot history JSON (default: tracekit-history.json)")
	cmd.Flags().Float64(keyThreshold, 0, "percent change that counts as drift (default: 10)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "compare without recording the snapshot")
	return cmd
}
