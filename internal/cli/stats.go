package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dkoosis/tracekit/pkg/render"
	"github.com/dkoosis/tracekit/pkg/tracestats"
	"github.com/dkoosis/tracekit/pkg/tracestore"
)

func (a *app) newStatsCmd() *cobra.Command {
	var (
		asJSON     bool
		fromDB     bool
		topClasses int
	)
	cmd := &cobra.Command{
		Use:   "stats PATH...",
		Short: "Print statistics recomputed from each report's table",
		Long: `Stats recomputes the summary statistics of every report under PATH and
prints them per folio, flagging declared values that disagree with the table.

With --from-db the stored reports in --db are listed instead, followed by the
token class totals across every stored folio.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if fromDB {
				return a.storedStats(cmd.Context(), cmd.OutOrStdout(), asJSON)
			}
			if len(args) == 0 {
				return errors.New("at least one PATH is required")
			}

			cfg, err := a.rules()
			if err != nil {
				return err
			}
			reports, err := a.loadReports(cmd.Context(), args, nil)
			if err != nil {
				return err
			}

			stats := make([]tracestats.Stats, len(reports))
			for i, rep := range reports {
				stats[i] = tracestats.ForReport(rep, cfg.StatsOptions())
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			return render.Summary(cmd.OutOrStdout(), reports, stats, render.Options{
				Plain:      a.v.GetBool(keyPlain),
				TopClasses: topClasses,
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON instead of text")
	cmd.Flags().BoolVar(&fromDB, "from-db", false, "report on the stored reports in --db")
	cmd.Flags().IntVar(&topClasses, "top-classes", 3, "most frequent classes to list per folio")
	cmd.Flags().Bool(keyPlain, false, "disable colour and borders")
	cmd.Flags().String(keyDB, "", "SQLite database path (default: tracekit.db)")
	cmd.Flags().String(keyRules, "", "rule configuration YAML (thresholds)")
	cmd.Flags().Int(keyJobs, 0, "parallel parses (default: number of CPUs)")
	return cmd
}

func (a *app) storedStats(ctx context.Context, w io.Writer, asJSON bool) error {
	store, err := tracestore.Open(ctx, a.v.GetString(keyDB))
	if err != nil {
		return err
	}
	defer store.Close()

	reports, err := store.Reports(ctx)
	if err != nil {
		return err
	}
	classes, err := store.ClassFrequencies(ctx)
	if err != nil {
		return err
	}

	if asJSON {
		return writeJSON(w, struct {
			Reports []tracestore.ReportInfo `json:"reports"`
			Classes []tracestore.ClassCount `json:"classes"`
		}{reports, classes})
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "FOLIO\tTOKENS\tKERNEL\tHAZARD\tNAV\tPATH")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%s\n", r.Folio, r.Tokens, r.KernelContacts, r.HazardAdjacent, r.NavigationSequences, r.Path)
	}
	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "CLASS\tCOUNT")
	for _, c := range classes {
		fmt.Fprintf(tw, "%s\t%d\n", c.Class, c.Count)
	}
	return tw.Flush()
}
