package cli

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

func (a *app) newFmtCmd() *cobra.Command {
	var write bool
	cmd := &cobra.Command{
		Use:   "fmt PATH...",
		Short: "Rewrite reports in canonical form with a recomputed summary",
		Long: `Fmt re-renders each report as canonical Markdown: a title heading, the
token table with every column, and a Summary Statistics section whose values
are recomputed from the table. Output goes to stdout unless --write is set.

Rows that could not be parsed are dropped from stdout output. With --write,
a report with unparseable rows is left unchanged and reported as an error;
fix the rows listed (lint shows them) and run fmt again.`,
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

			opts := cfg.StatsOptions()
			out := cmd.OutOrStdout()
			var refused []string
			for i, rep := range reports {
				if len(rep.Issues) > 0 {
					if write {
						refused = append(refused, fmt.Sprintf("%s: unparseable rows at %s", rep.Path, issueLines(rep.Issues)))
						continue
					}
					a.log.Warn("dropping unparseable rows", zap.String("path", rep.Path), zap.Int("rows", len(rep.Issues)))
				}
				var buf bytes.Buffer
				sum := tracestats.ForReport(rep, opts).Summary()
				sum.Extra = rep.Declared.Extra
				if err := trace.WriteThresholds(&buf, rep, sum, opts.Thresholds()); err != nil {
					return fmt.Errorf("format %s: %w", rep.Path, err)
				}

				if write {
					if err := os.WriteFile(rep.Path, buf.Bytes(), 0o644); err != nil {
						return fmt.Errorf("write %s: %w", rep.Path, err)
					}
					a.log.Debug("formatted", zap.String("path", rep.Path))
					continue
				}
				if i > 0 {
					fmt.Fprintln(out)
				}
				if _, err := out.Write(buf.Bytes()); err != nil {
					return err
				}
			}
			if len(refused) > 0 {
				return fmt.Errorf("not formatted:\n  %s", strings.Join(refused, "\n  "))
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&write, "write", "w", false, "write result to the source file instead of stdout")
	cmd.Flags().String(keyRules, "", "rule configuration YAML (thresholds)")
	return cmd
}

// issueLines lists the source lines of issues, e.g. "line 7" or "lines 7, 9".
func issueLines(issues []trace.ParseIssue) string {
	lines := make([]string, len(issues))
	for i, issue := range issues {
		lines[i] = strconv.Itoa(issue.Line)
	}
	if len(lines) == 1 {
		return "line " + lines[0]
	}
	return "lines " + strings.Join(lines, ", ")
}
