package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/internal/cache"
	"github.com/dkoosis/tracekit/internal/worker"
	"github.com/dkoosis/tracekit/pkg/rules"
	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracecheck"
)

func (a *app) newLintCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lint PATH...",
		Short: "Check reports and print SARIF",
		Long: `Lint discovers .md files under each PATH (hidden and vendor directories are
skipped), parses their token tables, checks them and prints a SARIF 2.1.0 log.

The command exits non-zero when any error-level result is reported.

Example:
  tracekit lint reports/
  tracekit lint --rules rules.yml --jobs 4 reports/f1r.md reports/f2v.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.rules()
			if err != nil {
				return err
			}
			reports, unreadable, err := a.parseReports(cmd.Context(), args, nil)
			if err != nil {
				return err
			}
			backups, err := tracecheck.Backups(args, cfg)
			if err != nil {
				return err
			}
			log := tracecheck.Run(reports, cfg, append(unreadableResults(unreadable, cfg), backups...)...)
			if err := writeSARIF(cmd.OutOrStdout(), log); err != nil {
				return err
			}
			if log.HasErrors() {
				return ErrFindings
			}
			return nil
		},
	}
	cmd.Flags().String(keyRules, "", "rule configuration YAML")
	cmd.Flags().Int(keyJobs, 0, "parallel parses (default: number of CPUs)")
	return cmd
}

func (a *app) rules() (rules.Config, error) {
	path := a.v.GetString(keyRules)
	cfg, err := rules.LoadConfig(path)
	if err != nil {
		return rules.Config{}, err
	}
	if path != "" {
		a.log.Debug("loaded rules", zap.String("path", path))
	}
	return cfg, nil
}

// loadReports discovers and parses the reports under paths, logging and
// dropping files whose tables cannot be read.
func (a *app) loadReports(ctx context.Context, paths []string, pc *cache.ParseCache) ([]*trace.Report, error) {
	reports, unreadable, err := a.parseReports(ctx, paths, pc)
	for _, r := range unreadable {
		a.log.Warn("skipping unreadable report", zap.String("path", r.Path), zap.Error(r.Err))
	}
	return reports, err
}

// parseReports discovers and parses the reports under paths. Files without a
// trace table are skipped; files whose table cannot be read are returned
// separately. A nil pc parses without caching.
func (a *app) parseReports(ctx context.Context, paths []string, pc *cache.ParseCache) ([]*trace.Report, []worker.Result, error) {
	files, err := trace.Discover(paths)
	if err != nil {
		return nil, nil, err
	}
	a.log.Debug("discovered reports", zap.Int("files", len(files)))

	load := worker.Loader(trace.ParseFile)
	if pc != nil {
		load = pc.Load
	}
	results, err := worker.ParseAll(ctx, files, a.v.GetInt(keyJobs), load)
	if err != nil {
		return nil, nil, err
	}
	var unreadable []worker.Result
	for _, r := range results {
		switch {
		case r.Skipped:
			a.log.Debug("skipping file without trace table", zap.String("path", r.Path))
		case r.Err != nil:
			unreadable = append(unreadable, r)
		}
	}
	return worker.Reports(results), unreadable, nil
}

func unreadableResults(unreadable []worker.Result, cfg rules.Config) []sarif.Result {
	var out []sarif.Result
	for _, r := range unreadable {
		out = append(out, tracecheck.Unreadable(r.Path, r.Err, cfg)...)
	}
	return out
}

func writeSARIF(w io.Writer, log *sarif.Log) error {
	if err := sarif.NewEncoder(w).Encode(log); err != nil {
		return fmt.Errorf("write sarif: %w", err)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
