package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/internal/cache"
	"github.com/dkoosis/tracekit/internal/watch"
	"github.com/dkoosis/tracekit/pkg/tracecheck"
)

func (a *app) newWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch DIR...",
		Short: "Re-lint reports as they change",
		Long: `Watch lints every report under DIR once, then re-lints changed .md files
after --debounce of quiet, printing one SARIF log per batch. Stop with Ctrl-C.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.rules()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			pc := cache.NewParseCache(cache.DefaultTTL, cache.DefaultCleanupInterval, nil)
			out := cmd.OutOrStdout()

			lint := func(ctx context.Context, paths []string) {
				reports, unreadable, err := a.parseReports(ctx, paths, pc)
				if err != nil {
					a.log.Error("lint failed", zap.Error(err))
					return
				}
				log := tracecheck.Run(reports, cfg, unreadableResults(unreadable, cfg)...)
				if err := writeSARIF(out, log); err != nil {
					a.log.Error("write sarif", zap.Error(err))
				}
				hits, misses := pc.Stats()
				a.log.Debug("linted", zap.Int("reports", len(reports)), zap.Int64("cacheHits", hits), zap.Int64("cacheMisses", misses))
			}

			lint(ctx, args)

			w, err := watch.New(args, a.v.GetDuration(keyDebounce), a.log, lint)
			if err != nil {
				return err
			}
			a.log.Info("watching for changes", zap.Strings("dirs", args))
			return w.Run(ctx)
		},
	}
	cmd.Flags().String(keyRules, "", "rule configuration YAML")
	cmd.Flags().Duration(keyDebounce, 0, "quiet period before re-linting (default: 300ms)")
	cmd.Flags().Int(keyJobs, 0, "parallel parses (default: number of CPUs)")
	return cmd
}
