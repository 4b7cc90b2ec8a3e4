// Package cli wires the tracekit commands.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is stamped at build time with -ldflags.
var Version = "dev"

// ErrFindings is returned when a run produced error-level results. The
// results have already been printed.
var ErrFindings = errors.New("error-level findings")

// Config keys shared by flags, TRACEKIT_* variables and the config file.
const (
	keyRules     = "rules"
	keyJobs      = "jobs"
	keyDB        = "db"
	keyHistory   = "history"
	keyThreshold = "threshold"
	keyDebounce  = "debounce"
	keyPlain     = "plain"
	keyVerbose   = "verbose"
)

type app struct {
	v       *viper.Viper
	cfgFile string
	log     *zap.Logger
}

// Execute runs the root command with the process arguments.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

// NewRootCmd builds the command tree. Each call returns independent state.
func NewRootCmd() *cobra.Command {
	a := &app{v: viper.New(), log: zap.NewNop()}
	setDefaults(a.v)

	root := &cobra.Command{
		Use:   "tracekit",
		Short: "Lint, summarise and store control-trace reports",
		Long: `tracekit reads Markdown control-trace reports (one token table per folio
plus a Summary Statistics section), checks them for internal consistency,
recomputes the summary statistics and emits findings as SARIF 2.1.0.

Configuration hierarchy (highest to lowest priority):
  1. CLI flags
  2. Environment variables (TRACEKIT_*)
  3. Config file ($HOME/.tracekit.yaml)
  4. Defaults`,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.initConfig(); err != nil {
				return err
			}
			if err := a.bind(cmd.Flags()); err != nil {
				return err
			}
			return a.initLogger()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			_ = a.log.Sync()
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: $HOME/.tracekit.yaml)")
	root.PersistentFlags().BoolP(keyVerbose, "v", false, "debug logging on stderr")

	root.AddCommand(
		a.newLintCmd(),
		a.newStatsCmd(),
		a.newFmtCmd(),
		a.newExportCmd(),
		a.newValidateCmd(),
		a.newIngestCmd(),
		a.newDriftCmd(),
		a.newDBCheckCmd(),
		a.newWatchCmd(),
		a.newConfigCmd(),
		newVersionCmd(),
	)
	return root
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(keyRules, "")
	v.SetDefault(keyJobs, runtime.NumCPU())
	v.SetDefault(keyDB, "tracekit.db")
	v.SetDefault(keyHistory, "tracekit-history.json")
	v.SetDefault(keyThreshold, 10.0)
	v.SetDefault(keyDebounce, "300ms")
	v.SetDefault(keyPlain, false)
	v.SetDefault(keyVerbose, false)
}

// initConfig reads in config file and ENV variables.
func (a *app) initConfig() error {
	a.v.SetEnvPrefix("TRACEKIT")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	if a.cfgFile != "" {
		a.v.SetConfigFile(a.cfgFile)
		if err := a.v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", a.cfgFile, err)
		}
		return nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return nil
	}
	a.v.AddConfigPath(home)
	a.v.SetConfigName(".tracekit")
	a.v.SetConfigType("yaml")
	if err := a.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}

// bind ties the running command's flags to their config keys. Flags are bound
// per invocation because several commands define the same key.
func (a *app) bind(flags *pflag.FlagSet) error {
	for _, key := range []string{keyRules, keyJobs, keyDB, keyHistory, keyThreshold, keyDebounce, keyPlain, keyVerbose} {
		if f := flags.Lookup(key); f != nil {
			if err := a.v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) initLogger() error {
	config := zap.NewProductionConfig()
	config.Encoding = "console"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if a.v.GetBool(keyVerbose) {
		config.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	a.log = logger
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "tracekit %s\n", Version)
			return err
		},
	}
}
