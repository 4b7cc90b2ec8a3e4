package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// Settings is the effective configuration shown by config show.
type Settings struct {
	Rules     string  `yaml:"rules"`
	Jobs      int     `yaml:"jobs"`
	DB        string  `yaml:"db"`
	History   string  `yaml:"history"`
	Threshold float64 `yaml:"threshold"`
	Debounce  string  `yaml:"debounce"`
	Plain     bool    `yaml:"plain"`
	Verbose   bool    `yaml:"verbose"`
}

func (a *app) settings() Settings {
	return Settings{
		Rules:     a.v.GetString(keyRules),
		Jobs:      a.v.GetInt(keyJobs),
		DB:        a.v.GetString(keyDB),
		History:   a.v.GetString(keyHistory),
		Threshold: a.v.GetFloat64(keyThreshold),
		Debounce:  a.v.GetDuration(keyDebounce).String(),
		Plain:     a.v.GetBool(keyPlain),
		Verbose:   a.v.GetBool(keyVerbose),
	}
}

func (a *app) newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect tracekit configuration",
	}

	var withRules bool
	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Long: `Show prints the configuration after merging defaults, the config file,
TRACEKIT_* environment variables and flags. --with-rules appends the effective
rule configuration.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := cmd.OutOrStdout()
			if used := a.v.ConfigFileUsed(); used != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "Configuration file: %s\n", used)
			}

			data, err := yaml.Marshal(a.settings())
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			if _, err := out.Write(data); err != nil {
				return err
			}

			if !withRules {
				return nil
			}
			cfg, err := a.rules()
			if err != nil {
				return err
			}
			data, err = cfg.Marshal()
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(out, "---\n%s", data)
			return err
		},
	}
	showCmd.Flags().BoolVar(&withRules, "with-rules", false, "also print the rule configuration")
	showCmd.Flags().String(keyRules, "", "rule configuration YAML")

	configCmd.AddCommand(showCmd)
	return configCmd
}
