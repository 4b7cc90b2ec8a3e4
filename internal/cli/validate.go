package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkoosis/tracekit/pkg/jsonl"
	"github.com/dkoosis/tracekit/pkg/sarif"
)

const validateDriver = "tracekit-jsonl"

func (a *app) newValidateCmd() *cobra.Command {
	var schemaPath string
	cmd := &cobra.Command{
		Use:   "validate JSONL...",
		Short: "Validate JSONL files against a JSON Schema",
		Long: `Validate checks every line of each JSONL file against a JSON Schema subset
(object, string, integer, number, boolean and array types with required,
properties, additionalProperties, items, pattern and minimum) and prints
SARIF. Without --schema the built-in exported-row schema is used.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				validator *jsonl.Validator
				err       error
			)
			if schemaPath == "" {
				validator, err = jsonl.RowValidator()
			} else {
				validator, err = jsonl.NewValidator(schemaPath)
			}
			if err != nil {
				return err
			}

			var results []sarif.Result
			for _, path := range args {
				res, err := jsonl.ValidateFile(path, validator)
				if err != nil {
					return err
				}
				results = append(results, res...)
			}

			run := sarif.NewRun(validateDriver, results)
			run.Tool.Driver.Rules = []sarif.ReportingDescriptor{{
				ID:               jsonl.RuleSchema,
				ShortDescription: &sarif.Message{Text: "JSONL line does not match the schema"},
				DefaultLevel:     sarif.LevelError,
			}}
			log := sarif.NewLog()
			log.Runs = append(log.Runs, run)

			if err := writeSARIF(cmd.OutOrStdout(), log); err != nil {
				return err
			}
			if log.HasErrors() {
				return ErrFindings
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&schemaPath, "schema", "", "JSON Schema file (default: built-in row schema)")
	return cmd
}
