package cli

import (
	"github.com/spf13/cobra"

	"github.com/dkoosis/tracekit/pkg/tracestore"
)

func (a *app) newDBCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db-check",
		Short: "Check the store's SQLite schema for drift",
		Long: `DB-check compares the tables in --db with the schema tracekit expects and
prints the differences as SARIF. Missing tables or columns are errors. The
database is opened read-only and is not migrated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := tracestore.Inspect(cmd.Context(), a.v.GetString(keyDB))
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.CheckSchema(cmd.Context())
			if err != nil {
				return err
			}
			log := tracestore.SchemaLog(results)
			if err := writeSARIF(cmd.OutOrStdout(), log); err != nil {
				return err
			}
			if log.HasErrors() {
				return ErrFindings
			}
			return nil
		},
	}
	cmd.Flags().String(keyDB, "", "SQLite database path (default: tracekit.db)")
	return cmd
}
