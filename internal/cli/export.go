package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dkoosis/tracekit/pkg/jsonl"
)

func (a *app) newExportCmd() *cobra.Command {
	var (
		out        string
		withSchema string
	)
	cmd := &cobra.Command{
		Use:   "export PATH...",
		Short: "Export table rows as JSON Lines",
		Long: `Export writes one JSON object per table row of every report under PATH.
Each object carries the folio, every table column and the tags parsed from
Notes. Use "-" as --out for stdout.

--schema writes the JSON Schema the rows conform to, for use with validate.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			if out == "" {
				return errors.New("--out is required")
			}
			reports, err := a.loadReports(cmd.Context(), args, nil)
			if err != nil {
				return err
			}

			var w io.Writer = cmd.OutOrStdout()
			if out != "-" {
				f, err := os.Create(out)
				if err != nil {
					return fmt.Errorf("create %s: %w", out, err)
				}
				defer func() {
					if closeErr := f.Close(); closeErr != nil && err == nil {
						err = fmt.Errorf("close %s: %w", out, closeErr)
					}
				}()
				w = f
			}

			bw := bufio.NewWriter(w)
			total := 0
			for _, rep := range reports {
				n, err := jsonl.WriteRows(bw, rep)
				if err != nil {
					return err
				}
				total += n
			}
			if err := bw.Flush(); err != nil {
				return err
			}
			a.log.Debug("exported rows", zap.Int("rows", total), zap.Int("reports", len(reports)), zap.String("out", out))

			if withSchema != "" {
				if err := os.WriteFile(withSchema, jsonl.RowSchema(), 0o644); err != nil {
					return fmt.Errorf("write schema: %w", err)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", `output JSONL file ("-" for stdout)`)
	cmd.Flags().StringVar(&withSchema, "schema", "", "also write the row JSON Schema to this file")
	return cmd
}
