// Command tracekit lints, summarises and stores control-trace reports.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dkoosis/tracekit/internal/cli"
)

func main() {
	if err := cli.Execute(context.Background()); err != nil {
		if !errors.Is(err, cli.ErrFindings) {
			fmt.Fprintln(os.Stderr, "tracekit:", err)
		}
		os.Exit(1)
	}
}
