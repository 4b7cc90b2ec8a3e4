// Package worker parses many reports concurrently.
package worker

import (
	"context"
	"errors"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/dkoosis/tracekit/pkg/trace"
)

// Loader loads the report at path.
type Loader func(path string) (*trace.Report, error)

// Result pairs a path with its report. Report is nil when Skipped or when Err
// is set.
type Result struct {
	Path    string
	Report  *trace.Report
	Skipped bool
	// Err is a table that could not be read, such as a missing column.
	Err error
}

// ParseAll loads every path with at most limit loads in flight and returns
// results in input order. Files without a trace table are marked Skipped and
// unreadable tables are recorded in Err. Any other error cancels the
// remaining work and is returned.
func ParseAll(ctx context.Context, paths []string, limit int, load Loader) ([]Result, error) {
	if limit <= 0 {
		limit = runtime.GOMAXPROCS(0)
	}

	out := make([]Result, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)

	for i, path := range paths {
		if gctx.Err() != nil {
			break
		}
		i, path := i, path
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			rep, err := load(path)
			switch {
			case errors.Is(err, trace.ErrNoTable):
				out[i] = Result{Path: path, Skipped: true}
				return nil
			case errors.Is(err, trace.ErrMissingColumn):
				out[i] = Result{Path: path, Err: err}
				return nil
			case err != nil:
				return err
			}
			out[i] = Result{Path: path, Report: rep}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Reports returns the parsed reports of results, in order.
func Reports(results []Result) []*trace.Report {
	reps := make([]*trace.Report, 0, len(results))
	for _, r := range results {
		if r.Report != nil {
			reps = append(reps, r.Report)
		}
	}
	return reps
}
