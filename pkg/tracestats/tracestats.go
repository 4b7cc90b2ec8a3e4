// Package tracestats recomputes the summary statistics of a control-trace
// report from its rows.
package tracestats

import (
	"sort"

	"github.com/dkoosis/tracekit/pkg/trace"
)

// Defaults for Options.
const (
	DefaultKernelThreshold = 1
	DefaultMinRunLength    = 3
)

// Options tune the statistic definitions.
type Options struct {
	// KernelThreshold is the largest Min_Dist that counts as kernel contact.
	KernelThreshold int
	// MinRunLength is the shortest run of hazard-adjacent rows that counts as
	// a navigation sequence.
	MinRunLength int
}

// DefaultOptions returns the glossary definitions: Min_Dist <= 1 and runs of 3+.
func DefaultOptions() Options {
	return Options{KernelThreshold: DefaultKernelThreshold, MinRunLength: DefaultMinRunLength}
}

// Thresholds returns the options as summary label thresholds.
func (o Options) Thresholds() trace.Thresholds {
	return trace.Thresholds{Kernel: o.KernelThreshold, MinRun: o.MinRunLength}
}

// Run is a maximal stretch of consecutive hazard-adjacent rows.
type Run struct {
	Start     int `json:"start"` // first position
	End       int `json:"end"`   // last position
	Length    int `json:"length"`
	StartLine int `json:"-"`
}

// Stats are the recomputed statistics of one report.
type Stats struct {
	Folio               string              `json:"folio"`
	Tokens              int                 `json:"tokens"`
	KernelContacts      int                 `json:"kernel_contacts"`
	HazardAdjacent      int                 `json:"hazard_adjacent"`
	NavigationSequences int                 `json:"navigation_sequences"`
	LongestRun          int                 `json:"longest_run"`
	Runs                []Run               `json:"runs,omitempty"`
	Cycles              int                 `json:"cycles"`
	UnknownClass        int                 `json:"unknown_class"`
	ClassCounts         map[trace.Class]int `json:"class_counts,omitempty"`
	HazardClassCounts   map[string]int      `json:"hazard_class_counts,omitempty"`
}

// Compute derives statistics from rows in table order. Zero-valued options
// fall back to the defaults.
func Compute(rows []trace.Row, opts Options) Stats {
	if opts.KernelThreshold <= 0 {
		opts.KernelThreshold = DefaultKernelThreshold
	}
	if opts.MinRunLength <= 0 {
		opts.MinRunLength = DefaultMinRunLength
	}

	st := Stats{
		Tokens:            len(rows),
		ClassCounts:       map[trace.Class]int{},
		HazardClassCounts: map[string]int{},
	}
	majors := map[int]struct{}{}

	for _, row := range rows {
		if row.MinDist <= opts.KernelThreshold {
			st.KernelContacts++
		}
		if row.HazardAdj {
			st.HazardAdjacent++
		}
		if row.HazardClass != "" {
			st.HazardClassCounts[row.HazardClass]++
		}
		if row.Class == trace.ClassUnknown {
			st.UnknownClass++
		}
		st.ClassCounts[row.Class]++
		majors[row.Cycle.Major] = struct{}{}
	}
	st.Cycles = len(majors)

	for _, run := range HazardRuns(rows) {
		if run.Length > st.LongestRun {
			st.LongestRun = run.Length
		}
		if run.Length >= opts.MinRunLength {
			st.Runs = append(st.Runs, run)
		}
	}
	st.NavigationSequences = len(st.Runs)

	return st
}

// ForReport computes statistics for rep and stamps its folio.
func ForReport(rep *trace.Report, opts Options) Stats {
	st := Compute(rep.Rows, opts)
	st.Folio = rep.Folio
	return st
}

// HazardRuns returns every maximal run of hazard-adjacent rows. Rows are
// consecutive when adjacent in the table and their positions differ by one.
func HazardRuns(rows []trace.Row) []Run {
	var runs []Run
	var cur *Run

	for i, row := range rows {
		if !row.HazardAdj {
			cur = nil
			continue
		}
		if cur != nil && i > 0 && rows[i-1].Position+1 == row.Position {
			cur.End = row.Position
			cur.Length++
			continue
		}
		runs = append(runs, Run{Start: row.Position, End: row.Position, Length: 1, StartLine: row.Line})
		cur = &runs[len(runs)-1]
	}
	return runs
}

// Summary projects the statistics onto the report summary fields.
func (s Stats) Summary() trace.Summary {
	return trace.Summary{
		Tokens:              s.Tokens,
		KernelContacts:      s.KernelContacts,
		HazardAdjacent:      s.HazardAdjacent,
		NavigationSequences: s.NavigationSequences,
	}
}

// Classes returns the class labels ordered by descending count, then label.
func (s Stats) Classes() []trace.Class {
	out := make([]trace.Class, 0, len(s.ClassCounts))
	for c := range s.ClassCounts {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ClassCounts[out[i]] != s.ClassCounts[out[j]] {
			return s.ClassCounts[out[i]] > s.ClassCounts[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// Mismatch is a declared statistic that disagrees with its recomputed value.
type Mismatch struct {
	Stat     string
	Declared int
	Computed int
	Line     int
}

// Compare returns the declared statistics of sum that differ from s.
// Undeclared statistics are skipped.
func (s Stats) Compare(sum trace.Summary) []Mismatch {
	pairs := []struct {
		stat     string
		declared int
		computed int
	}{
		{trace.StatTokens, sum.Tokens, s.Tokens},
		{trace.StatKernelContacts, sum.KernelContacts, s.KernelContacts},
		{trace.StatHazardAdjacent, sum.HazardAdjacent, s.HazardAdjacent},
		{trace.StatNavigationSequences, sum.NavigationSequences, s.NavigationSequences},
	}

	var out []Mismatch
	for _, p := range pairs {
		if p.declared == trace.NoValue || p.declared == p.computed {
			continue
		}
		out = append(out, Mismatch{Stat: p.stat, Declared: p.declared, Computed: p.computed, Line: sum.Lines[p.stat]})
	}
	return out
}
