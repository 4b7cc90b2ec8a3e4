// Package tracecheck runs sanity checks over parsed control-trace reports and
// reports problems as SARIF results.
package tracecheck

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dkoosis/tracekit/pkg/rules"
	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

// DriverName is the SARIF tool name for lint runs.
const DriverName = "tracekit"

// Rule IDs.
const (
	RuleParse              = "trace-parse"
	RulePositionOrder      = "trace-position-order"
	RulePositionStart      = "trace-position-start"
	RulePositionGap        = "trace-position-gap"
	RuleHazardClass        = "trace-hazard-class"
	RuleHazardClassUnknown = "trace-hazard-class-unknown"
	RuleClassLabel         = "trace-class-label"
	RuleMinDist            = "trace-min-dist"
	RuleCycleOrder         = "trace-cycle-order"
	RuleSummaryMissing     = "trace-summary-missing"
	RuleSummaryMismatch    = "trace-summary-mismatch"
	RuleBackupCopy         = "trace-backup-copy"
)

// Rules documents every rule with its default level.
var Rules = []sarif.ReportingDescriptor{
	descriptor(RuleParse, sarif.LevelError, "table row could not be parsed"),
	descriptor(RulePositionOrder, sarif.LevelError, "positions must be unique and strictly increasing"),
	descriptor(RulePositionStart, sarif.LevelWarning, "positions should start at 1"),
	descriptor(RulePositionGap, sarif.LevelNote, "positions should increase by one"),
	descriptor(RuleHazardClass, sarif.LevelWarning, "hazard-adjacent rows should carry a hazard class"),
	descriptor(RuleHazardClassUnknown, sarif.LevelWarning, "hazard class outside the configured closed set"),
	descriptor(RuleClassLabel, sarif.LevelWarning, "class must be CLASS_NN or UNKNOWN"),
	descriptor(RuleMinDist, sarif.LevelNote, "Min_Dist differs from min(K_Dist, H_Dist, E_Dist)"),
	descriptor(RuleCycleOrder, sarif.LevelWarning, "cycle index should increment consistently"),
	descriptor(RuleSummaryMissing, sarif.LevelWarning, "report has no Summary Statistics section"),
	descriptor(RuleSummaryMismatch, sarif.LevelError, "declared summary statistic differs from the table"),
	descriptor(RuleBackupCopy, sarif.LevelWarning, "backup or editor copy of a report"),
}

func descriptor(id, level, text string) sarif.ReportingDescriptor {
	return sarif.ReportingDescriptor{ID: id, DefaultLevel: level, ShortDescription: &sarif.Message{Text: text}}
}

var defaultLevels = func() map[string]string {
	m := make(map[string]string, len(Rules))
	for _, r := range Rules {
		m[r.ID] = r.DefaultLevel
	}
	return m
}()

// Run checks every report and returns a SARIF log with sorted results.
// extra results, such as those from Unreadable, are merged in before sorting.
func Run(reports []*trace.Report, cfg rules.Config, extra ...sarif.Result) *sarif.Log {
	results := append([]sarif.Result(nil), extra...)
	for _, rep := range reports {
		results = append(results, CheckReport(rep, cfg)...)
	}
	sarif.SortResults(results)

	run := sarif.NewRun(DriverName, results)
	run.Tool.Driver.Rules = Rules

	log := sarif.NewLog()
	log.Runs = append(log.Runs, run)
	return log
}

// CheckReport applies all enabled checks to one report.
func CheckReport(rep *trace.Report, cfg rules.Config) []sarif.Result {
	c := &checker{rep: rep, cfg: cfg}

	for _, issue := range rep.Issues {
		c.add(RuleParse, issue.Line, nil, "line %d: %s", issue.Line, issue.Msg)
	}

	c.checkPositions()
	c.checkRows()
	c.checkCycles()
	c.checkSummary()

	return c.results
}

// Unreadable reports a file whose token table could not be read at all.
func Unreadable(path string, err error, cfg rules.Config) []sarif.Result {
	c := &checker{rep: &trace.Report{Path: filepath.ToSlash(path)}, cfg: cfg}
	c.add(RuleParse, 0, nil, "%v", err)
	return c.results
}

type checker struct {
	rep     *trace.Report
	cfg     rules.Config
	results []sarif.Result
}

func (c *checker) add(ruleID string, line int, props map[string]any, format string, args ...any) {
	if !c.cfg.Enabled(ruleID) {
		return
	}
	res := sarif.NewResult(ruleID, c.cfg.Level(ruleID, defaultLevels[ruleID]), fmt.Sprintf(format, args...), c.rep.Path, line)
	res.Properties = props
	c.results = append(c.results, res)
}

func (c *checker) checkPositions() {
	rows := c.rep.Rows
	if len(rows) == 0 {
		return
	}
	if rows[0].Position != 1 {
		c.add(RulePositionStart, rows[0].Line, nil, "first position is %d, expected 1", rows[0].Position)
	}

	seen := make(map[int]int, len(rows))
	for i, row := range rows {
		if firstLine, dup := seen[row.Position]; dup {
			c.add(RulePositionOrder, row.Line, map[string]any{"position": row.Position, "firstLine": firstLine},
				"position %d repeats (first seen on line %d)", row.Position, firstLine)
			continue
		}
		seen[row.Position] = row.Line
		if i == 0 {
			continue
		}

		prev := rows[i-1].Position
		switch {
		case row.Position < prev:
			c.add(RulePositionOrder, row.Line, map[string]any{"position": row.Position, "previous": prev},
				"position %d follows %d; positions must increase", row.Position, prev)
		case row.Position > prev+1:
			c.add(RulePositionGap, row.Line, map[string]any{"position": row.Position, "previous": prev},
				"position jumps from %d to %d", prev, row.Position)
		}
	}
}

func (c *checker) checkRows() {
	for _, row := range c.rep.Rows {
		if row.HazardAdj && row.HazardClass == "" {
			c.add(RuleHazardClass, row.Line, map[string]any{"position": row.Position},
				"position %d (%s) is hazard-adjacent but Hazard_Class is %q", row.Position, row.Token, trace.NoHazard)
		}
		if row.HazardClass != "" && !c.cfg.KnownHazardClass(row.HazardClass) {
			c.add(RuleHazardClassUnknown, row.Line, map[string]any{"position": row.Position, "hazardClass": row.HazardClass},
				"position %d has hazard class %q outside [%s]", row.Position, row.HazardClass, strings.Join(c.cfg.HazardClasses, ", "))
		}
		if !row.Class.Valid() {
			c.add(RuleClassLabel, row.Line, map[string]any{"position": row.Position, "class": string(row.Class)},
				"position %d has class %q; expected CLASS_NN or %s", row.Position, row.Class, trace.ClassUnknown)
		}
		if want := row.MinOfDistances(); row.MinDist != want {
			c.add(RuleMinDist, row.Line, map[string]any{"position": row.Position, "declared": row.MinDist, "computed": want},
				"position %d has Min_Dist %d but min(K_Dist, H_Dist, E_Dist) is %d", row.Position, row.MinDist, want)
		}
	}
}

// checkCycles expects cycles to be non-decreasing with the major index moving
// by at most one at a time; the minor index may only fall when the major rises.
func (c *checker) checkCycles() {
	rows := c.rep.Rows
	for i := 1; i < len(rows); i++ {
		prev, cur := rows[i-1].Cycle, rows[i].Cycle
		props := map[string]any{"position": rows[i].Position, "previous": prev.String(), "cycle": cur.String()}
		switch {
		case cur.Less(prev) && cur.Major == prev.Major:
			c.add(RuleCycleOrder, rows[i].Line, props, "cycle %s follows %s without a new major cycle", cur, prev)
		case cur.Less(prev):
			c.add(RuleCycleOrder, rows[i].Line, props, "cycle %s goes back from %s", cur, prev)
		case cur.Major > prev.Major+1:
			c.add(RuleCycleOrder, rows[i].Line, props, "cycle jumps from %s to %s", prev, cur)
		}
	}
}

func (c *checker) checkSummary() {
	if !c.rep.HasSummary {
		c.add(RuleSummaryMissing, 0, nil, "%s has no Summary Statistics section", c.rep.Folio)
		return
	}

	st := tracestats.Compute(c.rep.Rows, c.cfg.StatsOptions())
	for _, m := range st.Compare(c.rep.Declared) {
		line := m.Line
		if line == 0 {
			line = c.rep.SummaryLine
		}
		c.add(RuleSummaryMismatch, line, map[string]any{"statistic": m.Stat, "declared": m.Declared, "computed": m.Computed},
			"%s declares %s = %d but the table gives %d", c.rep.Folio, strings.ReplaceAll(m.Stat, "_", " "), m.Declared, m.Computed)
	}
}
