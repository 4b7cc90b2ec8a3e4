package cli

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/dkoosis/tracekit/pkg/jsonl"
	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/tracecheck"
	"github.com/dkoosis/tracekit/pkg/tracestats"
	"github.com/dkoosis/tracekit/pkg/tracestore"
)

const table = "| Position | Token | Class | K_Dist | H_Dist | E_Dist | Min_Dist | Hazard_Adj | Hazard_Class | Cycle | Notes |\n" +
	"|---|---|---|---|---|---|---|---|---|---|---|\n" +
	"| 1 | fachys | CLASS_07 | 3 | 3 | 1 | 1 | N | - | 1.1 | KERNEL_CONTACT |\n" +
	"| 2 | ykal | CLASS_12 | 1 | 3 | 3 | 1 | Y | PHASE_ORDERING | 1.1 | KERNEL_CONTACT |\n" +
	"| 3 | ar | UNKNOWN | 3 | 1 | 3 | 1 | Y | PHASE_ORDERING | 1.2 | |\n" +
	"| 4 | ataiin | CLASS_03 | 3 | 3 | 3 | 3 | Y | CONTAINMENT_TIMING | 1.2 | |\n" +
	"| 5 | shol | CLASS_12 | 3 | 3 | 3 | 3 | N | - | 2.1 | |\n"

const cleanReport = "# Control Trace: f1r\n\n" + table +
	"\n## Summary Statistics\n\n" +
	"- Total tokens: 5\n" +
	"- Kernel contacts (Min_Dist <= 1): 3\n" +
	"- Hazard-adjacent transitions: 3\n" +
	"- Navigation sequences (3+ consecutive hazard-adjacent): 1\n"

// isolate points HOME at an empty directory so no user config is read.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	return home
}

func writeFile(t *testing.T, path, body string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func decodeSARIF(t *testing.T, out string) *sarif.Log {
	t.Helper()
	var log sarif.Log
	require.NoError(t, json.Unmarshal([]byte(out), &log))
	require.Len(t, log.Runs, 1)
	return &log
}

func TestLint_CleanReportsPass(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f1r.md"), cleanReport)
	writeFile(t, filepath.Join(dir, "README.md"), "# Notes\n\nNo table here.\n")
	writeFile(t, filepath.Join(dir, ".drafts", "f9r.md"), "| Position | Token |\n|---|---|\n")

	out, err := run(t, "lint", "--jobs", "2", dir)
	require.NoError(t, err)

	log := decodeSARIF(t, out)
	assert.Equal(t, sarif.Version, log.Version)
	assert.Equal(t, tracecheck.DriverName, log.Runs[0].Tool.Driver.Name)
	assert.Empty(t, log.Runs[0].Results)
}

func TestLint_ReportsFindingsAndFails(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	bad := strings.Replace(cleanReport, "Kernel contacts (Min_Dist <= 1): 3", "Kernel contacts (Min_Dist <= 1): 4", 1)
	badPath := writeFile(t, filepath.Join(dir, "f1r.md"), bad)
	brokenPath := writeFile(t, filepath.Join(dir, "f2v.md"), "| Position | Token |\n|---|---|\n| 1 | a |\n")

	out, err := run(t, "lint", dir)
	require.ErrorIs(t, err, ErrFindings)

	results := decodeSARIF(t, out).Runs[0].Results
	require.Len(t, results, 2)
	assert.Equal(t, tracecheck.RuleSummaryMismatch, results[0].RuleID)
	assert.Equal(t, filepath.ToSlash(badPath), results[0].URI())
	assert.Equal(t, 14, results[0].Line())
	assert.Equal(t, tracecheck.RuleParse, results[1].RuleID)
	assert.Equal(t, filepath.ToSlash(brokenPath), results[1].URI())
	assert.Contains(t, results[1].Message.Text, "missing required column")
}

func TestLint_RulesFileDowngradesFindings(t *testing.T) {
	home := isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f1r.md"), strings.Replace(cleanReport, "Total tokens: 5", "Total tokens: 6", 1))
	rulesPath := writeFile(t, filepath.Join(home, "rules.yml"), "rules:\n  trace-summary-mismatch:\n    level: warning\n")

	out, err := run(t, "lint", "--rules", rulesPath, dir)
	require.NoError(t, err)
	results := decodeSARIF(t, out).Runs[0].Results
	require.Len(t, results, 1)
	assert.Equal(t, sarif.LevelWarning, results[0].Level)

	t.Setenv("TRACEKIT_RULES", filepath.Join(home, "missing.yml"))
	_, err = run(t, "lint", dir)
	assert.ErrorContains(t, err, "read rules")
}

func TestStats_JSONAndText(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "f1r.md"), cleanReport)

	out, err := run(t, "stats", "--json", dir)
	require.NoError(t, err)
	var stats []tracestats.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &stats))
	require.Len(t, stats, 1)
	assert.Equal(t, "f1r", stats[0].Folio)
	assert.Equal(t, 3, stats[0].KernelContacts)
	assert.Equal(t, 1, stats[0].NavigationSequences)
	assert.Equal(t, 3, stats[0].LongestRun)

	out, err = run(t, "stats", "--plain", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "navigation sequences  1")
	assert.NotContains(t, out, "declared")

	_, err = run(t, "stats")
	assert.Error(t, err)
}

func TestFmt_RecomputesSummary(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	messy := strings.Replace(cleanReport, "- Hazard-adjacent transitions: 3\n", "- **Hazard-adjacent transitions:** 9\n", 1)
	path := writeFile(t, filepath.Join(dir, "f1r.md"), messy)

	out, err := run(t, "fmt", path)
	require.NoError(t, err)
	assert.Equal(t, cleanReport, out)

	_, err = run(t, "fmt", "--write", path)
	require.NoError(t, err)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cleanReport, string(data))
}

func TestFmt_LabelsFollowRuleThresholds(t *testing.T) {
	home := isolate(t)
	dir := t.TempDir()
	path := writeFile(t, filepath.Join(dir, "f1r.md"), cleanReport)
	rulesPath := writeFile(t, filepath.Join(home, "rules.yml"), "kernel_threshold: 2\nmin_run_length: 4\n")

	out, err := run(t, "fmt", "--rules", rulesPath, path)
	require.NoError(t, err)
	assert.Contains(t, out, "- Kernel contacts (Min_Dist <= 2): 3\n")
	assert.Contains(t, out, "- Navigation sequences (4+ consecutive hazard-adjacent): 0\n")
	assert.NotContains(t, out, "Min_Dist <= 1")
}

func TestFmt_WriteLeavesReportsWithBadRowsUntouched(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	broken := strings.Replace(cleanReport, "| 3 | ar | UNKNOWN | 3 | 1 | 3 | 1 | Y |", "| 3 | ar | UNKNOWN | 3 | 1 | 3 | 1 | maybe |", 1)
	brokenPath := writeFile(t, filepath.Join(dir, "f1r.md"), broken)
	messy := strings.Replace(cleanReport, "Total tokens: 5", "**Total tokens:** 5", 1)
	okPath := writeFile(t, filepath.Join(dir, "f2v.md"), messy)

	_, err := run(t, "fmt", "--write", dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), filepath.ToSlash(brokenPath)+": unparseable rows at line 7")

	data, err := os.ReadFile(brokenPath)
	require.NoError(t, err)
	assert.Equal(t, broken, string(data))
	assert.Contains(t, string(data), "| ar |")

	data, err = os.ReadFile(okPath)
	require.NoError(t, err)
	assert.Equal(t, cleanReport, string(data), "other reports are still formatted")

	out, err := run(t, "fmt", brokenPath)
	require.NoError(t, err)
	assert.NotContains(t, out, "| ar |")
}

func TestExportThenValidate(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reports", "f1r.md"), cleanReport)
	rowsPath := filepath.Join(dir, "rows.jsonl")
	schemaPath := filepath.Join(dir, "row.schema.json")

	_, err := run(t, "export", "--out", rowsPath, "--schema", schemaPath, filepath.Join(dir, "reports"))
	require.NoError(t, err)

	f, err := os.Open(rowsPath)
	require.NoError(t, err)
	records, err := jsonl.ReadRecords(f)
	require.NoError(t, f.Close())
	require.NoError(t, err)
	require.Len(t, records, 5)
	assert.Equal(t, "f1r", records[0].Folio)
	assert.Equal(t, []string{"KERNEL_CONTACT"}, records[0].Tags)

	out, err := run(t, "validate", rowsPath)
	require.NoError(t, err)
	assert.Empty(t, decodeSARIF(t, out).Runs[0].Results)

	badPath := writeFile(t, filepath.Join(dir, "bad.jsonl"), `{"folio":"f1r"}`+"\n")
	out, err = run(t, "validate", "--schema", schemaPath, badPath)
	require.ErrorIs(t, err, ErrFindings)
	results := decodeSARIF(t, out).Runs[0].Results
	require.Len(t, results, 1)
	assert.Equal(t, jsonl.RuleSchema, results[0].RuleID)

	_, err = run(t, "export", filepath.Join(dir, "reports"))
	assert.ErrorContains(t, err, "--out is required")
}

func TestIngestStatsAndDrift(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	reportPath := writeFile(t, filepath.Join(dir, "reports", "f1r.md"), cleanReport)
	dbPath := filepath.Join(dir, "trace.db")
	historyPath := filepath.Join(dir, "history.json")

	out, err := run(t, "ingest", "--db", dbPath, filepath.Join(dir, "reports"))
	require.NoError(t, err)
	assert.Contains(t, out, "ingested 1 reports (1 changed)")

	out, err = run(t, "stats", "--from-db", "--json", "--db", dbPath)
	require.NoError(t, err)
	var stored struct {
		Reports []tracestore.ReportInfo `json:"reports"`
		Classes []tracestore.ClassCount `json:"classes"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stored))
	require.Len(t, stored.Reports, 1)
	assert.Equal(t, 5, stored.Reports[0].Tokens)
	assert.Equal(t, tracestore.ClassCount{Class: "CLASS_12", Count: 2}, stored.Classes[0])

	out, err = run(t, "stats", "--from-db", "--db", dbPath)
	require.NoError(t, err)
	assert.Contains(t, out, "FOLIO")
	assert.Contains(t, out, "CLASS_12")

	out, err = run(t, "db-check", "--db", dbPath)
	require.NoError(t, err)
	assert.Empty(t, decodeSARIF(t, out).Runs[0].Results)

	old := time.Date(2000, 1, 5, 0, 0, 0, 0, time.UTC)
	require.NoError(t, tracestore.SaveHistory(historyPath, tracestore.History{Snapshots: []tracestore.Snapshot{{
		Timestamp: old,
		Week:      tracestore.ISOWeek(old),
		Folios: map[string]tracestore.FolioStats{
			filepath.ToSlash(reportPath): {Folio: "f1r", Tokens: 10, KernelContacts: 3, HazardAdjacent: 3, NavigationSequences: 1},
		},
	}}}))

	t.Setenv("TRACEKIT_DB", dbPath)
	out, err = run(t, "drift", "--history", historyPath, "--threshold", "20")
	require.NoError(t, err)
	results := decodeSARIF(t, out).Runs[0].Results
	require.Len(t, results, 1)
	assert.Equal(t, tracestore.RuleStatDrift, results[0].RuleID)
	assert.Contains(t, results[0].Message.Text, "tokens: 10 → 5")

	history, err := tracestore.LoadHistory(historyPath)
	require.NoError(t, err)
	assert.Len(t, history.Snapshots, 2)

	_, err = run(t, "drift", "--history", historyPath, "--dry-run")
	require.NoError(t, err)
	history, err = tracestore.LoadHistory(historyPath)
	require.NoError(t, err)
	assert.Len(t, history.Snapshots, 2)
}

func TestDBCheck_ReportsDroppedTableAndIngestRefuses(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "reports", "f1r.md"), cleanReport)
	dbPath := filepath.Join(dir, "trace.db")

	_, err := run(t, "ingest", "--db", dbPath, filepath.Join(dir, "reports"))
	require.NoError(t, err)

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`DROP TABLE rows`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	out, err := run(t, "db-check", "--db", dbPath)
	require.ErrorIs(t, err, ErrFindings)
	results := decodeSARIF(t, out).Runs[0].Results
	require.Len(t, results, 1)
	assert.Equal(t, tracestore.RuleMissingTable, results[0].RuleID)

	_, err = run(t, "ingest", "--db", dbPath, filepath.Join(dir, "reports"))
	require.ErrorIs(t, err, tracestore.ErrSchemaDrift)

	_, err = run(t, "db-check", "--db", filepath.Join(dir, "missing.db"))
	require.ErrorIs(t, err, os.ErrNotExist)
	assert.NoFileExists(t, filepath.Join(dir, "missing.db"))
}

func TestConfigShow_Precedence(t *testing.T) {
	home := isolate(t)
	writeFile(t, filepath.Join(home, ".tracekit.yaml"), "threshold: 25\njobs: 2\nhistory: from-file.json\n")
	t.Setenv("TRACEKIT_JOBS", "6")

	out, err := run(t, "config", "show", "--rules", "cli.yml")
	require.NoError(t, err)

	var got Settings
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, 25.0, got.Threshold)
	assert.Equal(t, 6, got.Jobs)
	assert.Equal(t, "from-file.json", got.History)
	assert.Equal(t, "cli.yml", got.Rules)
	assert.Equal(t, "tracekit.db", got.DB)
	assert.Equal(t, "300ms", got.Debounce)

	explicit := writeFile(t, filepath.Join(home, "other.yaml"), "db: other.db\n")
	out, err = run(t, "--config", explicit, "config", "show")
	require.NoError(t, err)
	require.NoError(t, yaml.Unmarshal([]byte(out), &got))
	assert.Equal(t, "other.db", got.DB)
	assert.Equal(t, 10.0, got.Threshold)

	_, err = run(t, "--config", filepath.Join(home, "missing.yaml"), "config", "show")
	assert.ErrorContains(t, err, "read config")
}

func TestConfigShow_WithRules(t *testing.T) {
	home := isolate(t)
	rulesPath := writeFile(t, filepath.Join(home, "rules.yml"), "min_run_length: 4\n")

	out, err := run(t, "config", "show", "--with-rules", "--rules", rulesPath)
	require.NoError(t, err)
	assert.Contains(t, out, "---\n")
	assert.Contains(t, out, "min_run_length: 4")
}

func TestVersion(t *testing.T) {
	isolate(t)
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "tracekit dev\n", out)
}
