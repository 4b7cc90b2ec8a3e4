package tracestore

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

const header = "| Position | Token | Class | K_Dist | H_Dist | E_Dist | Min_Dist | Hazard_Adj | Hazard_Class | Cycle | Notes |\n" +
	"|---|---|---|---|---|---|---|---|---|---|---|\n"

func mustParse(t *testing.T, path, folio, rows string) *trace.Report {
	t.Helper()
	rep, err := trace.Parse(strings.NewReader("# Control Trace: "+folio+"\n\n"+header+rows), path)
	require.NoError(t, err)
	return rep
}

func openStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "trace.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func ingest(t *testing.T, s *Store, rep *trace.Report) bool {
	t.Helper()
	changed, err := s.Ingest(context.Background(), rep, tracestats.ForReport(rep, tracestats.DefaultOptions()))
	require.NoError(t, err)
	return changed
}

func TestStore_IngestReplacesByPath(t *testing.T) {
	ctx := context.Background()
	s := openStore(t)
	fixed := time.Date(2025, 12, 3, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	first := mustParse(t, "reports/f1r.md", "f1r",
		"| 1 | fachys | CLASS_07 | 3 | 3 | 1 | 1 | N | - | 1.1 | |\n"+
			"| 2 | ykal | CLASS_12 | 1 | 3 | 3 | 1 | Y | PHASE_ORDERING | 1.1 | |\n")
	assert.True(t, ingest(t, s, first))
	assert.False(t, ingest(t, s, first), "same content should not count as a change")

	second := mustParse(t, "reports/f1r.md", "f1r",
		"| 1 | fachys | CLASS_07 | 3 | 3 | 1 | 1 | N | - | 1.1 | |\n"+
			"| 2 | ykal | CLASS_12 | 1 | 3 | 3 | 1 | Y | PHASE_ORDERING | 1.1 | |\n"+
			"| 3 | ar | UNKNOWN | 3 | 3 | 3 | 3 | Y | PHASE_ORDERING | 1.2 | LOOP |\n")
	assert.True(t, ingest(t, s, second))
	ingest(t, s, mustParse(t, "reports/f2v.md", "f2v", "| 1 | chol | CLASS_12 | 2 | 2 | 2 | 2 | N | - | 1.1 | |\n"))

	reports, err := s.Reports(ctx)
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "f1r", reports[0].Folio)
	assert.Equal(t, 3, reports[0].Tokens)
	assert.Equal(t, 2, reports[0].KernelContacts)
	assert.Equal(t, 2, reports[0].HazardAdjacent)
	assert.Equal(t, fixed, reports[0].IngestedAt)
	assert.Len(t, reports[0].Digest, 64)

	rows, err := s.Rows(ctx, "f1r")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, trace.ClassUnknown, rows[2].Class)
	assert.Equal(t, trace.Cycle{Major: 1, Minor: 2}, rows[2].Cycle)
	assert.True(t, rows[2].HazardAdj)
	assert.Equal(t, "LOOP", rows[2].Notes)
	assert.Empty(t, rows[0].HazardClass)

	_, err = s.Rows(ctx, "f99")
	assert.ErrorIs(t, err, ErrNotFound)

	freq, err := s.ClassFrequencies(ctx)
	require.NoError(t, err)
	assert.Equal(t, []ClassCount{
		{Class: "CLASS_12", Count: 2},
		{Class: "CLASS_07", Count: 1},
		{Class: trace.ClassUnknown, Count: 1},
	}, freq)

	snap, err := s.Snapshot(ctx, fixed)
	require.NoError(t, err)
	assert.Equal(t, "2025-W49", snap.Week)
	assert.Equal(t, FolioStats{Folio: "f2v", Tokens: 1}, snap.Folios["reports/f2v.md"])
}

func TestDigest_IgnoresFormatting(t *testing.T) {
	a := mustParse(t, "a.md", "f1r", "| 1 | fachys | CLASS_07 | 3 | 3 | 1 | 1 | N | - | 1.1 | |\n")
	b := mustParse(t, "b.md", "f1r", "|1|fachys|CLASS_07|3|3|1|1|n||1.1||\n")

	da, err := Digest(a)
	require.NoError(t, err)
	db, err := Digest(b)
	require.NoError(t, err)
	assert.Equal(t, da, db)
}
