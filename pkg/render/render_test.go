package render

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

const body = `# Control Trace: f1r

| Position | Token | Class | K_Dist | H_Dist | E_Dist | Min_Dist | Hazard_Adj | Hazard_Class | Cycle | Notes |
|---|---|---|---|---|---|---|---|---|---|---|
| 1 | fachys | CLASS_07 | 3 | 3 | 1 | 1 | Y | PHASE_ORDERING | 1.1 | |
| 2 | ykal | CLASS_12 | 1 | 3 | 3 | 1 | Y | PHASE_ORDERING | 1.1 | |
| 3 | ar | CLASS_12 | 3 | 3 | 3 | 3 | N | - | 1.2 | |

## Summary Statistics

- Total tokens: 3
- Kernel contacts (Min_Dist <= 1): 5
`

func lineWith(t *testing.T, out, prefix string) string {
	t.Helper()
	for _, l := range strings.Split(out, "\n") {
		if strings.HasPrefix(l, prefix) {
			return strings.TrimRight(l, " ")
		}
	}
	t.Fatalf("no line starting with %q in:\n%s", prefix, out)
	return ""
}

func TestSummary_PlainFlagsMismatches(t *testing.T) {
	rep, err := trace.Parse(strings.NewReader(body), "reports/f1r.md")
	require.NoError(t, err)
	st := tracestats.ForReport(rep, tracestats.DefaultOptions())

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, []*trace.Report{rep}, []tracestats.Stats{st}, Options{Plain: true, TopClasses: 1}))
	out := buf.String()

	assert.NotContains(t, out, "\x1b[")
	assert.Equal(t, "f1r  reports/f1r.md", lineWith(t, out, "f1r"))
	assert.Equal(t, "tokens                3", lineWith(t, out, "tokens"))
	assert.Equal(t, "kernel contacts       2  (declared 5)", lineWith(t, out, "kernel contacts"))
	assert.Equal(t, "hazard adjacent       2", lineWith(t, out, "hazard adjacent"))
	assert.Equal(t, "longest run           2", lineWith(t, out, "longest run"))
	assert.Equal(t, "classes               CLASS_12×2", lineWith(t, out, "classes"))
	assert.NotContains(t, out, "no Summary Statistics")
}

func TestSummary_RejectsMismatchedInputs(t *testing.T) {
	err := Summary(&bytes.Buffer{}, []*trace.Report{{}}, nil, Options{Plain: true})
	assert.Error(t, err)
}

func TestSummary_StyledOutputKeepsValues(t *testing.T) {
	rep, err := trace.Parse(strings.NewReader(body), "reports/f1r.md")
	require.NoError(t, err)
	rep.HasSummary = false

	var buf bytes.Buffer
	require.NoError(t, Summary(&buf, []*trace.Report{rep}, []tracestats.Stats{tracestats.ForReport(rep, tracestats.Options{})}, Options{}))
	assert.Contains(t, buf.String(), "f1r")
	assert.Contains(t, buf.String(), "no Summary Statistics section")
}
