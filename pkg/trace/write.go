package trace

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
)

// Summary labels written by Write. Parse maps each back to its statistic.
const (
	LabelTokens         = "Total tokens"
	LabelHazardAdjacent = "Hazard-adjacent transitions"
)

// Thresholds are the statistic definitions named in the kernel-contact and
// navigation-sequence labels. Zero values mean the glossary defaults.
type Thresholds struct {
	Kernel int // largest Min_Dist counted as kernel contact
	MinRun int // shortest hazard-adjacent run counted as a navigation sequence
}

// KernelLabel is the kernel-contact summary label, e.g. "Kernel contacts (Min_Dist <= 1)".
func (t Thresholds) KernelLabel() string {
	k := t.Kernel
	if k <= 0 {
		k = 1
	}
	return fmt.Sprintf("Kernel contacts (Min_Dist <= %d)", k)
}

// NavigationLabel is the navigation-sequence summary label.
func (t Thresholds) NavigationLabel() string {
	n := t.MinRun
	if n <= 0 {
		n = 3
	}
	return fmt.Sprintf("Navigation sequences (%d+ consecutive hazard-adjacent)", n)
}

// Write renders rep in canonical form with the default thresholds in the
// summary labels.
func Write(w io.Writer, rep *Report, sum Summary) error {
	return WriteThresholds(w, rep, sum, Thresholds{})
}

// WriteThresholds renders rep in canonical form: a title, the token table in
// canonical column order, and a Summary Statistics section built from sum
// whose labels name th.
func WriteThresholds(w io.Writer, rep *Report, sum Summary, th Thresholds) error {
	bw := bufio.NewWriter(w)

	folio := rep.Folio
	if folio == "" {
		folio = folioName(rep.Title, rep.Path)
	}
	fmt.Fprintf(bw, "# Control Trace: %s\n\n", folio)

	fmt.Fprintln(bw, tableLine(Columns))
	seps := make([]string, len(Columns))
	for i := range seps {
		seps[i] = "---"
	}
	fmt.Fprintf(bw, "|%s|\n", strings.Join(seps, "|"))

	for _, row := range rep.Rows {
		fmt.Fprintln(bw, tableLine(rowCells(row)))
	}

	fmt.Fprint(bw, "\n## Summary Statistics\n\n")
	writeStat(bw, LabelTokens, sum.Tokens)
	writeStat(bw, th.KernelLabel(), sum.KernelContacts)
	writeStat(bw, LabelHazardAdjacent, sum.HazardAdjacent)
	writeStat(bw, th.NavigationLabel(), sum.NavigationSequences)

	labels := make([]string, 0, len(sum.Extra))
	for label := range sum.Extra {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Fprintf(bw, "- %s: %s\n", label, sum.Extra[label])
	}

	return bw.Flush()
}

func writeStat(w io.Writer, label string, value int) {
	if value == NoValue {
		return
	}
	fmt.Fprintf(w, "- %s: %d\n", label, value)
}

func rowCells(row Row) []string {
	hazardAdj := "N"
	if row.HazardAdj {
		hazardAdj = "Y"
	}
	hazardClass := row.HazardClass
	if hazardClass == "" {
		hazardClass = NoHazard
	}
	return []string{
		strconv.Itoa(row.Position),
		escapeCell(row.Token),
		escapeCell(string(row.Class)),
		strconv.Itoa(row.KDist),
		strconv.Itoa(row.HDist),
		strconv.Itoa(row.EDist),
		strconv.Itoa(row.MinDist),
		hazardAdj,
		escapeCell(hazardClass),
		row.Cycle.String(),
		escapeCell(row.Notes),
	}
}

// tableLine joins cells into a pipe table row; empty cells render as "| |".
func tableLine(cells []string) string {
	var b strings.Builder
	b.WriteByte('|')
	for _, c := range cells {
		if c != "" {
			b.WriteByte(' ')
			b.WriteString(c)
		}
		b.WriteString(" |")
	}
	return b.String()
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
