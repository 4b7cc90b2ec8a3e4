// Package render prints recomputed trace statistics for terminals.
package render

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/dkoosis/tracekit/pkg/trace"
	"github.com/dkoosis/tracekit/pkg/tracestats"
)

var (
	accent      = lipgloss.Color("#8BC34A")
	muted       = lipgloss.Color("#6b7280")
	destructive = lipgloss.Color("#e53935")
	border      = lipgloss.Color("#2a3850")
)

// Options control rendering.
type Options struct {
	// Plain disables colour and borders.
	Plain bool
	// TopClasses limits the class line; zero hides it.
	TopClasses int
}

type styles struct {
	block    lipgloss.Style
	title    lipgloss.Style
	path     lipgloss.Style
	label    lipgloss.Style
	value    lipgloss.Style
	mismatch lipgloss.Style
}

func newStyles(w io.Writer, plain bool) styles {
	if plain {
		s := lipgloss.NewStyle()
		return styles{block: s, title: s, path: s, label: s, value: s, mismatch: s}
	}
	r := lipgloss.NewRenderer(w)
	return styles{
		block: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(border).
			Padding(0, 1),
		title:    r.NewStyle().Foreground(accent).Bold(true),
		path:     r.NewStyle().Foreground(muted).Italic(true),
		label:    r.NewStyle().Foreground(muted),
		value:    r.NewStyle().Bold(true),
		mismatch: r.NewStyle().Foreground(destructive).Bold(true),
	}
}

const labelWidth = 22

// Summary writes one block per report. stats[i] must describe reports[i].
// Declared statistics that disagree with the table are flagged.
func Summary(w io.Writer, reports []*trace.Report, stats []tracestats.Stats, opts Options) error {
	if len(reports) != len(stats) {
		return fmt.Errorf("render: %d reports but %d stats", len(reports), len(stats))
	}
	st := newStyles(w, opts.Plain)

	for i, rep := range reports {
		block := renderBlock(st, rep, stats[i], opts)
		if _, err := fmt.Fprintln(w, st.block.Render(block)); err != nil {
			return err
		}
	}
	return nil
}

func renderBlock(st styles, rep *trace.Report, s tracestats.Stats, opts Options) string {
	mismatches := map[string]tracestats.Mismatch{}
	for _, m := range s.Compare(rep.Declared) {
		mismatches[m.Stat] = m
	}

	lines := []string{st.title.Render(rep.Folio) + "  " + st.path.Render(rep.Path)}
	line := func(label, stat string, v int) {
		text := st.label.Render(fmt.Sprintf("%-*s", labelWidth, label)) + st.value.Render(fmt.Sprintf("%d", v))
		if m, ok := mismatches[stat]; ok {
			text += "  " + st.mismatch.Render(fmt.Sprintf("(declared %d)", m.Declared))
		}
		lines = append(lines, text)
	}

	line("tokens", trace.StatTokens, s.Tokens)
	line("kernel contacts", trace.StatKernelContacts, s.KernelContacts)
	line("hazard adjacent", trace.StatHazardAdjacent, s.HazardAdjacent)
	line("navigation sequences", trace.StatNavigationSequences, s.NavigationSequences)
	line("longest run", "", s.LongestRun)
	if !rep.HasSummary {
		lines = append(lines, st.mismatch.Render("no Summary Statistics section"))
	}

	if opts.TopClasses > 0 {
		classes := s.Classes()
		if len(classes) > opts.TopClasses {
			classes = classes[:opts.TopClasses]
		}
		parts := make([]string, 0, len(classes))
		for _, c := range classes {
			parts = append(parts, fmt.Sprintf("%s×%d", c, s.ClassCounts[c]))
		}
		if len(parts) > 0 {
			lines = append(lines, st.label.Render(fmt.Sprintf("%-*s", labelWidth, "classes"))+strings.Join(parts, " "))
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
