// Package trace models control-trace reports: per-folio Markdown token tables
// followed by a Summary Statistics section.
package trace

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Canonical column names, in the order Write emits them.
const (
	ColPosition    = "Position"
	ColToken       = "Token"
	ColClass       = "Class"
	ColKDist       = "K_Dist"
	ColHDist       = "H_Dist"
	ColEDist       = "E_Dist"
	ColMinDist     = "Min_Dist"
	ColHazardAdj   = "Hazard_Adj"
	ColHazardClass = "Hazard_Class"
	ColCycle       = "Cycle"
	ColNotes       = "Notes"
)

// Columns lists the canonical table header.
var Columns = []string{
	ColPosition, ColToken, ColClass, ColKDist, ColHDist, ColEDist,
	ColMinDist, ColHazardAdj, ColHazardClass, ColCycle, ColNotes,
}

// NoHazard is the placeholder a report uses for an empty Hazard_Class.
const NoHazard = "-"

// NoValue marks a summary statistic the report did not declare.
const NoValue = -1

var (
	// ErrNoTable is returned when a file has no token table.
	ErrNoTable = errors.New("no control trace table found")
	// ErrMissingColumn is returned when the token table lacks a required column.
	ErrMissingColumn = errors.New("missing required column")
)

// Class is a token classification label such as CLASS_12 or UNKNOWN.
type Class string

// ClassUnknown is the label for unclassified tokens.
const ClassUnknown Class = "UNKNOWN"

var classPattern = regexp.MustCompile(`^CLASS_\d+$`)

// Valid reports whether c is CLASS_<digits> or UNKNOWN.
func (c Class) Valid() bool {
	return c == ClassUnknown || classPattern.MatchString(string(c))
}

// Cycle is the dotted N.M cycle index of a row.
type Cycle struct {
	Major int
	Minor int
}

// ParseCycle parses "N.M".
func ParseCycle(s string) (Cycle, error) {
	majorStr, minorStr, ok := strings.Cut(strings.TrimSpace(s), ".")
	if !ok {
		return Cycle{}, fmt.Errorf("cycle %q is not dotted N.M", s)
	}
	major, err := strconv.Atoi(majorStr)
	if err != nil || major < 0 {
		return Cycle{}, fmt.Errorf("cycle %q has invalid major part", s)
	}
	minor, err := strconv.Atoi(minorStr)
	if err != nil || minor < 0 {
		return Cycle{}, fmt.Errorf("cycle %q has invalid minor part", s)
	}
	return Cycle{Major: major, Minor: minor}, nil
}

func (c Cycle) String() string {
	return fmt.Sprintf("%d.%d", c.Major, c.Minor)
}

// MarshalText renders the cycle as N.M.
func (c Cycle) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText parses N.M.
func (c *Cycle) UnmarshalText(text []byte) error {
	parsed, err := ParseCycle(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// Less orders cycles by major then minor.
func (c Cycle) Less(o Cycle) bool {
	if c.Major != o.Major {
		return c.Major < o.Major
	}
	return c.Minor < o.Minor
}

// Row is one line of the token table.
type Row struct {
	Line        int    `json:"line"`
	Position    int    `json:"position"`
	Token       string `json:"token"`
	Class       Class  `json:"class"`
	KDist       int    `json:"k_dist"`
	HDist       int    `json:"h_dist"`
	EDist       int    `json:"e_dist"`
	MinDist     int    `json:"min_dist"`
	HazardAdj   bool   `json:"hazard_adj"`
	HazardClass string `json:"hazard_class,omitempty"`
	Cycle       Cycle  `json:"cycle"`
	Notes       string `json:"notes,omitempty"`
}

// MinOfDistances returns min(K_Dist, H_Dist, E_Dist).
func (r Row) MinOfDistances() int {
	return min(r.KDist, r.HDist, r.EDist)
}

var tagSeparators = regexp.MustCompile(`[,;+/]`)

// Tags splits Notes into its tag combination.
func (r Row) Tags() []string {
	if strings.TrimSpace(r.Notes) == "" {
		return nil
	}
	var tags []string
	for _, part := range tagSeparators.Split(r.Notes, -1) {
		if t := strings.TrimSpace(part); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

// Summary holds the Summary Statistics of a report.
type Summary struct {
	Tokens              int               `json:"tokens"`
	KernelContacts      int               `json:"kernel_contacts"`
	HazardAdjacent      int               `json:"hazard_adjacent"`
	NavigationSequences int               `json:"navigation_sequences"`
	Extra               map[string]string `json:"extra,omitempty"`

	// Lines records where each declared statistic was read, keyed by field name.
	Lines map[string]int `json:"-"`
}

// NewSummary returns a summary with every statistic undeclared.
func NewSummary() Summary {
	return Summary{
		Tokens:              NoValue,
		KernelContacts:      NoValue,
		HazardAdjacent:      NoValue,
		NavigationSequences: NoValue,
	}
}

// ParseIssue is a table row that could not be read.
type ParseIssue struct {
	Line int
	Msg  string
}

// Report is a parsed control-trace report.
type Report struct {
	Path  string
	Title string
	Folio string

	Header      []string
	HeaderLine  int
	Rows        []Row
	Issues      []ParseIssue
	Declared    Summary
	HasSummary  bool
	SummaryLine int
}

// Positions returns the row positions in table order.
func (r *Report) Positions() []int {
	out := make([]int, len(r.Rows))
	for i, row := range r.Rows {
		out[i] = row.Position
	}
	return out
}
