package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// Summary field keys used in Summary.Lines.
const (
	StatTokens              = "tokens"
	StatKernelContacts      = "kernel_contacts"
	StatHazardAdjacent      = "hazard_adjacent"
	StatNavigationSequences = "navigation_sequences"
)

var requiredColumns = []string{
	ColPosition, ColToken, ColClass, ColKDist, ColHDist, ColEDist,
	ColMinDist, ColHazardAdj, ColHazardClass, ColCycle,
}

var (
	delimiterPattern = regexp.MustCompile(`^\|?\s*:?-+:?\s*(\|\s*:?-+:?\s*)*\|?$`)
	headingPattern   = regexp.MustCompile(`^(#{1,6})\s+(.*?)\s*#*\s*$`)
	integerPattern   = regexp.MustCompile(`-?\d+`)
	labelCleaner     = regexp.MustCompile(`[^a-z0-9]+`)
)

// ParseFile reads and parses the report at path.
func ParseFile(path string) (*Report, error) {
	f, err := os.Open(path) //nolint:gosec // path supplied by caller
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	rep, err := Parse(f, path)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rep, nil
}

// Parse reads a control-trace report from r. path is recorded on the report
// and used to derive the folio when the document has no title heading.
func Parse(r io.Reader, path string) (*Report, error) {
	lines, err := readLines(r)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Path:     filepath.ToSlash(path),
		Declared: NewSummary(),
	}

	i := 0
	for ; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if m := headingPattern.FindStringSubmatch(line); m != nil && rep.Title == "" {
			rep.Title = stripEmphasis(m[2])
			continue
		}
		if isHeaderRow(line) && i+1 < len(lines) && delimiterPattern.MatchString(strings.TrimSpace(lines[i+1])) {
			break
		}
	}
	if i >= len(lines) {
		return nil, ErrNoTable
	}

	index, header, err := columnIndex(splitCells(lines[i]))
	if err != nil {
		return nil, err
	}
	rep.Header = header
	rep.HeaderLine = i + 1
	rep.Folio = folioName(rep.Title, path)

	for i += 2; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "|") {
			break
		}
		row, err := parseRow(splitCells(line), index, len(header))
		if err != nil {
			rep.Issues = append(rep.Issues, ParseIssue{Line: i + 1, Msg: err.Error()})
			continue
		}
		row.Line = i + 1
		rep.Rows = append(rep.Rows, row)
	}

	for ; i < len(lines); i++ {
		m := headingPattern.FindStringSubmatch(strings.TrimSpace(lines[i]))
		if m != nil && strings.Contains(strings.ToLower(m[2]), "summary statistics") {
			rep.HasSummary = true
			rep.SummaryLine = i + 1
			parseSummary(lines[i+1:], i+1, &rep.Declared)
			break
		}
	}

	return rep, nil
}

func readLines(r io.Reader) ([]string, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}

func isHeaderRow(line string) bool {
	if !strings.HasPrefix(line, "|") {
		return false
	}
	var hasPosition, hasToken bool
	for _, cell := range splitCells(line) {
		switch strings.ToLower(stripEmphasis(cell)) {
		case "position":
			hasPosition = true
		case "token":
			hasToken = true
		}
	}
	return hasPosition && hasToken
}

// splitCells splits a pipe table row into trimmed cells, honouring \| escapes.
func splitCells(line string) []string {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "|")
	if strings.HasSuffix(line, "|") && !strings.HasSuffix(line, `\|`) {
		line = line[:len(line)-1]
	}

	var cells []string
	var cur strings.Builder
	for i := 0; i < len(line); i++ {
		switch {
		case line[i] == '\\' && i+1 < len(line) && line[i+1] == '|':
			cur.WriteByte('|')
			i++
		case line[i] == '|':
			cells = append(cells, strings.TrimSpace(cur.String()))
			cur.Reset()
		default:
			cur.WriteByte(line[i])
		}
	}
	return append(cells, strings.TrimSpace(cur.String()))
}

func stripEmphasis(s string) string {
	s = strings.TrimSpace(s)
	for _, marker := range []string{"**", "__", "`"} {
		s = strings.TrimPrefix(s, marker)
		s = strings.TrimSuffix(s, marker)
	}
	return strings.TrimSpace(s)
}

// columnIndex maps canonical column names to cell offsets.
func columnIndex(cells []string) (map[string]int, []string, error) {
	canonical := make(map[string]string, len(Columns))
	for _, c := range Columns {
		canonical[strings.ToLower(c)] = c
	}

	index := make(map[string]int, len(cells))
	header := make([]string, len(cells))
	for i, cell := range cells {
		name := stripEmphasis(cell)
		key := strings.ToLower(strings.ReplaceAll(name, " ", "_"))
		if c, ok := canonical[key]; ok {
			name = c
			index[c] = i
		}
		header[i] = name
	}

	for _, c := range requiredColumns {
		if _, ok := index[c]; !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return index, header, nil
}

func parseRow(cells []string, index map[string]int, width int) (Row, error) {
	if len(cells) != width {
		return Row{}, fmt.Errorf("row has %d cells, header has %d", len(cells), width)
	}

	cell := func(col string) string {
		i, ok := index[col]
		if !ok {
			return ""
		}
		return cells[i]
	}
	integer := func(col string) (int, error) {
		v, err := strconv.Atoi(cell(col))
		if err != nil {
			return 0, fmt.Errorf("%s %q is not an integer", col, cell(col))
		}
		return v, nil
	}

	var row Row
	var err error
	if row.Position, err = integer(ColPosition); err != nil {
		return Row{}, err
	}
	if row.KDist, err = integer(ColKDist); err != nil {
		return Row{}, err
	}
	if row.HDist, err = integer(ColHDist); err != nil {
		return Row{}, err
	}
	if row.EDist, err = integer(ColEDist); err != nil {
		return Row{}, err
	}
	if row.MinDist, err = integer(ColMinDist); err != nil {
		return Row{}, err
	}

	switch strings.ToUpper(cell(ColHazardAdj)) {
	case "Y":
		row.HazardAdj = true
	case "N":
	default:
		return Row{}, fmt.Errorf("%s %q must be Y or N", ColHazardAdj, cell(ColHazardAdj))
	}

	if row.Cycle, err = ParseCycle(cell(ColCycle)); err != nil {
		return Row{}, err
	}

	row.Token = cell(ColToken)
	row.Class = Class(cell(ColClass))
	if hc := cell(ColHazardClass); hc != NoHazard {
		row.HazardClass = hc
	}
	row.Notes = cell(ColNotes)
	return row, nil
}

func folioName(title, path string) string {
	if title != "" {
		if idx := strings.LastIndex(title, ":"); idx != -1 && strings.TrimSpace(title[idx+1:]) != "" {
			return strings.TrimSpace(title[idx+1:])
		}
		return title
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// parseSummary reads bullet or two-column table statistics until the next heading.
func parseSummary(lines []string, offset int, sum *Summary) {
	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if headingPattern.MatchString(line) {
			return
		}

		var label, value string
		switch {
		case strings.HasPrefix(line, "- "), strings.HasPrefix(line, "* "):
			item := strings.ReplaceAll(strings.TrimSpace(line[2:]), "**", "")
			var ok bool
			label, value, ok = strings.Cut(item, ":")
			if !ok {
				continue
			}
		case strings.HasPrefix(line, "|"):
			if delimiterPattern.MatchString(line) {
				continue
			}
			cells := splitCells(line)
			if len(cells) != 2 {
				continue
			}
			label, value = stripEmphasis(cells[0]), stripEmphasis(cells[1])
		default:
			continue
		}

		assignStatistic(sum, strings.TrimSpace(label), strings.TrimSpace(value), offset+i+1)
	}
}

func assignStatistic(sum *Summary, label, value string, line int) {
	key := statisticKey(label)
	num := integerPattern.FindString(value)

	if key == "" || num == "" || sum.Lines[key] != 0 {
		if label == "" || strings.EqualFold(label, "metric") {
			return
		}
		if sum.Extra == nil {
			sum.Extra = make(map[string]string)
		}
		sum.Extra[label] = value
		return
	}

	n, err := strconv.Atoi(num)
	if err != nil {
		return
	}
	if sum.Lines == nil {
		sum.Lines = make(map[string]int)
	}
	sum.Lines[key] = line

	switch key {
	case StatTokens:
		sum.Tokens = n
	case StatKernelContacts:
		sum.KernelContacts = n
	case StatHazardAdjacent:
		sum.HazardAdjacent = n
	case StatNavigationSequences:
		sum.NavigationSequences = n
	}
}

// statisticKey maps a free-text summary label to a known statistic. Navigation
// is tested first because its label usually mentions hazard adjacency too.
func statisticKey(label string) string {
	norm := labelCleaner.ReplaceAllString(strings.ToLower(label), "")
	switch {
	case strings.Contains(norm, "navigation"):
		return StatNavigationSequences
	case strings.Contains(norm, "kernel"):
		return StatKernelContacts
	case strings.Contains(norm, "hazard") && (strings.Contains(norm, "adj") || strings.Contains(norm, "transition")):
		return StatHazardAdjacent
	case norm == "totaltokens" || norm == "tokens":
		return StatTokens
	default:
		return ""
	}
}
