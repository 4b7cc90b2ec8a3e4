package tracestore

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/dkoosis/tracekit/pkg/sarif"
)

// Schema drift rule IDs.
const (
	RuleMissingTable  = "store-missing-table"
	RuleMissingColumn = "store-missing-column"
	RuleTypeMismatch  = "store-type-mismatch"
	RuleExtraColumn   = "store-extra-column"
	RuleExtraTable    = "store-extra-table"
)

// SchemaDriver is the SARIF tool name for schema checks.
const SchemaDriver = "tracekit-store"

// Table describes a table and its column types.
type Table struct {
	Name    string
	Columns map[string]string // column name -> upper-case type
}

var createTableRe = regexp.MustCompile(`(?is)create\s+table\s+(?:if\s+not\s+exists\s+)?([\w"` + "`" + `\[\]]+)\s*\((.*?)\);`)

// ExpectedSchema returns the tables the store creates.
func ExpectedSchema() map[string]Table {
	return ParseDDL(schema)
}

// ParseDDL extracts the CREATE TABLE definitions from ddl.
func ParseDDL(ddl string) map[string]Table {
	tables := make(map[string]Table)
	for _, m := range createTableRe.FindAllStringSubmatch(ddl, -1) {
		name := normalizeIdent(m[1])
		if name == "" {
			continue
		}
		tables[name] = Table{Name: name, Columns: parseColumns(m[2])}
	}
	return tables
}

// ActualSchema introspects the open database.
func (s *Store) ActualSchema(ctx context.Context) (map[string]Table, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%'`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("list tables: %w", err)
		}
		names = append(names, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	tables := make(map[string]Table, len(names))
	for _, name := range names {
		cols, err := s.columns(ctx, name)
		if err != nil {
			return nil, err
		}
		tables[strings.ToLower(name)] = Table{Name: name, Columns: cols}
	}
	return tables, nil
}

func (s *Store) columns(ctx context.Context, table string) (map[string]string, error) {
	q := fmt.Sprintf("PRAGMA table_info('%s')", strings.ReplaceAll(table, "'", "''"))
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("load columns for %s: %w", table, err)
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var (
			cid     int
			name    string
			colType string
			notNull int
			dflt    any
			pk      int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("load columns for %s: %w", table, err)
		}
		cols[strings.ToLower(name)] = strings.ToUpper(strings.TrimSpace(colType))
	}
	return cols, rows.Err()
}

// CheckSchema compares the database against the store's own schema and
// reports drift against the store path.
func (s *Store) CheckSchema(ctx context.Context) ([]sarif.Result, error) {
	actual, err := s.ActualSchema(ctx)
	if err != nil {
		return nil, err
	}
	return CompareSchemas(ExpectedSchema(), actual, s.path), nil
}

// CompareSchemas reports the differences between expected and actual, sorted
// by message. Missing tables and columns are errors; everything else warns.
func CompareSchemas(expected, actual map[string]Table, uri string) []sarif.Result {
	var out []sarif.Result
	add := func(rule, level, format string, args ...any) {
		out = append(out, sarif.NewResult(rule, level, fmt.Sprintf(format, args...), uri, 1))
	}

	for name, exp := range expected {
		act, ok := actual[name]
		if !ok {
			add(RuleMissingTable, sarif.LevelError, "missing table %q", name)
			continue
		}
		for col, expType := range exp.Columns {
			actType, ok := act.Columns[col]
			switch {
			case !ok:
				add(RuleMissingColumn, sarif.LevelError, "missing column %q", name+"."+col)
			case expType != "" && actType != "" && !strings.EqualFold(expType, actType):
				add(RuleTypeMismatch, sarif.LevelWarning, "column %q: expected %s, found %s", name+"."+col, expType, actType)
			}
		}
		for col := range act.Columns {
			if _, ok := exp.Columns[col]; !ok {
				add(RuleExtraColumn, sarif.LevelWarning, "extra column %q", name+"."+col)
			}
		}
	}
	for name := range actual {
		if _, ok := expected[name]; !ok {
			add(RuleExtraTable, sarif.LevelWarning, "extra table %q", name)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Message.Text < out[j].Message.Text
	})
	return out
}

// SchemaLog wraps schema check results in a SARIF log.
func SchemaLog(results []sarif.Result) *sarif.Log {
	log := sarif.NewLog()
	log.Runs = append(log.Runs, sarif.NewRun(SchemaDriver, results))
	return log
}

func parseColumns(section string) map[string]string {
	cols := make(map[string]string)
	for _, raw := range splitColumns(section) {
		line := strings.TrimSpace(raw)
		upper := strings.ToUpper(line)
		if line == "" || hasAnyPrefix(upper, "PRIMARY ", "FOREIGN ", "UNIQUE ", "CHECK ", "CONSTRAINT") {
			continue
		}
		fields := strings.Fields(line)
		name := normalizeIdent(fields[0])
		if name == "" {
			continue
		}
		colType := ""
		if len(fields) > 1 {
			colType = strings.ToUpper(fields[1])
		}
		cols[name] = colType
	}
	return cols
}

// splitColumns splits on commas outside parentheses.
func splitColumns(section string) []string {
	var (
		parts []string
		sb    strings.Builder
		depth int
	)
	for _, r := range section {
		switch {
		case r == '(':
			depth++
		case r == ')' && depth > 0:
			depth--
		case r == ',' && depth == 0:
			parts = append(parts, sb.String())
			sb.Reset()
			continue
		}
		sb.WriteRune(r)
	}
	if sb.Len() > 0 {
		parts = append(parts, sb.String())
	}
	return parts
}

func hasAnyPrefix(s string, prefixes ...string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func normalizeIdent(name string) string {
	return strings.ToLower(strings.Trim(strings.TrimSpace(name), "`\"[]"))
}
