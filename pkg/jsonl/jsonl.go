// Package jsonl exports control-trace rows as JSON Lines and validates JSONL
// files against a JSON Schema subset.
package jsonl

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/dkoosis/tracekit/pkg/sarif"
	"github.com/dkoosis/tracekit/pkg/trace"
)

// RuleSchema is the SARIF rule ID for schema violations.
const RuleSchema = "jsonl-schema"

// Record is one exported table row.
type Record struct {
	Folio       string   `json:"folio"`
	Position    int      `json:"position"`
	Token       string   `json:"token"`
	Class       string   `json:"class"`
	KDist       int      `json:"k_dist"`
	HDist       int      `json:"h_dist"`
	EDist       int      `json:"e_dist"`
	MinDist     int      `json:"min_dist"`
	HazardAdj   bool     `json:"hazard_adj"`
	HazardClass string   `json:"hazard_class,omitempty"`
	Cycle       string   `json:"cycle"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

// NewRecord flattens a row for export.
func NewRecord(folio string, row trace.Row) Record {
	return Record{
		Folio:       folio,
		Position:    row.Position,
		Token:       row.Token,
		Class:       string(row.Class),
		KDist:       row.KDist,
		HDist:       row.HDist,
		EDist:       row.EDist,
		MinDist:     row.MinDist,
		HazardAdj:   row.HazardAdj,
		HazardClass: row.HazardClass,
		Cycle:       row.Cycle.String(),
		Notes:       row.Notes,
		Tags:        row.Tags(),
	}
}

// WriteRows writes one JSON object per row of rep and returns the count.
func WriteRows(w io.Writer, rep *trace.Report) (int, error) {
	enc := json.NewEncoder(w)
	for i, row := range rep.Rows {
		if err := enc.Encode(NewRecord(rep.Folio, row)); err != nil {
			return i, fmt.Errorf("encode %s position %d: %w", rep.Folio, row.Position, err)
		}
	}
	return len(rep.Rows), nil
}

// ReadRecords decodes a JSONL stream of records, skipping blank lines.
func ReadRecords(r io.Reader) ([]Record, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var out []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	return out, scanner.Err()
}

// Validator wraps a compiled JSON Schema for validating documents.
type Validator struct {
	schema *schemaDefinition
}

// NewValidator compiles the JSON Schema at the provided path.
func NewValidator(schemaPath string) (*Validator, error) {
	schema, err := compileSchema(schemaPath)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: schema}, nil
}

// RowSchema returns the JSON Schema that exported rows conform to.
func RowSchema() []byte {
	return bytes.Clone(rowSchemaJSON)
}

// RowValidator returns a validator for the built-in exported-row schema.
func RowValidator() (*Validator, error) {
	schema, err := decodeSchema(bytes.NewReader(rowSchemaJSON))
	if err != nil {
		return nil, fmt.Errorf("compile row schema: %w", err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateFile validates a JSONL file line by line and returns SARIF results for failures.
func ValidateFile(path string, validator *Validator) ([]sarif.Result, error) {
	file, err := os.Open(path) //nolint:gosec // path supplied by caller
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return Validate(file, filepath.ToSlash(path), validator)
}

// Validate checks every non-blank line of r; uri locates the results.
func Validate(r io.Reader, uri string, validator *Validator) ([]sarif.Result, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 1024*1024), 1024*1024)

	var results []sarif.Result
	line := 0
	for scanner.Scan() {
		line++
		raw := scanner.Text()
		if strings.TrimSpace(raw) == "" {
			continue
		}

		var value interface{}
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			results = append(results, newResult(uri, line, fmt.Sprintf("line %d: invalid JSON: %v", line, err)))
			continue
		}

		if err := validator.schema.validate(value); err != nil {
			results = append(results, newResult(uri, line, fmt.Sprintf("line %d: %v", line, err)))
		}
	}

	if err := scanner.Err(); err != nil {
		return results, err
	}

	return results, nil
}

func newResult(uri string, line int, message string) sarif.Result {
	return sarif.NewResult(RuleSchema, sarif.LevelError, message, uri, line)
}
