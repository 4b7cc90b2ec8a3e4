// Package sarif provides types and helpers for emitting SARIF output.
package sarif

import (
	"encoding/json"
	"io"
	"sort"
)

// Version is the SARIF schema version.
const Version = "2.1.0"

// Schema is the published JSON schema location for Version.
const Schema = "https://json.schemastore.org/sarif-2.1.0.json"

// Result levels.
const (
	LevelError   = "error"
	LevelWarning = "warning"
	LevelNote    = "note"
)

// Log is the top-level SARIF structure.
type Log struct {
	Version string `json:"version"`
	Schema  string `json:"$schema,omitempty"`
	Runs    []Run  `json:"runs"`
}

// Run represents a single analysis run.
type Run struct {
	Tool    Tool     `json:"tool"`
	Results []Result `json:"results,omitempty"`
}

// Tool describes the analysis tool.
type Tool struct {
	Driver Driver `json:"driver"`
}

// Driver describes the tool's identity.
type Driver struct {
	Name           string                `json:"name"`
	Version        string                `json:"version,omitempty"`
	InformationURI string                `json:"informationUri,omitempty"`
	Rules          []ReportingDescriptor `json:"rules,omitempty"`
}

// ReportingDescriptor documents a rule the driver can report.
type ReportingDescriptor struct {
	ID               string   `json:"id"`
	ShortDescription *Message `json:"shortDescription,omitempty"`
	DefaultLevel     string   `json:"-"`
}

// Result is a single finding.
type Result struct {
	RuleID     string         `json:"ruleId"`
	Level      string         `json:"level,omitempty"` // error, warning, note
	Message    Message        `json:"message"`
	Locations  []Location     `json:"locations,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// Message contains the finding's text.
type Message struct {
	Text string `json:"text"`
}

// Location describes where a result was found.
type Location struct {
	PhysicalLocation PhysicalLocation `json:"physicalLocation"`
}

// PhysicalLocation describes a file location.
type PhysicalLocation struct {
	ArtifactLocation ArtifactLocation `json:"artifactLocation"`
	Region           *Region          `json:"region,omitempty"`
}

// ArtifactLocation describes a file path.
type ArtifactLocation struct {
	URI string `json:"uri"`
}

// Region describes a span within a file.
type Region struct {
	StartLine   int `json:"startLine,omitempty"`
	StartColumn int `json:"startColumn,omitempty"`
	EndLine     int `json:"endLine,omitempty"`
	EndColumn   int `json:"endColumn,omitempty"`
}

// NewLog creates a new SARIF log with default values.
func NewLog() *Log {
	return &Log{
		Version: Version,
		Schema:  Schema,
		Runs:    []Run{},
	}
}

// NewRun creates a run for the named driver carrying results.
func NewRun(driver string, results []Result) Run {
	run := Run{Tool: Tool{Driver: Driver{Name: driver}}}
	if len(results) > 0 {
		run.Results = results
	}
	return run
}

// NewResult builds a result located at uri. A line of zero omits the region.
func NewResult(ruleID, level, text, uri string, line int) Result {
	return Result{
		RuleID:    ruleID,
		Level:     level,
		Message:   Message{Text: text},
		Locations: []Location{NewLocation(uri, line)},
	}
}

// NewLocation builds a location for uri, with a region when line > 0.
func NewLocation(uri string, line int) Location {
	loc := Location{PhysicalLocation: PhysicalLocation{ArtifactLocation: ArtifactLocation{URI: uri}}}
	if line > 0 {
		loc.PhysicalLocation.Region = &Region{StartLine: line}
	}
	return loc
}

// URI returns the first location's URI, or "".
func (r Result) URI() string {
	if len(r.Locations) == 0 {
		return ""
	}
	return r.Locations[0].PhysicalLocation.ArtifactLocation.URI
}

// Line returns the first location's start line, or 0.
func (r Result) Line() int {
	if len(r.Locations) == 0 || r.Locations[0].PhysicalLocation.Region == nil {
		return 0
	}
	return r.Locations[0].PhysicalLocation.Region.StartLine
}

// SortResults orders results by URI, line and rule ID.
func SortResults(results []Result) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.URI() != b.URI() {
			return a.URI() < b.URI()
		}
		if a.Line() != b.Line() {
			return a.Line() < b.Line()
		}
		return a.RuleID < b.RuleID
	})
}

// HasErrors reports whether any result in the log is error level.
func (l *Log) HasErrors() bool {
	for _, run := range l.Runs {
		for _, r := range run.Results {
			if r.Level == LevelError {
				return true
			}
		}
	}
	return false
}

// Encoder wraps a JSON encoder with SARIF-friendly defaults.
type Encoder struct {
	enc *json.Encoder
}

// NewEncoder creates an indented JSON encoder for SARIF logs.
func NewEncoder(w io.Writer) *Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return &Encoder{enc: enc}
}

// Encode writes the SARIF log.
func (e *Encoder) Encode(log *Log) error {
	return e.enc.Encode(log)
}
