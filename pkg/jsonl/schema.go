package jsonl

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"regexp"
	"sort"
	"strings"
)

//go:embed row.schema.json
var rowSchemaJSON []byte

// schemaDefinition represents a limited subset of JSON Schema used for validation.
type schemaDefinition struct {
	Type                 string                       `json:"type"`
	Required             []string                     `json:"required"`
	Properties           map[string]*schemaDefinition `json:"properties"`
	AdditionalProperties *bool                        `json:"additionalProperties"`
	Items                *schemaDefinition            `json:"items"`
	Pattern              string                       `json:"pattern"`
	Minimum              *float64                     `json:"minimum"`

	pattern *regexp.Regexp
}

// compileSchema reads and parses a JSON Schema document.
func compileSchema(path string) (*schemaDefinition, error) {
	f, err := os.Open(path) //nolint:gosec // schema path supplied by caller
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return decodeSchema(f)
}

func decodeSchema(r io.Reader) (*schemaDefinition, error) {
	var schema schemaDefinition
	if err := json.NewDecoder(r).Decode(&schema); err != nil {
		return nil, fmt.Errorf("decode schema: %w", err)
	}
	if err := schema.prepare(); err != nil {
		return nil, err
	}
	return &schema, nil
}

// prepare compiles patterns and rejects unsupported types up front.
func (s *schemaDefinition) prepare() error {
	switch s.Type {
	case "object", "", "string", "integer", "number", "boolean", "array":
	default:
		return fmt.Errorf("unsupported schema type %q", s.Type)
	}
	if s.Pattern != "" {
		re, err := regexp.Compile(s.Pattern)
		if err != nil {
			return fmt.Errorf("pattern %q: %w", s.Pattern, err)
		}
		s.pattern = re
	}
	for name, prop := range s.Properties {
		if prop == nil {
			continue
		}
		if err := prop.prepare(); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if s.Items != nil {
		return s.Items.prepare()
	}
	return nil
}

func (s *schemaDefinition) validate(value interface{}) error {
	switch s.Type {
	case "object", "":
		obj, ok := value.(map[string]interface{})
		if !ok {
			return fmt.Errorf("expected object")
		}

		required := map[string]struct{}{}
		for _, r := range s.Required {
			required[r] = struct{}{}
		}

		keys := make([]string, 0, len(obj))
		for key := range obj {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		for _, key := range keys {
			delete(required, key)
			if propSchema, ok := s.Properties[key]; ok && propSchema != nil {
				if err := propSchema.validate(obj[key]); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			} else if s.AdditionalProperties != nil && !*s.AdditionalProperties {
				return fmt.Errorf("unexpected property %q", key)
			}
		}

		if len(required) > 0 {
			missing := make([]string, 0, len(required))
			for key := range required {
				missing = append(missing, key)
			}
			sort.Strings(missing)
			return fmt.Errorf("missing required properties: %s", strings.Join(missing, ", "))
		}
		return nil
	case "string":
		str, ok := value.(string)
		if !ok {
			return fmt.Errorf("expected string")
		}
		if s.pattern != nil && !s.pattern.MatchString(str) {
			return fmt.Errorf("%q does not match %s", str, s.Pattern)
		}
		return nil
	case "integer":
		v, ok := value.(float64)
		if !ok || v != float64(int64(v)) {
			return fmt.Errorf("expected integer")
		}
		return s.checkMinimum(v)
	case "number":
		v, ok := value.(float64)
		if !ok {
			return fmt.Errorf("expected number")
		}
		return s.checkMinimum(v)
	case "boolean":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected boolean")
		}
		return nil
	case "array":
		arr, ok := value.([]interface{})
		if !ok {
			return fmt.Errorf("expected array")
		}
		if s.Items != nil {
			for i, item := range arr {
				if err := s.Items.validate(item); err != nil {
					return fmt.Errorf("index %d: %w", i, err)
				}
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported schema type %q", s.Type)
	}
}

func (s *schemaDefinition) checkMinimum(v float64) error {
	if s.Minimum != nil && v < *s.Minimum {
		return fmt.Errorf("%v is below minimum %v", v, *s.Minimum)
	}
	return nil
}
