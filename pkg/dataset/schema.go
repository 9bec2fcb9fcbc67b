// Package dataset loads process tables from CSV against a declared schema.
//
// The schema names the numeric process variables in model column order and
// optionally the auxiliary columns (part identifier, timestamp, reject
// category) that pass through scoring untouched. Optional columns are
// declared up front and checked once against the CSV header at load time.
package dataset

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// Default auxiliary column names.
const (
	DefaultPartIDColumn     = "part_id"
	DefaultTimestampColumn  = "entry_timestamp"
	DefaultRejectTypeColumn = "reject_type"
)

//go:embed schema.json
var schemaDocument []byte

// timestampLayouts are tried in order when a schema declares no layout.
var timestampLayouts = []string{
	"2006-01-02T15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

// Schema declares the columns of a process table.
type Schema struct {
	// Variables are the numeric process variables, in model column order.
	Variables []string `json:"variables" yaml:"variables" mapstructure:"variables"`
	// PartID is the optional part identifier column.
	PartID string `json:"part_id,omitempty" yaml:"part_id,omitempty" mapstructure:"part_id"`
	// Timestamp is the optional entry timestamp column.
	Timestamp string `json:"timestamp,omitempty" yaml:"timestamp,omitempty" mapstructure:"timestamp"`
	// RejectType is the optional human-assigned reject category column.
	RejectType string `json:"reject_type,omitempty" yaml:"reject_type,omitempty" mapstructure:"reject_type"`
	// TimestampLayout is a Go time layout. Empty tries common layouts.
	TimestampLayout string `json:"timestamp_layout,omitempty" yaml:"timestamp_layout,omitempty" mapstructure:"timestamp_layout"`
}

// ParseSchema decodes a YAML or JSON schema document and validates it.
func ParseSchema(data []byte) (*Schema, error) {
	var doc any

	err := yaml.Unmarshal(data, &doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schemaDocument), gojsonschema.NewGoLoader(doc))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, verr := range result.Errors() {
			problems = append(problems, fmt.Sprintf("%s: %s", verr.Field(), verr.Description()))
		}

		return nil, fmt.Errorf("%w: %s", ErrInvalidSchema, strings.Join(problems, "; "))
	}

	// The document already passed validation, so a JSON round trip cannot lose fields.
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	var schema Schema

	err = json.Unmarshal(raw, &schema)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidSchema, err)
	}

	err = schema.Validate()
	if err != nil {
		return nil, err
	}

	return &schema, nil
}

// LoadSchema reads and validates a schema file.
func LoadSchema(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read schema: %w", err)
	}

	return ParseSchema(data)
}

// Validate checks the declaration for internal consistency.
func (s *Schema) Validate() error {
	if len(s.Variables) == 0 {
		return fmt.Errorf("%w: no variables declared", ErrInvalidSchema)
	}

	seen := make(map[string]string, len(s.Variables)+3)

	for _, v := range s.Variables {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: empty variable name", ErrInvalidSchema)
		}

		if _, dup := seen[v]; dup {
			return fmt.Errorf("%w: variable %q declared twice", ErrInvalidSchema, v)
		}

		seen[v] = "variable"
	}

	for role, col := range map[string]string{"part_id": s.PartID, "timestamp": s.Timestamp, "reject_type": s.RejectType} {
		if col == "" {
			continue
		}

		if other, dup := seen[col]; dup {
			return fmt.Errorf("%w: column %q used as both %s and %s", ErrInvalidSchema, col, other, role)
		}

		seen[col] = role
	}

	return nil
}

// AuxiliaryColumns returns the declared auxiliary column names in output order.
func (s *Schema) AuxiliaryColumns() []string {
	var cols []string

	for _, c := range []string{s.PartID, s.Timestamp, s.RejectType} {
		if c != "" {
			cols = append(cols, c)
		}
	}

	return cols
}

// Fingerprint identifies the declaration for cache keys.
func (s *Schema) Fingerprint() string {
	return strings.Join([]string{
		strings.Join(s.Variables, ","), s.PartID, s.Timestamp, s.RejectType, s.TimestampLayout,
	}, "|")
}

// InferSchema declares every column of header as a variable except the
// default auxiliary columns, which are recognised by name.
func InferSchema(header []string) Schema {
	var s Schema

	for _, h := range header {
		h = strings.TrimSpace(h)

		switch h {
		case DefaultPartIDColumn:
			s.PartID = h
		case DefaultTimestampColumn:
			s.Timestamp = h
		case DefaultRejectTypeColumn:
			s.RejectType = h
		default:
			if !slices.Contains(s.Variables, h) {
				s.Variables = append(s.Variables, h)
			}
		}
	}

	return s
}
