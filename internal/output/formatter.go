// Package output renders engine results as JSON, YAML or terminal tables.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/GabrielEliasMarcelo/gamification-plugin/internal/errors"
)

// Format selects how results are written
type Format string

const (
	FormatTable Format = "table" // Human-readable tables
	FormatJSON  Format = "json"  // Indented JSON
	FormatYAML  Format = "yaml"  // YAML documents
)

// ParseFormat accepts a format name case-insensitively
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	case "":
		return GetDefaultFormat(), nil
	default:
		return "", errors.ValidationErrorf("unknown output format %q (want table, json or yaml)", s)
	}
}

// Formatter defines output formatting interface
type Formatter interface {
	Format(result any, w io.Writer) error
}

// NewFormatter creates appropriate formatter for f
func NewFormatter(f Format) Formatter {
	switch f {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{Now: time.Now}
	}
}

// JSONFormatter writes indented JSON
type JSONFormatter struct{}

// Format implements Formatter
func (f *JSONFormatter) Format(result any, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// YAMLFormatter writes one YAML document
type YAMLFormatter struct{}

// Format implements Formatter
func (f *YAMLFormatter) Format(result any, w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}
