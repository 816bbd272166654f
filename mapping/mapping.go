// Package mapping loads, validates and indexes the mapping document that
// declares how source records translate into encoded events.
package mapping

import (
	"fmt"
)

// Data type keys carrying dedicated branches in the taxonomy.
const (
	DataTypeAlerts = "alerts"
	DataTypeEvents = "events"
	DataTypeWebTx  = "webtx"

	// passthroughKey selects the raw field allowlists applied when
	// transformation is disabled.
	passthroughKey = "json"
)

// Headers lists the recognized prelude field names, in wire order. Header
// rules configured under any other name are reported at load time and never
// emitted.
var Headers = []string{
	"Device Vendor",
	"Device Product",
	"Device Version",
	"Device Event Class ID",
	"Name",
	"Severity",
}

// Transformation kinds assignable to a rule.
const (
	TransformationString   = "String"
	TransformationInteger  = "Integer"
	TransformationFloat    = "Float"
	TransformationEpoch    = "Epoch"
	TransformationDateTime = "DateTime"
	TransformationSeverity = "Severity"
)

var knownTransformations = map[string]struct{}{
	TransformationString:   {},
	TransformationInteger:  {},
	TransformationFloat:    {},
	TransformationEpoch:    {},
	TransformationDateTime: {},
	TransformationSeverity: {},
}

// Rule declares how a single output field is populated.
type Rule struct {
	// MappingField is a source record key, a hyphen separated composite of
	// keys, or a path expression when IsJSONPath is set.
	MappingField string `json:"mapping_field,omitempty"`
	// DefaultValue is the fallback emitted when MappingField does not
	// resolve. Nil means no fallback is configured, which is different from
	// an empty fallback.
	DefaultValue *string `json:"default_value,omitempty"`
	// Transformation names the converter/sanitizer kind applied to the
	// resolved value, TransformationString when empty.
	Transformation string `json:"transformation,omitempty"`
	// IsJSONPath marks MappingField as a path expression instead of a
	// record key.
	IsJSONPath bool `json:"is_json_path,omitempty"`
}

// HasMapping reports whether the rule carries a non empty mapping field.
func (r Rule) HasMapping() bool { return r.MappingField != "" }

// HasDefault reports whether a fallback value is configured.
func (r Rule) HasDefault() bool { return r.DefaultValue != nil }

// Default returns the configured fallback value, empty when none is set.
func (r Rule) Default() string {
	if r.DefaultValue == nil {
		return ""
	}
	return *r.DefaultValue
}

// Kind returns the effective transformation kind.
func (r Rule) Kind() string {
	if r.Transformation == "" {
		return TransformationString
	}
	return r.Transformation
}

// SubtypeMapping holds the header and extension rules of a single
// (data type, subtype) pair.
type SubtypeMapping struct {
	Header    map[string]Rule `json:"header"`
	Extension map[string]Rule `json:"extension"`
}

// ValidationError reports a malformed mapping document. Loading stops at the
// first violation and no catalog is produced.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid mapping document: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
