package processor

import (
	"fmt"
	"strings"

	"github.com/spf13/cast"
	"github.com/tidwall/gjson"

	"github.com/cefstream/cefstream/mapping"
)

// compositeNull is the literal component of a composite mapping field that
// resolves to itself instead of a record lookup.
const compositeNull = "NULL"

// FieldNotFoundError reports a rule whose mapping field did not resolve
// against the record and which carried no usable fallback. The field is
// skipped, the record survives.
type FieldNotFoundError struct {
	Field string
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found in the record", e.Field)
}

// resolvedField is the outcome of applying one rule to one record. mapped is
// set only when the value came out of the record itself, never for defaults.
type resolvedField struct {
	value  any
	mapped bool
}

// resolveField resolves a rule against a record, precedence over the presence
// of default (D), mapping field (M) and value in the record (P):
//
//	 D  |  M  |  P  | outcome
//	yes | yes | yes | mapped value
//	yes | yes | no  | default value
//	yes | no  | any | default value
//	no  | yes | yes | mapped value
//	no  | yes | no  | FieldNotFoundError
//	no  | no  | any | rejected at load
//
// Path expression rules resolve from the raw record bytes and never fall back
// to the default, matching the table only in its mapped rows. Direct rules
// resolve from the decoded record; a hyphen separated mapping field is an
// ordered composite where every component must resolve or the whole rule
// falls back.
func resolveField(rule mapping.Rule, raw []byte, record map[string]any) (resolvedField, error) {
	if !rule.HasMapping() {
		// load-time validation guarantees the default exists
		return resolvedField{value: rule.Default()}, nil
	}
	if rule.IsJSONPath {
		value, ok := queryPath(raw, rule.MappingField)
		if !ok {
			return resolvedField{}, &FieldNotFoundError{Field: rule.MappingField}
		}
		return resolvedField{value: value, mapped: true}, nil
	}

	keys := strings.Split(rule.MappingField, "-")
	if len(keys) == 1 {
		value, ok := record[rule.MappingField]
		if !ok {
			if rule.HasDefault() {
				return resolvedField{value: rule.Default()}, nil
			}
			return resolvedField{}, &FieldNotFoundError{Field: rule.MappingField}
		}
		return resolvedField{value: terminalValue(value), mapped: true}, nil
	}

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		key = strings.Trim(strings.Trim(key, " "), "[]")
		if key == compositeNull {
			parts = append(parts, compositeNull)
			continue
		}
		value, ok := record[key]
		if !ok {
			if rule.HasDefault() {
				return resolvedField{value: rule.Default()}, nil
			}
			return resolvedField{}, &FieldNotFoundError{Field: key}
		}
		parts = append(parts, cast.ToString(terminalValue(value)))
	}
	return resolvedField{value: strings.Join(parts, " - "), mapped: true}, nil
}

// queryPath evaluates a path expression against the raw record. Multiple
// matches are joined with commas into a single string. JSON null and empty
// containers count as no match.
func queryPath(raw []byte, path string) (string, bool) {
	result := gjson.GetBytes(raw, strings.TrimPrefix(path, "$."))
	switch {
	case !result.Exists(), result.Type == gjson.Null:
		return "", false
	case result.IsArray():
		matches := result.Array()
		if len(matches) == 0 {
			return "", false
		}
		parts := make([]string, 0, len(matches))
		for _, match := range matches {
			parts = append(parts, match.String())
		}
		return strings.Join(parts, ","), true
	default:
		return result.String(), true
	}
}

// terminalValue maps absent-like values to the literal string "null" so that
// downstream consumers see an explicit marker instead of an empty token.
// Numbers, including zero, are kept as they are.
func terminalValue(value any) any {
	if isFalsy(value) {
		return "null"
	}
	return value
}

func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	case []any:
		return len(v) == 0
	case map[string]any:
		return len(v) == 0
	default:
		return false
	}
}
