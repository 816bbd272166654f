package cef

import (
	"strings"
	"time"

	"github.com/dlclark/regexp2"

	"github.com/cefstream/cefstream/mapping"
)

// dateTimeLayout is the textual form of a sanitized DateTime value.
const dateTimeLayout = "Jan 02 2006 15:04:05"

// Sanitizer constrains a converted value to its wire safe form.
type Sanitizer func(value any, field string) (any, error)

func newSanitizers(delimiter string) map[string]Sanitizer {
	return map[string]Sanitizer{
		mapping.TransformationString:   stringSanitizer(`[^\r\n]*`, delimiter),
		mapping.TransformationInteger:  integerSanitizer,
		mapping.TransformationFloat:    floatSanitizer,
		mapping.TransformationEpoch:    epochSanitizer,
		mapping.TransformationDateTime: dateTimeSanitizer,
		mapping.TransformationSeverity: stringSanitizer(severityPattern(), ""),
	}
}

// stringSanitizer returns a sanitizer accepting only text that fully matches
// the allow pattern, escaping every occurrence of the escape characters.
func stringSanitizer(pattern, escapeChars string) Sanitizer {
	allow := regexp2.MustCompile(`\A(?:`+pattern+`)\z`, regexp2.None)
	return func(value any, field string) (any, error) {
		s, ok := value.(string)
		if !ok {
			return nil, typeErrorf(field, "expected text, got %T", value)
		}
		matched, err := allow.MatchString(s)
		if err != nil {
			return nil, typeErrorf(field, "match against allowed pattern: %v", err)
		}
		if !matched {
			return nil, typeErrorf(field, "%q does not match the allowed pattern", s)
		}
		return escapeAll(s, escapeChars), nil
	}
}

// escaper returns a function escaping every occurrence of the given
// characters with a backslash.
func escaper(chars string) func(string) string {
	return func(s string) string {
		return escapeAll(s, chars)
	}
}

func escapeAll(s, chars string) string {
	for _, c := range chars {
		s = strings.ReplaceAll(s, string(c), `\`+string(c))
	}
	return s
}

func integerSanitizer(value any, field string) (any, error) {
	if _, ok := value.(int64); !ok {
		return nil, typeErrorf(field, "expected an integer, got %T", value)
	}
	return value, nil
}

func floatSanitizer(value any, field string) (any, error) {
	if _, ok := value.(float64); !ok {
		return nil, typeErrorf(field, "expected a float, got %T", value)
	}
	return value, nil
}

func epochSanitizer(value any, field string) (any, error) {
	if _, ok := value.(string); !ok {
		return nil, typeErrorf(field, "expected epoch time as text, got %T", value)
	}
	return value, nil
}

func dateTimeSanitizer(value any, field string) (any, error) {
	t, ok := value.(time.Time)
	if !ok {
		return nil, typeErrorf(field, "expected a timestamp, got %T", value)
	}
	return t.Format(dateTimeLayout), nil
}
