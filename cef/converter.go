package cef

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/spf13/cast"

	"github.com/cefstream/cefstream/mapping"
)

// epochWidth is the fixed width of an epoch extension value. Shorter values
// are right padded with zeros, a fixed width convention rather than an
// arithmetic unit conversion.
const epochWidth = 13

// Converter coerces a resolved field value into the semantic type declared by
// its transformation, ahead of sanitization.
type Converter func(value any, field string) (any, error)

func newConverters() map[string]Converter {
	return map[string]Converter{
		mapping.TransformationString:   stringConverter,
		mapping.TransformationInteger:  integerConverter,
		mapping.TransformationFloat:    floatConverter,
		mapping.TransformationEpoch:    epochConverter,
		mapping.TransformationDateTime: dateTimeConverter,
		mapping.TransformationSeverity: stringConverter,
	}
}

func stringConverter(value any, field string) (any, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, typeErrorf(field, "cannot render %T as text", value)
	}
	return s, nil
}

func integerConverter(value any, field string) (any, error) {
	n, err := cast.ToInt64E(value)
	if err != nil {
		return nil, typeErrorf(field, "cannot convert %v to an integer", value)
	}
	return n, nil
}

func floatConverter(value any, field string) (any, error) {
	f, err := cast.ToFloat64E(value)
	if err != nil {
		return nil, typeErrorf(field, "cannot convert %v to a float", value)
	}
	return f, nil
}

func epochConverter(value any, field string) (any, error) {
	s, err := cast.ToStringE(value)
	if err != nil {
		return nil, typeErrorf(field, "cannot convert %T to millisecond precise epoch time", value)
	}
	if len(s) < epochWidth {
		s += strings.Repeat("0", epochWidth-len(s))
	}
	return s, nil
}

func dateTimeConverter(value any, field string) (any, error) {
	switch v := value.(type) {
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return nil, typeErrorf(field, "cannot convert %v to a timestamp", value)
		}
		return dateTimeConverter(f, field)
	case float64:
		sec, frac := math.Modf(v)
		return time.Unix(int64(sec), int64(frac*float64(time.Second))), nil
	case int64:
		return time.Unix(v, 0), nil
	case int:
		return time.Unix(int64(v), 0), nil
	default:
		return nil, typeErrorf(field, "expected a numeric timestamp, got %T", value)
	}
}
