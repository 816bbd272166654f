package cef

import (
	"errors"
	"fmt"
)

// ErrEmptyExtension is returned when a record resolves to no extension pairs
// at all. Such a record carries nothing worth forwarding and is dropped.
var ErrEmptyExtension = errors.New("no extension fields resolved")

// TypeError reports a field value that failed conversion or sanitization.
// The field is dropped from its event, sibling fields are unaffected.
type TypeError struct {
	Field  string
	Reason string
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func typeErrorf(field, format string, args ...any) *TypeError {
	return &TypeError{Field: field, Reason: fmt.Sprintf(format, args...)}
}
