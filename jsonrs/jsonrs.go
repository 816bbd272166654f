// Package jsonrs provides a unified interface for JSON marshalling and
// unmarshalling, backed by a configurable library.
package jsonrs

import (
	"io"

	"github.com/rudderlabs/rudder-go-kit/config"
)

const (
	// JsoniterLib denotes the github.com/json-iterator/go library.
	JsoniterLib = "jsoniter"
	// StdLib denotes the standard library.
	StdLib = "std"
)

// Default is the default JSON implementation, used by the package level functions.
var Default JSON

func init() {
	Reset()
}

// Reset resets the default JSON implementation based on the default configuration.
func Reset() {
	Default = New(config.Default)
}

// New returns a new JSON implementation based on the configuration.
func New(conf *config.Config) JSON {
	switch conf.GetString("Json.Library", JsoniterLib) {
	case StdLib:
		return &stdJSON{}
	default:
		return &jsoniterJSON{}
	}
}

// JSON is the interface that wraps the basic JSON operations.
type JSON interface {
	// Marshal returns the JSON encoding of v.
	Marshal(v any) ([]byte, error)
	// MarshalIndent is like Marshal but applies Indent to format the output.
	MarshalIndent(v any, prefix, indent string) ([]byte, error)
	// Unmarshal parses the JSON-encoded data and stores the result in the value pointed to by v.
	Unmarshal(data []byte, v any) error
	// MarshalToString returns the JSON encoding of v as a string.
	MarshalToString(v any) (string, error)
	// Valid reports whether data is a valid JSON encoding.
	Valid(data []byte) bool
	// NewDecoder returns a new decoder that reads from r.
	NewDecoder(r io.Reader) Decoder
	// NewEncoder returns a new encoder that writes to w.
	NewEncoder(w io.Writer) Encoder
}

// Decoder reads and decodes JSON values from an input stream.
type Decoder interface {
	Decode(v any) error
	UseNumber()
	More() bool
}

// Encoder writes JSON values to an output stream.
type Encoder interface {
	Encode(v any) error
	SetEscapeHTML(on bool)
	SetIndent(prefix, indent string)
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return Default.Marshal(v)
}

// MarshalIndent is like Marshal but applies Indent to format the output.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return Default.MarshalIndent(v, prefix, indent)
}

// Unmarshal parses the JSON-encoded data and stores the result in the value pointed to by v.
func Unmarshal(data []byte, v any) error {
	return Default.Unmarshal(data, v)
}

// MarshalToString returns the JSON encoding of v as a string.
func MarshalToString(v any) (string, error) {
	return Default.MarshalToString(v)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return Default.Valid(data)
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) Decoder {
	return Default.NewDecoder(r)
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) Encoder {
	return Default.NewEncoder(w)
}
