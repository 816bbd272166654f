// Package cef renders resolved header and extension values into CEF style
// delimited lines or structured JSON envelopes.
package cef

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rudderlabs/rudder-go-kit/logger"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"
	"github.com/spf13/cast"
	"github.com/tidwall/sjson"

	"github.com/cefstream/cefstream/mapping"
)

const (
	severityHeader = "Severity"

	// prefixLayout renders the wall clock of the event prelude.
	prefixLayout = "Jan 02 15:04:05"

	// webTxLayout parses the date and time fields of a web transaction.
	webTxLayout = "2006-01-02 15:04:05"
)

type fieldCodec struct {
	convert  Converter
	sanitize Sanitizer
}

// Generator renders events for a single mapping catalog. Its converter and
// sanitizer tables are built once at construction and are safe for concurrent
// use by any number of workers.
type Generator struct {
	log       logger.Logger
	delimiter string
	version   string
	fields    map[string]fieldCodec

	prefixSanitizer   Sanitizer
	severitySanitizer Sanitizer
	escapeEquals      func(string) string

	now func() time.Time
}

// New builds a Generator from the catalog, deriving a codec for every output
// field declared in the taxonomy.
func New(catalog *mapping.Catalog, log logger.Logger) *Generator {
	delimiter := catalog.Delimiter()
	converters := newConverters()
	sanitizers := newSanitizers(delimiter)

	fields := make(map[string]fieldCodec)
	for name, rule := range catalog.Fields() {
		fields[name] = fieldCodec{
			convert:  converters[rule.Kind()],
			sanitize: sanitizers[rule.Kind()],
		}
	}

	return &Generator{
		log:               log.Child("cef"),
		delimiter:         delimiter,
		version:           catalog.Version(),
		fields:            fields,
		prefixSanitizer:   stringSanitizer(`[^\r\n]*`, delimiter),
		severitySanitizer: stringSanitizer(severityPattern(), ""),
		escapeEquals:      escaper("="),
		now:               time.Now,
	}
}

// Event renders one record as a delimited CEF line.
//
// Headers are emitted in their fixed order, normalizing the Severity header
// for the subtype before sanitization. Every extension value is converted,
// sanitized and equals escaped; a field failing any stage is logged, counted
// and dropped without affecting its siblings. Extension pairs are sorted by
// key so the wire output is reproducible.
func (g *Generator) Event(record, headers, extensions map[string]any, dataType, subtype, sourceID string) (string, int, error) {
	pairs, skipped := g.renderExtensions(extensions, dataType, subtype, true)

	components := make([]string, 0, len(mapping.Headers)+2)
	components = append(components, fmt.Sprintf("%s %s CEF:%s",
		g.now().Format(prefixLayout), sourceID, g.version))

	for _, header := range mapping.Headers {
		value, ok := headers[header]
		if !ok {
			continue
		}
		if header == severityHeader {
			value = NormalizeSeverity(value, subtype)
		}
		rendered, err := g.headerValue(header, value)
		if err != nil {
			g.logDroppedField(header, dataType, subtype, err)
			skipped++
			continue
		}
		components = append(components, rendered)
	}

	if dataType == mapping.DataTypeWebTx {
		rt, err := webTxTimestamp(record)
		if err != nil {
			return "", skipped, err
		}
		if rt != "" {
			pairs["rt"] = rt
		}
	}

	if len(pairs) == 0 {
		return "", skipped, ErrEmptyExtension
	}

	rendered := make([]string, 0, len(pairs))
	for name, value := range pairs {
		rendered = append(rendered, fmt.Sprintf("%v=%v", name, value))
	}
	sort.Strings(rendered)
	components = append(components, strings.Join(rendered, " "))

	return strings.Join(components, g.delimiter), skipped, nil
}

// JSONEvent renders one record as a structured envelope, expanding dotted
// extension keys into nested objects. Header rendering and equals escaping do
// not apply to this format.
func (g *Generator) JSONEvent(extensions map[string]any, dataType, subtype string) ([]byte, int, error) {
	pairs, skipped := g.renderExtensions(extensions, dataType, subtype, false)
	if len(pairs) == 0 {
		return nil, skipped, ErrEmptyExtension
	}

	keys := make([]string, 0, len(pairs))
	for name := range pairs {
		keys = append(keys, name)
	}
	sort.Strings(keys)

	body := []byte(`{}`)
	for _, name := range keys {
		var err error
		body, err = sjson.SetBytes(body, name, pairs[name])
		if err != nil {
			g.logDroppedField(name, dataType, subtype, err)
			skipped++
		}
	}
	return body, skipped, nil
}

// renderExtensions converts and sanitizes every extension value, dropping a
// field on its first failure. Equals escaping only makes sense for the
// key=value wire form, the structured form skips it.
func (g *Generator) renderExtensions(extensions map[string]any, dataType, subtype string, escape bool) (map[string]any, int) {
	pairs := make(map[string]any, len(extensions))
	var skipped int
	for name, value := range extensions {
		codec, ok := g.fields[name]
		if !ok {
			g.logDroppedField(name, dataType, subtype, fmt.Errorf("no codec registered for field"))
			skipped++
			continue
		}
		converted, err := codec.convert(value, name)
		if err != nil {
			g.logDroppedField(name, dataType, subtype, err)
			skipped++
			continue
		}
		sanitized, err := codec.sanitize(converted, name)
		if err != nil {
			g.logDroppedField(name, dataType, subtype, err)
			skipped++
			continue
		}
		if s, ok := sanitized.(string); ok && escape {
			sanitized = g.escapeEquals(s)
		}
		pairs[name] = sanitized
	}
	return pairs, skipped
}

func (g *Generator) headerValue(header string, value any) (string, error) {
	sanitizer := g.prefixSanitizer
	if header == severityHeader {
		sanitizer = g.severitySanitizer
	}
	sanitized, err := sanitizer(value, header)
	if err != nil {
		return "", err
	}
	return cast.ToString(sanitized), nil
}

func (g *Generator) logDroppedField(field, dataType, subtype string, err error) {
	g.log.Errorn("field will be dropped from the event",
		logger.NewStringField("field", field),
		logger.NewStringField("dataType", dataType),
		logger.NewStringField("subtype", subtype),
		obskit.Error(err),
	)
}

// webTxTimestamp combines the date and time fields of a web transaction into
// an epoch millisecond string. Both fields absent or empty is not an error,
// the synthesized extension is simply skipped.
func webTxTimestamp(record map[string]any) (string, error) {
	dateVal, dateOK := record["date"]
	timeVal, timeOK := record["time"]
	if !dateOK || !timeOK {
		return "", nil
	}
	date, clock := cast.ToString(dateVal), cast.ToString(timeVal)
	if date == "" || clock == "" {
		return "", nil
	}
	t, err := time.ParseInLocation(webTxLayout, date+" "+clock, time.Local)
	if err != nil {
		return "", fmt.Errorf("combine web transaction date and time: %w", err)
	}
	return strconv.FormatInt(t.UnixMilli(), 10), nil
}
