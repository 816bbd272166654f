package mapping

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/samber/lo"

	"github.com/cefstream/cefstream/jsonrs"
)

// Catalog is an immutable, validated view over a mapping document. It is
// built once per load and shared read-only across workers until the next
// configuration change.
type Catalog struct {
	delimiter   string
	version     string
	taxonomy    map[string]map[string]SubtypeMapping
	passthrough map[string]map[string][]string
}

type document struct {
	Delimiter  string                     `json:"delimiter"`
	CEFVersion string                     `json:"cef_version"`
	Taxonomy   map[string]json.RawMessage `json:"taxonomy"`
}

type rawSubtypeMapping struct {
	Header    map[string]json.RawMessage `json:"header"`
	Extension map[string]json.RawMessage `json:"extension"`
}

// Load parses, validates and indexes a raw mapping document. Every rule
// object is checked against its schema and the mapping/default invariants
// before any record is transformed; the first violation yields a
// *ValidationError and no catalog. Header rules configured under a name
// outside Headers pass validation but are reported through log.
func Load(raw []byte, log logger.Logger) (*Catalog, error) {
	var doc document
	if err := jsonrs.Unmarshal(raw, &doc); err != nil {
		return nil, validationErrorf("parse document: %v", err)
	}
	if doc.Delimiter == "" {
		return nil, validationErrorf(`missing "delimiter"`)
	}
	if doc.CEFVersion == "" {
		return nil, validationErrorf(`missing "cef_version"`)
	}
	if len(doc.Taxonomy) == 0 {
		return nil, validationErrorf(`missing "taxonomy"`)
	}

	c := &Catalog{
		delimiter:   doc.Delimiter,
		version:     doc.CEFVersion,
		taxonomy:    make(map[string]map[string]SubtypeMapping),
		passthrough: make(map[string]map[string][]string),
	}
	for dataType, rawBranch := range doc.Taxonomy {
		if dataType == passthroughKey {
			var branch map[string]map[string][]string
			if err := jsonrs.Unmarshal(rawBranch, &branch); err != nil {
				return nil, validationErrorf("parse %q branch: %v", passthroughKey, err)
			}
			for passthroughType, subtypes := range branch {
				indexed := make(map[string][]string, len(subtypes))
				for subtype, fields := range subtypes {
					indexed[strings.ToLower(subtype)] = fields
				}
				c.passthrough[passthroughType] = indexed
			}
			continue
		}

		var subtypes map[string]rawSubtypeMapping
		if err := jsonrs.Unmarshal(rawBranch, &subtypes); err != nil {
			return nil, validationErrorf("parse %q branch: %v", dataType, err)
		}
		indexed := make(map[string]SubtypeMapping, len(subtypes))
		for subtype, rawMapping := range subtypes {
			sm := SubtypeMapping{
				Header:    make(map[string]Rule, len(rawMapping.Header)),
				Extension: make(map[string]Rule, len(rawMapping.Extension)),
			}
			for name, rawRule := range rawMapping.Header {
				rule, err := parseRule(rawRule, headerSchema)
				if err != nil {
					return nil, validationErrorf("%s/%s: header %q: %v", dataType, subtype, name, err)
				}
				if !lo.Contains(Headers, name) {
					log.Warnn("unrecognized header configured in mapping, it will not be emitted",
						logger.NewStringField("dataType", dataType),
						logger.NewStringField("subtype", subtype),
						logger.NewStringField("header", name),
					)
				}
				sm.Header[name] = rule
			}
			for name, rawRule := range rawMapping.Extension {
				rule, err := parseRule(rawRule, extensionSchema)
				if err != nil {
					return nil, validationErrorf("%s/%s: extension %q: %v", dataType, subtype, name, err)
				}
				sm.Extension[name] = rule
			}
			indexed[strings.ToLower(subtype)] = sm
		}
		c.taxonomy[dataType] = indexed
	}
	return c, nil
}

// Delimiter returns the component delimiter of the encoded line.
func (c *Catalog) Delimiter() string { return c.delimiter }

// Version returns the format version marker carried in the prelude.
func (c *Catalog) Version() string { return c.version }

// DataTypes returns the transformable data types of the catalog, sorted.
func (c *Catalog) DataTypes() []string {
	return sortedKeys(c.taxonomy)
}

// Subtypes returns the subtypes mapped for a data type, sorted.
func (c *Catalog) Subtypes(dataType string) []string {
	return sortedKeys(c.taxonomy[dataType])
}

// PassthroughDataTypes returns the raw mode data types of the catalog, sorted.
func (c *Catalog) PassthroughDataTypes() []string {
	return sortedKeys(c.passthrough)
}

// PassthroughSubtypes returns the subtypes configured for raw mode under a
// data type, sorted.
func (c *Catalog) PassthroughSubtypes(dataType string) []string {
	return sortedKeys(c.passthrough[dataType])
}

// SubtypeMapping returns the header and extension rules of the given data
// type and subtype, matching the subtype case insensitively.
func (c *Catalog) SubtypeMapping(dataType, subtype string) (SubtypeMapping, error) {
	subtypes, ok := c.taxonomy[dataType]
	if !ok {
		return SubtypeMapping{}, fmt.Errorf("no mappings for data type %q", dataType)
	}
	sm, ok := subtypes[strings.ToLower(subtype)]
	if !ok {
		return SubtypeMapping{}, fmt.Errorf("no mappings for subtype %q of data type %q", subtype, dataType)
	}
	return sm, nil
}

// PassthroughFields returns the raw mode field allowlist of the given data
// type and subtype. An empty allowlist means the record passes through
// unchanged.
func (c *Catalog) PassthroughFields(dataType, subtype string) ([]string, error) {
	subtypes, ok := c.passthrough[dataType]
	if !ok {
		return nil, fmt.Errorf("no passthrough fields for data type %q", dataType)
	}
	fields, ok := subtypes[strings.ToLower(subtype)]
	if !ok {
		return nil, fmt.Errorf("no passthrough fields for subtype %q of data type %q", subtype, dataType)
	}
	return fields, nil
}

// Fields returns every output field declared in the taxonomy with its rule,
// headers and extensions merged. Conflicting declarations across subtypes are
// resolved deterministically, the lexicographically last one wins.
func (c *Catalog) Fields() map[string]Rule {
	fields := make(map[string]Rule)
	for _, dataType := range sortedKeys(c.taxonomy) {
		subtypes := c.taxonomy[dataType]
		for _, subtype := range sortedKeys(subtypes) {
			sm := subtypes[subtype]
			for _, name := range sortedKeys(sm.Header) {
				fields[name] = sm.Header[name]
			}
			for _, name := range sortedKeys(sm.Extension) {
				fields[name] = sm.Extension[name]
			}
		}
	}
	return fields
}

func sortedKeys[V any](m map[string]V) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
