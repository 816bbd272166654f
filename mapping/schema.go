package mapping

import (
	"encoding/json"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/cefstream/cefstream/jsonrs"
)

// Rule objects are validated structurally before decoding: at most four
// properties, at least one of mapping_field/default_value present. Header
// rules cannot carry is_json_path.
const (
	headerRuleSchema = `{
		"type": "object",
		"properties": {
			"mapping_field": {"type": "string"},
			"default_value": {"type": "string"},
			"transformation": {"type": "string"}
		},
		"additionalProperties": false,
		"minProperties": 0,
		"maxProperties": 3,
		"oneOf": [
			{
				"oneOf": [
					{"required": ["mapping_field"]},
					{"required": ["default_value"]}
				]
			},
			{
				"allOf": [
					{"required": ["mapping_field"]},
					{"required": ["default_value"]}
				]
			}
		]
	}`

	extensionRuleSchema = `{
		"type": "object",
		"properties": {
			"mapping_field": {"type": "string"},
			"default_value": {"type": "string"},
			"transformation": {"type": "string"},
			"is_json_path": {"type": "boolean"}
		},
		"additionalProperties": false,
		"minProperties": 0,
		"maxProperties": 4,
		"oneOf": [
			{
				"oneOf": [
					{"required": ["mapping_field"]},
					{"required": ["default_value"]}
				]
			},
			{
				"allOf": [
					{"required": ["mapping_field"]},
					{"required": ["default_value"]}
				]
			}
		]
	}`
)

var (
	headerSchema    = mustSchema(headerRuleSchema)
	extensionSchema = mustSchema(extensionRuleSchema)
)

func mustSchema(src string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(src))
	if err != nil {
		panic(err)
	}
	return schema
}

// parseRule validates a raw rule object against the given schema and the
// mapping/default invariants, then decodes it.
func parseRule(raw json.RawMessage, schema *gojsonschema.Schema) (Rule, error) {
	result, err := schema.Validate(gojsonschema.NewBytesLoader(raw))
	if err != nil {
		return Rule{}, validationErrorf("validate rule %s: %v", string(raw), err)
	}
	if !result.Valid() {
		descriptions := make([]string, 0, len(result.Errors()))
		for _, resultErr := range result.Errors() {
			descriptions = append(descriptions, resultErr.String())
		}
		return Rule{}, validationErrorf("rule %s does not match the schema: %s",
			string(raw), strings.Join(descriptions, "; "))
	}

	var keys map[string]json.RawMessage
	if err := jsonrs.Unmarshal(raw, &keys); err != nil {
		return Rule{}, validationErrorf("decode rule %s: %v", string(raw), err)
	}
	var rule Rule
	if err := jsonrs.Unmarshal(raw, &rule); err != nil {
		return Rule{}, validationErrorf("decode rule %s: %v", string(raw), err)
	}

	_, hasMappingKey := keys["mapping_field"]
	_, hasDefaultKey := keys["default_value"]
	switch {
	case hasMappingKey && hasDefaultKey && rule.MappingField == "" && rule.Default() == "":
		return Rule{}, validationErrorf(`"mapping_field" and "default_value" can not both be empty`)
	case hasMappingKey && !hasDefaultKey && rule.MappingField == "":
		return Rule{}, validationErrorf(`"mapping_field" can not be empty as no "default_value" is provided`)
	case hasDefaultKey && !hasMappingKey && rule.Default() == "":
		return Rule{}, validationErrorf(`"default_value" can not be empty as no "mapping_field" is provided`)
	}

	if _, ok := knownTransformations[rule.Kind()]; !ok {
		return Rule{}, validationErrorf("unknown transformation %q", rule.Transformation)
	}
	return rule, nil
}
