package mapping_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/cefstream/cefstream/mapping"
)

const sampleDocument = `{
	"delimiter": "|",
	"cef_version": "0",
	"taxonomy": {
		"alerts": {
			"DLP": {
				"header": {
					"Device Vendor": {"default_value": "Netskope"},
					"Device Product": {"default_value": "Netskope CASB"},
					"Name": {"mapping_field": "alert_name"},
					"Severity": {"mapping_field": "severity", "default_value": "Unknown"}
				},
				"extension": {
					"act": {"mapping_field": "action", "default_value": "allow"},
					"suser": {"mapping_field": "user"},
					"rt": {"mapping_field": "timestamp", "transformation": "Epoch"}
				}
			}
		},
		"events": {
			"page": {
				"header": {
					"Device Vendor": {"default_value": "Netskope"},
					"Name": {"default_value": "page visit"}
				},
				"extension": {
					"dhost": {"mapping_field": "domain"},
					"src": {"mapping_field": "$.srcip", "is_json_path": true}
				}
			}
		},
		"json": {
			"alerts": {"DLP": ["alert_name", "user"]},
			"events": {"page": []}
		}
	}
}`

func TestLoad(t *testing.T) {
	catalog, err := mapping.Load([]byte(sampleDocument), logger.NOP)
	require.NoError(t, err)

	t.Run("document attributes", func(t *testing.T) {
		require.Equal(t, "|", catalog.Delimiter())
		require.Equal(t, "0", catalog.Version())
		require.Equal(t, []string{"alerts", "events"}, catalog.DataTypes())
		require.Equal(t, []string{"dlp"}, catalog.Subtypes("alerts"))
	})

	t.Run("subtype lookup is case insensitive", func(t *testing.T) {
		for _, subtype := range []string{"DLP", "dlp", "Dlp"} {
			sm, err := catalog.SubtypeMapping("alerts", subtype)
			require.NoError(t, err)
			require.Len(t, sm.Header, 4)
			require.Len(t, sm.Extension, 3)
		}
	})

	t.Run("unknown data type", func(t *testing.T) {
		_, err := catalog.SubtypeMapping("webtx", "dlp")
		require.Error(t, err)
	})

	t.Run("unknown subtype", func(t *testing.T) {
		_, err := catalog.SubtypeMapping("alerts", "malware")
		require.Error(t, err)
	})

	t.Run("rule decoding", func(t *testing.T) {
		sm, err := catalog.SubtypeMapping("alerts", "dlp")
		require.NoError(t, err)

		act := sm.Extension["act"]
		require.True(t, act.HasMapping())
		require.True(t, act.HasDefault())
		require.Equal(t, "allow", act.Default())
		require.Equal(t, mapping.TransformationString, act.Kind())

		suser := sm.Extension["suser"]
		require.True(t, suser.HasMapping())
		require.False(t, suser.HasDefault())

		rt := sm.Extension["rt"]
		require.Equal(t, mapping.TransformationEpoch, rt.Kind())

		vendor := sm.Header["Device Vendor"]
		require.False(t, vendor.HasMapping())
		require.True(t, vendor.HasDefault())
	})

	t.Run("path expression rule", func(t *testing.T) {
		sm, err := catalog.SubtypeMapping("events", "page")
		require.NoError(t, err)
		require.True(t, sm.Extension["src"].IsJSONPath)
	})

	t.Run("passthrough fields", func(t *testing.T) {
		fields, err := catalog.PassthroughFields("alerts", "dlp")
		require.NoError(t, err)
		require.Equal(t, []string{"alert_name", "user"}, fields)

		fields, err = catalog.PassthroughFields("events", "PAGE")
		require.NoError(t, err)
		require.Empty(t, fields)

		_, err = catalog.PassthroughFields("webtx", "dlp")
		require.Error(t, err)
	})

	t.Run("merged fields", func(t *testing.T) {
		fields := catalog.Fields()
		require.Contains(t, fields, "act")
		require.Contains(t, fields, "dhost")
		require.Contains(t, fields, "Device Vendor")
		require.Equal(t, mapping.TransformationEpoch, fields["rt"].Kind())
	})
}

func TestLoadValidation(t *testing.T) {
	document := func(rule string) string {
		return fmt.Sprintf(`{
			"delimiter": "|",
			"cef_version": "0",
			"taxonomy": {"alerts": {"dlp": {"header": {}, "extension": {"act": %s}}}}
		}`, rule)
	}

	testCases := []struct {
		name string
		doc  string
	}{
		{name: "missing delimiter", doc: `{"cef_version": "0", "taxonomy": {"alerts": {}}}`},
		{name: "missing version", doc: `{"delimiter": "|", "taxonomy": {"alerts": {}}}`},
		{name: "missing taxonomy", doc: `{"delimiter": "|", "cef_version": "0"}`},
		{name: "not json", doc: `delimiter`},
		{name: "rule with no properties", doc: document(`{}`)},
		{name: "both mapping and default empty", doc: document(`{"mapping_field": "", "default_value": ""}`)},
		{name: "empty mapping without default", doc: document(`{"mapping_field": ""}`)},
		{name: "empty default without mapping", doc: document(`{"default_value": ""}`)},
		{name: "unknown transformation", doc: document(`{"mapping_field": "action", "transformation": "Boolean"}`)},
		{name: "is_json_path not boolean", doc: document(`{"mapping_field": "action", "is_json_path": "yes"}`)},
		{name: "mapping_field not string", doc: document(`{"mapping_field": 7}`)},
		{
			name: "header rule with is_json_path",
			doc: `{
				"delimiter": "|",
				"cef_version": "0",
				"taxonomy": {"alerts": {"dlp": {
					"header": {"Name": {"mapping_field": "$.alert_name", "is_json_path": true}},
					"extension": {}
				}}}
			}`,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := mapping.Load([]byte(tc.doc), logger.NOP)
			require.Error(t, err)
			var validationErr *mapping.ValidationError
			require.ErrorAs(t, err, &validationErr)
		})
	}

	t.Run("empty default next to a usable mapping is allowed", func(t *testing.T) {
		catalog, err := mapping.Load([]byte(document(`{"mapping_field": "action", "default_value": ""}`)), logger.NOP)
		require.NoError(t, err)
		sm, err := catalog.SubtypeMapping("alerts", "dlp")
		require.NoError(t, err)
		require.True(t, sm.Extension["act"].HasDefault())
		require.Equal(t, "", sm.Extension["act"].Default())
	})

	t.Run("unrecognized header is kept but reported", func(t *testing.T) {
		catalog, err := mapping.Load([]byte(`{
			"delimiter": "|",
			"cef_version": "0",
			"taxonomy": {"alerts": {"dlp": {
				"header": {"Device Hostname": {"default_value": "netskope"}},
				"extension": {}
			}}}
		}`), logger.NOP)
		require.NoError(t, err)
		sm, err := catalog.SubtypeMapping("alerts", "dlp")
		require.NoError(t, err)
		require.Contains(t, sm.Header, "Device Hostname")
	})
}
