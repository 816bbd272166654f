package cef

import (
	"strings"

	"github.com/spf13/cast"
)

// Canonical severity values of the encoded event.
const (
	SeverityUnknown  = "Unknown"
	SeverityLow      = "Low"
	SeverityMedium   = "Medium"
	SeverityHigh     = "High"
	SeverityInfo     = "Info"
	SeverityVeryHigh = "Very-High"
)

// severityMap translates source severities of every subtype except the audit
// trail. Keys are canonical lower case, probes are lowered before lookup.
var severityMap = map[string]string{
	"low":       SeverityLow,
	"med":       SeverityMedium,
	"medium":    SeverityMedium,
	"high":      SeverityHigh,
	"very-high": SeverityVeryHigh,
	"critical":  SeverityVeryHigh,
	"1":         SeverityLow,
	"2":         SeverityMedium,
	"3":         SeverityHigh,
	"4":         SeverityVeryHigh,
}

// auditSeverityMap translates audit trail severities, which carry an
// informational level the other subtypes never produce.
var auditSeverityMap = map[string]string{
	"info":          SeverityInfo,
	"informational": SeverityInfo,
	"low":           SeverityLow,
	"med":           SeverityMedium,
	"medium":        SeverityMedium,
	"high":          SeverityHigh,
	"critical":      SeverityVeryHigh,
}

// NormalizeSeverity maps a raw severity value onto the canonical scale for
// the given subtype. Values outside the known vocabulary come back as
// SeverityUnknown.
func NormalizeSeverity(raw any, subtype string) string {
	table := severityMap
	if subtype == "audit" {
		table = auditSeverityMap
	}
	if normalized, ok := table[strings.ToLower(cast.ToString(raw))]; ok {
		return normalized
	}
	return SeverityUnknown
}

// severityPattern returns the allow pattern matching exactly the canonical
// severity vocabulary.
func severityPattern() string {
	return strings.Join([]string{
		SeverityUnknown, SeverityLow, SeverityMedium, SeverityHigh, SeverityInfo, SeverityVeryHigh,
	}, "|")
}
