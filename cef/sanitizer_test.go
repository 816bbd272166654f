package cef

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStringSanitizer(t *testing.T) {
	sanitize := stringSanitizer(`[^\r\n]*`, "|")

	t.Run("plain text passes", func(t *testing.T) {
		out, err := sanitize("policy hit", "Name")
		require.NoError(t, err)
		require.Equal(t, "policy hit", out)
	})

	t.Run("delimiter characters are escaped", func(t *testing.T) {
		out, err := sanitize("a|b|c", "Name")
		require.NoError(t, err)
		require.Equal(t, `a\|b\|c`, out)
	})

	t.Run("line breaks are rejected", func(t *testing.T) {
		for _, in := range []string{"a\nb", "a\rb", "\n"} {
			_, err := sanitize(in, "Name")
			require.Error(t, err)
		}
	})

	t.Run("non text is rejected", func(t *testing.T) {
		_, err := sanitize(int64(1), "Name")
		var typeErr *TypeError
		require.ErrorAs(t, err, &typeErr)
	})
}

func TestSeveritySanitizer(t *testing.T) {
	sanitize := stringSanitizer(severityPattern(), "")

	for _, valid := range []string{"Unknown", "Low", "Medium", "High", "Info", "Very-High"} {
		out, err := sanitize(valid, "Severity")
		require.NoError(t, err)
		require.Equal(t, valid, out)
	}

	for _, invalid := range []string{"low", "VeryHigh", "Critical", ""} {
		_, err := sanitize(invalid, "Severity")
		require.Error(t, err, "severity %q must be rejected", invalid)
	}
}

func TestNumericSanitizers(t *testing.T) {
	out, err := integerSanitizer(int64(42), "cnt")
	require.NoError(t, err)
	require.Equal(t, int64(42), out)

	_, err = integerSanitizer("42", "cnt")
	require.Error(t, err)

	out, err = floatSanitizer(0.5, "cfp1")
	require.NoError(t, err)
	require.Equal(t, 0.5, out)

	_, err = floatSanitizer(int64(1), "cfp1")
	require.Error(t, err)
}

func TestEpochSanitizer(t *testing.T) {
	out, err := epochSanitizer("1699999999000", "rt")
	require.NoError(t, err)
	require.Equal(t, "1699999999000", out)

	_, err = epochSanitizer(int64(1699999999000), "rt")
	require.Error(t, err)
}

func TestDateTimeSanitizer(t *testing.T) {
	out, err := dateTimeSanitizer(time.Date(2023, 11, 14, 9, 5, 2, 0, time.UTC), "end")
	require.NoError(t, err)
	require.Equal(t, "Nov 14 2023 09:05:02", out)

	_, err = dateTimeSanitizer("Nov 14 2023 09:05:02", "end")
	require.Error(t, err)
}

func TestEscaper(t *testing.T) {
	escape := escaper("=")
	require.Equal(t, `a\=b`, escape("a=b"))
	require.Equal(t, "plain", escape("plain"))
	require.Equal(t, `\=\=`, escape("=="))
}
