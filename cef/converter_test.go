package cef

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestStringConverter(t *testing.T) {
	testCases := []struct {
		name     string
		in       any
		expected string
		wantErr  bool
	}{
		{name: "string passes through", in: "block", expected: "block"},
		{name: "integral float renders without exponent", in: float64(1699999999), expected: "1699999999"},
		{name: "fractional float", in: 42.5, expected: "42.5"},
		{name: "bool", in: true, expected: "true"},
		{name: "nil renders empty", in: nil, expected: ""},
		{name: "map is rejected", in: map[string]any{"a": 1}, wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := stringConverter(tc.in, "act")
			if tc.wantErr {
				require.Error(t, err)
				var typeErr *TypeError
				require.ErrorAs(t, err, &typeErr)
				require.Equal(t, "act", typeErr.Field)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, out)
		})
	}
}

func TestIntegerConverter(t *testing.T) {
	out, err := integerConverter("42", "cnt")
	require.NoError(t, err)
	require.Equal(t, int64(42), out)

	out, err = integerConverter(float64(7), "cnt")
	require.NoError(t, err)
	require.Equal(t, int64(7), out)

	_, err = integerConverter("42.5", "cnt")
	require.Error(t, err)

	_, err = integerConverter("not a number", "cnt")
	require.Error(t, err)
}

func TestFloatConverter(t *testing.T) {
	out, err := floatConverter("42.5", "cfp1")
	require.NoError(t, err)
	require.Equal(t, 42.5, out)

	_, err = floatConverter("not a number", "cfp1")
	require.Error(t, err)
}

func TestEpochConverter(t *testing.T) {
	testCases := []struct {
		name     string
		in       any
		expected string
	}{
		{name: "ten digit seconds are padded to thirteen", in: "1699999999", expected: "1699999999000"},
		{name: "twelve digits gain a single zero", in: "169999999999", expected: "1699999999990"},
		{name: "thirteen digits are untouched", in: "1699999999123", expected: "1699999999123"},
		{name: "longer values are untouched", in: "16999999991234", expected: "16999999991234"},
		{name: "numeric input is stringified first", in: float64(1699999999), expected: "1699999999000"},
		{name: "empty string becomes all zeros", in: "", expected: "0000000000000"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			out, err := epochConverter(tc.in, "rt")
			require.NoError(t, err)
			require.Equal(t, tc.expected, out)
		})
	}

	_, err := epochConverter([]any{1}, "rt")
	require.Error(t, err)
}

func TestDateTimeConverter(t *testing.T) {
	t.Run("float epoch seconds", func(t *testing.T) {
		out, err := dateTimeConverter(float64(1700000000), "end")
		require.NoError(t, err)
		require.Equal(t, time.Unix(1700000000, 0), out)
	})

	t.Run("integer epoch seconds", func(t *testing.T) {
		out, err := dateTimeConverter(int64(1700000000), "end")
		require.NoError(t, err)
		require.Equal(t, time.Unix(1700000000, 0), out)
	})

	t.Run("decoded number epoch seconds", func(t *testing.T) {
		out, err := dateTimeConverter(json.Number("1700000000"), "end")
		require.NoError(t, err)
		require.Equal(t, time.Unix(1700000000, 0), out)
	})

	t.Run("non numeric decoded number is rejected", func(t *testing.T) {
		_, err := dateTimeConverter(json.Number("yesterday"), "end")
		require.Error(t, err)
	})

	t.Run("textual input is rejected", func(t *testing.T) {
		_, err := dateTimeConverter("1700000000", "end")
		require.Error(t, err)
		var typeErr *TypeError
		require.ErrorAs(t, err, &typeErr)
		require.Equal(t, "end", typeErr.Field)
	})
}
