package misc_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/cefstream/cefstream/utils/misc"
)

func TestGetParsedTimestamp(t *testing.T) {
	testCases := []struct {
		name     string
		input    interface{}
		expected time.Time
		valid    bool
	}{
		{
			name:     "RFC3339",
			input:    "2022-12-16T04:36:12.786Z",
			expected: time.Date(2022, 12, 16, 4, 36, 12, 786000000, time.UTC),
			valid:    true,
		},
		{
			name:     "date time without zone",
			input:    "2021-06-28 15:04:05",
			expected: time.Date(2021, 6, 28, 15, 4, 5, 0, time.UTC),
			valid:    true,
		},
		{
			name:  "garbage string",
			input: "not a timestamp",
			valid: false,
		},
		{
			name:  "non string input",
			input: 1671160572,
			valid: false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			parsed, valid := misc.GetParsedTimestamp(tc.input)
			require.Equal(t, tc.valid, valid)
			if tc.valid {
				require.Equal(t, tc.expected, parsed)
			}
		})
	}
}

func TestSleepCtx(t *testing.T) {
	t.Run("it sleeps until the delay elapses", func(t *testing.T) {
		start := time.Now()
		err := misc.SleepCtx(context.Background(), time.Millisecond)
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), time.Millisecond)
	})

	t.Run("it returns early when the context is canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := misc.SleepCtx(ctx, time.Minute)
		require.ErrorIs(t, err, context.Canceled)
	})
}
