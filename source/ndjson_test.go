package source

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/logger"
)

func writeInput(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "records.ndjson")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func TestNDJSON(t *testing.T) {
	ctx := context.Background()

	t.Run("batches records in input order", func(t *testing.T) {
		path := writeInput(t,
			`{"user":"u1"}`,
			`{"user":"u2"}`,
			`{"user":"u3"}`,
			`{"user":"u4"}`,
			`{"user":"u5"}`,
		)
		s, err := NewNDJSON(NDJSONConfig{
			Path:      path,
			DataType:  "alerts",
			Subtype:   "dlp",
			BatchSize: 2,
		}, logger.NOP)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		var got []string
		sizes := []int{}
		for {
			batch, err := s.Next(ctx)
			if err == io.EOF {
				break
			}
			require.NoError(t, err)
			require.Equal(t, "alerts", batch.DataType)
			require.Equal(t, "dlp", batch.Subtype)
			sizes = append(sizes, len(batch.Records))
			for _, record := range batch.Records {
				got = append(got, string(record))
			}
		}
		require.Equal(t, []int{2, 2, 1}, sizes)
		require.Equal(t, []string{
			`{"user":"u1"}`, `{"user":"u2"}`, `{"user":"u3"}`, `{"user":"u4"}`, `{"user":"u5"}`,
		}, got)
	})

	t.Run("skips lines that are not JSON objects", func(t *testing.T) {
		path := writeInput(t,
			`{"user":"u1"}`,
			``,
			`"just a string"`,
			`{broken`,
			`  {"user":"u2"}  `,
		)
		s, err := NewNDJSON(NDJSONConfig{Path: path, DataType: "alerts", BatchSize: 10}, logger.NOP)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		batch, err := s.Next(ctx)
		require.NoError(t, err)
		require.Len(t, batch.Records, 2)
		require.JSONEq(t, `{"user":"u1"}`, string(batch.Records[0]))
		require.JSONEq(t, `{"user":"u2"}`, string(batch.Records[1]))

		_, err = s.Next(ctx)
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("empty input drains immediately", func(t *testing.T) {
		path := writeInput(t, "")
		s, err := NewNDJSON(NDJSONConfig{Path: path, BatchSize: 10}, logger.NOP)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		_, err = s.Next(ctx)
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("stops on a cancelled context", func(t *testing.T) {
		path := writeInput(t, `{"user":"u1"}`)
		s, err := NewNDJSON(NDJSONConfig{Path: path, BatchSize: 10}, logger.NOP)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		cancelled, cancel := context.WithCancel(context.Background())
		cancel()
		_, err = s.Next(cancelled)
		require.ErrorIs(t, err, context.Canceled)
	})

	t.Run("reads lines beyond the default scanner capacity", func(t *testing.T) {
		big := `{"payload":"` + strings.Repeat("x", 100*1024) + `"}`
		path := writeInput(t, big)
		s, err := NewNDJSON(NDJSONConfig{Path: path, BatchSize: 1, MaxLineKB: 1024}, logger.NOP)
		require.NoError(t, err)
		defer func() { _ = s.Close() }()

		batch, err := s.Next(ctx)
		require.NoError(t, err)
		require.Len(t, batch.Records, 1)
		require.Equal(t, big, string(batch.Records[0]))
	})

	t.Run("missing file fails at open", func(t *testing.T) {
		_, err := NewNDJSON(NDJSONConfig{Path: filepath.Join(t.TempDir(), "nope.ndjson")}, logger.NOP)
		require.Error(t, err)
	})
}
