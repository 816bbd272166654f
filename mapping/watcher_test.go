package mapping_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/cefstream/cefstream/mapping"
)

func TestWatchFile(t *testing.T) {
	documentWithDelimiter := func(delimiter string) string {
		return `{
			"delimiter": "` + delimiter + `",
			"cef_version": "0",
			"taxonomy": {"alerts": {"dlp": {
				"header": {"Device Vendor": {"default_value": "Netskope"}},
				"extension": {"act": {"mapping_field": "action"}}
			}}}
		}`
	}

	path := filepath.Join(t.TempDir(), "mappings.json")
	require.NoError(t, os.WriteFile(path, []byte(documentWithDelimiter("|")), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reloads := make(chan *mapping.Catalog, 10)
	done := make(chan error, 1)
	go func() {
		done <- mapping.WatchFile(ctx, path, logger.NOP, 0, func(c *mapping.Catalog) {
			reloads <- c
		})
	}()

	// Give the watcher a moment to register before the first rewrite.
	time.Sleep(100 * time.Millisecond)

	t.Run("rewrite triggers a reload", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(documentWithDelimiter(" ")), 0o600))
		select {
		case c := <-reloads:
			require.Equal(t, " ", c.Delimiter())
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload")
		}
	})

	t.Run("invalid rewrite keeps the current catalog", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte(`{"delimiter": "|"`), 0o600))
		time.Sleep(100 * time.Millisecond)
		require.NoError(t, os.WriteFile(path, []byte(documentWithDelimiter(";")), 0o600))

		select {
		case c := <-reloads:
			// The invalid intermediate never surfaces.
			require.Equal(t, ";", c.Delimiter())
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for reload")
		}
	})

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for watcher shutdown")
	}
}
