package health

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/rudderlabs/rudder-go-kit/httputil"
)

// WaitUntilReady polls endpoint until it answers 200 or atMost elapses.
func WaitUntilReady(ctx context.Context, t testing.TB, endpoint string, atMost, interval time.Duration) {
	t.Helper()
	probe := time.NewTicker(interval)
	defer probe.Stop()
	timeout := time.After(atMost)
	for {
		select {
		case <-ctx.Done():
			return
		case <-timeout:
			t.Fatalf("endpoint %s not ready after %s", endpoint, atMost)
		case <-probe.C:
			resp, err := http.Get(endpoint)
			if err != nil {
				continue
			}
			ready := resp.StatusCode == http.StatusOK
			httputil.CloseResponse(resp)
			if ready {
				return
			}
		}
	}
}
