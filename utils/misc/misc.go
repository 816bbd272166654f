// Package misc holds miscellaneous helper functions shared across packages.
package misc

import (
	"context"
	"time"

	"github.com/araddon/dateparse"
)

// GetParsedTimestamp returns the parsed timestamp
func GetParsedTimestamp(input interface{}) (time.Time, bool) {
	var parsedTimestamp time.Time
	var valid bool
	if timestampStr, typecasted := input.(string); typecasted {
		var err error
		parsedTimestamp, err = dateparse.ParseAny(timestampStr)
		if err == nil {
			valid = true
		}
	}
	return parsedTimestamp, valid
}

// SleepCtx sleeps for the given duration or until the context is canceled.
//
//	the context error is returned if context is canceled.
func SleepCtx(ctx context.Context, delay time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}
