// Package source feeds the processor with batches of raw records.
package source

import (
	"context"

	"github.com/cefstream/cefstream/processor"
)

// Source yields batches of raw records in input order. Next returns io.EOF
// once the input is drained.
type Source interface {
	Next(ctx context.Context) (processor.Batch, error)
	Close() error
}
