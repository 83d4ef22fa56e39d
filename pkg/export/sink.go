// Package export copies Directus collections to external stores and loads
// them back.
package export

import (
	"context"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Batch is one page of items from a collection.
type Batch struct {
	Collection string
	Page       int
	Items      []query.Item
}

// Sink receives batches in page order. Close flushes anything buffered.
type Sink interface {
	Write(ctx context.Context, b Batch) error
	Close() error
}
