package sync

import (
	"context"
	"fmt"
	"strconv"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
	"github.com/reise69/directus-go-sdk/pkg/export"
)

// Tracker is an export.Sink that remembers the greatest tracking value
// among the items written through it.
type Tracker struct {
	export.Sink
	field string
	last  any
}

func NewTracker(sink export.Sink, field string) *Tracker {
	return &Tracker{Sink: sink, field: field}
}

func (t *Tracker) Write(ctx context.Context, b export.Batch) error {
	if err := t.Sink.Write(ctx, b); err != nil {
		return err
	}
	for _, it := range b.Items {
		v, ok := query.Lookup(it, t.field)
		if !ok || v == nil {
			continue
		}
		if t.last == nil {
			t.last = v
			continue
		}
		newer, err := query.Compare(t.field, query.OpGreaterThan, t.last).Match(it)
		if err != nil {
			return fmt.Errorf("compare %s: %w", t.field, err)
		}
		if newer {
			t.last = v
		}
	}
	return nil
}

// Last returns the greatest value seen, "" when no item carried the field.
func (t *Tracker) Last() string {
	switch v := t.last.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
