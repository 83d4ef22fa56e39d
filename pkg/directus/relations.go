package directus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
	"github.com/reise69/directus-go-sdk/pkg/retry"
)

// idConflict reports whether err is the RECORD_NOT_UNIQUE error Directus
// returns on field "id" when a relation is created while its sequence lags
// behind.
func idConflict(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	for _, d := range apiErr.Errors {
		if d.Extensions.Code == ErrCodeRecordNotUnique && strings.Contains(d.Message, `field "id"`) {
			return true
		}
	}
	return false
}

// Relations returns the relations of collection reduced to collection, field
// and related_collection.
func (c *Client) Relations(ctx context.Context, collection string) ([]Relation, error) {
	var rels []Relation
	if err := c.Get(ctx, "/relations/"+escape(collection), query.Query{}, &rels); err != nil {
		return nil, err
	}
	out := make([]Relation, 0, len(rels))
	for _, r := range rels {
		out = append(out, Relation{
			Collection:        r.Collection,
			Field:             r.Field,
			RelatedCollection: r.RelatedCollection,
		})
	}
	return out, nil
}

// CreateRelation posts rel, retrying while Directus reports an id conflict.
func (c *Client) CreateRelation(ctx context.Context, rel Relation) (*Relation, error) {
	if rel.Collection == "" || rel.Field == "" || rel.RelatedCollection == "" {
		return nil, fmt.Errorf("%w: %+v", ErrInvalidRelation, rel)
	}

	cfg := retry.EnableRetry(5, 100*time.Millisecond)
	cfg.MaxDelay = 2 * time.Second
	cfg.Retryable = idConflict
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).
			Str("collection", rel.Collection).Str("field", rel.Field).Msg("relation id conflict, retrying")
	}
	r, err := retry.NewRetryer(cfg)
	if err != nil {
		return nil, err
	}

	body := Relation{Collection: rel.Collection, Field: rel.Field, RelatedCollection: rel.RelatedCollection}
	var created Relation
	err = r.Do(ctx, func(ctx context.Context) error {
		return c.Post(ctx, "/relations", body, &created)
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}
