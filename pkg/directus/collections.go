package directus

import (
	"context"
	"fmt"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

func (c *Client) Collections(ctx context.Context) ([]Collection, error) {
	var cols []Collection
	if err := c.Get(ctx, "/collections", query.Query{}, &cols); err != nil {
		return nil, err
	}
	return cols, nil
}

func (c *Client) Collection(ctx context.Context, name string) (*Collection, error) {
	var col Collection
	if err := c.Get(ctx, "/collections/"+escape(name), query.Query{}, &col); err != nil {
		return nil, err
	}
	return &col, nil
}

// CollectionExists looks name up in the collection list.
func (c *Client) CollectionExists(ctx context.Context, name string) (bool, error) {
	cols, err := c.Collections(ctx)
	if err != nil {
		return false, err
	}
	for _, col := range cols {
		if col.Collection == name {
			return true, nil
		}
	}
	return false, nil
}

// UserCollections lists collections outside the directus_ system namespace.
func (c *Client) UserCollections(ctx context.Context) ([]Collection, error) {
	cols, err := c.Collections(ctx)
	if err != nil {
		return nil, err
	}
	out := cols[:0]
	for _, col := range cols {
		if !col.IsSystem() {
			out = append(out, col)
		}
	}
	return out, nil
}

func (c *Client) CreateCollection(ctx context.Context, col Collection) (*Collection, error) {
	var created Collection
	if err := c.Post(ctx, "/collections", col, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

func (c *Client) DeleteCollection(ctx context.Context, name string) error {
	return c.Delete(ctx, "/collections/"+escape(name), nil)
}

// DuplicateCollection creates dst with the schema, fields and items of src.
// It returns the number of copied items.
func (c *Client) DuplicateCollection(ctx context.Context, src, dst string) (int, error) {
	col, err := c.Collection(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("read collection %s: %w", src, err)
	}

	col.Collection = dst
	if col.Meta != nil {
		col.Meta["collection"] = dst
	}
	if col.Schema != nil {
		col.Schema["name"] = dst
	}
	col.Fields = nil
	if _, err := c.CreateCollection(ctx, *col); err != nil {
		return 0, fmt.Errorf("create collection %s: %w", dst, err)
	}

	fields, err := c.Fields(ctx, src)
	if err != nil {
		return 0, fmt.Errorf("read fields of %s: %w", src, err)
	}
	for _, f := range fields {
		if f.IsPrimaryKey() {
			continue
		}
		if _, err := c.CreateField(ctx, dst, f); err != nil {
			return 0, fmt.Errorf("copy field %s.%s: %w", src, f.Field, err)
		}
	}

	items, err := c.Items(ctx, src, query.NewBuilder().Limit(query.Unbounded).Build())
	if err != nil {
		return 0, fmt.Errorf("read items of %s: %w", src, err)
	}
	n, err := c.BulkInsert(ctx, dst, items, 0)
	if err != nil {
		return n, fmt.Errorf("copy items to %s: %w", dst, err)
	}

	c.logger.Info().Str("from", src).Str("to", dst).Int("fields", len(fields)).Int("items", n).
		Msg("collection duplicated")
	return n, nil
}
