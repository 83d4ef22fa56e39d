package directus

import (
	"context"
	"fmt"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Fields returns the fields of collection with meta.id removed, ready to be
// posted to another collection.
func (c *Client) Fields(ctx context.Context, collection string) ([]Field, error) {
	var fields []Field
	if err := c.Get(ctx, "/fields/"+escape(collection), query.Query{}, &fields); err != nil {
		return nil, err
	}
	for i := range fields {
		delete(fields[i].Meta, "id")
	}
	return fields, nil
}

// CreateField adds f to collection.
func (c *Client) CreateField(ctx context.Context, collection string, f Field) (*Field, error) {
	if f.Field == "" {
		return nil, ErrInvalidField
	}
	f.Collection = ""
	if f.Meta != nil {
		meta := make(map[string]any, len(f.Meta))
		for k, v := range f.Meta {
			meta[k] = v
		}
		delete(meta, "id")
		meta["collection"] = collection
		f.Meta = meta
	}
	if f.Schema != nil {
		schema := make(map[string]any, len(f.Schema))
		for k, v := range f.Schema {
			schema[k] = v
		}
		schema["table"] = collection
		f.Schema = schema
	}

	var created Field
	if err := c.Post(ctx, "/fields/"+escape(collection), f, &created); err != nil {
		return nil, err
	}
	return &created, nil
}

// PrimaryKeyField returns the name of the primary key of collection.
func (c *Client) PrimaryKeyField(ctx context.Context, collection string) (string, error) {
	fields, err := c.Fields(ctx, collection)
	if err != nil {
		return "", err
	}
	for _, f := range fields {
		if f.IsPrimaryKey() {
			return f.Field, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNoPrimaryKey, collection)
}

// ForeignKeyFields returns the fields of collection that reference another
// table.
func (c *Client) ForeignKeyFields(ctx context.Context, collection string) ([]Field, error) {
	fields, err := c.Fields(ctx, collection)
	if err != nil {
		return nil, err
	}
	var out []Field
	for _, f := range fields {
		if f.ForeignKeyTable() != "" {
			out = append(out, f)
		}
	}
	return out, nil
}
