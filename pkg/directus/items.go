package directus

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

const (
	// DefaultBatchSize is the number of items BulkInsert posts per request.
	DefaultBatchSize = 100

	deleteChunk = 100
)

func itemsPath(collection string) string {
	return "/items/" + escape(collection)
}

// Items reads collection with q sent as query-string parameters.
func (c *Client) Items(ctx context.Context, collection string, q query.Query) ([]Item, error) {
	var items []Item
	if err := c.Get(ctx, itemsPath(collection), q, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SearchItems reads collection with q sent in a SEARCH body, which has no
// URL length limit.
func (c *Client) SearchItems(ctx context.Context, collection string, q query.Query) ([]Item, error) {
	var items []Item
	if err := c.Search(ctx, itemsPath(collection), q, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// ItemsSQL translates a SQL fragment (WHERE, ORDER BY, LIMIT, OFFSET) and
// searches collection with it.
func (c *Client) ItemsSQL(ctx context.Context, collection, sql string) ([]Item, error) {
	return c.SearchItems(ctx, collection, c.converter.Convert(sql))
}

func (c *Client) Item(ctx context.Context, collection string, id any) (Item, error) {
	var item Item
	if err := c.Get(ctx, itemsPath(collection)+"/"+escape(id), query.Query{}, &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) CreateItem(ctx context.Context, collection string, item Item) (Item, error) {
	var created Item
	if err := c.Post(ctx, itemsPath(collection), item, &created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) CreateItems(ctx context.Context, collection string, items []Item) ([]Item, error) {
	var created []Item
	if err := c.Post(ctx, itemsPath(collection), items, &created); err != nil {
		return nil, err
	}
	return created, nil
}

func (c *Client) UpdateItem(ctx context.Context, collection string, id any, patch Item) (Item, error) {
	var updated Item
	if err := c.Patch(ctx, itemsPath(collection)+"/"+escape(id), patch, &updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Client) DeleteItem(ctx context.Context, collection string, id any) error {
	return c.Delete(ctx, itemsPath(collection)+"/"+escape(id), nil)
}

// DeleteItems deletes the items with the given primary keys in one request.
func (c *Client) DeleteItems(ctx context.Context, collection string, ids []any) error {
	return c.Delete(ctx, itemsPath(collection), ids)
}

// BulkInsert posts items in batches of batchSize (DefaultBatchSize when <= 0).
// A batch that still fails after retries is parked in the DLQ and the next
// batch is sent. It returns the number of inserted items and the joined
// batch errors.
func (c *Client) BulkInsert(ctx context.Context, collection string, items []Item, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	var (
		inserted int
		errs     []error
	)
	for start := 0; start < len(items); start += batchSize {
		end := min(start+batchSize, len(items))
		batch := items[start:end]

		c.logger.Debug().Str("collection", collection).
			Msgf("inserting %d-%d out of %d", start, end, len(items))

		err := c.retryer.DoWithData(ctx, "bulk_insert:"+collection, func(ctx context.Context) error {
			r, err := newRequest(http.MethodPost, itemsPath(collection), batch, http.StatusOK)
			if err != nil {
				return err
			}
			payload, err := c.send(ctx, r)
			if err != nil {
				return err
			}
			c.invalidate(ctx, r.path)
			return decode(r, payload, nil)
		}, batch)
		if err != nil {
			if ctx.Err() != nil {
				return inserted, errors.Join(append(errs, err)...)
			}
			c.logger.Error().Err(err).Str("collection", collection).Int("from", start).Int("to", end).
				Msg("bulk insert batch failed")
			errs = append(errs, fmt.Errorf("items %d-%d: %w", start, end, err))
			continue
		}
		inserted += len(batch)
	}

	c.logger.Info().Str("collection", collection).Int("inserted", inserted).Int("total", len(items)).
		Msg("bulk insert finished")
	return inserted, errors.Join(errs...)
}

// DeleteAllItems deletes every item of collection in chunks and returns how
// many were deleted. It fails with ErrNoItems when the collection is empty.
func (c *Client) DeleteAllItems(ctx context.Context, collection string) (int, error) {
	pk, err := c.PrimaryKeyField(ctx, collection)
	if err != nil {
		return 0, err
	}

	rows, err := c.Items(ctx, collection, query.NewBuilder().Fields(pk).Limit(query.Unbounded).Build())
	if err != nil {
		return 0, err
	}
	ids := make([]any, 0, len(rows))
	for _, row := range rows {
		if id, ok := row[pk]; ok && id != nil {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoItems, collection)
	}

	deleted := 0
	for start := 0; start < len(ids); start += deleteChunk {
		end := min(start+deleteChunk, len(ids))
		if err := c.DeleteItems(ctx, collection, ids[start:end]); err != nil {
			return deleted, fmt.Errorf("delete items %d-%d of %s: %w", start, end, collection, err)
		}
		deleted += end - start
	}
	return deleted, nil
}
