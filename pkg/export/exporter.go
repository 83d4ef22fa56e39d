package export

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/reise69/directus-go-sdk/pkg/brokers"
	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

const (
	DefaultBatchSize   = 100
	DefaultIdleTimeout = 5 * time.Second
)

// ItemReader fetches a page of items. *directus.Client satisfies it.
type ItemReader interface {
	Items(ctx context.Context, collection string, q query.Query) ([]query.Item, error)
}

// ItemWriter inserts items in batches. *directus.Client satisfies it.
type ItemWriter interface {
	BulkInsert(ctx context.Context, collection string, items []query.Item, batchSize int) (int, error)
}

// Source yields encoded envelopes. A message is consumed only once acked.
// brokers.MessageBroker and FileSource satisfy it.
type Source interface {
	Receive(ctx context.Context) ([]byte, error)
	Ack(ctx context.Context) error
}

// Result summarizes one export or import run.
type Result struct {
	Collection string
	Batches    int
	Items      int
	StartedAt  time.Time
	FinishedAt time.Time
}

func (r Result) Duration() time.Duration { return r.FinishedAt.Sub(r.StartedAt) }

type settings struct {
	batchSize int
	idle      time.Duration
	logger    zerolog.Logger
}

type Option func(*settings)

// WithBatchSize sets the export page size and the import insert batch size.
func WithBatchSize(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithIdleTimeout ends an import once the source has been silent for d.
// Zero waits until ctx ends.
func WithIdleTimeout(d time.Duration) Option {
	return func(s *settings) { s.idle = d }
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func newSettings(opts []Option) settings {
	s := settings{batchSize: DefaultBatchSize, idle: DefaultIdleTimeout, logger: log.Logger}
	for _, o := range opts {
		o(&s)
	}
	return s
}

// Exporter pages through a collection and hands every page to a Sink.
type Exporter struct {
	reader ItemReader
	sink   Sink
	settings
}

func NewExporter(r ItemReader, sink Sink, opts ...Option) *Exporter {
	return &Exporter{reader: r, sink: sink, settings: newSettings(opts)}
}

// Export reads collection with q using offset paging. A limit on q caps the
// total number of items; Page on q is ignored.
func (e *Exporter) Export(ctx context.Context, collection string, q query.Query) (Result, error) {
	res := Result{Collection: collection, StartedAt: time.Now()}

	q = q.Clone()
	q.Page = nil
	remaining := -1
	if q.Limit != nil && *q.Limit >= 0 {
		remaining = *q.Limit
	}
	offset := 0
	if q.Offset != nil {
		offset = *q.Offset
	}

	for page := 1; ; page++ {
		size := e.batchSize
		if remaining >= 0 && remaining < size {
			size = remaining
		}
		if size == 0 {
			break
		}
		limit, off := size, offset
		q.Limit, q.Offset = &limit, &off

		items, err := e.reader.Items(ctx, collection, q)
		if err != nil {
			res.FinishedAt = time.Now()
			return res, fmt.Errorf("export: read %s page %d: %w", collection, page, err)
		}
		if len(items) == 0 {
			break
		}
		if err := e.sink.Write(ctx, Batch{Collection: collection, Page: page, Items: items}); err != nil {
			res.FinishedAt = time.Now()
			return res, fmt.Errorf("export: write %s page %d: %w", collection, page, err)
		}

		res.Batches++
		res.Items += len(items)
		e.logger.Debug().Str("collection", collection).Int("page", page).Int("items", len(items)).Msg("batch exported")

		if len(items) < size {
			break
		}
		offset += len(items)
		if remaining >= 0 {
			remaining -= len(items)
		}
	}

	res.FinishedAt = time.Now()
	e.logger.Info().Str("collection", collection).Int("batches", res.Batches).Int("items", res.Items).
		Dur("duration", res.Duration()).Msg("export finished")
	return res, nil
}

// Importer drains a Source into a collection.
type Importer struct {
	writer ItemWriter
	enc    *Encoder
	settings
}

func NewImporter(w ItemWriter, enc *Encoder, opts ...Option) *Importer {
	return &Importer{writer: w, enc: enc, settings: newSettings(opts)}
}

// Import inserts every batch from src into collection, or into the batch's
// own collection when collection is empty. It stops when the source is
// drained or idle. Each message is inserted with a single request, so it is
// stored whole or not at all. A batch that fails to decode or insert is left
// unacked and ends the run.
func (im *Importer) Import(ctx context.Context, src Source, collection string) (Result, error) {
	res := Result{Collection: collection, StartedAt: time.Now()}

	for {
		data, err := im.receive(ctx, src)
		if errors.Is(err, errDrained) {
			break
		}
		if err != nil {
			res.FinishedAt = time.Now()
			return res, err
		}

		b, err := im.enc.Decode(data)
		if err != nil {
			res.FinishedAt = time.Now()
			return res, err
		}
		target := collection
		if target == "" {
			target = b.Collection
		}
		if res.Collection == "" {
			res.Collection = target
		}

		n, err := im.writer.BulkInsert(ctx, target, b.Items, max(len(b.Items), 1))
		res.Items += n
		if err != nil {
			res.FinishedAt = time.Now()
			return res, fmt.Errorf("export: import into %s page %d: %w", target, b.Page, err)
		}
		if err := src.Ack(ctx); err != nil {
			res.FinishedAt = time.Now()
			return res, fmt.Errorf("export: ack page %d: %w", b.Page, err)
		}
		res.Batches++
		im.logger.Debug().Str("collection", target).Int("page", b.Page).Int("items", n).Msg("batch imported")
	}

	res.FinishedAt = time.Now()
	im.logger.Info().Str("collection", res.Collection).Int("batches", res.Batches).Int("items", res.Items).
		Dur("duration", res.Duration()).Msg("import finished")
	return res, nil
}

var errDrained = errors.New("source drained")

func (im *Importer) receive(ctx context.Context, src Source) ([]byte, error) {
	rctx := ctx
	if im.idle > 0 {
		var cancel context.CancelFunc
		rctx, cancel = context.WithTimeout(ctx, im.idle)
		defer cancel()
	}

	data, err := src.Receive(rctx)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, brokers.ErrNoMessage), errors.Is(err, io.EOF):
		return nil, errDrained
	case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
		return nil, errDrained
	default:
		return nil, fmt.Errorf("export: receive: %w", err)
	}
}
