package export_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/reise69/directus-go-sdk/pkg/brokers"
	"github.com/reise69/directus-go-sdk/pkg/core/query"
	"github.com/reise69/directus-go-sdk/pkg/directus"
	"github.com/reise69/directus-go-sdk/pkg/directus/directustest"
	"github.com/reise69/directus-go-sdk/pkg/export"
)

func newClient(t *testing.T, srv *directustest.Server) *directus.Client {
	t.Helper()
	c, err := directus.New(srv.URL, directus.WithLogger(zerolog.Nop()))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func seed(srv *directustest.Server, collection string, n int) {
	srv.AddCollection(collection)
	rows := make([]map[string]any, n)
	for i := range rows {
		status := "draft"
		if i%2 == 0 {
			status = "published"
		}
		rows[i] = map[string]any{"seq": float64(i), "status": status}
	}
	srv.AddItems(collection, rows...)
}

type memorySink struct {
	batches []export.Batch
	closed  bool
	failAt  int
}

func (m *memorySink) Write(_ context.Context, b export.Batch) error {
	if m.failAt > 0 && b.Page == m.failAt {
		return errors.New("disk full")
	}
	m.batches = append(m.batches, b)
	return nil
}

func (m *memorySink) Close() error {
	m.closed = true
	return nil
}

func (m *memorySink) items() int {
	n := 0
	for _, b := range m.batches {
		n += len(b.Items)
	}
	return n
}

func intp(n int) *int { return &n }

func TestExporter_Export(t *testing.T) {
	tests := []struct {
		name        string
		q           query.Query
		wantItems   int
		wantBatches int
	}{
		{"everything", query.Query{}, 45, 5},
		{"filtered", query.NewBuilder().Field("status", query.OpEquals, "published").Build(), 23, 3},
		{"capped by limit", query.Query{Limit: intp(25)}, 25, 3},
		{"from offset", query.Query{Offset: intp(40)}, 5, 1},
		{"exact multiple", query.Query{Limit: intp(20)}, 20, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := directustest.New(t)
			seed(srv, "events", 45)
			c := newClient(t, srv)
			sink := &memorySink{}

			ex := export.NewExporter(c, sink, export.WithBatchSize(10), export.WithLogger(zerolog.Nop()))
			res, err := ex.Export(context.Background(), "events", tt.q)
			if err != nil {
				t.Fatalf("Export: %v", err)
			}
			if res.Items != tt.wantItems || sink.items() != tt.wantItems {
				t.Errorf("items = %d (sink %d), want %d", res.Items, sink.items(), tt.wantItems)
			}
			if res.Batches != tt.wantBatches || len(sink.batches) != tt.wantBatches {
				t.Errorf("batches = %d (sink %d), want %d", res.Batches, len(sink.batches), tt.wantBatches)
			}
			for i, b := range sink.batches {
				if b.Page != i+1 || b.Collection != "events" {
					t.Errorf("batch %d = page %d of %s", i, b.Page, b.Collection)
				}
			}
		})
	}
}

func TestExporter_SinkError(t *testing.T) {
	srv := directustest.New(t)
	seed(srv, "events", 30)
	c := newClient(t, srv)
	sink := &memorySink{failAt: 2}

	ex := export.NewExporter(c, sink, export.WithBatchSize(10), export.WithLogger(zerolog.Nop()))
	res, err := ex.Export(context.Background(), "events", query.Query{})
	if err == nil {
		t.Fatal("expected error")
	}
	if res.Items != 10 || res.Batches != 1 {
		t.Errorf("result = %+v", res)
	}
}

func TestExporter_ReadError(t *testing.T) {
	srv := directustest.New(t)
	c := newClient(t, srv)

	ex := export.NewExporter(c, &memorySink{}, export.WithLogger(zerolog.Nop()))
	_, err := ex.Export(context.Background(), "missing", query.Query{})
	if !errors.Is(err, directus.ErrForbidden) {
		t.Errorf("expected ErrForbidden, got %v", err)
	}
}

func TestExportImport_ThroughBroker(t *testing.T) {
	ctx := context.Background()
	srv := directustest.New(t)
	seed(srv, "events", 35)
	srv.AddCollection("events_copy")
	c := newClient(t, srv)

	enc, err := export.NewEncoder(export.EncoderConfig{Format: export.FormatMsgpack, Compress: true})
	if err != nil {
		t.Fatal(err)
	}
	defer enc.Close()

	mq := brokers.NewMemory()
	if err := mq.Connect(ctx); err != nil {
		t.Fatal(err)
	}

	ex := export.NewExporter(c, export.NewBrokerSink(mq, enc), export.WithBatchSize(10), export.WithLogger(zerolog.Nop()))
	if _, err := ex.Export(ctx, "events", query.Query{}); err != nil {
		t.Fatalf("Export: %v", err)
	}
	if mq.Len() != 4 {
		t.Fatalf("queued %d messages, want 4", mq.Len())
	}

	im := export.NewImporter(c, enc, export.WithBatchSize(10), export.WithLogger(zerolog.Nop()))
	res, err := im.Import(ctx, mq, "events_copy")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Items != 35 || res.Batches != 4 {
		t.Errorf("result = %+v", res)
	}
	if got := len(srv.Items("events_copy")); got != 35 {
		t.Errorf("events_copy has %d items, want 35", got)
	}
	if mq.Len() != 0 {
		t.Errorf("%d messages left unacked", mq.Len())
	}
}

func TestImporter_FailedInsertLeavesMessage(t *testing.T) {
	ctx := context.Background()
	srv := directustest.New(t)
	srv.AddCollection("events")
	srv.Fail(http.MethodPost, "/items/events", http.StatusBadRequest, 1)
	c := newClient(t, srv)

	enc, _ := export.NewEncoder(export.EncoderConfig{})
	defer enc.Close()
	mq := brokers.NewMemory()
	_ = mq.Connect(ctx)

	payload, err := enc.Encode(export.Batch{Collection: "events", Page: 1, Items: []query.Item{{"seq": 1.0}}})
	if err != nil {
		t.Fatal(err)
	}
	_ = mq.Send(ctx, payload)

	im := export.NewImporter(c, enc, export.WithLogger(zerolog.Nop()))
	if _, err := im.Import(ctx, mq, ""); err == nil {
		t.Fatal("expected import error")
	}
	if mq.Len() != 1 {
		t.Fatalf("message was acked after a failed insert")
	}

	res, err := im.Import(ctx, mq, "")
	if err != nil {
		t.Fatalf("second Import: %v", err)
	}
	if res.Items != 1 || res.Collection != "events" || mq.Len() != 0 {
		t.Errorf("result = %+v, queue = %d", res, mq.Len())
	}
}

func TestImporter_MessageIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	srv := directustest.New(t)
	srv.AddCollection("events")
	srv.Fail(http.MethodPost, "/items/events", http.StatusBadRequest, 1)
	c := newClient(t, srv)

	enc, _ := export.NewEncoder(export.EncoderConfig{})
	defer enc.Close()
	mq := brokers.NewMemory()
	_ = mq.Connect(ctx)

	items := make([]query.Item, 5)
	for i := range items {
		items[i] = query.Item{"seq": float64(i)}
	}
	payload, err := enc.Encode(export.Batch{Collection: "events", Page: 1, Items: items})
	if err != nil {
		t.Fatal(err)
	}
	_ = mq.Send(ctx, payload)

	im := export.NewImporter(c, enc, export.WithBatchSize(2), export.WithLogger(zerolog.Nop()))
	if _, err := im.Import(ctx, mq, ""); err == nil {
		t.Fatal("expected import error")
	}
	if got := len(srv.Items("events")); got != 0 {
		t.Fatalf("failed message left %d items behind", got)
	}
	if got := srv.Count(http.MethodPost, "/items/events"); got != 1 {
		t.Errorf("message sent in %d requests, want 1", got)
	}

	if _, err := im.Import(ctx, mq, ""); err != nil {
		t.Fatalf("redelivered Import: %v", err)
	}
	if got := len(srv.Items("events")); got != 5 {
		t.Errorf("events has %d items after redelivery, want 5", got)
	}
}

type silentSource struct{}

func (silentSource) Receive(ctx context.Context) ([]byte, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func (silentSource) Ack(context.Context) error { return nil }

func TestImporter_IdleTimeout(t *testing.T) {
	srv := directustest.New(t)
	c := newClient(t, srv)
	enc, _ := export.NewEncoder(export.EncoderConfig{})
	defer enc.Close()

	im := export.NewImporter(c, enc, export.WithIdleTimeout(20*time.Millisecond), export.WithLogger(zerolog.Nop()))
	res, err := im.Import(context.Background(), silentSource{}, "events")
	if err != nil {
		t.Fatalf("Import: %v", err)
	}
	if res.Batches != 0 {
		t.Errorf("result = %+v", res)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := im.Import(ctx, silentSource{}, "events"); !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled Import = %v", err)
	}
}
