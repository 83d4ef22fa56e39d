package export

import (
	"encoding/json"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

func sampleBatch() Batch {
	return Batch{
		Collection: "articles",
		Page:       2,
		Items: []query.Item{
			{"id": 1.0, "title": "Hello", "tags": []any{"a", "b"}, "meta": map[string]any{"views": 10.0}},
			{"id": 2.0, "title": strings.Repeat("long text ", 50), "published": true, "author": nil},
		},
	}
}

func TestEncoder_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		cfg  EncoderConfig
	}{
		{"json", EncoderConfig{Format: FormatJSON}},
		{"json zstd", EncoderConfig{Format: FormatJSON, Compress: true}},
		{"msgpack", EncoderConfig{Format: FormatMsgpack}},
		{"msgpack zstd", EncoderConfig{Format: FormatMsgpack, Compress: true, Level: 9}},
		{"default format", EncoderConfig{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc, err := NewEncoder(tt.cfg)
			if err != nil {
				t.Fatalf("NewEncoder: %v", err)
			}
			defer enc.Close()

			want := sampleBatch()
			data, err := enc.Encode(want)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}

			var env Envelope
			if err := json.Unmarshal(data, &env); err != nil {
				t.Fatalf("envelope is not JSON: %v", err)
			}
			if env.Count != 2 || env.Collection != "articles" {
				t.Errorf("envelope header = %+v", env)
			}
			if (env.Compression == compressionZstd) != tt.cfg.Compress {
				t.Errorf("compression = %q", env.Compression)
			}

			got, err := enc.Decode(data)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, want) {
				t.Errorf("round trip mismatch\n got %#v\nwant %#v", got, want)
			}
		})
	}
}

func TestEncoder_DecodesOtherFormats(t *testing.T) {
	mp, _ := NewEncoder(EncoderConfig{Format: FormatMsgpack, Compress: true})
	defer mp.Close()
	js, _ := NewEncoder(EncoderConfig{Format: FormatJSON})
	defer js.Close()

	data, err := mp.Encode(sampleBatch())
	if err != nil {
		t.Fatal(err)
	}
	got, err := js.Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(got.Items) != 2 || got.Items[0]["title"] != "Hello" {
		t.Errorf("unexpected batch %+v", got)
	}
}

func TestEncoder_ChecksumMismatch(t *testing.T) {
	enc, _ := NewEncoder(EncoderConfig{})
	defer enc.Close()

	data, err := enc.Encode(sampleBatch())
	if err != nil {
		t.Fatal(err)
	}
	var env Envelope
	_ = json.Unmarshal(data, &env)
	env.Payload = []byte(`[{"id":666}]`)
	tampered, _ := json.Marshal(env)

	if _, err := enc.Decode(tampered); !errors.Is(err, ErrChecksum) {
		t.Errorf("expected ErrChecksum, got %v", err)
	}
}

func TestNewEncoder_UnsupportedFormat(t *testing.T) {
	if _, err := NewEncoder(EncoderConfig{Format: "xml"}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("expected ErrUnsupportedFormat, got %v", err)
	}
}

func TestChecksum(t *testing.T) {
	a := Checksum([]byte("directus"))
	if len(a) != 16 {
		t.Errorf("checksum %q is not 16 hex digits", a)
	}
	if a != Checksum([]byte("directus")) {
		t.Error("checksum is not deterministic")
	}
	if a == Checksum([]byte("Directus")) {
		t.Error("different input, same checksum")
	}
}
