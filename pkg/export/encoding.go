package export

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/zeebo/xxh3"

	"github.com/reise69/directus-go-sdk/pkg/core/query"
)

// Format is the encoding of the item payload inside an Envelope.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

const compressionZstd = "zstd"

var (
	ErrChecksum          = errors.New("export: checksum mismatch")
	ErrUnsupportedFormat = errors.New("export: unsupported format")
)

// EncoderConfig controls how batches are serialized.
type EncoderConfig struct {
	Format   Format `yaml:"format"`
	Compress bool   `yaml:"compress"`
	Level    int    `yaml:"level"` // zstd level, 1..22
}

// Envelope is the self-describing wire form of a Batch. Checksum is the xxh3
// of the payload before compression.
type Envelope struct {
	Collection  string `json:"collection"`
	Page        int    `json:"page"`
	Count       int    `json:"count"`
	Format      Format `json:"format"`
	Compression string `json:"compression,omitempty"`
	Checksum    string `json:"checksum"`
	Payload     []byte `json:"payload"`
}

// Encoder turns batches into envelopes and back. It is safe for concurrent
// use.
type Encoder struct {
	format   Format
	compress bool
	enc      *zstd.Encoder
	dec      *zstd.Decoder
}

func NewEncoder(cfg EncoderConfig) (*Encoder, error) {
	if cfg.Format == "" {
		cfg.Format = FormatJSON
	}
	if cfg.Format != FormatJSON && cfg.Format != FormatMsgpack {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, cfg.Format)
	}
	if cfg.Level == 0 {
		cfg.Level = 3
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(cfg.Level)))
	if err != nil {
		return nil, fmt.Errorf("export: zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, fmt.Errorf("export: zstd decoder: %w", err)
	}
	return &Encoder{format: cfg.Format, compress: cfg.Compress, enc: enc, dec: dec}, nil
}

func (e *Encoder) Format() Format { return e.format }

// Encode serializes b into a JSON envelope.
func (e *Encoder) Encode(b Batch) ([]byte, error) {
	var payload []byte
	var err error
	switch e.format {
	case FormatMsgpack:
		payload, err = msgpack.Marshal(b.Items)
	default:
		payload, err = json.Marshal(b.Items)
	}
	if err != nil {
		return nil, fmt.Errorf("export: encode %s: %w", e.format, err)
	}

	env := Envelope{
		Collection: b.Collection,
		Page:       b.Page,
		Count:      len(b.Items),
		Format:     e.format,
		Checksum:   Checksum(payload),
		Payload:    payload,
	}
	if e.compress {
		env.Compression = compressionZstd
		env.Payload = e.enc.EncodeAll(payload, nil)
	}
	return json.Marshal(env)
}

// Decode parses an envelope produced by any Encoder, whatever its own
// format, and verifies the checksum.
func (e *Encoder) Decode(data []byte) (Batch, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Batch{}, fmt.Errorf("export: decode envelope: %w", err)
	}

	payload := env.Payload
	switch env.Compression {
	case "":
	case compressionZstd:
		var err error
		payload, err = e.dec.DecodeAll(env.Payload, nil)
		if err != nil {
			return Batch{}, fmt.Errorf("export: decompress: %w", err)
		}
	default:
		return Batch{}, fmt.Errorf("export: unsupported compression %q", env.Compression)
	}

	if got := Checksum(payload); got != env.Checksum {
		return Batch{}, fmt.Errorf("%w: expected %s, got %s", ErrChecksum, env.Checksum, got)
	}

	var items []query.Item
	var err error
	switch env.Format {
	case FormatJSON:
		err = json.Unmarshal(payload, &items)
	case FormatMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(payload))
		dec.UseLooseInterfaceDecoding(true)
		err = dec.Decode(&items)
	default:
		return Batch{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, env.Format)
	}
	if err != nil {
		return Batch{}, fmt.Errorf("export: decode %s: %w", env.Format, err)
	}
	return Batch{Collection: env.Collection, Page: env.Page, Items: items}, nil
}

func (e *Encoder) Close() {
	e.enc.Close()
	e.dec.Close()
}

// Checksum returns the hex xxh3 of data.
func Checksum(data []byte) string {
	return fmt.Sprintf("%016x", xxh3.Hash(data))
}
