package export

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
)

// FileSink appends one encoded envelope per line to a file.
type FileSink struct {
	f   *os.File
	w   *bufio.Writer
	enc *Encoder
}

func NewFileSink(path string, enc *Encoder) (*FileSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("export: create %s: %w", path, err)
	}
	return &FileSink{f: f, w: bufio.NewWriter(f), enc: enc}, nil
}

func (s *FileSink) Write(ctx context.Context, b Batch) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := s.enc.Encode(b)
	if err != nil {
		return err
	}
	if _, err := s.w.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("export: write %s: %w", s.f.Name(), err)
	}
	return nil
}

func (s *FileSink) Close() error {
	return errors.Join(s.w.Flush(), s.f.Close())
}

// FileSource replays the envelopes written by a FileSink.
type FileSource struct {
	f *os.File
	r *bufio.Reader
}

func OpenFileSource(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("export: open %s: %w", path, err)
	}
	return &FileSource{f: f, r: bufio.NewReader(f)}, nil
}

// Receive returns the next non-empty line, or io.EOF.
func (s *FileSource) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line, err := s.r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		if len(line) > 0 {
			return line, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.EOF
			}
			return nil, fmt.Errorf("export: read %s: %w", s.f.Name(), err)
		}
	}
}

func (s *FileSource) Ack(context.Context) error { return nil }

func (s *FileSource) Close() error { return s.f.Close() }
