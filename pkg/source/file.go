package source

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// Compression selects how capture files are decoded
type Compression string

const (
	CompressionAuto Compression = "auto"
	CompressionNone Compression = "none"
	CompressionZstd Compression = "zstd"
)

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ReaderSource decodes samples from a byte stream, optionally zstd-compressed
type ReaderSource struct {
	r       io.Reader
	closers []func() error
	raw     []byte
	partial []byte
}

// NewReaderSource wraps r. With CompressionAuto the stream is sniffed for the
// zstd frame magic.
func NewReaderSource(r io.Reader, compression Compression) (*ReaderSource, error) {
	br := bufio.NewReaderSize(r, 64*1024)
	s := &ReaderSource{r: br}

	useZstd := compression == CompressionZstd
	if compression == "" || compression == CompressionAuto {
		head, err := br.Peek(len(zstdMagic))
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to sniff input: %w", err)
		}
		useZstd = bytes.Equal(head, zstdMagic)
	}

	if useZstd {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("failed to open zstd stream: %w", err)
		}
		s.r = dec
		s.closers = append(s.closers, func() error { dec.Close(); return nil })
	}
	return s, nil
}

// OpenFile opens a capture file; "-" reads standard input
func OpenFile(path string, compression Compression) (*ReaderSource, error) {
	if path == "-" {
		return NewReaderSource(os.Stdin, compression)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture: %w", err)
	}
	if compression == "" || compression == CompressionAuto {
		if strings.HasSuffix(path, ".zst") {
			compression = CompressionZstd
		}
	}

	s, err := NewReaderSource(f, compression)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	s.closers = append(s.closers, f.Close)
	return s, nil
}

// Read decodes up to len(buf) samples. A sample split across underlying
// reads is carried over; a stream ending mid-sample returns ErrTruncated.
func (s *ReaderSource) Read(ctx context.Context, buf []float32) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(buf) == 0 {
		return 0, nil
	}

	want := len(buf) * SampleSize
	if cap(s.raw) < want {
		s.raw = make([]byte, want)
	}
	raw := s.raw[:want]
	have := copy(raw, s.partial)
	s.partial = s.partial[:0]

	n, err := s.r.Read(raw[have:])
	have += n

	whole := have - have%SampleSize
	count := DecodeSamples(buf, raw[:whole])
	s.partial = append(s.partial, raw[whole:have]...)

	if errors.Is(err, io.EOF) {
		if len(s.partial) > 0 {
			return count, fmt.Errorf("%w: %d trailing bytes", ErrTruncated, len(s.partial))
		}
		if count > 0 {
			return count, nil
		}
		return 0, io.EOF
	}
	if err != nil {
		return count, fmt.Errorf("failed to read samples: %w", err)
	}
	return count, nil
}

// Close releases the underlying file and decoder
func (s *ReaderSource) Close() error {
	var firstErr error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closers = nil
	return firstErr
}
