package source

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// SampleWriter encodes samples to a byte stream, optionally zstd-compressed
type SampleWriter struct {
	w   io.Writer
	enc *zstd.Encoder
	buf []byte
}

// NewSampleWriter creates a writer; Close must be called to flush compression
func NewSampleWriter(w io.Writer, compress bool) (*SampleWriter, error) {
	sw := &SampleWriter{w: w}
	if compress {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
		if err != nil {
			return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
		}
		sw.enc = enc
		sw.w = enc
	}
	return sw, nil
}

// Write encodes samples
func (sw *SampleWriter) Write(samples []float32) error {
	sw.buf = EncodeSamples(sw.buf[:0], samples)
	if _, err := sw.w.Write(sw.buf); err != nil {
		return fmt.Errorf("failed to write samples: %w", err)
	}
	return nil
}

// Close flushes the compressor, if any. The underlying writer is not closed.
func (sw *SampleWriter) Close() error {
	if sw.enc != nil {
		return sw.enc.Close()
	}
	return nil
}
