// Package source delivers demodulated chip samples to the pipeline. Samples
// are little-endian IEEE 754 float32 values, one per chip, the layout written
// by GNU Radio file sinks.
package source

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
)

// SampleSize is the encoded size of one sample in bytes
const SampleSize = 4

// ErrTruncated indicates input ended or arrived mid-sample
var ErrTruncated = errors.New("source: truncated sample")

// Source yields batches of samples. Read fills buf with up to len(buf)
// samples and returns io.EOF once no more will arrive.
type Source interface {
	Read(ctx context.Context, buf []float32) (int, error)
	Close() error
}

// DecodeSamples converts little-endian float32 bytes into dst and returns the
// number of samples written. Trailing bytes short of a full sample are ignored.
func DecodeSamples(dst []float32, src []byte) int {
	n := len(src) / SampleSize
	if n > len(dst) {
		n = len(dst)
	}
	for i := 0; i < n; i++ {
		dst[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*SampleSize:]))
	}
	return n
}

// EncodeSamples appends samples to dst as little-endian float32 bytes
func EncodeSamples(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(s))
	}
	return dst
}

// SliceSource serves samples from memory in batches no larger than Batch
type SliceSource struct {
	samples []float32
	pos     int
	Batch   int // 0 means as large as the caller's buffer
}

// NewSliceSource creates an in-memory source
func NewSliceSource(samples []float32) *SliceSource {
	return &SliceSource{samples: samples}
}

// Read copies the next batch into buf
func (s *SliceSource) Read(ctx context.Context, buf []float32) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s.pos >= len(s.samples) {
		return 0, io.EOF
	}
	if s.Batch > 0 && len(buf) > s.Batch {
		buf = buf[:s.Batch]
	}
	n := copy(buf, s.samples[s.pos:])
	s.pos += n
	return n, nil
}

// Close is a no-op
func (s *SliceSource) Close() error {
	return nil
}
