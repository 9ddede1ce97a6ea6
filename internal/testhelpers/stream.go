package testhelpers

import (
	"math/rand/v2"

	"github.com/dbehnke/oqpsk-sink/pkg/chips"
)

// PPDU builds a physical-layer frame: four zero octets of preamble, the SFD,
// the declared length and the payload
func PPDU(declared byte, payload []byte) []byte {
	out := make([]byte, 0, 6+len(payload))
	out = append(out, 0, 0, 0, 0, chips.SFD, declared)
	return append(out, payload...)
}

// FrameSamples returns antipodal samples for a well-formed frame carrying payload
func FrameSamples(payload []byte) []float32 {
	return chips.Modulate(chips.Spread(PPDU(byte(len(payload)), payload)), 1)
}

// FrameSamplesWithLength returns samples for a frame with an arbitrary length byte
func FrameSamplesWithLength(declared byte, payload []byte) []float32 {
	return chips.Modulate(chips.Spread(PPDU(declared, payload)), 1)
}

// Idle returns n samples that slice to zero chips
func Idle(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = -1
	}
	return out
}

// Noise returns n random antipodal samples
func Noise(rng *rand.Rand, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		if rng.IntN(2) == 1 {
			out[i] = 1
		} else {
			out[i] = -1
		}
	}
	return out
}

// NewRand returns a deterministic generator for reproducible streams
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9E3779B97F4A7C15))
}

// CorruptSymbol overwrites the 32 samples of symbol index sym (counted from
// the start of samples) with all-positive chips, which is at least 13 chips
// away from every codeword
func CorruptSymbol(samples []float32, sym int) []float32 {
	out := append([]float32(nil), samples...)
	start := sym * chips.ChipsPerSymbol
	for i := start; i < start+chips.ChipsPerSymbol && i < len(out); i++ {
		out[i] = 1
	}
	return out
}

// FlipChips inverts n distinct chips in every 32-chip symbol, never touching
// the oldest chip of a symbol since it is excluded from comparison anyway
func FlipChips(rng *rand.Rand, samples []float32, n int) []float32 {
	out := append([]float32(nil), samples...)
	for start := 0; start+chips.ChipsPerSymbol <= len(out); start += chips.ChipsPerSymbol {
		for _, k := range rng.Perm(chips.ChipsPerSymbol - 1)[:n] {
			out[start+1+k] = -out[start+1+k]
		}
	}
	return out
}

// Concat joins sample slices
func Concat(parts ...[]float32) []float32 {
	var n int
	for _, p := range parts {
		n += len(p)
	}
	out := make([]float32, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Chunk splits samples into consecutive batches of the given sizes, cycling
// through sizes until samples are exhausted. Zero sizes are treated as one.
func Chunk(samples []float32, sizes ...int) [][]float32 {
	if len(sizes) == 0 {
		sizes = []int{len(samples)}
	}
	var out [][]float32
	for i, pos := 0, 0; pos < len(samples); i++ {
		n := sizes[i%len(sizes)]
		if n < 1 {
			n = 1
		}
		end := pos + n
		if end > len(samples) {
			end = len(samples)
		}
		out = append(out, samples[pos:end])
		pos = end
	}
	return out
}
