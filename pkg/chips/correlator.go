package chips

import (
	"fmt"
	"math/bits"
)

// Symbol is a decoded 4-bit value or InvalidSymbol
type Symbol uint8

// InvalidSymbol marks a chip window that matched no codeword
const InvalidSymbol Symbol = 0xFF

// Valid reports whether s is a decoded nibble
func (s Symbol) Valid() bool {
	return s < NumSymbols
}

// String returns the nibble in hex or "invalid"
func (s Symbol) String() string {
	if !s.Valid() {
		return "invalid"
	}
	return fmt.Sprintf("%X", uint8(s))
}

// Slice quantizes one demodulated sample to a chip
func Slice(sample float32) uint32 {
	if sample > 0 {
		return 1
	}
	return 0
}

// ShiftRegister holds the last 32 chips, newest in bit 0
type ShiftRegister uint32

// Push shifts a chip in, discarding the oldest one
func (r *ShiftRegister) Push(chip uint32) {
	*r = *r<<1 | ShiftRegister(chip&1)
}

// PushSample slices a sample and shifts the resulting chip in
func (r *ShiftRegister) PushSample(sample float32) {
	r.Push(Slice(sample))
}

// Value returns the raw 32-bit window
func (r ShiftRegister) Value() uint32 {
	return uint32(r)
}

// Distance returns the number of differing chips between a window and a
// codeword, ignoring bit 31 of both
func Distance(window, codeword uint32) int {
	return bits.OnesCount32((window & CompareMask) ^ (codeword & CompareMask))
}

// Correlator compares chip windows against the codebook under a fixed
// Hamming distance threshold
type Correlator struct {
	threshold int
}

// NewCorrelator creates a correlator; negative thresholds are clamped to 0
func NewCorrelator(threshold int) *Correlator {
	if threshold < 0 {
		threshold = 0
	}
	return &Correlator{threshold: threshold}
}

// Threshold returns the configured distance bound
func (c *Correlator) Threshold() int {
	return c.threshold
}

// Matches reports whether window is within threshold of the codeword for sym
func (c *Correlator) Matches(window uint32, sym Symbol) bool {
	if !sym.Valid() {
		return false
	}
	return Distance(window, Codebook[sym]) <= c.threshold
}

// IsPreambleZero reports whether window matches the zero symbol
func (c *Correlator) IsPreambleZero(window uint32) bool {
	return c.Matches(window, PreambleSymbol)
}

// DecodeSymbol returns the first codebook index within threshold, scanning
// 0..15 in order, or InvalidSymbol. The lowest index wins even when a later
// codeword is closer.
func (c *Correlator) DecodeSymbol(window uint32) Symbol {
	for i, codeword := range Codebook {
		if Distance(window, codeword) <= c.threshold {
			return Symbol(i)
		}
	}
	return InvalidSymbol
}
