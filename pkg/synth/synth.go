// Package synth produces O-QPSK chip sample streams carrying MAC data frames.
// It drives cmd/chipgen and end-to-end tests of the receiver.
package synth

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/dbehnke/oqpsk-sink/pkg/chips"
	"github.com/dbehnke/oqpsk-sink/pkg/mac"
)

// ErrNoFrames is returned when Count is not positive
var ErrNoFrames = errors.New("synth: frame count must be positive")

// Config describes a generated stream
type Config struct {
	Count     int         // frames to generate
	Seq       uint8       // MAC sequence number of the first frame
	Payload   []byte      // payload of every frame
	Dst       mac.Address // destination address, short mode
	Src       mac.Address // source address, short mode
	Gap       int         // idle samples before each frame and after the last
	Amplitude float32     // sample magnitude; 0 means 1
	Noise     float64     // standard deviation of additive Gaussian noise
	Flips     int         // chips inverted per 32-chip symbol
	Seed      uint64      // seeds noise and flips
}

// Generator builds sample streams from a Config
type Generator struct {
	cfg Config
	rng *rand.Rand
}

// New validates cfg and returns a generator
func New(cfg Config) (*Generator, error) {
	if cfg.Count <= 0 {
		return nil, ErrNoFrames
	}
	if cfg.Flips < 0 || cfg.Flips > chips.ChipsPerSymbol {
		return nil, fmt.Errorf("synth: flips must be between 0 and %d", chips.ChipsPerSymbol)
	}
	if cfg.Gap < 0 {
		return nil, fmt.Errorf("synth: gap must not be negative")
	}
	if cfg.Amplitude == 0 {
		cfg.Amplitude = 1
	}
	return &Generator{
		cfg: cfg,
		rng: rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5DEECE66D)),
	}, nil
}

// Frame returns the PPDU for the i-th frame
func (g *Generator) Frame(i int) ([]byte, error) {
	mpdu, err := mac.BuildMPDU(mac.DataFCF(), g.cfg.Seq+uint8(i), g.cfg.Dst, g.cfg.Src, g.cfg.Payload)
	if err != nil {
		return nil, err
	}
	return mac.BuildPPDU(mpdu)
}

// Each calls fn with the samples of every gap and frame in order, stopping at
// the first error
func (g *Generator) Each(fn func(samples []float32) error) error {
	for i := 0; i < g.cfg.Count; i++ {
		ppdu, err := g.Frame(i)
		if err != nil {
			return err
		}
		if err := g.emitGap(fn); err != nil {
			return err
		}
		if err := fn(g.impair(g.flip(chips.Spread(ppdu)))); err != nil {
			return err
		}
	}
	return g.emitGap(fn)
}

// Generate returns the whole stream as one slice
func (g *Generator) Generate() ([]float32, error) {
	var out []float32
	err := g.Each(func(samples []float32) error {
		out = append(out, samples...)
		return nil
	})
	return out, err
}

func (g *Generator) emitGap(fn func([]float32) error) error {
	if g.cfg.Gap == 0 {
		return nil
	}
	idle := make([]uint32, g.cfg.Gap)
	return fn(g.impair(idle))
}

func (g *Generator) flip(c []uint32) []uint32 {
	if g.cfg.Flips == 0 {
		return c
	}
	for start := 0; start+chips.ChipsPerSymbol <= len(c); start += chips.ChipsPerSymbol {
		for _, k := range g.rng.Perm(chips.ChipsPerSymbol)[:g.cfg.Flips] {
			c[start+k] ^= 1
		}
	}
	return c
}

func (g *Generator) impair(c []uint32) []float32 {
	samples := chips.Modulate(c, g.cfg.Amplitude)
	if g.cfg.Noise > 0 {
		for i := range samples {
			samples[i] += float32(g.rng.NormFloat64() * g.cfg.Noise)
		}
	}
	return samples
}
