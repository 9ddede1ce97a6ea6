package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/mac"
	"github.com/dbehnke/oqpsk-sink/pkg/source"
	"github.com/dbehnke/oqpsk-sink/pkg/synth"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	output := pflag.StringP("output", "o", "-", "Output file (\"-\" for stdout)")
	compress := pflag.BoolP("zstd", "z", false, "Compress output with zstd (implied by a .zst suffix)")
	payload := pflag.StringP("payload", "p", "hello", "Frame payload text")
	count := pflag.IntP("count", "n", 1, "Number of frames")
	seq := pflag.Uint8("seq", 0, "MAC sequence number of the first frame")
	pan := pflag.Uint16("pan", 0x1AAA, "PAN identifier")
	srcAddr := pflag.Uint16("src", 0x0001, "Short source address")
	dstAddr := pflag.Uint16("dst", 0xFFFF, "Short destination address")
	gap := pflag.IntP("gap", "g", 256, "Idle samples around each frame")
	amplitude := pflag.Float32("amplitude", 1, "Sample amplitude")
	noise := pflag.Float64("noise", 0, "Standard deviation of additive Gaussian noise")
	flips := pflag.Int("flips", 0, "Chips inverted per symbol")
	seed := pflag.Uint64("seed", 1, "Random seed for noise and flips")
	showVersion := pflag.BoolP("version", "v", false, "Show version information")
	help := pflag.BoolP("help", "h", false, "Display help text")
	pflag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chipgen [options]\n\n")
		fmt.Fprintf(os.Stderr, "Writes little-endian float32 chip samples carrying data frames.\n\n")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *help {
		pflag.Usage()
		os.Exit(0)
	}
	if *showVersion {
		fmt.Printf("chipgen %s (%s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	log := logger.New(logger.Config{Level: "info", Output: os.Stderr}).WithComponent("chipgen")

	gen, err := synth.New(synth.Config{
		Count:     *count,
		Seq:       *seq,
		Payload:   []byte(*payload),
		Dst:       mac.Address{Mode: mac.AddrShort, PANID: *pan, Short: *dstAddr},
		Src:       mac.Address{Mode: mac.AddrShort, PANID: *pan, Short: *srcAddr},
		Gap:       *gap,
		Amplitude: *amplitude,
		Noise:     *noise,
		Flips:     *flips,
		Seed:      *seed,
	})
	if err != nil {
		log.Error("Invalid options", logger.Error(err))
		os.Exit(2)
	}

	if err := write(gen, *output, *compress || strings.HasSuffix(*output, ".zst")); err != nil {
		log.Error("Failed to write samples", logger.Error(err))
		os.Exit(1)
	}
	log.Info("Wrote frames",
		logger.Int("frames", *count),
		logger.String("output", *output))
}

func write(gen *synth.Generator, path string, compress bool) error {
	var out io.Writer = os.Stdout
	if path != "-" {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	w, err := source.NewSampleWriter(out, compress)
	if err != nil {
		return err
	}
	if err := gen.Each(w.Write); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
