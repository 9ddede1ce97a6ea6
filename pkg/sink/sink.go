// Package sink recovers 802.15.4 frames from a stream of demodulated O-QPSK
// chip samples. It is a single-threaded state machine: callers feed sample
// batches of any size to Work and completed frames are pushed to an Enqueuer.
package sink

import (
	"errors"
	"fmt"

	"github.com/dbehnke/oqpsk-sink/pkg/chips"
	"github.com/dbehnke/oqpsk-sink/pkg/logger"
)

// MaxPacketLen is the largest declared frame length accepted (aMaxPHYPacketSize)
const MaxPacketLen = 127

// DefaultThreshold requires an exact chip match
const DefaultThreshold = 0

var (
	// ErrUnknownState indicates the state machine reached an unrecognized state
	ErrUnknownState = errors.New("sink: unknown state")
	// ErrFrameOverrun indicates a write past the declared frame length
	ErrFrameOverrun = errors.New("sink: frame buffer overrun")
)

// Enqueuer receives completed frames. Ownership of frame passes to the callee.
type Enqueuer interface {
	Enqueue(frame []byte, length int) error
}

// EnqueuerFunc adapts a function to Enqueuer
type EnqueuerFunc func(frame []byte, length int) error

// Enqueue calls f
func (f EnqueuerFunc) Enqueue(frame []byte, length int) error {
	return f(frame, length)
}

// Observer is notified of synchronization events
type Observer interface {
	Synced()
	Desync(reason Reason)
	FrameEmitted(length int) // only frames the Enqueuer accepted
}

type nopObserver struct{}

func (nopObserver) Synced()          {}
func (nopObserver) Desync(Reason)    {}
func (nopObserver) FrameEmitted(int) {}

// Config holds sink configuration
type Config struct {
	Threshold int      // max chip errors per 32-chip comparison
	Observer  Observer // optional
}

// Sink is the packet receiver state machine
type Sink struct {
	correlator *chips.Correlator
	target     Enqueuer
	observer   Observer
	log        *logger.Logger

	state     State
	window    chips.ShiftRegister
	chipCount int // chips since the last 32-chip boundary

	search searchData
	header octet
	frame  frameData
	body   octet
}

// New creates a sink that pushes frames to target
func New(cfg Config, target Enqueuer, log *logger.Logger) *Sink {
	if log == nil {
		log = logger.Nop()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}

	s := &Sink{
		correlator: chips.NewCorrelator(cfg.Threshold),
		target:     target,
		observer:   obs,
		log:        log.WithComponent("sink"),
	}
	s.enterSearch()
	return s
}

// State returns the current synchronization phase
func (s *Sink) State() State {
	return s.state
}

// Threshold returns the configured chip error tolerance
func (s *Sink) Threshold() int {
	return s.correlator.Threshold()
}

// Work processes a batch of samples, one per chip, and returns the number
// consumed. Every sample is consumed unless the Enqueuer fails, in which case
// the count includes the sample that completed the rejected frame.
func (s *Sink) Work(samples []float32) (int, error) {
	for i, sample := range samples {
		s.window.PushSample(sample)

		var err error
		switch s.state {
		case StateSearching:
			s.searchStep()
		case StateSynced:
			err = s.syncedStep()
		case StateHeaderDecoded:
			err = s.payloadStep()
		default:
			return i, fmt.Errorf("%w: %v", ErrUnknownState, s.state)
		}
		if err != nil {
			return i + 1, err
		}
	}
	return len(samples), nil
}

// boundary advances the chip counter and reports a 32-chip boundary
func (s *Sink) boundary() bool {
	s.chipCount = (s.chipCount + 1) % chips.ChipsPerSymbol
	return s.chipCount == 0
}

func (s *Sink) searchStep() {
	w := s.window.Value()

	if s.search.zeros == 0 {
		// Unaligned: test every chip until the first zero symbol anchors the count
		if s.correlator.IsPreambleZero(w) {
			s.search.zeros = 1
		}
		return
	}

	if !s.boundary() {
		return
	}

	switch {
	case s.search.zeros < chips.PreambleLength:
		if !s.correlator.IsPreambleZero(w) {
			s.desync(ReasonPreamble, w)
			return
		}
		s.search.zeros++
	case !s.search.sfdLow:
		if !s.correlator.Matches(w, chips.SFDLowSymbol) {
			s.desync(ReasonSFD, w)
			return
		}
		s.search.sfdLow = true
	default:
		if !s.correlator.Matches(w, chips.SFDHighSymbol) {
			s.desync(ReasonSFD, w)
			return
		}
		s.enterSynced()
	}
}

func (s *Sink) syncedStep() error {
	if !s.boundary() {
		return nil
	}

	sym, ok := s.decode()
	if !ok {
		return nil
	}

	length, done := s.header.push(uint8(sym))
	if !done {
		return nil
	}
	if int(length) > MaxPacketLen {
		s.log.Debug("Declared length too long", logger.Int("length", int(length)))
		s.desync(ReasonLength, s.window.Value())
		return nil
	}

	s.enterHeaderDecoded(int(length))
	if length == 0 {
		return s.emit()
	}
	return nil
}

func (s *Sink) payloadStep() error {
	if !s.boundary() {
		return nil
	}

	sym, ok := s.decode()
	if !ok {
		return nil
	}

	b, done := s.body.push(uint8(sym))
	if !done {
		return nil
	}

	if s.frame.count >= s.frame.length {
		s.enterSearch()
		return fmt.Errorf("%w: %d/%d", ErrFrameOverrun, s.frame.count, s.frame.length)
	}
	s.frame.buf[s.frame.count] = b
	s.frame.count++

	if s.frame.count < s.frame.length {
		return nil
	}
	return s.emit()
}

// decode maps the current window to a symbol, abandoning sync on failure
func (s *Sink) decode() (chips.Symbol, bool) {
	w := s.window.Value()
	sym := s.correlator.DecodeSymbol(w)
	if !sym.Valid() {
		s.desync(ReasonInvalidSymbol, w)
		return sym, false
	}
	return sym, true
}

// emit hands the completed frame to the consumer and resumes searching
func (s *Sink) emit() error {
	n := s.frame.count
	out := make([]byte, n)
	copy(out, s.frame.buf[:n])
	s.enterSearch()

	s.log.Debug("Frame complete", logger.Int("length", n))

	if err := s.target.Enqueue(out, n); err != nil {
		return fmt.Errorf("enqueue frame: %w", err)
	}
	s.observer.FrameEmitted(n)
	return nil
}

func (s *Sink) desync(reason Reason, window uint32) {
	s.log.Debug("Lost synchronization",
		logger.String("state", s.state.String()),
		logger.String("reason", string(reason)),
		logger.Chips("window", window))
	s.observer.Desync(reason)
	s.enterSearch()
}

// enterSearch discards all in-progress state. The chip window is kept so it
// always holds the last 32 chips observed.
func (s *Sink) enterSearch() {
	s.state = StateSearching
	s.chipCount = 0
	s.search = searchData{}
	s.header = octet{}
	s.body = octet{}
	s.frame.length = 0
	s.frame.count = 0
}

func (s *Sink) enterSynced() {
	s.log.Debug("Found SFD")
	s.observer.Synced()
	s.state = StateSynced
	s.header = octet{}
}

func (s *Sink) enterHeaderDecoded(length int) {
	s.log.Debug("Header decoded", logger.Int("length", length))
	s.state = StateHeaderDecoded
	s.frame.length = length
	s.frame.count = 0
	s.body = octet{}
}
