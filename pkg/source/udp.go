package source

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
)

// MaxDatagramSize bounds a single sample datagram
const MaxDatagramSize = 65507

// UDPSource receives sample datagrams, such as those sent by a GNU Radio
// UDP sink. Each datagram carries whole little-endian float32 samples.
type UDPSource struct {
	addr string
	log  *logger.Logger

	mu      sync.Mutex
	conn    *net.UDPConn
	started chan struct{}

	datagram []byte
	pending  []float32
	dropped  uint64
}

// NewUDPSource creates a source that will listen on host:port
func NewUDPSource(host string, port int, log *logger.Logger) *UDPSource {
	if log == nil {
		log = logger.Nop()
	}
	return &UDPSource{
		addr:     net.JoinHostPort(host, fmt.Sprint(port)),
		log:      log.WithComponent("source.udp"),
		started:  make(chan struct{}),
		datagram: make([]byte, MaxDatagramSize),
	}
}

// Listen binds the UDP socket
func (s *UDPSource) Listen() error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to resolve address: %w", err)
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	close(s.started)

	s.log.Info("UDP sample source listening", logger.String("addr", conn.LocalAddr().String()))
	return nil
}

// WaitStarted blocks until Listen has bound the socket or ctx is done
func (s *UDPSource) WaitStarted(ctx context.Context) error {
	select {
	case <-s.started:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the bound address, or nil before Listen
func (s *UDPSource) Addr() *net.UDPAddr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.LocalAddr().(*net.UDPAddr)
}

// Dropped returns the number of malformed datagrams discarded
func (s *UDPSource) Dropped() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Read returns samples from the next datagram, blocking until one arrives or
// ctx is cancelled. Samples that do not fit in buf are kept for the next call.
func (s *UDPSource) Read(ctx context.Context, buf []float32) (int, error) {
	if len(s.pending) > 0 {
		n := copy(buf, s.pending)
		s.pending = s.pending[n:]
		return n, nil
	}

	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return 0, errors.New("source: UDP source not listening")
	}

	for {
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		default:
		}

		// Short deadline so cancellation is noticed
		if err := conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond)); err != nil {
			return 0, fmt.Errorf("failed to set read deadline: %w", err)
		}

		n, addr, err := conn.ReadFromUDP(s.datagram)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if errors.Is(err, net.ErrClosed) {
				return 0, err
			}
			return 0, fmt.Errorf("failed to read datagram: %w", err)
		}

		if n%SampleSize != 0 {
			s.mu.Lock()
			s.dropped++
			s.mu.Unlock()
			s.log.Warn("Dropping malformed datagram",
				logger.String("from", addr.String()),
				logger.Int("bytes", n),
				logger.Error(ErrTruncated))
			continue
		}
		if n == 0 {
			continue
		}

		samples := make([]float32, n/SampleSize)
		DecodeSamples(samples, s.datagram[:n])
		copied := copy(buf, samples)
		s.pending = samples[copied:]
		return copied, nil
	}
}

// Close closes the socket
func (s *UDPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	return err
}
