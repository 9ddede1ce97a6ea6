package testhelpers

import (
	"errors"
	"net"
	"sync"

	"github.com/dbehnke/oqpsk-sink/pkg/source"
)

// ErrNotConnected is returned when sending before Connect
var ErrNotConnected = errors.New("transmitter not connected")

// SampleTransmitter simulates a front end streaming float32 samples over UDP
type SampleTransmitter struct {
	DatagramSamples int
	conn            *net.UDPConn
	mu              sync.RWMutex
	sent            int
	closed          bool
}

// NewSampleTransmitter creates a transmitter that packs at most
// datagramSamples samples into each datagram
func NewSampleTransmitter(datagramSamples int) *SampleTransmitter {
	if datagramSamples <= 0 {
		datagramSamples = 1024
	}
	if limit := source.MaxDatagramSize / source.SampleSize; datagramSamples > limit {
		datagramSamples = limit
	}
	return &SampleTransmitter{DatagramSamples: datagramSamples}
}

// Connect connects the transmitter to a receiver
func (m *SampleTransmitter) Connect(addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return err
	}
	conn, err := net.DialUDP("udp", nil, udpAddr)
	if err != nil {
		return err
	}
	m.conn = conn
	return nil
}

// SendSamples encodes samples and writes them in datagram-sized pieces
func (m *SampleTransmitter) SendSamples(samples []float32) error {
	buf := make([]byte, 0, m.DatagramSamples*source.SampleSize)
	for len(samples) > 0 {
		n := m.DatagramSamples
		if n > len(samples) {
			n = len(samples)
		}
		buf = source.EncodeSamples(buf[:0], samples[:n])
		if err := m.SendRaw(buf); err != nil {
			return err
		}
		samples = samples[n:]
	}
	return nil
}

// SendRaw writes one datagram as-is
func (m *SampleTransmitter) SendRaw(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.closed {
		return ErrNotConnected
	}
	if _, err := m.conn.Write(data); err != nil {
		return err
	}
	m.sent++
	return nil
}

// SentDatagrams returns how many datagrams were written
func (m *SampleTransmitter) SentDatagrams() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sent
}

// Close closes the transmitter connection
func (m *SampleTransmitter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true
	if m.conn != nil {
		return m.conn.Close()
	}
	return nil
}

// IsConnected returns whether the transmitter is connected
func (m *SampleTransmitter) IsConnected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil && !m.closed
}
