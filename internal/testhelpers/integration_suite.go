package testhelpers

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dbehnke/oqpsk-sink/pkg/config"
	"github.com/dbehnke/oqpsk-sink/pkg/logger"
)

// IntegrationSuite provides infrastructure for integration tests
type IntegrationSuite struct {
	T            *testing.T
	Config       *config.Config
	Logger       *logger.Logger
	Ctx          context.Context
	Cancel       context.CancelFunc
	Transmitters []*SampleTransmitter
	Brokers      []*MockBroker
}

// NewIntegrationSuite creates a new integration test suite
func NewIntegrationSuite(t *testing.T) *IntegrationSuite {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)

	log := logger.New(logger.Config{
		Level:  "debug",
		Format: "text",
	})

	return &IntegrationSuite{
		T:      t,
		Config: CreateDefaultConfig(),
		Logger: log,
		Ctx:    ctx,
		Cancel: cancel,
	}
}

// CreateTransmitter creates a sample transmitter and adds it to the suite
func (s *IntegrationSuite) CreateTransmitter(datagramSamples int) *SampleTransmitter {
	tx := NewSampleTransmitter(datagramSamples)
	s.Transmitters = append(s.Transmitters, tx)
	return tx
}

// CreateBroker creates an in-memory MQTT broker and adds it to the suite
func (s *IntegrationSuite) CreateBroker() *MockBroker {
	b := NewMockBroker()
	s.Brokers = append(s.Brokers, b)
	return b
}

// GetFreePort gets a free TCP port for testing
func (s *IntegrationSuite) GetFreePort() int {
	addr, err := net.ResolveTCPAddr("tcp", "localhost:0")
	if err != nil {
		s.T.Fatal(err)
	}

	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = listener.Close() }()

	return listener.Addr().(*net.TCPAddr).Port
}

// GetFreeUDPPort gets a free UDP port for testing
func (s *IntegrationSuite) GetFreeUDPPort() int {
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1")})
	if err != nil {
		s.T.Fatal(err)
	}
	defer func() { _ = conn.Close() }()

	return conn.LocalAddr().(*net.UDPAddr).Port
}

// Cleanup cleans up resources
func (s *IntegrationSuite) Cleanup() {
	for _, tx := range s.Transmitters {
		_ = tx.Close()
	}
	s.Cancel()
}

// WaitFor waits for a condition to be true
func (s *IntegrationSuite) WaitFor(condition func() bool, timeout time.Duration, message string) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	s.T.Logf("WaitFor timeout: %s", message)
	return false
}

// AssertEventually asserts that a condition becomes true within timeout
func (s *IntegrationSuite) AssertEventually(condition func() bool, timeout time.Duration, message string) {
	if !s.WaitFor(condition, timeout, message) {
		s.T.Errorf("Assertion failed: %s", message)
	}
}

// CreateDefaultConfig creates a test configuration with every outer surface
// disabled and UDP input on loopback
func CreateDefaultConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Name:        "Test Receiver",
			Description: "Integration Test Receiver",
		},
		Sink: config.SinkConfig{
			Threshold: 0,
			QueueSize: 64,
		},
		Input: config.InputConfig{
			Type:        config.InputUDP,
			Compression: "auto",
			BatchSize:   4096,
			Host:        "127.0.0.1",
			Port:        0,
		},
		Database: config.DatabaseConfig{
			Enabled: false,
			Path:    ":memory:",
		},
		Web: config.WebConfig{
			Enabled: false,
		},
		MQTT: config.MQTTConfig{
			Enabled:     false,
			TopicPrefix: "oqpsk/test",
		},
		Logging: config.LoggingConfig{
			Level:  "debug",
			Format: "text",
		},
		Metrics: config.MetricsConfig{
			Enabled: false,
		},
	}
}
