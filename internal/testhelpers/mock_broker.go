package testhelpers

import (
	"errors"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// ErrBrokerDown is returned by tokens while the broker is marked unavailable
var ErrBrokerDown = errors.New("broker unavailable")

// MockMessage is a message published to the mock broker
type MockMessage struct {
	Topic    string
	QoS      byte
	Retained bool
	Payload  []byte
}

// MockBroker is an in-memory stand-in for an MQTT client and broker. It
// satisfies the client interface used by the MQTT publisher.
type MockBroker struct {
	mu        sync.RWMutex
	messages  []MockMessage
	connected bool
	down      bool
}

// NewMockBroker creates a new mock broker
func NewMockBroker() *MockBroker {
	return &MockBroker{}
}

// SetDown makes subsequent connects and publishes fail
func (b *MockBroker) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Connect marks the client connected
func (b *MockBroker) Connect() paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return newToken(ErrBrokerDown)
	}
	b.connected = true
	return newToken(nil)
}

// Publish records a message
func (b *MockBroker) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down || !b.connected {
		return newToken(ErrBrokerDown)
	}

	msg := MockMessage{Topic: topic, QoS: qos, Retained: retained}
	switch p := payload.(type) {
	case []byte:
		msg.Payload = append([]byte(nil), p...)
	case string:
		msg.Payload = []byte(p)
	}
	b.messages = append(b.messages, msg)
	return newToken(nil)
}

// Disconnect marks the client disconnected
func (b *MockBroker) Disconnect(uint) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.connected = false
}

// IsConnected reports whether Connect succeeded and Disconnect was not called
func (b *MockBroker) IsConnected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.connected
}

// Messages returns all published messages
func (b *MockBroker) Messages() []MockMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]MockMessage, len(b.messages))
	copy(out, b.messages)
	return out
}

// MessagesOn returns the messages published to topic
func (b *MockBroker) MessagesOn(topic string) []MockMessage {
	var out []MockMessage
	for _, m := range b.Messages() {
		if m.Topic == topic {
			out = append(out, m)
		}
	}
	return out
}

// doneToken is an already-completed paho token
type doneToken struct {
	err  error
	done chan struct{}
}

func newToken(err error) *doneToken {
	t := &doneToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *doneToken) Wait() bool                     { return true }
func (t *doneToken) WaitTimeout(time.Duration) bool { return true }
func (t *doneToken) Done() <-chan struct{}          { return t.done }
func (t *doneToken) Error() error                   { return t.err }
