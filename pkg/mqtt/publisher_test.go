package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dbehnke/oqpsk-sink/pkg/mac"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
)

// fakeToken is a completed (or never-completing) paho token
type fakeToken struct {
	done chan struct{}
	err  error
}

func newToken(err error) *fakeToken {
	t := &fakeToken{done: make(chan struct{}), err: err}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { <-t.done; return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

type fakeClient struct {
	mu           sync.Mutex
	connectErr   error
	publishErr   error
	hang         bool
	messages     []published
	disconnected bool
}

func (c *fakeClient) Connect() paho.Token { return newToken(c.connectErr) }

func (c *fakeClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	if c.hang {
		return &fakeToken{done: make(chan struct{})}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, published{topic, qos, retained, payload.([]byte)})
	return newToken(c.publishErr)
}

func (c *fakeClient) Disconnect(uint) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
}

func testFrame() pipeline.Decoded {
	return pipeline.Decoded{
		ID:       "abc",
		Session:  "s1",
		Seq:      7,
		Received: time.Unix(1700000000, 0).UTC(),
		Raw:      []byte{0x01, 0x88, 0x05},
		Frame: &mac.Frame{
			FCF:      mac.DataFCF(),
			Seq:      5,
			Dst:      mac.Address{Mode: mac.AddrShort, PANID: 0x1AAA, Short: 0xFFFF},
			Src:      mac.Address{Mode: mac.AddrShort, PANID: 0x1AAA, Short: 0x0001},
			Payload:  []byte("hi"),
			FCSValid: true,
		},
	}
}

func TestNewPublisher(t *testing.T) {
	config := Config{
		Enabled:     true,
		Broker:      "tcp://localhost:1883",
		TopicPrefix: "oqpsk/test",
		ClientID:    "test-client",
		QoS:         1,
	}

	pub := New(config, nil)
	if pub == nil {
		t.Fatal("Expected non-nil publisher")
	}
	if pub.config.Broker != config.Broker {
		t.Errorf("Expected broker %s, got %s", config.Broker, pub.config.Broker)
	}
	if pub.config.PublishTimeout != 5*time.Second {
		t.Errorf("Expected default publish timeout, got %v", pub.config.PublishTimeout)
	}
}

func TestPublisher_StartWhenDisabled(t *testing.T) {
	pub := New(Config{Enabled: false}, nil)
	if err := pub.Start(context.Background()); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	if err := pub.HandleFrame(context.Background(), testFrame()); err != nil {
		t.Errorf("Expected no error when disabled, got %v", err)
	}
	// Should not panic when stopping without starting
	pub.Stop()
}

func TestPublisher_ConnectFailure(t *testing.T) {
	client := &fakeClient{connectErr: errors.New("refused")}
	pub := New(Config{Enabled: true}, nil).WithClient(client)

	if err := pub.Start(context.Background()); err == nil {
		t.Error("Expected connect error")
	}
}

func TestPublisher_HandleFrame(t *testing.T) {
	client := &fakeClient{}
	pub := New(Config{Enabled: true, TopicPrefix: "oqpsk/", QoS: 1, Retained: true}, nil).WithClient(client)
	if err := pub.Start(context.Background()); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	if err := pub.HandleFrame(context.Background(), testFrame()); err != nil {
		t.Fatalf("HandleFrame failed: %v", err)
	}

	if len(client.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(client.messages))
	}
	msg := client.messages[0]
	if msg.topic != "oqpsk/frames" {
		t.Errorf("Expected topic oqpsk/frames, got %s", msg.topic)
	}
	if msg.qos != 1 || !msg.retained {
		t.Errorf("Unexpected qos/retained: %d/%v", msg.qos, msg.retained)
	}

	var got pipeline.Summary
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("Payload is not JSON: %v", err)
	}
	if got.ID != "abc" || got.Seq != 7 || got.Payload != "6869" || !got.FCSValid {
		t.Errorf("Unexpected summary: %+v", got)
	}
	if got.FrameType != "data" || got.Dst != "1aaa/ffff" {
		t.Errorf("Unexpected MAC fields: %+v", got)
	}

	pub.Stop()
	if !client.disconnected {
		t.Error("Expected client to be disconnected")
	}
}

func TestPublisher_PublishStatus(t *testing.T) {
	client := &fakeClient{}
	pub := New(Config{Enabled: true, TopicPrefix: "oqpsk"}, nil).WithClient(client)

	event := StatusEvent{Session: "s1", Uptime: "1m0s", Stats: map[string]int{"frames": 3}, Timestamp: time.Now()}
	if err := pub.PublishStatus(context.Background(), event); err != nil {
		t.Fatalf("PublishStatus failed: %v", err)
	}
	if client.messages[0].topic != "oqpsk/status" {
		t.Errorf("Expected status topic, got %s", client.messages[0].topic)
	}
}

func TestPublisher_PublishErrors(t *testing.T) {
	t.Run("not connected", func(t *testing.T) {
		pub := New(Config{Enabled: true}, nil)
		err := pub.HandleFrame(context.Background(), testFrame())
		if !errors.Is(err, ErrNotConnected) {
			t.Errorf("Expected ErrNotConnected, got %v", err)
		}
	})

	t.Run("broker error", func(t *testing.T) {
		pub := New(Config{Enabled: true}, nil).WithClient(&fakeClient{publishErr: errors.New("denied")})
		if err := pub.HandleFrame(context.Background(), testFrame()); err == nil {
			t.Error("Expected publish error")
		}
	})

	t.Run("timeout", func(t *testing.T) {
		pub := New(Config{Enabled: true, PublishTimeout: 20 * time.Millisecond}, nil).WithClient(&fakeClient{hang: true})
		if err := pub.HandleFrame(context.Background(), testFrame()); err == nil {
			t.Error("Expected timeout error")
		}
	})

	t.Run("context cancelled", func(t *testing.T) {
		pub := New(Config{Enabled: true}, nil).WithClient(&fakeClient{hang: true})
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := pub.HandleFrame(ctx, testFrame())
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Expected context.Canceled, got %v", err)
		}
	})
}

func TestTopicFormat(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		suffix   string
		expected string
	}{
		{"simple topic", "oqpsk/rx", "frames", "oqpsk/rx/frames"},
		{"trailing slash in prefix", "oqpsk/rx/", "frames", "oqpsk/rx/frames"},
		{"empty prefix", "", "status", "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := New(Config{TopicPrefix: tt.prefix}, nil)
			if topic := pub.formatTopic(tt.suffix); topic != tt.expected {
				t.Errorf("Expected topic %s, got %s", tt.expected, topic)
			}
		})
	}
}
