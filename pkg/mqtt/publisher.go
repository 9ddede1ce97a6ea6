// Package mqtt publishes received frames and receiver status to an MQTT broker.
package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
)

// ErrNotConnected is returned when publishing before Start
var ErrNotConnected = errors.New("mqtt: not connected")

// Config holds MQTT publisher configuration
type Config struct {
	Enabled        bool
	Broker         string
	TopicPrefix    string
	ClientID       string
	Username       string
	Password       string
	QoS            byte
	Retained       bool
	PublishTimeout time.Duration
}

// Client is the subset of the paho client the publisher uses
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
}

// StatusEvent is published periodically with receiver counters
type StatusEvent struct {
	Session   string      `json:"session"`
	Uptime    string      `json:"uptime"`
	Stats     interface{} `json:"stats"`
	Timestamp time.Time   `json:"timestamp"`
}

// Publisher handles MQTT event publishing
type Publisher struct {
	config Config
	log    *logger.Logger

	mu     sync.Mutex
	client Client
}

// New creates a new MQTT publisher
func New(config Config, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.Nop()
	}
	if config.PublishTimeout <= 0 {
		config.PublishTimeout = 5 * time.Second
	}

	return &Publisher{
		config: config,
		log:    log.WithComponent("mqtt"),
	}
}

// WithClient injects a client instead of dialing the configured broker
func (p *Publisher) WithClient(c Client) *Publisher {
	p.client = c
	return p
}

func (p *Publisher) newClient() Client {
	opts := paho.NewClientOptions()
	opts.AddBroker(p.config.Broker)
	opts.SetClientID(p.config.ClientID)
	if p.config.Username != "" {
		opts.SetUsername(p.config.Username)
	}
	if p.config.Password != "" {
		opts.SetPassword(p.config.Password)
	}
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(10 * time.Second)
	opts.SetKeepAlive(60 * time.Second)

	opts.SetOnConnectHandler(func(paho.Client) {
		p.log.Info("Connected to broker", logger.String("broker", p.config.Broker))
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		p.log.Warn("Connection lost", logger.Error(err))
	})
	return paho.NewClient(opts)
}

// Start connects to the broker
func (p *Publisher) Start(ctx context.Context) error {
	if !p.config.Enabled {
		p.log.Info("MQTT publisher disabled")
		return nil
	}

	p.log.Info("Starting MQTT publisher",
		logger.String("broker", p.config.Broker),
		logger.String("client_id", p.config.ClientID))

	p.mu.Lock()
	if p.client == nil {
		p.client = p.newClient()
	}
	client := p.client
	p.mu.Unlock()

	if err := wait(ctx, client.Connect(), p.config.PublishTimeout); err != nil {
		return fmt.Errorf("failed to connect to MQTT broker: %w", err)
	}
	return nil
}

// Stop disconnects from the broker
func (p *Publisher) Stop() {
	if !p.config.Enabled {
		return
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return
	}

	p.log.Info("Stopping MQTT publisher")
	client.Disconnect(250)
}

// HandleFrame publishes a received frame; it satisfies pipeline.Handler
func (p *Publisher) HandleFrame(ctx context.Context, d pipeline.Decoded) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(ctx, p.formatTopic("frames"), pipeline.Summarize(d))
}

// PublishStatus publishes a status snapshot
func (p *Publisher) PublishStatus(ctx context.Context, event StatusEvent) error {
	if !p.config.Enabled {
		return nil
	}
	return p.publish(ctx, p.formatTopic("status"), event)
}

func (p *Publisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		p.log.Error("Failed to serialize event",
			logger.String("topic", topic),
			logger.Error(err))
		return err
	}

	p.mu.Lock()
	client := p.client
	p.mu.Unlock()
	if client == nil {
		return ErrNotConnected
	}

	if err := wait(ctx, client.Publish(topic, p.config.QoS, p.config.Retained, payload), p.config.PublishTimeout); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	p.log.Debug("Published MQTT event",
		logger.String("topic", topic),
		logger.Int("payload_size", len(payload)))
	return nil
}

func wait(ctx context.Context, token paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out waiting for broker")
	}
}

// formatTopic formats a topic with the configured prefix
func (p *Publisher) formatTopic(suffix string) string {
	prefix := strings.TrimSuffix(p.config.TopicPrefix, "/")
	if prefix == "" {
		return suffix
	}
	return fmt.Sprintf("%s/%s", prefix, suffix)
}

var _ pipeline.Handler = (*Publisher)(nil)
