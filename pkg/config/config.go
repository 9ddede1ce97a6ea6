package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Sink     SinkConfig     `mapstructure:"sink"`
	Input    InputConfig    `mapstructure:"input"`
	Database DatabaseConfig `mapstructure:"database"`
	Web      WebConfig      `mapstructure:"web"`
	MQTT     MQTTConfig     `mapstructure:"mqtt"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// ServerConfig holds receiver identification
type ServerConfig struct {
	Name        string `mapstructure:"name"`
	Description string `mapstructure:"description"`
}

// SinkConfig holds packet sink settings
type SinkConfig struct {
	Threshold int `mapstructure:"threshold"`  // Max chip errors per 32-chip symbol
	QueueSize int `mapstructure:"queue_size"` // Frames buffered between sink and handlers
}

// Input types
const (
	InputFile = "file"
	InputUDP  = "udp"
)

// InputConfig selects where samples come from
type InputConfig struct {
	Type        string `mapstructure:"type"`        // file or udp
	Path        string `mapstructure:"path"`        // capture file; "-" for stdin
	Compression string `mapstructure:"compression"` // auto, none or zstd
	BatchSize   int    `mapstructure:"batch_size"`  // samples per read
	Host        string `mapstructure:"host"`        // udp listen host
	Port        int    `mapstructure:"port"`        // udp listen port
}

// DatabaseConfig holds frame log configuration
type DatabaseConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Path          string        `mapstructure:"path"`
	Retention     time.Duration `mapstructure:"retention"` // 0 keeps frames forever
	PruneInterval time.Duration `mapstructure:"prune_interval"`
}

// WebConfig holds HTTP API configuration
type WebConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
}

// MQTTConfig holds MQTT client configuration
type MQTTConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker"`
	TopicPrefix    string        `mapstructure:"topic_prefix"`
	ClientID       string        `mapstructure:"client_id"`
	Username       string        `mapstructure:"username"`
	Password       string        `mapstructure:"password"`
	QoS            byte          `mapstructure:"qos"`
	Retained       bool          `mapstructure:"retained"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout"` // per connect or publish
	StatusInterval time.Duration `mapstructure:"status_interval"` // 0 disables status messages
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled    bool             `mapstructure:"enabled"`
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig holds Prometheus metrics configuration
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// Load loads configuration from file and OQPSK_* environment variables
func Load(configFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/oqpsk-sink")
	}

	v.SetEnvPrefix("OQPSK")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		switch {
		case errors.As(err, &notFound):
			// No config file: defaults and environment only
		case errors.Is(err, os.ErrNotExist):
			// Explicit file missing: same as above
		default:
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "oqpsk-sink")
	v.SetDefault("server.description", "IEEE 802.15.4 O-QPSK receiver")

	v.SetDefault("sink.threshold", 0)
	v.SetDefault("sink.queue_size", 64)

	v.SetDefault("input.type", InputFile)
	v.SetDefault("input.path", "-")
	v.SetDefault("input.compression", "auto")
	v.SetDefault("input.batch_size", 4096)
	v.SetDefault("input.host", "0.0.0.0")
	v.SetDefault("input.port", 52001)

	v.SetDefault("database.enabled", true)
	v.SetDefault("database.path", "data/oqpsk-sink.db")
	v.SetDefault("database.retention", 7*24*time.Hour)
	v.SetDefault("database.prune_interval", time.Hour)

	v.SetDefault("web.enabled", true)
	v.SetDefault("web.host", "0.0.0.0")
	v.SetDefault("web.port", 8080)

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.topic_prefix", "oqpsk")
	v.SetDefault("mqtt.client_id", "oqpsk-sink")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("mqtt.retained", false)
	v.SetDefault("mqtt.publish_timeout", 5*time.Second)
	v.SetDefault("mqtt.status_interval", time.Minute)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.port", 9090)
	v.SetDefault("metrics.prometheus.path", "/metrics")
}
