package config

import (
	"fmt"
	"strings"
)

// Only 31 chips are compared, so a larger threshold matches every window
const maxThreshold = 31

var envKeyReplacer = strings.NewReplacer(".", "_")

// validate validates the configuration
func validate(cfg *Config) error {
	if cfg.Sink.Threshold < 0 || cfg.Sink.Threshold > maxThreshold {
		return fmt.Errorf("sink.threshold must be between 0 and %d", maxThreshold)
	}
	if cfg.Sink.QueueSize <= 0 {
		return fmt.Errorf("sink.queue_size must be positive")
	}

	switch strings.ToLower(cfg.Input.Type) {
	case InputFile:
		if cfg.Input.Path == "" {
			return fmt.Errorf("input.path is required for file input")
		}
	case InputUDP:
		if cfg.Input.Port < 0 || cfg.Input.Port > 65535 {
			return fmt.Errorf("input.port must be between 0 and 65535")
		}
	default:
		return fmt.Errorf("input.type %q must be file or udp", cfg.Input.Type)
	}
	switch strings.ToLower(cfg.Input.Compression) {
	case "", "auto", "none", "zstd":
	default:
		return fmt.Errorf("input.compression %q must be auto, none or zstd", cfg.Input.Compression)
	}
	if cfg.Input.BatchSize <= 0 {
		return fmt.Errorf("input.batch_size must be positive")
	}

	if cfg.Database.Enabled {
		if cfg.Database.Path == "" {
			return fmt.Errorf("database.path is required when database is enabled")
		}
		if cfg.Database.Retention < 0 {
			return fmt.Errorf("database.retention must not be negative")
		}
		if cfg.Database.Retention > 0 && cfg.Database.PruneInterval <= 0 {
			return fmt.Errorf("database.prune_interval must be positive when retention is set")
		}
	}

	if cfg.Web.Enabled {
		if cfg.Web.Port <= 0 || cfg.Web.Port > 65535 {
			return fmt.Errorf("web.port must be between 1 and 65535")
		}
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker is required when mqtt is enabled")
		}
		if cfg.MQTT.QoS > 2 {
			return fmt.Errorf("mqtt.qos must be 0, 1 or 2")
		}
		if cfg.MQTT.PublishTimeout < 0 {
			return fmt.Errorf("mqtt.publish_timeout must not be negative")
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		if cfg.Metrics.Prometheus.Port < 0 || cfg.Metrics.Prometheus.Port > 65535 {
			return fmt.Errorf("metrics.prometheus.port must be between 0 and 65535")
		}
		if !strings.HasPrefix(cfg.Metrics.Prometheus.Path, "/") {
			return fmt.Errorf("metrics.prometheus.path must start with /")
		}
	}

	switch strings.ToLower(cfg.Logging.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be debug, info, warn or error", cfg.Logging.Level)
	}

	return nil
}

// Validate checks a configuration assembled or modified outside Load
func (c *Config) Validate() error {
	return validate(c)
}
