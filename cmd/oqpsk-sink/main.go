package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/dbehnke/oqpsk-sink/pkg/config"
	"github.com/dbehnke/oqpsk-sink/pkg/database"
	"github.com/dbehnke/oqpsk-sink/pkg/logger"
	"github.com/dbehnke/oqpsk-sink/pkg/metrics"
	"github.com/dbehnke/oqpsk-sink/pkg/mqtt"
	"github.com/dbehnke/oqpsk-sink/pkg/pipeline"
	"github.com/dbehnke/oqpsk-sink/pkg/queue"
	"github.com/dbehnke/oqpsk-sink/pkg/sink"
	"github.com/dbehnke/oqpsk-sink/pkg/source"
	"github.com/dbehnke/oqpsk-sink/pkg/web"
)

var (
	version   = "dev"
	commit    = "unknown"
	buildTime = "unknown"
)

func main() {
	configFile := pflag.StringP("config", "c", "", "Path to configuration file")
	input := pflag.StringP("input", "i", "", "Capture file to read (\"-\" for stdin); overrides input.path")
	udpPort := pflag.IntP("udp", "u", -1, "Listen for UDP sample datagrams on this port; overrides input")
	threshold := pflag.IntP("threshold", "t", -1, "Chip error threshold; overrides sink.threshold")
	logLevel := pflag.StringP("log-level", "l", "", "Log level; overrides logging.level")
	showVersion := pflag.BoolP("version", "v", false, "Show version information")
	validate := pflag.Bool("validate", false, "Validate configuration and exit")
	pflag.Parse()

	if *showVersion {
		fmt.Printf("oqpsk-sink %s (%s, built %s)\n", version, commit, buildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *input != "" {
		cfg.Input.Type = config.InputFile
		cfg.Input.Path = *input
	}
	if *udpPort >= 0 {
		cfg.Input.Type = config.InputUDP
		cfg.Input.Port = *udpPort
	}
	if *threshold >= 0 {
		cfg.Sink.Threshold = *threshold
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer closeLog()

	if *validate {
		log.Info("Configuration is valid")
		return
	}

	web.SetBuildInfo(web.BuildInfo{Version: version, Commit: commit, BuildTime: buildTime})

	log.Info("Starting oqpsk-sink",
		logger.String("version", version),
		logger.String("build_time", buildTime),
		logger.String("name", cfg.Server.Name))

	if err := run(cfg, log); err != nil {
		log.Error("Receiver stopped with error", logger.Error(err))
		closeLog()
		os.Exit(1)
	}
	log.Info("oqpsk-sink stopped")
}

func newLogger(cfg config.LoggingConfig) (*logger.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, f)
		closeFn = func() { _ = f.Close() }
	}
	return logger.New(logger.Config{Level: cfg.Level, Format: cfg.Format, Output: out}), closeFn, nil
}

func openSource(cfg config.InputConfig, log *logger.Logger) (source.Source, error) {
	if strings.EqualFold(cfg.Type, config.InputUDP) {
		src := source.NewUDPSource(cfg.Host, cfg.Port, log)
		if err := src.Listen(); err != nil {
			return nil, err
		}
		return src, nil
	}
	src, err := source.OpenFile(cfg.Path, source.Compression(cfg.Compression))
	if err != nil {
		return nil, err
	}
	log.Info("Reading capture", logger.String("path", cfg.Path))
	return src, nil
}

func run(cfg *config.Config, log *logger.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup
	// Background loops must stop before anything they use is closed
	shutdown := func() {
		stop()
		wg.Wait()
	}
	defer shutdown()

	collector := metrics.NewCollector()

	if cfg.Metrics.Enabled && cfg.Metrics.Prometheus.Enabled {
		metricsServer := metrics.NewPrometheusServer(
			metrics.PrometheusConfig{
				Enabled: true,
				Port:    cfg.Metrics.Prometheus.Port,
				Path:    cfg.Metrics.Prometheus.Path,
			},
			collector,
			log,
		)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Prometheus metrics server error", logger.Error(err))
			}
		}()
	}

	handlers := []pipeline.Handler{pipeline.LogHandler(log)}

	var db *database.DB
	if cfg.Database.Enabled {
		var err error
		db, err = database.NewDB(database.Config{Path: cfg.Database.Path}, log)
		if err != nil {
			return err
		}
		defer func() {
			shutdown()
			_ = db.Close()
		}()

		recorder := database.NewRecorder(db, log)
		handlers = append(handlers, recorder)
		wg.Add(1)
		go func() {
			defer wg.Done()
			recorder.RunRetention(ctx, cfg.Database.Retention, cfg.Database.PruneInterval)
		}()
	}

	var publisher *mqtt.Publisher
	if cfg.MQTT.Enabled {
		publisher = mqtt.New(mqtt.Config{
			Enabled:        true,
			Broker:         cfg.MQTT.Broker,
			TopicPrefix:    cfg.MQTT.TopicPrefix,
			ClientID:       cfg.MQTT.ClientID,
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			QoS:            cfg.MQTT.QoS,
			Retained:       cfg.MQTT.Retained,
			PublishTimeout: cfg.MQTT.PublishTimeout,
		}, log)
		defer func() {
			shutdown()
			publisher.Stop()
		}()

		// The client keeps retrying in the background, so an unreachable
		// broker is not fatal
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := publisher.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("MQTT publisher error", logger.Error(err))
			}
		}()
		handlers = append(handlers, publisher)
	}

	q := queue.New(cfg.Sink.QueueSize)
	s := sink.New(sink.Config{Threshold: cfg.Sink.Threshold, Observer: collector}, q, log)

	var webServer *web.Server
	if cfg.Web.Enabled {
		// The API needs the pipeline, so the hub is registered as a handler first
		webServer = web.NewServer(cfg.Web, nil, log)
		handlers = append(handlers, webServer.GetHub())
	}

	p := pipeline.New(pipeline.Config{BatchSize: cfg.Input.BatchSize, Monitor: collector}, s, q, log, handlers...)

	if webServer != nil {
		webServer.SetAPI(web.NewAPI(log, p, collector, db))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := webServer.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("Web server error", logger.Error(err))
			}
		}()
	}

	if cfg.MQTT.StatusInterval > 0 && (publisher != nil || webServer != nil) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reportStatus(ctx, cfg.MQTT.StatusInterval, p, collector, publisher, webServer, log)
		}()
	}

	src, err := openSource(cfg.Input, log)
	if err != nil {
		return err
	}
	defer func() { _ = src.Close() }()

	runErr := p.Run(ctx, src)
	if errors.Is(runErr, context.Canceled) {
		log.Info("Received shutdown signal")
		runErr = nil
	}
	return runErr
}

// reportStatus periodically sends a status snapshot to MQTT and the live feed
func reportStatus(ctx context.Context, every time.Duration, p *pipeline.Pipeline, c *metrics.Collector,
	pub *mqtt.Publisher, webServer *web.Server, log *logger.Logger) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			event := mqtt.StatusEvent{
				Session:   p.Session(),
				Uptime:    p.Uptime().Truncate(time.Second).String(),
				Stats:     c.Snapshot(),
				Timestamp: now,
			}
			if webServer != nil {
				webServer.GetHub().BroadcastStatusUpdate(event)
			}
			if pub == nil {
				continue
			}
			if err := pub.PublishStatus(ctx, event); err != nil {
				log.Warn("Failed to publish status", logger.Error(err))
			}
		}
	}
}
