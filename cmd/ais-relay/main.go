// Package main implements the entry point for the AIS data relay. The
// relay ingests a live vessel-position feed from one upstream AIS
// source, fans it out to raw TCP and filtered WebSocket subscribers,
// and persists normalized reports to a rotating sqlite store.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/SUNET/ais-data-relay/ais"
	"github.com/SUNET/ais-data-relay/config"
	"github.com/SUNET/ais-data-relay/export"
	"github.com/SUNET/ais-data-relay/metric"
	"github.com/SUNET/ais-data-relay/natsclient"
	natsout "github.com/SUNET/ais-data-relay/output/nats"
	"github.com/SUNET/ais-data-relay/pkg/retry"
	"github.com/SUNET/ais-data-relay/relay"
	"github.com/SUNET/ais-data-relay/scheduler"
	"github.com/SUNET/ais-data-relay/storage"
	"github.com/SUNET/ais-data-relay/web"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "ais-relay"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}

	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logFile, err := openLogFile(cfg.LogFile)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat, logFile)
	slog.SetDefault(logger)

	slog.Info("Starting AIS data relay",
		"version", Version,
		"build_time", BuildTime,
		"config", cfg.String())

	return runRelay(cfg, logger, cliCfg.ShutdownTimeout)
}

func runRelay(cfg *config.AppConfig, logger *slog.Logger, shutdownTimeout time.Duration) error {
	registry := metric.NewMetricsRegistry()
	coreMetrics := registry.CoreMetrics()

	ctx := context.Background()

	rotator, err := storage.NewRotator(ctx, storage.RotatorConfig{
		Dir:       cfg.DatabaseDir,
		Mode:      cfg.StorageMode,
		Retention: cfg.RetentionAge,
		Logger:    logger,
		Metrics:   coreMetrics,
	})
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer rotator.Close()

	publisher, natsClient, err := setupNATS(cfg, logger, coreMetrics)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer natsClient.Close()
	}

	// Snapshot deployments track a bounded area; reports outside the
	// configured limits are relayed but not persisted.
	var persistBounds *config.Bounds
	if cfg.StorageMode == config.StorageModeSnapshot {
		bounds := cfg.DefaultBounds()
		persistBounds = &bounds
	}

	pipeline := relay.NewPipeline(relay.PipelineConfig{
		Upstream: relay.UpstreamConfig{
			Host:           cfg.AISHost,
			Port:           cfg.AISPort,
			Username:       cfg.AISUser,
			Password:       cfg.AISPassword,
			HashedLogin:    cfg.HashedLogin,
			RetryInterval:  cfg.RetryInterval,
			ConnectTimeout: cfg.ConnectionTimeout,
		},
		Decoder:   ais.NewNMEADecoder(),
		QueueSize: cfg.QueueSize,
		Workers:   cfg.Workers,
		Rotator:   rotator,
		Publisher: publisher,
		Bounds:    persistBounds,
		Registry:  registry,
		Logger:    logger,
	})

	tcpServer := relay.NewTCPServer(
		cfg.TCPPort,
		relay.NewCredentialGate(cfg.EnableTCPAuth, cfg.TCPUsername, cfg.TCPPassword),
		pipeline.Hub(),
		logger,
	)

	webServer := web.NewServer(web.ServerConfig{
		Port:     cfg.WebPort,
		Pipeline: pipeline,
		Rotator:  rotator,
		Gate:     relay.NewCredentialGate(cfg.EnableWebAuth, cfg.WebUsername, cfg.WebPassword),
		Registry: registry,
		Logger:   logger,
	})

	rotationScheduler := scheduler.New(rotator, scheduler.Config{
		Production: cfg.IsProduction(),
		LogFile:    cfg.LogFile,
		Logger:     logger,
	})

	csvExporter := export.NewCSVExporter(rotator, export.Config{
		Path:     cfg.CSVPath,
		Interval: cfg.CSVInterval,
		Logger:   logger,
	})

	return runWithSignalHandling(ctx, logger, shutdownTimeout,
		pipeline, tcpServer, webServer, rotationScheduler, csvExporter)
}

// setupNATS builds the optional republish channel. An empty URL leaves
// the relay standalone.
func setupNATS(
	cfg *config.AppConfig,
	logger *slog.Logger,
	coreMetrics *metric.Metrics,
) (relay.ReportPublisher, *natsclient.Client, error) {
	if cfg.NATSURL == "" {
		return nil, nil, nil
	}

	client := natsclient.NewClient(natsclient.Config{
		URL:        cfg.NATSURL,
		ClientName: appName,
		Logger:     logger,
		Metrics:    coreMetrics,
	})
	// Connect attempts share the relay's fixed retry cadence; after
	// that the NATS client reconnects on its own.
	err := retry.Do(context.Background(), retry.Fixed(3, cfg.RetryInterval), func() error {
		return client.Connect()
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect to NATS: %w", err)
	}

	return natsout.NewPublisher(client, cfg.NATSSubject, logger), client, nil
}

// component is the shared lifecycle contract of the relay's services
type component interface {
	Start(ctx context.Context) error
	Stop(timeout time.Duration) error
}

// runWithSignalHandling starts every component in order, waits for a
// shutdown signal, and stops them in reverse order
func runWithSignalHandling(
	ctx context.Context,
	logger *slog.Logger,
	shutdownTimeout time.Duration,
	components ...component,
) error {
	signalCtx, signalCancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer signalCancel()

	started := make([]component, 0, len(components))
	for _, c := range components {
		if err := c.Start(signalCtx); err != nil {
			stopAll(logger, started, shutdownTimeout)
			return fmt.Errorf("start %T: %w", c, err)
		}
		started = append(started, c)
	}

	logger.Info("AIS data relay started")
	<-signalCtx.Done()
	logger.Info("Received shutdown signal")

	stopAll(logger, started, shutdownTimeout)
	logger.Info("AIS data relay shutdown complete")
	return nil
}

// stopAll stops components in reverse start order
func stopAll(logger *slog.Logger, components []component, timeout time.Duration) {
	for i := len(components) - 1; i >= 0; i-- {
		if err := components[i].Stop(timeout); err != nil {
			logger.Error("Error stopping component", "component", fmt.Sprintf("%T", components[i]), "error", err)
		}
	}
}
