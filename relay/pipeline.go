package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/SUNET/ais-data-relay/ais"
	"github.com/SUNET/ais-data-relay/config"
	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/metric"
	"github.com/SUNET/ais-data-relay/normalize"
	"github.com/SUNET/ais-data-relay/pkg/worker"
	"github.com/SUNET/ais-data-relay/storage"
)

// ReportPublisher receives every normalized report for side channels
// like the NATS republisher. Publish must never block the caller for
// long and must swallow its own failures.
type ReportPublisher interface {
	Publish(report normalize.Report)
}

// PipelineConfig wires the pipeline's collaborators
type PipelineConfig struct {
	Upstream  UpstreamConfig
	Decoder   ais.Decoder
	QueueSize int
	Workers   int
	Rotator   *storage.Rotator
	Publisher ReportPublisher // optional
	// Bounds, when set, restricts persistence to positions inside the
	// box. Fan-out is unaffected; subscribers filter for themselves.
	Bounds   *config.Bounds
	Registry *metric.MetricsRegistry
	Logger   *slog.Logger
}

// Pipeline composes the connector, hub, persistence pool, and storage
// into the ingestion path: every upstream line fans out to raw
// subscribers, every decoded report fans out to structured subscribers
// and is enqueued for persistence without blocking ingestion.
type Pipeline struct {
	hub       *Hub
	connector *Connector
	pool      *worker.Pool[normalize.Report]
	rotator   *storage.Rotator
	publisher ReportPublisher
	bounds    *config.Bounds
	logger    *slog.Logger
	metrics   *metric.Metrics
}

// NewPipeline builds the pipeline. The rotator must already hold an
// initialized live database.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var coreMetrics *metric.Metrics
	if cfg.Registry != nil {
		coreMetrics = cfg.Registry.CoreMetrics()
	}

	p := &Pipeline{
		rotator:   cfg.Rotator,
		publisher: cfg.Publisher,
		bounds:    cfg.Bounds,
		logger:    logger.With("component", "pipeline"),
		metrics:   coreMetrics,
	}

	p.hub = NewHub(logger, coreMetrics)

	var poolOpts []worker.Option[normalize.Report]
	if cfg.Registry != nil {
		poolOpts = append(poolOpts,
			worker.WithMetricsRegistry[normalize.Report](cfg.Registry, "ais_persistence"))
	}
	p.pool = worker.NewPool(cfg.Workers, cfg.QueueSize, p.persist, poolOpts...)

	p.connector = NewConnector(cfg.Upstream, cfg.Decoder, p.hub, p.dispatch, logger, coreMetrics)

	return p
}

// Hub returns the broadcast hub for the downstream servers
func (p *Pipeline) Hub() *Hub {
	return p.hub
}

// Connector returns the upstream connector for the health surface
func (p *Pipeline) Connector() *Connector {
	return p.connector
}

// QueueStats returns the persistence pool statistics
func (p *Pipeline) QueueStats() worker.PoolStats {
	return p.pool.Stats()
}

// Start brings up the persistence pool and the upstream connector
func (p *Pipeline) Start(ctx context.Context) error {
	if err := p.connector.Initialize(); err != nil {
		return err
	}
	if err := p.pool.Start(ctx); err != nil {
		return errors.Wrap(err, "Pipeline", "Start", "start persistence pool")
	}
	if err := p.connector.Start(ctx); err != nil {
		return errors.Wrap(err, "Pipeline", "Start", "start upstream connector")
	}
	return nil
}

// Stop shuts the connector down first so no new reports arrive, then
// drains the pool within the timeout. Queued items past the timeout are
// abandoned.
func (p *Pipeline) Stop(timeout time.Duration) error {
	var firstErr error
	if err := p.connector.Stop(timeout); err != nil {
		firstErr = err
	}
	if err := p.pool.Stop(timeout); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// dispatch is the connector's delivery callback: structured fan-out,
// optional republish, then the non-blocking persistence enqueue
func (p *Pipeline) dispatch(report normalize.Report) {
	p.hub.BroadcastReport(report)

	if p.publisher != nil {
		p.publisher.Publish(report)
	}

	if err := p.pool.Submit(report); err != nil {
		if errors.Is(err, worker.ErrQueueFull) {
			p.logger.Warn("persistence queue full, dropping report", "mmsi", report.MMSI)
			return
		}
		p.logger.Error("failed to enqueue report", "error", err)
	}
}

// persist is the worker processor: validate coordinates, extract vessel
// identity and state, and write both through the current live gateway
func (p *Pipeline) persist(ctx context.Context, report normalize.Report) error {
	coords := normalize.ExtractCoordinates(report)
	if coords.Kind == normalize.CoordRejected {
		p.logger.Error("invalid geo-coordinates",
			"reason", coords.Reason, "mmsi", report.MMSI)
		return errors.WrapInvalid(errors.ErrInvalidCoordinates, "Pipeline", "persist", "validate coordinates")
	}

	if report.MMSI == 0 {
		return errors.WrapInvalid(errors.ErrMissingVesselIdent, "Pipeline", "persist", "extract vessel identity")
	}

	// Positioned reports outside the configured area are skipped, not
	// errors. Positionless reports still update vessel identity.
	if p.bounds != nil && coords.Kind == normalize.CoordOK &&
		!p.bounds.Contains(coords.Lat, coords.Lon) {
		return nil
	}

	gateway := p.rotator.Gateway()
	vessel := storage.VesselFromReport(report)
	state := storage.StateFromReport(report, coords)

	if err := gateway.CreateVessel(ctx, vessel); err != nil {
		p.recordStorageError()
		p.logger.Error("failed to persist vessel", "mmsi", vessel.MMSI, "error", err)
		return err
	}
	if err := gateway.CreateVesselState(ctx, state); err != nil {
		p.recordStorageError()
		p.logger.Error("failed to persist vessel state", "mmsi", vessel.MMSI, "error", err)
		return err
	}

	if p.metrics != nil {
		p.metrics.StorageWrites.Inc()
	}
	return nil
}

func (p *Pipeline) recordStorageError() {
	if p.metrics != nil {
		p.metrics.StorageErrors.Inc()
	}
}
