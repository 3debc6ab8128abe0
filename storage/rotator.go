package storage

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/metric"
)

// snapshotName is the fixed filename the web snapshot endpoint writes to
const snapshotName = "ais_snapshot.db"

// RotatorConfig holds the parameters for the rotating store manager
type RotatorConfig struct {
	Dir       string
	Mode      string
	Retention time.Duration
	Logger    *slog.Logger
	Metrics   *metric.Metrics
}

// Rotator owns the live database handle. Persistence workers load the
// current Gateway per operation; Rotate swaps it for a fresh database
// and Cleanup ages out rotated-out files.
type Rotator struct {
	dir       string
	mode      string
	retention time.Duration
	logger    *slog.Logger
	metrics   *metric.Metrics

	live atomic.Pointer[liveHandle]
}

type liveHandle struct {
	gateway Gateway
}

// NewRotator opens the initial live database and returns the manager
func NewRotator(ctx context.Context, cfg RotatorConfig) (*Rotator, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	retention := cfg.Retention
	if retention <= 0 {
		retention = 168 * time.Hour
	}

	r := &Rotator{
		dir:       cfg.Dir,
		mode:      cfg.Mode,
		retention: retention,
		logger:    logger.With("component", "rotator"),
		metrics:   cfg.Metrics,
	}

	gw, err := r.openFresh(ctx)
	if err != nil {
		return nil, err
	}
	r.live.Store(&liveHandle{gateway: gw})
	return r, nil
}

// Gateway returns the current live gateway. The returned handle may be
// closed by a concurrent rotation; per-operation errors after a swap are
// the caller's normal failure path.
func (r *Rotator) Gateway() Gateway {
	return r.live.Load().gateway
}

// LivePath returns the path of the current live database file
func (r *Rotator) LivePath() string {
	return r.live.Load().gateway.Path()
}

// SnapshotPath returns the fixed path snapshot copies are written to
func (r *Rotator) SnapshotPath() string {
	return filepath.Join(r.dir, snapshotName)
}

// Rotate opens a fresh database, swaps the live handle, and closes the
// previous one. The old file stays on disk until Cleanup ages it out.
func (r *Rotator) Rotate(ctx context.Context) error {
	gw, err := r.openFresh(ctx)
	if err != nil {
		return err
	}

	old := r.live.Swap(&liveHandle{gateway: gw})
	if err := old.gateway.Close(); err != nil {
		r.logger.Warn("failed to close rotated-out database",
			"path", old.gateway.Path(), "error", err)
	}

	if r.metrics != nil {
		r.metrics.Rotations.Inc()
	}
	r.logger.Info("database rotated", "live", gw.Path())
	return nil
}

// Cleanup deletes database files older than the retention window, never
// touching the live database or the snapshot file
func (r *Rotator) Cleanup() error {
	matches, err := filepath.Glob(filepath.Join(r.dir, "*.db"))
	if err != nil {
		return errors.WrapTransient(err, "rotator", "Cleanup", "list database files")
	}

	cutoff := time.Now().Add(-r.retention)
	livePath := r.LivePath()
	snapshotPath := r.SnapshotPath()

	deleted := 0
	for _, path := range matches {
		if path == livePath || path == snapshotPath {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				r.logger.Warn("failed to delete old database file", "path", path, "error", err)
				continue
			}
			deleted++
			r.logger.Info("deleted old database file", "path", path)
		}
	}

	if deleted == 0 {
		r.logger.Info("no old database files to delete")
	}
	return nil
}

// Close closes the live gateway
func (r *Rotator) Close() error {
	return r.live.Load().gateway.Close()
}

// openFresh creates and initializes a date-stamped database
func (r *Rotator) openFresh(ctx context.Context) (Gateway, error) {
	name := fmt.Sprintf("%s_%s_ais_db.db",
		time.Now().Format("2006-01-02"), uuid.NewString()[:8])

	gw, err := Open(filepath.Join(r.dir, name), r.mode)
	if err != nil {
		return nil, err
	}
	if err := gw.Init(ctx); err != nil {
		_ = gw.Close()
		return nil, err
	}
	return gw, nil
}
