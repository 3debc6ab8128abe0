// Package export writes periodic CSV snapshots of recent vessel
// positions for consumers that poll a file instead of a stream.
package export

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/storage"
)

// Config holds the exporter parameters. An Interval of zero disables
// the exporter entirely.
type Config struct {
	Path     string
	Interval time.Duration
	// MaxAge bounds how old a vessel state may be to appear in the
	// export
	MaxAge time.Duration
	Logger *slog.Logger
}

// CSVExporter periodically queries the live database for recent vessel
// rows and rewrites the target file atomically
type CSVExporter struct {
	rotator *storage.Rotator
	cfg     Config
	logger  *slog.Logger

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// NewCSVExporter creates the exporter
func NewCSVExporter(rotator *storage.Rotator, cfg Config) *CSVExporter {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 10 * time.Minute
	}
	return &CSVExporter{
		rotator: rotator,
		cfg:     cfg,
		logger:  logger.With("component", "csv-export"),
	}
}

// Enabled reports whether a non-zero interval was configured
func (e *CSVExporter) Enabled() bool {
	return e.cfg.Interval > 0
}

// Start launches the export loop. Starting a disabled exporter is a
// no-op so callers need not special-case the configuration.
func (e *CSVExporter) Start(ctx context.Context) error {
	if !e.Enabled() {
		return nil
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if e.started {
		return errors.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.started = true

	e.wg.Add(1)
	go e.run(runCtx)
	return nil
}

// Stop cancels the export loop
func (e *CSVExporter) Stop(timeout time.Duration) error {
	if !e.Enabled() {
		return nil
	}

	e.lifecycleMu.Lock()
	defer e.lifecycleMu.Unlock()

	if !e.started {
		return errors.ErrNotStarted
	}
	e.started = false
	e.cancel()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return nil
	case <-timer.C:
		return errors.WrapTransient(context.DeadlineExceeded, "csv-export", "Stop", "wait for export loop")
	}
}

func (e *CSVExporter) run(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := e.Export(ctx); err != nil {
				e.logger.Error("CSV export failed", "error", err)
			}
		}
	}
}

// Export writes one CSV snapshot of the recent vessel rows
func (e *CSVExporter) Export(ctx context.Context) error {
	cols, rows, err := e.rotator.Gateway().RecentRows(ctx, e.cfg.MaxAge)
	if err != nil {
		return errors.Wrap(err, "csv-export", "Export", "query recent vessels")
	}

	if err := writeAtomic(e.cfg.Path, cols, rows); err != nil {
		return errors.WrapTransient(err, "csv-export", "Export", "write CSV file")
	}

	e.logger.Debug("CSV export written", "path", e.cfg.Path, "rows", len(rows))
	return nil
}

// writeAtomic writes header and rows through a temp file plus rename so
// readers never observe a partial file
func writeAtomic(path string, header []string, rows [][]string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".csv-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.Write(header); err != nil {
		tmp.Close()
		return err
	}
	for _, row := range rows {
		if err := w.Write(row); err != nil {
			tmp.Close()
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
