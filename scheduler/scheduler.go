// Package scheduler drives the periodic database rotation. In
// production mode rotations fire once a day at 23:59 local time; in any
// other environment they fire every two minutes so rotation behavior is
// observable during development.
package scheduler

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/SUNET/ais-data-relay/errors"
	"github.com/SUNET/ais-data-relay/storage"
)

const devInterval = 2 * time.Minute

// Config holds the rotation schedule parameters
type Config struct {
	Production bool
	// LogFile, when set, is truncated after every rotation so log growth
	// tracks the retention window of the databases
	LogFile string
	Logger  *slog.Logger
}

// Scheduler triggers Rotate and Cleanup on the rotator at the
// configured cadence
type Scheduler struct {
	rotator *storage.Rotator
	cfg     Config
	logger  *slog.Logger

	lifecycleMu sync.Mutex
	started     bool
	cancel      context.CancelFunc
	wg          sync.WaitGroup
}

// New creates a rotation scheduler
func New(rotator *storage.Rotator, cfg Config) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Scheduler{
		rotator: rotator,
		cfg:     cfg,
		logger:  logger.With("component", "scheduler"),
	}
}

// Start launches the schedule loop
func (s *Scheduler) Start(ctx context.Context) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if s.started {
		return errors.ErrAlreadyStarted
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.started = true

	s.wg.Add(1)
	go s.run(runCtx)
	return nil
}

// Stop cancels the schedule loop and waits up to timeout for it to exit
func (s *Scheduler) Stop(timeout time.Duration) error {
	s.lifecycleMu.Lock()
	defer s.lifecycleMu.Unlock()

	if !s.started {
		return errors.ErrNotStarted
	}

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
	case <-timer.C:
		s.started = false
		return errors.WrapTransient(context.DeadlineExceeded, "scheduler", "Stop", "wait for schedule loop")
	}

	s.started = false
	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer s.wg.Done()

	for {
		wait := s.untilNext(time.Now())
		s.logger.Info("next database rotation scheduled", "in", wait.Round(time.Second))

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		s.rotate(ctx)
	}
}

// untilNext returns the delay before the next rotation. Production runs
// at 23:59 local time; the next occurrence is tomorrow when that moment
// has already passed today.
func (s *Scheduler) untilNext(now time.Time) time.Duration {
	if !s.cfg.Production {
		return devInterval
	}
	next := time.Date(now.Year(), now.Month(), now.Day(), 23, 59, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// rotate performs one rotation cycle. Each step failure is logged and
// the remaining steps still run so a bad cleanup never blocks the swap.
func (s *Scheduler) rotate(ctx context.Context) {
	s.logger.Info("starting scheduled database rotation")

	if err := s.rotator.Rotate(ctx); err != nil {
		s.logger.Error("database rotation failed", "error", err)
	}
	if err := s.rotator.Cleanup(); err != nil {
		s.logger.Error("database cleanup failed", "error", err)
	}
	if s.cfg.LogFile != "" {
		// Truncate rather than unlink: the process holds an O_APPEND
		// handle on this path, and removing it would leave every later
		// write in an orphaned inode.
		if err := os.Truncate(s.cfg.LogFile, 0); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to truncate log file", "path", s.cfg.LogFile, "error", err)
		}
	}
}
