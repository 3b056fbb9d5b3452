/*
sweeper.go - Background publication sweep

PURPOSE:
  Periodically runs the publication check across every company so deadlines
  that pass while nobody reads the company's data still get published.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Delegates the whole sweep to publication.Scheduler.SweepAll
  - Per-company failures are logged inside the sweep and never stop it
  - The lazy EnsureUpToDate on read paths remains the primary trigger; the
    sweep is the backstop

CONFIGURATION:
  - CheckInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether the sweeper is active (default: true)

USAGE:
  sweeper := NewSweeper(scheduler, logger)
  sweeper.Start()
  // ... later
  sweeper.Stop()

SEE ALSO:
  - publication/scheduler.go: EnsureUpToDate / SweepAll
*/
package api

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/warp/travel-engine/publication"
)

// Sweeper drives periodic publication sweeps.
type Sweeper struct {
	Scheduler     *publication.Scheduler
	Logger        *zap.Logger
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

// NewSweeper creates a sweeper with the default interval.
func NewSweeper(scheduler *publication.Scheduler, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		Scheduler:     scheduler,
		Logger:        logger,
		CheckInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the sweeper.
func (s *Sweeper) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.Logger.Info("publication sweeper disabled, not starting")
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.wg.Add(1)
	go s.run()

	s.Logger.Info("publication sweeper started",
		zap.Duration("interval", s.CheckInterval))
}

// Stop stops the sweeper.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker != nil {
		s.ticker.Stop()
		close(s.stop)
		s.wg.Wait()
		s.Logger.Info("publication sweeper stopped")
	}
}

func (s *Sweeper) run() {
	defer s.wg.Done()

	// Run immediately on start
	s.sweep()

	for {
		select {
		case <-s.ticker.C:
			s.sweep()
		case <-s.stop:
			return
		}
	}
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	published, err := s.Scheduler.SweepAll(ctx)
	if err != nil {
		s.Logger.Warn("publication sweep failed", zap.Error(err))
		return
	}
	if published > 0 {
		s.Logger.Info("publication sweep completed",
			zap.Int("companies_published", published))
	}
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *Sweeper) RunNow() {
	s.sweep()
}
