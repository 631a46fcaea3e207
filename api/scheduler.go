/*
scheduler.go - Automated auto-pay scheduler

PURPOSE:
  Periodically generates entries for auto-pay definitions up to the current
  period and pays every channel whose due date has arrived.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Each run is Handler.RunAutoPay; payments are conditional writes, so a
    run racing a manual payment or another run never pays twice
  - The last run's result is kept for the admin UI

CONFIGURATION:
  - CheckInterval: How often to run (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewAutoPayScheduler(handler, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: TriggerAutoPay endpoint (manual run)
  - obligation/ledger.go: SweepAutoPay
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/warp/obligation-engine/logging"
)

// AutoPayScheduler runs auto-pay on a ticker.
type AutoPayScheduler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	log     *logging.Logger
	ticker  *time.Ticker
	stop    chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	runMu   sync.Mutex
	lastRun *AutoPayRunDTO
}

// NewAutoPayScheduler creates a new scheduler.
func NewAutoPayScheduler(handler *Handler, logger *logging.Logger) *AutoPayScheduler {
	return &AutoPayScheduler{
		Handler:       handler,
		CheckInterval: time.Hour,
		Enabled:       true,
		log:           logger.WithComponent(logging.ComponentScheduler),
	}
}

// Start begins the scheduler. Calling Start twice is a no-op.
func (s *AutoPayScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log.Info("auto-pay scheduler disabled, not starting")
		return
	}
	if s.ticker != nil {
		return
	}

	s.ticker = time.NewTicker(s.CheckInterval)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.ticker, s.stop)

	s.log.Info("auto-pay scheduler started", "interval", s.CheckInterval.String())
}

// Stop stops the scheduler and waits for an in-flight run.
func (s *AutoPayScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.stop)
	s.wg.Wait()
	s.ticker = nil
	s.log.Info("auto-pay scheduler stopped")
}

func (s *AutoPayScheduler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer s.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-stop
		cancel()
	}()

	s.RunNow(ctx)
	for {
		select {
		case <-ticker.C:
			s.RunNow(ctx)
		case <-stop:
			return
		}
	}
}

// RunNow runs auto-pay once. Runs never overlap.
func (s *AutoPayScheduler) RunNow(ctx context.Context) (AutoPayRunDTO, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	run, err := s.Handler.RunAutoPay(ctx)
	if err != nil {
		s.log.ErrorContext(ctx, "auto-pay run failed",
			logging.FieldOperation, logging.OpAutoPay,
			logging.FieldError, err,
		)
		return run, err
	}
	s.lastRun = &run

	if run.Generated.Created > 0 || run.Sweep.Paid > 0 || run.Sweep.Failed > 0 {
		s.log.InfoContext(ctx, "auto-pay run completed",
			logging.FieldPeriod, run.Period,
			logging.FieldCreated, run.Generated.Created,
			"paid", run.Sweep.Paid,
			"failed", run.Sweep.Failed,
		)
	}
	return run, nil
}

// LastRun returns the result of the most recent successful run.
func (s *AutoPayScheduler) LastRun() (AutoPayRunDTO, bool) {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.lastRun == nil {
		return AutoPayRunDTO{}, false
	}
	return *s.lastRun, true
}
