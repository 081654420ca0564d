package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Runner is the minimal interface the scheduler needs: one unit of periodic work.
type Runner interface {
	Tick(ctx context.Context)
}

// RunnerFunc adapts a plain function to Runner.
type RunnerFunc func(ctx context.Context)

func (f RunnerFunc) Tick(ctx context.Context) { f(ctx) }

// Scheduler periodically runs a Runner on a fixed interval in one background
// goroutine. Start and Stop may be called repeatedly and from any goroutine,
// but Stop must not be called from inside Tick.
type Scheduler struct {
	interval time.Duration
	runner   Runner
	log      *zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler constructs a scheduler that runs runner.Tick every `interval`.
// If interval <= 0 it defaults to 1 minute.
func NewScheduler(interval time.Duration, runner Runner, logger *zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Scheduler{interval: interval, runner: runner, log: logger}
}

// Start begins the loop; calling Start while running has no effect.
func (s *Scheduler) Start(parentCtx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(parentCtx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer func() {
		ticker.Stop()
		close(done)
	}()

	s.log.Debug().Dur("interval", s.interval).Msg("scheduler started")
	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.runner.Tick(ctx)
		}
	}
}

// Stop cancels the loop and waits for it to finish. It is idempotent.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}
