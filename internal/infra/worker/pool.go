// File: internal/infra/worker/pool.go
package worker

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/rs/zerolog"
)

// A small bounded worker pool. Submit never blocks: when the queue is
// saturated the task is rejected and the caller decides what to do.

type Task func(ctx context.Context) error

var (
	ErrNilTask   = errors.New("nil task")
	ErrQueueFull = errors.New("worker queue full")
	ErrStopped   = errors.New("worker pool stopped")
)

type Pool struct {
	wg   sync.WaitGroup
	jobs chan Task
	quit chan struct{}
	n    int
	log  *zerolog.Logger

	startOnce sync.Once
	stopOnce  sync.Once
}

func NewPool(workers int, logger *zerolog.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	l := logger.With().Str("component", "WorkerPool").Logger()
	return &Pool{jobs: make(chan Task, workers*4), quit: make(chan struct{}), n: workers, log: &l}
}

// Start launches the workers once; later calls are no-ops.
func (p *Pool) Start(ctx context.Context) {
	p.startOnce.Do(func() {
		for i := 0; i < p.n; i++ {
			p.wg.Add(1)
			go p.run(ctx, i)
		}
	})
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.quit:
			return
		case task := <-p.jobs:
			if task == nil {
				continue
			}
			if err := task(ctx); err != nil {
				p.log.Warn().Err(err).Int("worker", id).Msg("task error")
			}
		}
	}
}

// Stop signals the workers and waits for in-flight tasks. Queued tasks are dropped.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() {
		close(p.quit)
	})
	p.wg.Wait()
}

func (p *Pool) Submit(task Task) error {
	if task == nil {
		return ErrNilTask
	}
	select {
	case <-p.quit:
		return ErrStopped
	default:
	}
	select {
	case p.jobs <- task:
		return nil
	default:
		return ErrQueueFull
	}
}
