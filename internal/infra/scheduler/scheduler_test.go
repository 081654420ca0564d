package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerTicksUntilStopped(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(5*time.Millisecond, RunnerFunc(func(context.Context) { ticks.Add(1) }), nil)

	s.Start(context.Background())
	s.Start(context.Background()) // no second loop
	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, time.Millisecond)
	assert.True(t, s.Running())

	s.Stop()
	assert.False(t, s.Running())
	after := ticks.Load()
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, after, ticks.Load(), "no ticks after Stop")

	s.Stop() // idempotent
}

func TestSchedulerRestart(t *testing.T) {
	var ticks atomic.Int32
	s := NewScheduler(5*time.Millisecond, RunnerFunc(func(context.Context) { ticks.Add(1) }), nil)
	s.Start(context.Background())
	s.Stop()
	s.Start(context.Background())
	require.Eventually(t, func() bool { return ticks.Load() >= 1 }, time.Second, time.Millisecond)
	s.Stop()
}

func TestSchedulerStopsWithParentContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(time.Hour, RunnerFunc(func(context.Context) {}), nil)
	s.Start(ctx)
	cancel()
	done := make(chan struct{})
	go func() { s.Stop(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after parent cancellation")
	}
}
