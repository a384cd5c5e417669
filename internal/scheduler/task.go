package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Task is a cancellable repeating job. Runs never overlap: a tick that
// fires while the previous run is still in flight is skipped, so a stalled
// run costs at most missed cycles, never a queue of catch-up work.
type Task struct {
	name     string
	interval time.Duration
	fn       func(context.Context)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	inFlight  atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
}

// NewTask creates a repeating task. Start arms it.
func NewTask(name string, interval time.Duration, fn func(context.Context)) *Task {
	ctx, cancel := context.WithCancel(context.Background())
	return &Task{
		name:     name,
		interval: interval,
		fn:       fn,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start begins ticking in a background goroutine.
func (t *Task) Start() {
	t.startOnce.Do(func() {
		go t.loop()
		slog.Info("task started", "task", t.name, "interval", t.interval)
	})
}

func (t *Task) loop() {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *Task) tick() {
	if !t.inFlight.CompareAndSwap(false, true) {
		slog.Warn("tick skipped, previous run still in flight", "task", t.name)
		return
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer t.inFlight.Store(false)
		t.fn(t.ctx)
	}()
}

// Step runs the task body once, synchronously. Used by tests and by the
// admin surface to force a cycle.
func (t *Task) Step(ctx context.Context) {
	t.fn(ctx)
}

// Stop cancels the task; no new cycles are armed. In-flight work observes
// the cancelled context.
func (t *Task) Stop() {
	t.stopOnce.Do(t.cancel)
}

// Drain waits for in-flight work to finish, up to grace. Returns false if
// the work was abandoned at the deadline.
func (t *Task) Drain(grace time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(grace):
		slog.Warn("task drain timed out", "task", t.name, "grace", grace)
		return false
	}
}
