package service

import (
	"context"
	"sync"
	"time"
)

// botScheduler runs at most one delayed bot move per session. Each task
// waits out the delay, then calls play. Scheduling again replaces the pending
// task.
type botScheduler struct {
	delay time.Duration
	play  func(ctx context.Context, sessionID string)

	base   context.Context
	stop   context.CancelFunc
	mu     sync.Mutex
	tasks  map[string]*botTask
	wg     sync.WaitGroup
	closed bool
}

type botTask struct {
	cancel context.CancelFunc
}

func newBotScheduler(delay time.Duration, play func(ctx context.Context, sessionID string)) *botScheduler {
	base, stop := context.WithCancel(context.Background())
	return &botScheduler{
		delay: delay,
		play:  play,
		base:  base,
		stop:  stop,
		tasks: make(map[string]*botTask),
	}
}

func (b *botScheduler) schedule(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	if prev, ok := b.tasks[sessionID]; ok {
		prev.cancel()
	}

	ctx, cancel := context.WithCancel(b.base)
	task := &botTask{cancel: cancel}
	b.tasks[sessionID] = task

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		defer b.finish(sessionID, task)

		if err := sleep(ctx, b.delay); err != nil {
			return
		}
		b.play(ctx, sessionID)
	}()
}

// cancel drops the pending move for a session, if any.
func (b *botScheduler) cancel(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if task, ok := b.tasks[sessionID]; ok {
		task.cancel()
		delete(b.tasks, sessionID)
	}
}

func (b *botScheduler) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.tasks)
}

func (b *botScheduler) close() {
	b.mu.Lock()
	b.closed = true
	b.stop()
	b.mu.Unlock()
	b.wg.Wait()
}

func (b *botScheduler) finish(sessionID string, task *botTask) {
	task.cancel()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tasks[sessionID] == task {
		delete(b.tasks, sessionID)
	}
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
