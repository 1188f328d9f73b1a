package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestKeyedMutex(t *testing.T) {
	k := newKeyedMutex()

	var (
		wg      sync.WaitGroup
		inside  int32
		maxSeen int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := k.Lock("s1")
			n := atomic.AddInt32(&inside, 1)
			for {
				m := atomic.LoadInt32(&maxSeen)
				if n <= m || atomic.CompareAndSwapInt32(&maxSeen, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inside, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("Expected one holder at a time, saw %d", maxSeen)
	}
	if k.size() != 0 {
		t.Errorf("Expected lock entries to be released, %d left", k.size())
	}

	// Different keys do not block each other.
	unlockA := k.Lock("a")
	done := make(chan struct{})
	go func() {
		unlockB := k.Lock("b")
		unlockB()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Lock on b blocked behind a")
	}
	unlockA()
}

func TestBotScheduler(t *testing.T) {
	t.Run("plays after the delay", func(t *testing.T) {
		played := make(chan string, 1)
		b := newBotScheduler(10*time.Millisecond, func(_ context.Context, id string) { played <- id })
		defer b.close()

		b.schedule("s1")
		select {
		case id := <-played:
			if id != "s1" {
				t.Errorf("Expected s1, got %s", id)
			}
		case <-time.After(time.Second):
			t.Fatal("Bot never played")
		}
	})

	t.Run("rescheduling replaces the pending task", func(t *testing.T) {
		var calls int32
		b := newBotScheduler(30*time.Millisecond, func(context.Context, string) { atomic.AddInt32(&calls, 1) })

		b.schedule("s1")
		b.schedule("s1")
		if b.pending() != 1 {
			t.Errorf("Expected one pending task, got %d", b.pending())
		}
		time.Sleep(100 * time.Millisecond)
		b.close()

		if got := atomic.LoadInt32(&calls); got != 1 {
			t.Errorf("Expected one bot move, got %d", got)
		}
	})

	t.Run("cancel drops the task", func(t *testing.T) {
		var calls int32
		b := newBotScheduler(20*time.Millisecond, func(context.Context, string) { atomic.AddInt32(&calls, 1) })

		b.schedule("s1")
		b.cancel("s1")
		time.Sleep(60 * time.Millisecond)
		b.close()

		if calls != 0 {
			t.Errorf("Expected cancelled task not to play, got %d calls", calls)
		}
		if b.pending() != 0 {
			t.Errorf("Expected no pending tasks, got %d", b.pending())
		}
	})

	t.Run("close waits and refuses new work", func(t *testing.T) {
		var calls int32
		b := newBotScheduler(time.Hour, func(context.Context, string) { atomic.AddInt32(&calls, 1) })
		b.schedule("s1")

		done := make(chan struct{})
		go func() {
			b.close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("close did not cancel the pending delay")
		}

		b.schedule("s2")
		if b.pending() != 0 || calls != 0 {
			t.Errorf("Expected no work after close, pending=%d calls=%d", b.pending(), calls)
		}
	})
}

func TestSleep(t *testing.T) {
	if err := sleep(context.Background(), 0); err != nil {
		t.Errorf("Zero sleep should return immediately: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleep(ctx, time.Hour); err == nil {
		t.Error("Expected cancelled sleep to fail")
	}
}
