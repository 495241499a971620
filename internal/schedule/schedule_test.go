package schedule

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickerSchedulerRunsRegisteredTask(t *testing.T) {
	s := NewTickerScheduler(nil)
	var calls int32
	s.Register("tick", 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	s.Start(context.Background())
	time.Sleep(55 * time.Millisecond)
	s.Stop()

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected at least 2 calls, got %d", calls)
	}
}

func TestTickerSchedulerStopsOnContextCancel(t *testing.T) {
	s := NewTickerScheduler(nil)
	var calls int32
	s.Register("tick", 5*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	s.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	cancel()
	s.Stop()

	afterStop := atomic.LoadInt32(&calls)
	time.Sleep(20 * time.Millisecond)
	if atomic.LoadInt32(&calls) != afterStop {
		t.Fatalf("expected no further calls after cancel, had %d then %d", afterStop, calls)
	}
}
