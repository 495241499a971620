package lifecycle

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAwaitShutdownRunsCleanupInOrderAfterSignal(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var called []int
	step1 := func(ctx context.Context) error { called = append(called, 1); return nil }
	step2 := func(ctx context.Context) error { called = append(called, 2); return nil }
	step3 := func(ctx context.Context) error { called = append(called, 3); return nil }

	done := make(chan error, 1)
	go func() { done <- AwaitShutdown(ctx, 5*time.Second, nil, step1, step2, step3) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(called) != 3 || called[0] != 1 || called[1] != 2 || called[2] != 3 {
		t.Fatalf("expected cleanup funcs in order [1 2 3], got %v", called)
	}
}

func TestAwaitShutdownReportsTimeoutOnSlowCleanup(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	slow := func(ctx context.Context) error {
		time.Sleep(200 * time.Millisecond)
		return nil
	}

	done := make(chan error, 1)
	go func() { done <- AwaitShutdown(ctx, 100*time.Millisecond, nil, slow) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
}

func TestAwaitShutdownCollectsCleanupErrors(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errA := errors.New("error 1")
	errB := errors.New("error 2")
	cleanup1 := func(ctx context.Context) error { return errA }
	cleanup2 := func(ctx context.Context) error { return errB }

	done := make(chan error, 1)
	go func() { done <- AwaitShutdown(ctx, 5*time.Second, nil, cleanup1, cleanup2) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	err := <-done
	if err == nil {
		t.Fatalf("expected a joined error")
	}
	msg := err.Error()
	if !strings.Contains(msg, "error 1") || !strings.Contains(msg, "error 2") {
		t.Fatalf("expected both errors in message, got %q", msg)
	}
}

func TestAwaitShutdownDefaultsTimeoutAndLogger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- AwaitShutdown(ctx, 0, nil, func(ctx context.Context) error { return nil }) }()

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
