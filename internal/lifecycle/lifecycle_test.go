package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lightbus-go/lightbus/internal/errs"
)

func TestStartRunsStepsInOrderAndReachesRunning(t *testing.T) {
	m := New(time.Second, nil)
	var order []int

	err := m.Start(context.Background(),
		Step{Name: "a", Run: func(ctx context.Context) error { order = append(order, 1); return nil }},
		Step{Name: "b", Run: func(ctx context.Context) error { order = append(order, 2); return nil }},
	)
	if err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected steps in order, got %v", order)
	}
	if m.State() != Running {
		t.Fatalf("expected Running, got %s", m.State())
	}
	if !m.Ready() {
		t.Fatalf("expected Ready() true once Running")
	}
}

func TestStartRollsBackCompletedStepsOnFailure(t *testing.T) {
	m := New(time.Second, nil)
	var rolledBack []string

	err := m.Start(context.Background(),
		Step{
			Name:     "open-a",
			Run:      func(ctx context.Context) error { return nil },
			Rollback: func(ctx context.Context) error { rolledBack = append(rolledBack, "a"); return nil },
		},
		Step{
			Name:     "open-b",
			Run:      func(ctx context.Context) error { return nil },
			Rollback: func(ctx context.Context) error { rolledBack = append(rolledBack, "b"); return nil },
		},
		Step{
			Name: "open-c-fails",
			Run:  func(ctx context.Context) error { return errors.New("boom") },
		},
	)
	if err == nil {
		t.Fatalf("expected an error from the failing step")
	}
	if !errs.Is(err, errs.KindLifecycleError) {
		t.Fatalf("expected a lifecycle error, got %v", err)
	}
	if len(rolledBack) != 2 || rolledBack[0] != "b" || rolledBack[1] != "a" {
		t.Fatalf("expected rollback in reverse order [b a], got %v", rolledBack)
	}
	if m.State() != NotStarted {
		t.Fatalf("expected NotStarted after failed start, got %s", m.State())
	}
}

func TestStopDrainsThenClosesRegardlessOfDrainError(t *testing.T) {
	m := New(time.Second, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var closed []string
	err := m.Stop(context.Background(),
		func(ctx context.Context) error { return errors.New("drain failed") },
		Step{Name: "close-a", Run: func(ctx context.Context) error { closed = append(closed, "a"); return nil }},
		Step{Name: "close-b", Run: func(ctx context.Context) error { closed = append(closed, "b"); return nil }},
	)
	if err == nil {
		t.Fatalf("expected stop to surface the drain error")
	}
	if len(closed) != 2 || closed[0] != "a" || closed[1] != "b" {
		t.Fatalf("expected both closers to run despite drain error, got %v", closed)
	}
	if m.State() != Stopped {
		t.Fatalf("expected Stopped, got %s", m.State())
	}
}

func TestStopTimesOutWaitingOnSlowDrain(t *testing.T) {
	m := New(10*time.Millisecond, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}

	var closedAfterTimeout bool
	err := m.Stop(context.Background(),
		func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Step{Name: "close", Run: func(ctx context.Context) error { closedAfterTimeout = true; return nil }},
	)
	if err == nil {
		t.Fatalf("expected a timeout error")
	}
	if !closedAfterTimeout {
		t.Fatalf("expected close step to still run after drain timeout")
	}
}

func TestStartFromWrongStateIsRejected(t *testing.T) {
	m := New(time.Second, nil)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Fatalf("expected second Start to be rejected")
	}
}

func TestStopFromWrongStateIsRejected(t *testing.T) {
	m := New(time.Second, nil)
	if err := m.Stop(context.Background(), nil); err == nil {
		t.Fatalf("expected Stop before Start to be rejected")
	}
}
