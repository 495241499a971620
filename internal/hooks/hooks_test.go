package hooks

import (
	"context"
	"errors"
	"testing"
)

func TestRunExecutesInRegistrationOrder(t *testing.T) {
	b := New(nil)
	var order []int
	b.Register(BeforeInvocation, func(ctx context.Context, data interface{}) error {
		order = append(order, 1)
		return nil
	})
	b.Register(BeforeInvocation, func(ctx context.Context, data interface{}) error {
		order = append(order, 2)
		return nil
	})

	b.Run(context.Background(), BeforeInvocation, nil)

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("expected [1 2], got %v", order)
	}
}

func TestRunReverseExecutesInReverseOrder(t *testing.T) {
	b := New(nil)
	var order []int
	b.Register(AfterInvocation, func(ctx context.Context, data interface{}) error {
		order = append(order, 1)
		return nil
	})
	b.Register(AfterInvocation, func(ctx context.Context, data interface{}) error {
		order = append(order, 2)
		return nil
	})

	b.RunReverse(context.Background(), AfterInvocation, nil)

	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Fatalf("expected [2 1], got %v", order)
	}
}

func TestRunSwallowsHookErrors(t *testing.T) {
	b := New(nil)
	called := false
	b.Register(Exception, func(ctx context.Context, data interface{}) error {
		return errors.New("boom")
	})
	b.Register(Exception, func(ctx context.Context, data interface{}) error {
		called = true
		return nil
	})

	b.Run(context.Background(), Exception, nil)

	if !called {
		t.Fatalf("expected second hook to still run after first errored")
	}
}
