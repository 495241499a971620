// Package hooks implements the bus's fixed lifecycle hook points: ordered
// registration, reverse-order after_* execution, errors logged and
// swallowed rather than propagated.
package hooks

import (
	"context"
	"log"
)

// Point names one of the fixed lifecycle hook points.
type Point string

const (
	BeforeServerStart   Point = "before_server_start"
	AfterServerStopped  Point = "after_server_stopped"
	BeforeInvocation    Point = "before_invocation"
	AfterInvocation     Point = "after_invocation"
	BeforeFireEvent     Point = "before_fire_event"
	AfterFireEvent      Point = "after_fire_event"
	BeforeListenEvent   Point = "before_listen_event"
	AfterListenEvent    Point = "after_listen_event"
	Exception           Point = "exception"
)

// Func is one registered hook callback. ctx carries cancellation; data
// passes point-specific payload (e.g. the in-flight message), opaque to the
// hook bus itself.
type Func func(ctx context.Context, data interface{}) error

// Bus holds every registered hook, keyed by point, run in registration
// order for before_* points and reverse order for after_* points.
type Bus struct {
	logger *log.Logger
	funcs  map[Point][]Func
}

// New returns an empty hook Bus. A nil logger falls back to log.Default().
func New(logger *log.Logger) *Bus {
	if logger == nil {
		logger = log.Default()
	}
	return &Bus{logger: logger, funcs: make(map[Point][]Func)}
}

// Register appends fn to point's call list, run after every previously
// registered fn at that point.
func (b *Bus) Register(point Point, fn Func) {
	b.funcs[point] = append(b.funcs[point], fn)
}

// Run executes every hook registered at point, in order, for before_*/
// exception points. Errors are logged, never returned: hooks must not
// abort the operation they're attached to. A nil Bus runs nothing.
func (b *Bus) Run(ctx context.Context, point Point, data interface{}) {
	if b == nil {
		return
	}
	for _, fn := range b.funcs[point] {
		if err := fn(ctx, data); err != nil {
			b.logger.Printf("hook %s failed: %v", point, err)
		}
	}
}

// RunReverse executes every hook registered at point in reverse
// registration order, for after_* points, so cleanup unwinds in the
// opposite order setup ran. A nil Bus runs nothing.
func (b *Bus) RunReverse(ctx context.Context, point Point, data interface{}) {
	if b == nil {
		return
	}
	fns := b.funcs[point]
	for i := len(fns) - 1; i >= 0; i-- {
		if err := fns[i](ctx, data); err != nil {
			b.logger.Printf("hook %s failed: %v", point, err)
		}
	}
}
