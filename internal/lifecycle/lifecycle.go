// Package lifecycle sequences a bus client's start and stop operations:
// ordered steps with rollback on a failed start, and a drain-then-close
// stop with a graceful-shutdown timeout. Start opens transports, publishes
// schemas, runs before_server_start hooks, spawns consumer loops, and
// marks the client ready; Stop refuses new work, drains in-flight
// handlers under a timeout, closes transports, and runs
// after_server_stopped hooks.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lightbus-go/lightbus/internal/errs"
)

// State is one stage of the client lifecycle state machine.
type State int32

const (
	NotStarted State = iota
	Starting
	Running
	Stopping
	Stopped
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Step is one named unit of start-up work with an optional rollback run,
// in reverse order, against every step that already succeeded if a later
// step fails.
type Step struct {
	Name     string
	Run      func(ctx context.Context) error
	Rollback func(ctx context.Context) error
}

// Manager tracks one client's lifecycle state and runs its start/stop
// sequences. Safe for concurrent use; Start and Stop are expected to be
// called at most once each over the Manager's life.
type Manager struct {
	state    atomic.Int32
	timeout  time.Duration
	logger   *log.Logger
	mu       sync.Mutex
}

// New returns a Manager in NotStarted state. gracefulTimeout bounds how
// long Stop waits for the drain func before proceeding to close transports
// regardless. A nil logger falls back to log.Default().
func New(gracefulTimeout time.Duration, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default()
	}
	m := &Manager{timeout: gracefulTimeout, logger: logger}
	m.state.Store(int32(NotStarted))
	return m
}

// State returns the current lifecycle stage.
func (m *Manager) State() State { return State(m.state.Load()) }

// Ready reports whether the client has completed Start and not yet begun
// Stop — the only state in which Call/Fire should proceed.
func (m *Manager) Ready() bool { return m.State() == Running }

// Start runs steps in order. If any step fails, every step that already
// succeeded has its Rollback (if any) run in reverse order, and the
// original error is returned; the Manager reverts to NotStarted so a
// corrected retry is possible. On full success the Manager moves to
// Running.
func (m *Manager) Start(ctx context.Context, steps ...Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != NotStarted {
		return errs.New(errs.KindLifecycleError, fmt.Sprintf("cannot start from state %s", m.State()))
	}
	m.state.Store(int32(Starting))

	completed := make([]Step, 0, len(steps))
	for _, step := range steps {
		if err := step.Run(ctx); err != nil {
			m.logger.Printf("lifecycle: start step %q failed: %v", step.Name, err)
			m.rollback(ctx, completed)
			m.state.Store(int32(NotStarted))
			return errs.Wrap(errs.KindLifecycleError, "start step "+step.Name, err)
		}
		completed = append(completed, step)
	}

	m.state.Store(int32(Running))
	return nil
}

func (m *Manager) rollback(ctx context.Context, completed []Step) {
	for i := len(completed) - 1; i >= 0; i-- {
		step := completed[i]
		if step.Rollback == nil {
			continue
		}
		if err := step.Rollback(ctx); err != nil {
			m.logger.Printf("lifecycle: rollback of step %q failed: %v", step.Name, err)
		}
	}
}

// Stop marks the client as stopping (so callers refusing new call/fire
// based on Ready() see it immediately), waits up to the configured
// graceful timeout for drain to return, then always runs closers in
// order regardless of whether drain succeeded or timed out. Errors from
// drain and closers are collected and joined; any error still marks the
// Manager Stopped since a stop sequence does not retry.
func (m *Manager) Stop(ctx context.Context, drain func(ctx context.Context) error, closers ...Step) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.State() != Running {
		return errs.New(errs.KindLifecycleError, fmt.Sprintf("cannot stop from state %s", m.State()))
	}
	m.state.Store(int32(Stopping))

	var errsOut []error

	drainCtx := ctx
	var cancel context.CancelFunc
	if m.timeout > 0 {
		drainCtx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}
	if drain != nil {
		if err := drain(drainCtx); err != nil {
			errsOut = append(errsOut, fmt.Errorf("drain: %w", err))
		}
	}

	closeCtx := context.Background()
	for _, step := range closers {
		if err := step.Run(closeCtx); err != nil {
			m.logger.Printf("lifecycle: close step %q failed: %v", step.Name, err)
			errsOut = append(errsOut, fmt.Errorf("%s: %w", step.Name, err))
		}
	}

	m.state.Store(int32(Stopped))

	if len(errsOut) == 0 {
		return nil
	}
	return errs.Wrap(errs.KindTransportFailure, fmt.Sprintf("%d error(s) during stop", len(errsOut)), joinErrors(errsOut))
}

func joinErrors(in []error) error {
	if len(in) == 1 {
		return in[0]
	}
	msg := "multiple errors:"
	for _, e := range in {
		msg += " [" + e.Error() + "]"
	}
	return fmt.Errorf("%s", msg)
}
