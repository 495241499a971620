package dispatch

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/lightbus-go/lightbus/internal/api"
	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/hooks"
	"github.com/lightbus-go/lightbus/internal/transport"
)

// EventListener binds a listener_name/handler pair to the addresses it
// wants delivered, plus the on_error policy governing handler failure.
type EventListener struct {
	ListenerName string
	Addresses    []transport.EventAddress
	Handler      api.EventHandler
	OnError      OnErrorPolicy
	Since        string
}

// EventDispatcher runs one consumer loop per registered listener_name,
// validating, invoking, and acknowledging each delivery per the design's
// event dispatch state machine, plus a periodic reclaim pass per
// listener/address pair so pending entries from crashed replicas aren't
// stuck forever. Grounded on the same ack-discipline shape as RpcDispatcher,
// generalized to the at-least-once/on_error semantics events require
// instead of RPC's single reply-then-ack.
//
// All listener groups share one transport.Consume channel (the transport
// multiplexes every group's XREADGROUP onto it), so there is no per-listener
// goroutine to cancel outright. The raise policy's "terminate loop" is
// implemented as marking that listener_name stopped: the dispatch loop below
// drops every further delivery for it without invoking the handler or
// acknowledging, so nothing more runs for that group until the process is
// restarted, while unrelated listener_names keep dispatching normally.
type EventDispatcher struct {
	deps     Deps
	events   transport.EventTransport
	sem      *semaphore.Weighted
	consumer string

	ackTimeout      time.Duration
	reclaimInterval time.Duration
	maxRedeliveries int64

	stoppedMu sync.Mutex
	stopped   map[string]bool

	wg sync.WaitGroup
}

// NewEventDispatcher builds an EventDispatcher for consumerName, a
// broker-wide unique identity for this process's worker replica.
func NewEventDispatcher(deps Deps, events transport.EventTransport, consumerName string, ackTimeout, reclaimInterval time.Duration, maxRedeliveries int64) *EventDispatcher {
	if reclaimInterval <= 0 {
		reclaimInterval = ackTimeout / 3
	}
	if reclaimInterval <= 0 {
		reclaimInterval = 10 * time.Second
	}
	return &EventDispatcher{
		deps:            deps,
		events:          events,
		sem:             deps.newSemaphore(),
		consumer:        consumerName,
		ackTimeout:      ackTimeout,
		reclaimInterval: reclaimInterval,
		maxRedeliveries: maxRedeliveries,
		stopped:         make(map[string]bool),
	}
}

// listenerStopped reports whether listenerName's loop has been terminated by
// a prior raise-policy error.
func (d *EventDispatcher) listenerStopped(listenerName string) bool {
	d.stoppedMu.Lock()
	defer d.stoppedMu.Unlock()
	return d.stopped[listenerName]
}

// stopListener terminates listenerName's loop: every delivery for it is
// dropped from here on, unacknowledged, until the process restarts.
func (d *EventDispatcher) stopListener(listenerName string) {
	d.stoppedMu.Lock()
	defer d.stoppedMu.Unlock()
	d.stopped[listenerName] = true
}

// Run joins every listener's consumer group, dispatches deliveries, and
// runs the reclaim pass until ctx is cancelled, then waits for in-flight
// handlers to finish.
func (d *EventDispatcher) Run(ctx context.Context, listeners []EventListener) error {
	specs := make([]transport.ListenerSpec, 0, len(listeners))
	byListener := make(map[string]EventListener, len(listeners))
	for _, l := range listeners {
		specs = append(specs, transport.ListenerSpec{ListenerName: l.ListenerName, Events: l.Addresses, Since: l.Since})
		byListener[l.ListenerName] = l
	}

	deliveries, err := d.events.Consume(ctx, specs, d.consumer)
	if err != nil {
		return errs.Wrap(errs.KindTransportFailure, "starting event consume", err)
	}

	reclaimCtx, cancelReclaim := context.WithCancel(ctx)
	defer cancelReclaim()
	go d.reclaimLoop(reclaimCtx, listeners)

	for delivery := range deliveries {
		listener, ok := byListener[delivery.ListenerName]
		if !ok {
			continue
		}
		if d.listenerStopped(delivery.ListenerName) {
			continue
		}
		if !acquire(ctx, d.sem) {
			break
		}
		d.wg.Add(1)
		go func(del transport.EventDelivery, l EventListener) {
			defer d.sem.Release(1)
			defer d.wg.Done()
			d.handle(ctx, del, l)
		}(delivery, listener)
	}

	d.wg.Wait()
	return nil
}

func (d *EventDispatcher) handle(ctx context.Context, delivery transport.EventDelivery, listener EventListener) {
	evt := delivery.Message
	logger := d.deps.logger()

	d.deps.Hooks.Run(ctx, hooks.BeforeListenEvent, evt)
	defer d.deps.Hooks.RunReverse(ctx, hooks.AfterListenEvent, evt)

	if compiled, ok := d.deps.SchemaCache.Get(evt.ApiName); ok {
		if err := compiled.ValidateEvent(evt.EventName, evt.Kwargs); err != nil {
			d.applyOnError(ctx, delivery, listener, err)
			return
		}
	}

	if err := listener.Handler(ctx, evt); err != nil {
		d.deps.Hooks.Run(ctx, hooks.Exception, err)
		d.applyOnError(ctx, delivery, listener, err)
		return
	}

	if err := delivery.Lease.Ack(ctx); err != nil {
		logger.Printf("event dispatch: ack failed for %s: %v", evt.ID, err)
	}
}

// applyOnError implements the design's three on_error policies: swallow
// acknowledges and moves on; requeue deliberately withholds the ack so the
// broker redelivers after the lease expires; raise withholds the ack and
// additionally terminates the consumer loop for this listener_name (see
// stopListener) so no further deliveries for it are dispatched, matching
// the design's "terminate loop and log" requirement for event dispatch.
func (d *EventDispatcher) applyOnError(ctx context.Context, delivery transport.EventDelivery, listener EventListener, cause error) {
	logger := d.deps.logger()
	switch listener.OnError {
	case OnErrorSwallow:
		logger.Printf("event dispatch: swallowing error for %s: %v", delivery.Message.ID, cause)
		if err := delivery.Lease.Ack(ctx); err != nil {
			logger.Printf("event dispatch: ack failed for %s: %v", delivery.Message.ID, err)
		}
	case OnErrorRequeue:
		logger.Printf("event dispatch: requeueing %s after error: %v", delivery.Message.ID, cause)
	default: // OnErrorRaise
		d.stopListener(listener.ListenerName)
		logger.Printf("event dispatch: terminating consumer loop for listener %s after error on %s: %v", listener.ListenerName, delivery.Message.ID, cause)
	}
}

// reclaimLoop periodically scans every listener/address pair for pending
// entries idle longer than ackTimeout and reassigns them to this replica,
// per the design's reclaim pass (§4.4).
func (d *EventDispatcher) reclaimLoop(ctx context.Context, listeners []EventListener) {
	ticker := time.NewTicker(d.reclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, l := range listeners {
				for _, addr := range l.Addresses {
					if _, err := d.events.Reclaim(ctx, l.ListenerName, addr, d.consumer, d.ackTimeout, d.maxRedeliveries); err != nil {
						d.deps.logger().Printf("event dispatch: reclaim failed for %s/%s.%s: %v", l.ListenerName, addr.ApiName, addr.EventName, err)
					}
				}
			}
		}
	}
}
