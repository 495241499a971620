// Package transport defines the broker-agnostic abstractions Lightbus uses
// for RPC, Result, Event, and Schema traffic. Concrete brokers (Redis being
// the only one shipped) implement these interfaces; the client and
// dispatcher depend only on them.
package transport

import (
	"context"
	"time"

	"github.com/lightbus-go/lightbus/internal/message"
)

// Lease represents transient ownership of an in-flight message, granted by
// a transport's Consume. It must be completed (Ack or, implicitly, left
// alone to expire) by the dispatcher.
type Lease interface {
	// Ack finalizes successful handling, permanently removing the message
	// from the pending set.
	Ack(ctx context.Context) error
	// DeliveryCount returns how many times this message has been delivered,
	// including the current delivery. Starts at 1.
	DeliveryCount() int64
	// NativeID is the broker-native identifier for the leased message.
	NativeID() string
}

// RpcDelivery pairs a received RpcMessage with its lease.
type RpcDelivery struct {
	Message *message.RpcMessage
	Lease   Lease
}

// EventDelivery pairs a received EventMessage with its lease and the
// listener group it was delivered to.
type EventDelivery struct {
	Message      *message.EventMessage
	Lease        Lease
	ListenerName string
}

// RpcTransport is the producer/consumer side of RPC calls: publish() routes
// a call to subscribers of its api_name; consume() gives a worker loop a
// channel of deliveries with single-delivery semantics among competing
// consumers for the same api_name.
type RpcTransport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	Publish(ctx context.Context, msg *message.RpcMessage) error

	// Consume starts a consumer loop for apiNames and returns a channel of
	// deliveries. The channel closes when ctx is cancelled.
	Consume(ctx context.Context, apiNames []string, consumerName string) (<-chan RpcDelivery, error)

	// HasResponders reports whether any consumer has been seen polling
	// apiName recently. A caller whose Call times out uses this to
	// distinguish NoResponders (broker reports zero consumers) from a
	// plain RpcTimeout (a responder exists but hasn't replied yet).
	HasResponders(ctx context.Context, apiName string) (bool, error)
}

// ResultTransport is the RPC reply path: callers block (cooperatively) on
// ReceiveResult until the worker's result arrives or the deadline expires.
type ResultTransport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	SendResult(ctx context.Context, rpcMsg *message.RpcMessage, result *message.ResultMessage, returnPath string) error
	ReceiveResult(ctx context.Context, rpcMsg *message.RpcMessage, returnPath string, timeout time.Duration) (*message.ResultMessage, error)
}

// ListenerSpec names the events one listener_name wants delivered.
type ListenerSpec struct {
	ListenerName string
	Events       []EventAddress
	// Since controls replay position: "new" (only entries after group
	// creation), "tail" (start reading from now), or an explicit broker
	// position.
	Since string
}

// EventAddress names one api_name/event_name pair.
type EventAddress struct {
	ApiName   string
	EventName string
}

// EventTransport is fan-out with consumer groups: every distinct
// listener_name receives every event at least once; replicas sharing a
// listener_name partition the work.
type EventTransport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	SendEvent(ctx context.Context, evt *message.EventMessage) error

	// Consume starts (or rejoins) the consumer groups named in listeners
	// and returns a channel of deliveries. The channel closes when ctx is
	// cancelled.
	Consume(ctx context.Context, listeners []ListenerSpec, consumerName string) (<-chan EventDelivery, error)

	// History returns events published between since and until (inclusive),
	// oldest first. Returns an ErrUnsupportedOperation error if the backend
	// has no log to replay.
	History(ctx context.Context, apiName, eventName string, since, until time.Time) ([]*message.EventMessage, error)

	// Reclaim scans pending entries idle longer than minIdle belonging to
	// listenerName and reassigns them to consumerName, returning how many
	// were reclaimed. Entries whose delivery count exceeds maxRedeliveries
	// are instead routed to the dead-letter sink and acknowledged.
	Reclaim(ctx context.Context, listenerName string, addr EventAddress, consumerName string, minIdle time.Duration, maxRedeliveries int64) (int, error)
}

// SchemaTransport publishes and retrieves per-API schema documents,
// out-of-band from the RPC/Event data path.
type SchemaTransport interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	Store(ctx context.Context, apiName string, schema []byte, ttl time.Duration) error
	Load(ctx context.Context, apiName string) ([]byte, bool, error)
	Ping(ctx context.Context, apiName string, ttl time.Duration) error
}

// unsupportedOperation is the error ErrUnsupportedOperation builds for
// transport operations a backend doesn't implement, e.g.
// EventTransport.History on a backend with no log.
type unsupportedOperation struct{ op string }

func (e unsupportedOperation) Error() string { return "unsupported operation: " + e.op }

// ErrUnsupportedOperation builds the sentinel error for an unimplemented
// optional transport operation.
func ErrUnsupportedOperation(op string) error { return unsupportedOperation{op: op} }
