// Package message defines the three wire-level envelopes Lightbus moves
// across transports — RpcMessage, ResultMessage, EventMessage — plus the
// listener registration key and the schema entry record. Fields mirror the
// data model in the design's canonical identifiers section exactly.
package message

import (
	"encoding/json"
	"fmt"
	"time"
)

// RpcMessage is a single RPC call in flight: created by the caller,
// serialized, consumed by exactly one worker, then discarded.
type RpcMessage struct {
	ID            string                 `json:"id"`
	ApiName       string                 `json:"api_name"`
	ProcedureName string                 `json:"procedure_name"`
	Kwargs        map[string]interface{} `json:"kwargs"`
	ReturnPath    string                 `json:"return_path"`
	Metadata      map[string]string      `json:"metadata"`
	// Timeout is the caller's deadline for this call, carried alongside the
	// message so the responder can size the result key's TTL off it instead
	// of a fixed constant.
	Timeout   time.Duration `json:"timeout"`
	CreatedAt time.Time     `json:"-"`
}

// CanonicalAddress returns "api_name.procedure_name".
func (m *RpcMessage) CanonicalAddress() string {
	return m.ApiName + "." + m.ProcedureName
}

func (m *RpcMessage) String() string {
	return fmt.Sprintf("RpcMessage(id=%s, %s)", m.ID, m.CanonicalAddress())
}

// RemoteErrorKind enumerates the taxonomy entries a ResultMessage.Error can
// carry, per the design's worker/dispatcher state machine.
type RemoteErrorKind string

const (
	RemoteErrorHandler    RemoteErrorKind = "handler_error"
	RemoteErrorValidation RemoteErrorKind = "validation_failed"
	RemoteErrorCancelled  RemoteErrorKind = "cancelled"
	RemoteErrorInternal   RemoteErrorKind = "internal"
)

// RemoteErrorInfo is the marshalled form of a handler-raised error, carried
// on ResultMessage.Error. Mutually exclusive with ResultMessage.Result.
type RemoteErrorInfo struct {
	Kind    RemoteErrorKind `json:"kind"`
	Message string          `json:"message"`
}

// ResultMessage is produced once per dispatched RpcMessage and consumed by
// the originating caller.
type ResultMessage struct {
	ID           string                 `json:"id"`
	RpcMessageID string                 `json:"rpc_message_id"`
	Result       interface{}            `json:"result,omitempty"`
	Error        *RemoteErrorInfo       `json:"error,omitempty"`
	Trace        map[string]interface{} `json:"trace,omitempty"`
	Metadata     map[string]string      `json:"metadata"`
	CreatedAt    time.Time              `json:"-"`
}

func (m *ResultMessage) String() string {
	if m.Error != nil {
		return fmt.Sprintf("ResultMessage(id=%s, rpc=%s, error=%s)", m.ID, m.RpcMessageID, m.Error.Kind)
	}
	return fmt.Sprintf("ResultMessage(id=%s, rpc=%s, ok)", m.ID, m.RpcMessageID)
}

// EventMessage is fanned out to every listener group subscribed at the time
// of publication; each group acknowledges independently.
type EventMessage struct {
	ID        string                 `json:"id"`
	ApiName   string                 `json:"api_name"`
	EventName string                 `json:"event_name"`
	Kwargs    map[string]interface{} `json:"kwargs"`
	Metadata  map[string]string      `json:"metadata"`
	// NativeID is the broker-assigned stream position, known once the
	// message has actually been appended to the broker's log.
	NativeID  string    `json:"native_id,omitempty"`
	CreatedAt time.Time `json:"-"`
}

// CanonicalAddress returns "api_name.event_name".
func (m *EventMessage) CanonicalAddress() string {
	return m.ApiName + "." + m.EventName
}

func (m *EventMessage) String() string {
	return fmt.Sprintf("EventMessage(id=%s, %s)", m.ID, m.CanonicalAddress())
}

// ListenerRegistration is keyed by (ListenerName, ApiName, EventName). Every
// distinct ListenerName receives every matching event once; replicas
// sharing a ListenerName load-balance within that consumer group.
type ListenerRegistration struct {
	ListenerName string
	ApiName      string
	EventName    string
}

// Key returns a stable string key suitable for map lookups / dedup.
func (r ListenerRegistration) Key() string {
	return r.ListenerName + "|" + r.ApiName + "." + r.EventName
}

// MethodSchema is the per-method entry in a SchemaEntry: the JSON Schema for
// its parameters and, separately, for its return value.
type MethodSchema struct {
	Parameters json.RawMessage `json:"parameters"`
	Response   json.RawMessage `json:"response"`
}

// SchemaEntry is the per-API schema document published via SchemaTransport
// and refreshed in the background by consumers.
type SchemaEntry struct {
	ApiName string                     `json:"api_name"`
	Version int                        `json:"version"`
	Methods map[string]MethodSchema    `json:"methods"`
	Events  map[string]json.RawMessage `json:"events"`
}
