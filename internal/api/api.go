// Package api is the in-process registry of named APIs: their methods,
// events, and handler functions. It is read-mostly after Start: registering
// a new API name past that point is rejected, while a compatible
// re-registration of an existing API is still accepted.
package api

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/message"
)

// Handler processes one RPC call and returns a result or an error.
type Handler func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error)

// EventHandler processes one delivered event.
type EventHandler func(ctx context.Context, evt *message.EventMessage) error

// Method describes one callable procedure on an API.
type Method struct {
	Name             string
	ParametersSchema json.RawMessage
	ResponseSchema   json.RawMessage
	Handler          Handler
}

// Event describes one event an API can fire.
type Event struct {
	Name             string
	ParametersSchema json.RawMessage
}

// Definition is a complete API: its dotted name, methods, and events.
type Definition struct {
	Name    string
	Methods []Method
	Events  []Event
}

// SchemaEntry derives the wire schema document for this API definition.
func (d Definition) SchemaEntry(version int) message.SchemaEntry {
	entry := message.SchemaEntry{
		ApiName: d.Name,
		Version: version,
		Methods: make(map[string]message.MethodSchema, len(d.Methods)),
		Events:  make(map[string]json.RawMessage, len(d.Events)),
	}
	for _, m := range d.Methods {
		entry.Methods[m.Name] = message.MethodSchema{Parameters: m.ParametersSchema, Response: m.ResponseSchema}
	}
	for _, e := range d.Events {
		entry.Events[e.Name] = e.ParametersSchema
	}
	return entry
}

// Registry holds every API this process has registered, keyed by name.
type Registry struct {
	mu      sync.RWMutex
	apis    map[string]Definition
	version map[string]int
	started bool
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{apis: make(map[string]Definition), version: make(map[string]int)}
}

// Register adds or replaces an API definition. Past Start(), registering a
// new API name is rejected with a LifecycleError; a conflicting re-registration (methods or
// events removed) is rejected with SchemaConflict regardless of start
// state, per the design's compatibility rule.
func (r *Registry) Register(def Definition) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.apis[def.Name]; ok {
		if err := checkCompatible(existing, def); err != nil {
			return err
		}
		r.version[def.Name]++
	} else {
		if r.started {
			return errs.New(errs.KindLifecycleError, "cannot register new API "+def.Name+" after start")
		}
		r.version[def.Name] = 1
	}

	r.apis[def.Name] = def
	return nil
}

func checkCompatible(existing, candidate Definition) error {
	methods := make(map[string]bool, len(candidate.Methods))
	for _, m := range candidate.Methods {
		methods[m.Name] = true
	}
	for _, m := range existing.Methods {
		if !methods[m.Name] {
			return errs.New(errs.KindSchemaConflict, "method removed on re-registration: "+m.Name)
		}
	}
	events := make(map[string]bool, len(candidate.Events))
	for _, e := range candidate.Events {
		events[e.Name] = true
	}
	for _, e := range existing.Events {
		if !events[e.Name] {
			return errs.New(errs.KindSchemaConflict, "event removed on re-registration: "+e.Name)
		}
	}
	return nil
}

// MarkStarted freezes the registry against new API registrations.
func (r *Registry) MarkStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = true
}

// Get returns the definition for apiName, or ok=false if unknown.
func (r *Registry) Get(apiName string) (Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.apis[apiName]
	return def, ok
}

// Version returns the current re-registration generation for apiName.
func (r *Registry) Version(apiName string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.version[apiName]
}

// Method looks up a single method handler by canonical address parts.
func (r *Registry) Method(apiName, methodName string) (Method, error) {
	def, ok := r.Get(apiName)
	if !ok {
		return Method{}, errs.New(errs.KindNoSuchApi, "no such api: "+apiName)
	}
	for _, m := range def.Methods {
		if m.Name == methodName {
			return m, nil
		}
	}
	return Method{}, errs.New(errs.KindNoSuchMember, "no such method: "+apiName+"."+methodName)
}

// All returns every registered API definition, for schema publication.
func (r *Registry) All() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Definition, 0, len(r.apis))
	for _, def := range r.apis {
		out = append(out, def)
	}
	return out
}
