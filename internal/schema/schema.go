// Package schema compiles and validates JSON Schema documents for API
// methods and events. Schemas are derived from registered methods/events
// rather than loaded from *.schema.json files on disk, then compiled the
// same way a directory-of-files validator would.
package schema

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/message"
)

// Compiled holds the compiled validators for one API's methods and events.
type Compiled struct {
	entry   message.SchemaEntry
	methods map[string]compiledMethod
	events  map[string]*jsonschema.Schema
}

type compiledMethod struct {
	params   *jsonschema.Schema
	response *jsonschema.Schema
}

// Compile compiles the raw JSON Schema documents in entry into validators.
// Returns a Lightbus ValidationFailed error if any document fails to
// compile (e.g. malformed schema authored by the API).
func Compile(entry message.SchemaEntry) (*Compiled, error) {
	c := &Compiled{
		entry:   entry,
		methods: make(map[string]compiledMethod, len(entry.Methods)),
		events:  make(map[string]*jsonschema.Schema, len(entry.Events)),
	}

	for name, ms := range entry.Methods {
		params, err := compileDoc(entry.ApiName+"#"+name+".params", ms.Parameters)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidationFailed, "compiling parameter schema for "+name, err)
		}
		var resp *jsonschema.Schema
		if len(ms.Response) > 0 {
			resp, err = compileDoc(entry.ApiName+"#"+name+".response", ms.Response)
			if err != nil {
				return nil, errs.Wrap(errs.KindValidationFailed, "compiling response schema for "+name, err)
			}
		}
		c.methods[name] = compiledMethod{params: params, response: resp}
	}

	for name, raw := range entry.Events {
		s, err := compileDoc(entry.ApiName+"#"+name+".event", raw)
		if err != nil {
			return nil, errs.Wrap(errs.KindValidationFailed, "compiling event schema for "+name, err)
		}
		c.events[name] = s
	}

	return c, nil
}

func compileDoc(resourceURL string, raw json.RawMessage) (*jsonschema.Schema, error) {
	if len(raw) == 0 {
		// No constraints authored: accept anything.
		raw = json.RawMessage(`{}`)
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parsing schema json: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, doc); err != nil {
		return nil, fmt.Errorf("adding schema resource: %w", err)
	}
	return compiler.Compile(resourceURL)
}

// ValidateParams validates kwargs against method's parameter schema.
func (c *Compiled) ValidateParams(method string, kwargs map[string]interface{}) error {
	m, ok := c.methods[method]
	if !ok {
		return errs.New(errs.KindNoSuchMember, "no such method: "+method)
	}
	if m.params == nil {
		return nil
	}
	if err := m.params.Validate(toAnyMap(kwargs)); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "incoming validation for "+method, err)
	}
	return nil
}

// ValidateResponse validates a method's return value against its response
// schema, when one was declared.
func (c *Compiled) ValidateResponse(method string, value interface{}) error {
	m, ok := c.methods[method]
	if !ok {
		return errs.New(errs.KindNoSuchMember, "no such method: "+method)
	}
	if m.response == nil {
		return nil
	}
	if err := m.response.Validate(value); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "response validation for "+method, err)
	}
	return nil
}

// ValidateEvent validates kwargs against event's parameter schema.
func (c *Compiled) ValidateEvent(event string, kwargs map[string]interface{}) error {
	s, ok := c.events[event]
	if !ok {
		return errs.New(errs.KindNoSuchMember, "no such event: "+event)
	}
	if err := s.Validate(toAnyMap(kwargs)); err != nil {
		return errs.Wrap(errs.KindValidationFailed, "validation for event "+event, err)
	}
	return nil
}

func toAnyMap(m map[string]interface{}) interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}

// Cache holds compiled schemas for every API the client has seen, refreshed
// atomically so readers never observe a half-updated entry.
type Cache struct {
	mu   sync.RWMutex
	byAPI map[string]*Compiled
}

// NewCache returns an empty schema cache.
func NewCache() *Cache {
	return &Cache{byAPI: make(map[string]*Compiled)}
}

// Put atomically swaps in the compiled schema for an API.
func (c *Cache) Put(apiName string, compiled *Compiled) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byAPI[apiName] = compiled
}

// Get returns the compiled schema for an API, or ok=false if unknown. A nil
// Cache holds nothing.
func (c *Cache) Get(apiName string) (*Compiled, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	compiled, ok := c.byAPI[apiName]
	return compiled, ok
}

// Compatible reports whether candidate is an additive-only evolution of
// existing (same process re-registration rule from the design's §4.3):
// new optional parameters are fine; removals or type narrowing are not.
// Compatibility is judged by member names only: candidate must keep every
// method and event name existing has. Changes to a member's parameter or
// response schema, including type narrowing, are not detected.
func Compatible(existing, candidate message.SchemaEntry) error {
	for name := range existing.Methods {
		if _, ok := candidate.Methods[name]; !ok {
			return errs.New(errs.KindSchemaConflict, "method removed on re-registration: "+name)
		}
	}
	for name := range existing.Events {
		if _, ok := candidate.Events[name]; !ok {
			return errs.New(errs.KindSchemaConflict, "event removed on re-registration: "+name)
		}
	}
	return nil
}
