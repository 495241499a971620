// Package codec converts Lightbus envelopes to and from transport payload
// bytes. JSON is the default and only built-in codec, matching the wire
// layout the design makes normative; alternative codecs implement the same
// Codec interface and advertise themselves via metadata.codec.
package codec

import "encoding/json"

// Name of the default codec, carried in RpcMessage/EventMessage metadata
// under the "codec" key so a consumer knows how to decode the payload.
const JSONCodecName = "json"

// Codec marshals and unmarshals envelope payloads. Implementations must be
// safe for concurrent use.
type Codec interface {
	Name() string
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
}

// JSON is the default Codec, backed by encoding/json. Integers, floats,
// booleans, strings, null, ordered sequences and string-keyed mappings are
// supported natively; binary payloads are expected to already be
// base64-wrapped by the caller before reaching Marshal.
type JSON struct{}

func (JSON) Name() string { return JSONCodecName }

func (JSON) Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func (JSON) Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// Default is the codec used when no codec identifier is present in
// metadata.
var Default Codec = JSON{}

// Registry resolves a codec identifier (as carried in metadata.codec) to a
// Codec implementation, falling back to Default when empty.
type Registry struct {
	codecs map[string]Codec
}

// NewRegistry returns a Registry pre-populated with the JSON codec.
func NewRegistry() *Registry {
	return &Registry{codecs: map[string]Codec{JSONCodecName: JSON{}}}
}

// Register adds or replaces a codec under the given identifier.
func (r *Registry) Register(c Codec) {
	r.codecs[c.Name()] = c
}

// Resolve returns the codec for the given identifier, or Default if id is
// empty, or false if id is non-empty but unknown.
func (r *Registry) Resolve(id string) (Codec, bool) {
	if id == "" {
		return Default, true
	}
	c, ok := r.codecs[id]
	return c, ok
}
