package codec

import "testing"

type payload struct {
	Name string `json:"name"`
}

func TestJSONRoundTrip(t *testing.T) {
	c := JSON{}
	data, err := c.Marshal(payload{Name: "auth.login"})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out payload
	if err := c.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out.Name != "auth.login" {
		t.Fatalf("got %q", out.Name)
	}
}

func TestRegistryResolveDefault(t *testing.T) {
	r := NewRegistry()
	c, ok := r.Resolve("")
	if !ok || c.Name() != JSONCodecName {
		t.Fatalf("expected default json codec, got %v %v", c, ok)
	}
}

func TestRegistryResolveUnknown(t *testing.T) {
	r := NewRegistry()
	_, ok := r.Resolve("msgpack")
	if ok {
		t.Fatalf("expected unknown codec to fail resolution")
	}
}

type upperCodec struct{ JSON }

func (upperCodec) Name() string { return "upper" }

func TestRegistryRegisterCustomCodec(t *testing.T) {
	r := NewRegistry()
	r.Register(upperCodec{})
	c, ok := r.Resolve("upper")
	if !ok || c.Name() != "upper" {
		t.Fatalf("expected custom codec to resolve")
	}
}
