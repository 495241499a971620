package schema

import (
	"encoding/json"
	"testing"

	"github.com/lightbus-go/lightbus/internal/errs"
	"github.com/lightbus-go/lightbus/internal/message"
)

func mustEntry() message.SchemaEntry {
	return message.SchemaEntry{
		ApiName: "auth",
		Version: 1,
		Methods: map[string]message.MethodSchema{
			"login": {
				Parameters: json.RawMessage(`{
					"type": "object",
					"required": ["user", "password"],
					"properties": {
						"user": {"type": "string"},
						"password": {"type": "string"}
					}
				}`),
				Response: json.RawMessage(`{"type": "boolean"}`),
			},
		},
		Events: map[string]json.RawMessage{
			"page_view": json.RawMessage(`{
				"type": "object",
				"required": ["id"],
				"properties": {"id": {"type": "integer"}}
			}`),
		},
	}
}

func TestCompileAndValidateParamsSuccess(t *testing.T) {
	compiled, err := Compile(mustEntry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	err = compiled.ValidateParams("login", map[string]interface{}{"user": "a", "password": "b"})
	if err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
}

func TestValidateParamsFailure(t *testing.T) {
	compiled, err := Compile(mustEntry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	err = compiled.ValidateParams("login", map[string]interface{}{"user": "a"})
	if err == nil {
		t.Fatalf("expected validation error for missing password")
	}
	if !errs.Is(err, errs.KindValidationFailed) {
		t.Fatalf("expected KindValidationFailed, got %v", err)
	}
}

func TestValidateEventTypeMismatch(t *testing.T) {
	compiled, err := Compile(mustEntry())
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	err = compiled.ValidateEvent("page_view", map[string]interface{}{"id": "not-a-number"})
	if err == nil {
		t.Fatalf("expected validation error for id type mismatch")
	}
}

func TestValidateUnknownMethod(t *testing.T) {
	compiled, _ := Compile(mustEntry())
	err := compiled.ValidateParams("logout", nil)
	if !errs.Is(err, errs.KindNoSuchMember) {
		t.Fatalf("expected KindNoSuchMember, got %v", err)
	}
}

func TestCacheGetPut(t *testing.T) {
	cache := NewCache()
	if _, ok := cache.Get("auth"); ok {
		t.Fatalf("expected empty cache miss")
	}
	compiled, _ := Compile(mustEntry())
	cache.Put("auth", compiled)
	got, ok := cache.Get("auth")
	if !ok || got != compiled {
		t.Fatalf("expected cache hit returning same pointer")
	}
}

func TestCompatibleAdditiveOK(t *testing.T) {
	existing := mustEntry()
	candidate := mustEntry()
	candidate.Methods["logout"] = message.MethodSchema{Parameters: json.RawMessage(`{}`)}
	if err := Compatible(existing, candidate); err != nil {
		t.Fatalf("expected additive change to be compatible: %v", err)
	}
}

func TestCompatibleRemovalConflict(t *testing.T) {
	existing := mustEntry()
	candidate := message.SchemaEntry{ApiName: "auth", Methods: map[string]message.MethodSchema{}, Events: map[string]json.RawMessage{}}
	err := Compatible(existing, candidate)
	if !errs.Is(err, errs.KindSchemaConflict) {
		t.Fatalf("expected KindSchemaConflict, got %v", err)
	}
}
