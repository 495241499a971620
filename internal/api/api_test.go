package api

import (
	"context"
	"testing"

	"github.com/lightbus-go/lightbus/internal/errs"
)

func loginDef() Definition {
	return Definition{
		Name: "auth",
		Methods: []Method{
			{Name: "login", Handler: func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
				return true, nil
			}},
		},
		Events: []Event{{Name: "login_attempted"}},
	}
}

func TestRegisterAndGet(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(loginDef()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	def, ok := r.Get("auth")
	if !ok || def.Name != "auth" {
		t.Fatalf("expected to find auth api")
	}
}

func TestMethodLookupNoSuchApi(t *testing.T) {
	r := NewRegistry()
	_, err := r.Method("missing", "login")
	if !errs.Is(err, errs.KindNoSuchApi) {
		t.Fatalf("expected KindNoSuchApi, got %v", err)
	}
}

func TestMethodLookupNoSuchMember(t *testing.T) {
	r := NewRegistry()
	r.Register(loginDef())
	_, err := r.Method("auth", "logout")
	if !errs.Is(err, errs.KindNoSuchMember) {
		t.Fatalf("expected KindNoSuchMember, got %v", err)
	}
}

func TestRegisterRejectsNewApiAfterStart(t *testing.T) {
	r := NewRegistry()
	r.MarkStarted()
	err := r.Register(loginDef())
	if !errs.Is(err, errs.KindLifecycleError) {
		t.Fatalf("expected KindLifecycleError, got %v", err)
	}
}

func TestRegisterAdditiveAfterStartAllowed(t *testing.T) {
	r := NewRegistry()
	r.Register(loginDef())
	r.MarkStarted()

	def := loginDef()
	def.Methods = append(def.Methods, Method{Name: "logout", Handler: func(ctx context.Context, kwargs map[string]interface{}) (interface{}, error) {
		return nil, nil
	}})
	if err := r.Register(def); err != nil {
		t.Fatalf("expected additive re-registration to succeed, got %v", err)
	}
	if r.Version("auth") != 2 {
		t.Fatalf("expected version bump, got %d", r.Version("auth"))
	}
}

func TestRegisterRemovalConflict(t *testing.T) {
	r := NewRegistry()
	r.Register(loginDef())

	def := Definition{Name: "auth", Methods: nil, Events: nil}
	err := r.Register(def)
	if !errs.Is(err, errs.KindSchemaConflict) {
		t.Fatalf("expected KindSchemaConflict, got %v", err)
	}
}
