package message

import "testing"

func TestRpcMessageCanonicalAddress(t *testing.T) {
	m := &RpcMessage{ApiName: "auth", ProcedureName: "login"}
	if got, want := m.CanonicalAddress(), "auth.login"; got != want {
		t.Fatalf("CanonicalAddress() = %q, want %q", got, want)
	}
}

func TestEventMessageCanonicalAddress(t *testing.T) {
	m := &EventMessage{ApiName: "store", EventName: "page_view"}
	if got, want := m.CanonicalAddress(), "store.page_view"; got != want {
		t.Fatalf("CanonicalAddress() = %q, want %q", got, want)
	}
}

func TestListenerRegistrationKey(t *testing.T) {
	a := ListenerRegistration{ListenerName: "audit", ApiName: "store", EventName: "page_view"}
	b := ListenerRegistration{ListenerName: "cache", ApiName: "store", EventName: "page_view"}
	if a.Key() == b.Key() {
		t.Fatalf("distinct listener names must produce distinct keys")
	}
}

func TestNewIDIsUnique(t *testing.T) {
	if NewID() == NewID() {
		t.Fatalf("expected distinct IDs across calls")
	}
}

func TestResultMessageStringIncludesErrorKind(t *testing.T) {
	rm := &ResultMessage{ID: "r1", RpcMessageID: "c1", Error: &RemoteErrorInfo{Kind: RemoteErrorHandler, Message: "boom"}}
	if got := rm.String(); got == "" {
		t.Fatalf("expected non-empty string")
	}
}
