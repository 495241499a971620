package errs

import (
	"errors"
	"testing"
)

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindTransportFailure, "publish failed", cause)

	if !Is(err, KindTransportFailure) {
		t.Fatalf("expected Is to report KindTransportFailure")
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected errors.Is to find wrapped cause")
	}
	kind, ok := KindOf(err)
	if !ok || kind != KindTransportFailure {
		t.Fatalf("KindOf = %v, %v", kind, ok)
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindRpcTimeout) {
		t.Fatalf("plain error should not match any Kind")
	}
}

func TestNewHasNoCause(t *testing.T) {
	err := New(KindNoSuchApi, "unknown api foo")
	if err.Unwrap() != nil {
		t.Fatalf("expected no wrapped cause")
	}
	if err.Error() == "" {
		t.Fatalf("expected non-empty error string")
	}
}
