package lightbus

import (
	"time"

	"github.com/lightbus-go/lightbus/internal/dispatch"
)

// ValidateScope controls which direction(s) of schema validation a call or
// fire performs, per the design's §4.2 options table.
type ValidateScope string

const (
	ValidateOff      ValidateScope = "off"
	ValidateIncoming ValidateScope = "incoming"
	ValidateOutgoing ValidateScope = "outgoing"
	ValidateBoth     ValidateScope = "both"
)

func (s ValidateScope) checksOutgoing() bool {
	return s == ValidateOutgoing || s == ValidateBoth
}

// OnErrorPolicy controls what a listener loop does when a handler (or
// incoming validation) fails. Re-exported from the dispatch package so
// callers never need to import internal/dispatch directly.
type OnErrorPolicy = dispatch.OnErrorPolicy

const (
	OnErrorRaise   = dispatch.OnErrorRaise
	OnErrorSwallow = dispatch.OnErrorSwallow
	OnErrorRequeue = dispatch.OnErrorRequeue
)

// CallOptions configures one Call invocation.
type CallOptions struct {
	Timeout  time.Duration
	Validate ValidateScope
}

// CallOption mutates CallOptions.
type CallOption func(*CallOptions)

// WithTimeout sets the deadline a Call waits for its result before raising
// RpcTimeout.
func WithTimeout(d time.Duration) CallOption {
	return func(o *CallOptions) { o.Timeout = d }
}

// WithCallValidate overrides the API's configured validation scope for one
// call.
func WithCallValidate(scope ValidateScope) CallOption {
	return func(o *CallOptions) { o.Validate = scope }
}

func defaultCallOptions() CallOptions {
	return CallOptions{Timeout: 5 * time.Second, Validate: ValidateBoth}
}

// FireOptions configures one Fire invocation.
type FireOptions struct {
	Validate ValidateScope
}

// FireOption mutates FireOptions.
type FireOption func(*FireOptions)

// WithFireValidate overrides the API's configured validation scope for one
// fire.
func WithFireValidate(scope ValidateScope) FireOption {
	return func(o *FireOptions) { o.Validate = scope }
}

func defaultFireOptions() FireOptions {
	return FireOptions{Validate: ValidateBoth}
}

// ListenOptions configures one Listen registration.
type ListenOptions struct {
	OnError OnErrorPolicy
	Since   string
}

// ListenOption mutates ListenOptions.
type ListenOption func(*ListenOptions)

// WithOnError sets the policy applied when a listener's handler (or
// incoming validation) fails.
func WithOnError(policy OnErrorPolicy) ListenOption {
	return func(o *ListenOptions) { o.OnError = policy }
}

// WithSince sets the replay position a listener joins its consumer groups
// at: "new" (default, only entries after group creation), "tail", or an
// explicit broker position.
func WithSince(since string) ListenOption {
	return func(o *ListenOptions) { o.Since = since }
}

func defaultListenOptions() ListenOptions {
	return ListenOptions{OnError: OnErrorRaise, Since: "new"}
}
