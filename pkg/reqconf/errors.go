package reqconf

import (
	"errors"
	"fmt"
)

// Static errors for err113 compliance.
var (
	ErrInvalidState        = errors.New("request configuration already executed")
	ErrCallAborted         = errors.New("call aborted")
	ErrTransport           = errors.New("transport error")
	ErrEndpointKeyRequired = errors.New("endpoint key is required")
	ErrBaseURLRequired     = errors.New("base URL is required")
	ErrTransportRequired   = errors.New("transport is required")
	ErrMethodRequired      = errors.New("HTTP method is required")
	ErrEndpointNotDefined  = errors.New("endpoint not defined")
	ErrEmptyInterceptor    = errors.New("interceptor has neither PreCall nor PostCall")
	ErrInvalidHeaderName   = errors.New("invalid header name")
	ErrInvalidQueryKey     = errors.New("invalid query parameter key")
	ErrCircuitBreakerOpen  = errors.New("circuit breaker is open")
	ErrNilResponse         = errors.New("transport returned no response")
	ErrSourceNotFound      = errors.New("no data source configured for endpoint")
	ErrNilBuilder          = errors.New("request builder is nil")
)

// Phase identifies a pipeline phase.
type Phase string

const (
	// PhasePreCall is the admission phase that runs before dispatch.
	PhasePreCall Phase = "pre-call"

	// PhasePostCall is the observation/transformation phase after dispatch.
	PhasePostCall Phase = "post-call"
)

// Scope identifies where an interceptor was registered.
type Scope string

const (
	// ScopeLocal interceptors were attached to one RequestBuilder.
	ScopeLocal Scope = "local"

	// ScopeGlobal interceptors come from the Registry.
	ScopeGlobal Scope = "global"
)

// InvalidStateError is returned when a builder is mutated or executed after Execute ran.
type InvalidStateError struct {
	Op string
}

// Error implements the error interface.
func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, ErrInvalidState.Error())
}

// Is reports whether target is ErrInvalidState.
func (e *InvalidStateError) Is(target error) bool {
	return target == ErrInvalidState
}

// CallAbortedError is returned by Execute when a pre-call interceptor vetoed the call.
type CallAbortedError struct {
	Reason string
}

// Error implements the error interface.
func (e *CallAbortedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrCallAborted.Error(), e.Reason)
}

// Is reports whether target is ErrCallAborted.
func (e *CallAbortedError) Is(target error) bool {
	return target == ErrCallAborted
}

// Abort returns the error a PreCallFunc returns to veto the call.
func Abort(reason string) error {
	return &CallAbortedError{Reason: reason}
}

// TransportError is a failure reported by the transport: network errors,
// timeouts, and non-2xx responses.
type TransportError struct {
	Reason     string
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status: %d)", ErrTransport.Error(), e.Reason, e.StatusCode)
	}

	return fmt.Sprintf("%s: %s", ErrTransport.Error(), e.Reason)
}

// Unwrap returns the underlying cause, if any.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// HookError wraps an error raised by an interceptor itself.
type HookError struct {
	Phase Phase
	Scope Scope
	Index int
	Err   error
}

// Error implements the error interface.
func (e *HookError) Error() string {
	return fmt.Sprintf("%s interceptor %d (%s) failed: %v", e.Phase, e.Index, e.Scope, e.Err)
}

// Unwrap returns the raised error.
func (e *HookError) Unwrap() error {
	return e.Err
}

// IsInvalidState checks if the error is an invalid state error.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsAborted checks if the error is a call aborted by a pre-call interceptor.
func IsAborted(err error) bool {
	abortErr := &CallAbortedError{}

	return errors.As(err, &abortErr)
}

// AbortReason returns the reason carried by an abort, or "" if err is not one.
func AbortReason(err error) string {
	abortErr := &CallAbortedError{}
	if errors.As(err, &abortErr) {
		return abortErr.Reason
	}

	return ""
}

// IsTransportError checks if the error originated in the transport.
func IsTransportError(err error) bool {
	return errors.Is(err, ErrTransport)
}

// asTransportError normalizes transport failures. An error that already
// carries a TransportError is returned unchanged.
func asTransportError(err error) error {
	transportErr := &TransportError{}
	if errors.As(err, &transportErr) {
		return err
	}

	return &TransportError{Reason: err.Error(), Err: err}
}
