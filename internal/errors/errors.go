// Package errors defines the fault taxonomy shared by the whole dispatch
// pipeline. Every failure a request can hit is represented as a BridgeError
// with a Kind; the fault translator switches on the Kind exhaustively.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure.
type Kind int

const (
	// KindConfiguration marks incomplete or unusable configuration
	// discovered at request time (OAuth2/WS-Security/mTLS settings,
	// missing domain path, unresolvable path placeholder).
	KindConfiguration Kind = iota
	// KindProtocol marks a malformed or rejected inbound SOAP request.
	KindProtocol
	// KindUnsupportedOperation marks an operation name with no mapping.
	KindUnsupportedOperation
	// KindBackendInvocation marks a failed backend call: a non-2xx HTTP
	// response, or a transport failure (StatusCode 0).
	KindBackendInvocation
	// KindCircuitOpen marks a call rejected by an open circuit breaker.
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindProtocol:
		return "protocol"
	case KindUnsupportedOperation:
		return "unsupported_operation"
	case KindBackendInvocation:
		return "backend_invocation"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// BridgeError is the error type produced by every pipeline stage. For
// backend invocation failures it carries the backend's status, payload, and
// content type unchanged so the fault translator can forward them.
type BridgeError struct {
	Kind        Kind
	Message     string
	StatusCode  int
	Body        string
	ContentType string
	underlying  error
}

func (e *BridgeError) Error() string {
	if e.underlying != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.underlying)
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error {
	return e.underlying
}

// Payload returns the body and content type a fault should carry: the
// backend payload when one was captured, otherwise the error message as
// plain text.
func (e *BridgeError) Payload() (body, contentType string) {
	if e.Body != "" || e.StatusCode > 0 {
		ct := e.ContentType
		if ct == "" {
			ct = "text/plain"
		}
		return e.Body, ct
	}
	return e.Error(), "text/plain"
}

// Configurationf builds a configuration error.
func Configurationf(format string, args ...any) *BridgeError {
	return &BridgeError{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

// Protocolf builds a protocol violation.
func Protocolf(format string, args ...any) *BridgeError {
	return &BridgeError{Kind: KindProtocol, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedOperation builds the fault for an unmapped operation name.
func UnsupportedOperation(service, operation string) *BridgeError {
	return &BridgeError{
		Kind:    KindUnsupportedOperation,
		Message: fmt.Sprintf("unsupported SOAP operation for service %s: %s", service, operation),
	}
}

// Backend builds the fault for a non-2xx backend response, preserving the
// payload verbatim.
func Backend(status int, body, contentType string) *BridgeError {
	return &BridgeError{
		Kind:        KindBackendInvocation,
		Message:     fmt.Sprintf("backend REST invocation failed (status=%d)", status),
		StatusCode:  status,
		Body:        body,
		ContentType: contentType,
	}
}

// Transport builds the fault for a failed backend call that never produced
// an HTTP response (timeout, DNS, connection refused). StatusCode is 0.
func Transport(err error) *BridgeError {
	return &BridgeError{
		Kind:       KindBackendInvocation,
		Message:    fmt.Sprintf("backend REST invocation error: %v", err),
		underlying: err,
	}
}

// CircuitOpen builds the fault for a call rejected by an open breaker.
func CircuitOpen(routeKey string) *BridgeError {
	return &BridgeError{
		Kind:    KindCircuitOpen,
		Message: "circuit breaker open for " + routeKey,
	}
}

// Wrap attaches an underlying cause to a BridgeError.
func (e *BridgeError) Wrap(err error) *BridgeError {
	e.underlying = err
	return e
}

// AsBridgeError extracts a BridgeError from an error chain.
func AsBridgeError(err error) (*BridgeError, bool) {
	var be *BridgeError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
