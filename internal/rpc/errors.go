package rpc

import (
	"fmt"
	"strings"
)

// TransportKind classifies failures that happened before a JSON-RPC error
// object could be read from the endpoint.
type TransportKind int

const (
	KindConnectionFailed TransportKind = iota
	KindTimeout
	KindMalformedResponse
)

func (k TransportKind) String() string {
	switch k {
	case KindConnectionFailed:
		return "connection_failed"
	case KindTimeout:
		return "timeout"
	case KindMalformedResponse:
		return "malformed_response"
	}
	return fmt.Sprintf("transport_kind(%d)", int(k))
}

// TransportError wraps a transport-level failure with enough context to
// diagnose without re-running with verbose tracing.
type TransportError struct {
	Kind   TransportKind
	Method string
	Params string
	URL    string
	Err    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("rpc transport %s: %s(%s) via %s: %v", e.Kind, e.Method, e.Params, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ErrorClass is the machine-checkable classification upstream fallback
// ladders branch on. It is populated once, here, so no other package needs
// to sniff error strings.
type ErrorClass int

const (
	ClassOther ErrorClass = iota
	// ClassRequestShape covers "the endpoint did not like the shape of the
	// request" rejections that trigger fallback ladders.
	ClassRequestShape
	// ClassFeeRejected covers underpriced / fee-too-low send rejections,
	// which are terminal for a submission.
	ClassFeeRejected
)

// RPCError is a JSON-RPC error object returned by the endpoint, preserving
// the original code.
type RPCError struct {
	Code    int
	Message string
	Method  string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error from %s: code %d: %s", e.Method, e.Code, e.Message)
}

// Class maps the endpoint's error onto the enumerated taxonomy. Endpoints
// are wildly inconsistent about codes, so the fee classification also has to
// look at the message text; that heuristic lives only here.
func (e *RPCError) Class() ErrorClass {
	switch e.Code {
	case -32700, -32600, -32601, -32602:
		return ClassRequestShape
	}
	msg := strings.ToLower(e.Message)
	for _, marker := range []string{"underpriced", "fee too low", "gas price below", "less than block base fee", "insufficient gas price"} {
		if strings.Contains(msg, marker) {
			return ClassFeeRejected
		}
	}
	return ClassOther
}

// IsRequestShape reports whether err is an endpoint rejection that a
// fallback ladder may absorb.
func IsRequestShape(err error) bool {
	rpcErr, ok := err.(*RPCError)
	return ok && rpcErr.Class() == ClassRequestShape
}

// IsFeeRejected reports whether err is a terminal underpriced-class
// rejection.
func IsFeeRejected(err error) bool {
	rpcErr, ok := err.(*RPCError)
	return ok && rpcErr.Class() == ClassFeeRejected
}
