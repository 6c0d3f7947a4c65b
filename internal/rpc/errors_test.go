package rpc

import (
	"errors"
	"testing"
)

func TestRPCErrorClass(t *testing.T) {
	cases := []struct {
		name string
		err  RPCError
		want ErrorClass
	}{
		{"parse error", RPCError{Code: -32700, Message: "parse error"}, ClassRequestShape},
		{"invalid request", RPCError{Code: -32600, Message: "invalid request"}, ClassRequestShape},
		{"method not found", RPCError{Code: -32601, Message: "method not found"}, ClassRequestShape},
		{"invalid params", RPCError{Code: -32602, Message: "too many arguments"}, ClassRequestShape},
		{"underpriced", RPCError{Code: -32000, Message: "replacement transaction underpriced"}, ClassFeeRejected},
		{"fee too low", RPCError{Code: -32000, Message: "tx fee too low"}, ClassFeeRejected},
		{"below base fee", RPCError{Code: 3, Message: "max fee per gas less than block base fee"}, ClassFeeRejected},
		{"mixed case", RPCError{Code: -32000, Message: "Transaction Underpriced"}, ClassFeeRejected},
		{"insufficient funds", RPCError{Code: -32000, Message: "insufficient funds for gas * price + value"}, ClassOther},
		{"execution reverted", RPCError{Code: 3, Message: "execution reverted"}, ClassOther},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.err.Class(); got != tc.want {
				t.Fatalf("Class() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifiersIgnoreForeignErrors(t *testing.T) {
	plain := errors.New("transaction underpriced")
	if IsFeeRejected(plain) {
		t.Fatalf("plain errors must not classify as fee rejections")
	}
	if IsRequestShape(plain) {
		t.Fatalf("plain errors must not classify as request shape")
	}
	transport := &TransportError{Kind: KindTimeout, Method: "eth_chainId", Err: errors.New("deadline")}
	if IsRequestShape(transport) || IsFeeRejected(transport) {
		t.Fatalf("transport errors must not classify as endpoint rejections")
	}
}

func TestTransportErrorUnwrap(t *testing.T) {
	inner := errors.New("connection refused")
	err := &TransportError{Kind: KindConnectionFailed, Method: "eth_chainId", URL: "http://x", Err: inner}
	if !errors.Is(err, inner) {
		t.Fatalf("TransportError must unwrap to the underlying error")
	}
}
