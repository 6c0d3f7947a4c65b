package chain

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/maxibitcat/aisignals/internal/rpc"
)

type stubError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type stubHandler func(params []json.RawMessage) (interface{}, *stubError)

// stub is an in-process JSON-RPC endpoint with per-method scripted answers
// and call counting.
type stub struct {
	t        *testing.T
	server   *httptest.Server
	mu       sync.Mutex
	calls    map[string]int
	handlers map[string]stubHandler
}

func newStub(t *testing.T, handlers map[string]stubHandler) *stub {
	t.Helper()
	s := &stub{t: t, calls: make(map[string]int), handlers: handlers}
	s.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     uint64            `json:"id"`
			Method string            `json:"method"`
			Params []json.RawMessage `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("stub: decode request: %v", err)
			return
		}
		s.mu.Lock()
		s.calls[req.Method]++
		handler := s.handlers[req.Method]
		s.mu.Unlock()
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if handler == nil {
			resp["error"] = stubError{Code: -32601, Message: "method not found"}
		} else if result, rpcErr := handler(req.Params); rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(s.server.Close)
	return s
}

func (s *stub) count(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

func (s *stub) client(t *testing.T, cfg SessionConfig) *Client {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport, err := rpc.NewClient(rpc.Config{URL: s.server.URL}, logger)
	if err != nil {
		t.Fatalf("NewClient error: %v", err)
	}
	return NewClient(transport, cfg)
}

func ok(result interface{}) stubHandler {
	return func([]json.RawMessage) (interface{}, *stubError) { return result, nil }
}

func fail(code int, msg string) stubHandler {
	return func([]json.RawMessage) (interface{}, *stubError) { return nil, &stubError{Code: code, Message: msg} }
}

func TestResolveChainIDPrefersConfig(t *testing.T) {
	s := newStub(t, map[string]stubHandler{"eth_chainId": ok("0x1")})
	client := s.client(t, SessionConfig{ChainID: 137})
	id, err := client.ResolveChainID(context.Background())
	if err != nil {
		t.Fatalf("ResolveChainID error: %v", err)
	}
	if id.Cmp(big.NewInt(137)) != 0 {
		t.Fatalf("expected configured chain id 137, got %s", id)
	}
	if s.count("eth_chainId") != 0 {
		t.Fatalf("configured chain id must not be queried")
	}
}

func TestResolveChainIDQueriesOnce(t *testing.T) {
	s := newStub(t, map[string]stubHandler{"eth_chainId": ok("0x89")})
	client := s.client(t, SessionConfig{})
	for i := 0; i < 3; i++ {
		id, err := client.ResolveChainID(context.Background())
		if err != nil {
			t.Fatalf("ResolveChainID error: %v", err)
		}
		if id.Cmp(big.NewInt(137)) != 0 {
			t.Fatalf("expected 137, got %s", id)
		}
	}
	if s.count("eth_chainId") != 1 {
		t.Fatalf("chain id must be cached after the first query, got %d queries", s.count("eth_chainId"))
	}
}

func TestResolveChainIDRejectsZero(t *testing.T) {
	s := newStub(t, map[string]stubHandler{"eth_chainId": ok("0x0")})
	client := s.client(t, SessionConfig{})
	if _, err := client.ResolveChainID(context.Background()); err == nil {
		t.Fatalf("expected error for zero chain id")
	}
}

func TestResolveFeeModeProbeSuccess(t *testing.T) {
	s := newStub(t, map[string]stubHandler{
		"eth_feeHistory": ok(map[string]interface{}{"baseFeePerGas": []string{"0x3b9aca00", "0x3b9aca01"}}),
	})
	client := s.client(t, SessionConfig{})
	mode, err := client.ResolveFeeMode(context.Background())
	if err != nil {
		t.Fatalf("ResolveFeeMode error: %v", err)
	}
	if mode != FeeModeMarket {
		t.Fatalf("expected fee-market, got %s", mode)
	}
}

func TestResolveFeeModeProbeFailureMeansLegacy(t *testing.T) {
	s := newStub(t, map[string]stubHandler{
		"eth_feeHistory": fail(-32601, "the method eth_feeHistory does not exist"),
	})
	client := s.client(t, SessionConfig{})
	mode, err := client.ResolveFeeMode(context.Background())
	if err != nil {
		t.Fatalf("ResolveFeeMode error: %v", err)
	}
	if mode != FeeModeLegacy {
		t.Fatalf("expected legacy, got %s", mode)
	}
	// Cached: the probe runs once even after a failure.
	if _, err := client.ResolveFeeMode(context.Background()); err != nil {
		t.Fatalf("ResolveFeeMode error: %v", err)
	}
	if s.count("eth_feeHistory") != 1 {
		t.Fatalf("probe must run once, got %d", s.count("eth_feeHistory"))
	}
}

func TestResolveFeeModeHonorsOverride(t *testing.T) {
	s := newStub(t, map[string]stubHandler{})
	client := s.client(t, SessionConfig{FeeModeOverride: FeeModeLegacy})
	mode, err := client.ResolveFeeMode(context.Background())
	if err != nil {
		t.Fatalf("ResolveFeeMode error: %v", err)
	}
	if mode != FeeModeLegacy {
		t.Fatalf("expected legacy override, got %s", mode)
	}
	if s.count("eth_feeHistory") != 0 {
		t.Fatalf("override must skip the probe")
	}
}

func TestLatestBaseFeeParsesLastValue(t *testing.T) {
	s := newStub(t, map[string]stubHandler{
		"eth_feeHistory": ok(map[string]interface{}{"baseFeePerGas": []string{"0x1", "0x2", "0x5"}}),
	})
	client := s.client(t, SessionConfig{})
	fee, err := client.LatestBaseFee(context.Background())
	if err != nil {
		t.Fatalf("LatestBaseFee error: %v", err)
	}
	if fee.Cmp(big.NewInt(5)) != 0 {
		t.Fatalf("expected last base fee 5, got %s", fee)
	}
}

func TestTransactionStatus(t *testing.T) {
	hash := common.HexToHash("0xabc")
	mined := map[string]interface{}{"hash": hash.Hex(), "blockNumber": "0x10"}
	pending := map[string]interface{}{"hash": hash.Hex(), "blockNumber": nil}

	cases := []struct {
		name   string
		result interface{}
		want   TxStatus
	}{
		{"unknown", nil, TxStatus{}},
		{"pending", pending, TxStatus{Found: true}},
		{"mined", mined, TxStatus{Found: true, Mined: true}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			s := newStub(t, map[string]stubHandler{"eth_getTransactionByHash": ok(tc.result)})
			status, err := s.client(t, SessionConfig{}).TransactionStatus(context.Background(), hash)
			if err != nil {
				t.Fatalf("TransactionStatus error: %v", err)
			}
			if status != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, status)
			}
		})
	}
}

func TestTransactionReceiptNotFound(t *testing.T) {
	s := newStub(t, map[string]stubHandler{"eth_getTransactionReceipt": ok(nil)})
	_, err := s.client(t, SessionConfig{}).TransactionReceipt(context.Background(), common.HexToHash("0xabc"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestTransactionCountOmitsNilBlockArg(t *testing.T) {
	var lens []int
	handler := func(params []json.RawMessage) (interface{}, *stubError) {
		lens = append(lens, len(params))
		return "0x2a", nil
	}
	s := newStub(t, map[string]stubHandler{"eth_getTransactionCount": handler})
	client := s.client(t, SessionConfig{})
	account := common.HexToAddress("0x1111111111111111111111111111111111111111")

	if _, err := client.TransactionCount(context.Background(), account, "pending"); err != nil {
		t.Fatalf("TransactionCount error: %v", err)
	}
	if _, err := client.TransactionCount(context.Background(), account, nil); err != nil {
		t.Fatalf("TransactionCount error: %v", err)
	}
	if len(lens) != 2 || lens[0] != 2 || lens[1] != 1 {
		t.Fatalf("expected param lengths [2 1], got %v", lens)
	}
}
