package broadcast

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/maxibitcat/aisignals/internal/chain"
	"github.com/maxibitcat/aisignals/internal/rpc"
)

// fakeClock advances its notion of now by d on every After call and fires
// immediately, so wait loops run at test speed while deadline math still
// moves forward.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	fired := c.now
	c.mu.Unlock()
	ch := make(chan time.Time, 1)
	ch <- fired
	return ch
}

func (c *fakeClock) NewTicker(d time.Duration) Ticker { return &fakeTicker{} }

type fakeTicker struct{ ch chan time.Time }

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()                  {}

type fakeBackend struct {
	mu         sync.Mutex
	sendErrs   []error
	sendCalls  int
	status     chain.TxStatus
	statusErr  error
	receipts   []receiptStep
	receiptIdx int
}

type receiptStep struct {
	receipt *chain.Receipt
	err     error
}

func (f *fakeBackend) SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.sendCalls
	f.sendCalls++
	if idx < len(f.sendErrs) && f.sendErrs[idx] != nil {
		return common.Hash{}, f.sendErrs[idx]
	}
	return common.HexToHash("0xabc123"), nil
}

func (f *fakeBackend) TransactionStatus(ctx context.Context, hash common.Hash) (chain.TxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status, f.statusErr
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptIdx >= len(f.receipts) {
		return nil, chain.ErrNotFound
	}
	step := f.receipts[f.receiptIdx]
	f.receiptIdx++
	return step.receipt, step.err
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func signedTx() *types.Transaction {
	to := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	return types.NewTx(&types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(1_000_000_000),
		Gas:      21_000,
		To:       &to,
		Value:    big.NewInt(0),
	})
}

func newTestTracker(backend Backend, cfg Config) *Tracker {
	return NewTrackerWithClock(backend, testLogger(), cfg, newFakeClock())
}

func TestSubmitNoWaitReturnsUnconfirmed(t *testing.T) {
	tracker := newTestTracker(&fakeBackend{}, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.Outcome != OutcomeBroadcastUnconfirmed {
		t.Fatalf("expected broadcast_unconfirmed, got %s", result.Outcome)
	}
	if result.Hash == (common.Hash{}) {
		t.Fatalf("expected a hash")
	}
}

func TestSubmitPresenceFoundIsPending(t *testing.T) {
	backend := &fakeBackend{status: chain.TxStatus{Found: true}}
	tracker := newTestTracker(backend, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{
		PollAttempts: 3,
		PollInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.Outcome != OutcomeBroadcastPending {
		t.Fatalf("expected broadcast_pending, got %s", result.Outcome)
	}
}

func TestSubmitNeverSeenIsUnconfirmedError(t *testing.T) {
	backend := &fakeBackend{status: chain.TxStatus{Found: false}}
	tracker := newTestTracker(backend, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{
		PollAttempts: 2,
		PollInterval: time.Second,
	})
	if !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("expected ErrUnconfirmed, got %v", err)
	}
	if result == nil || result.Outcome != OutcomeBroadcastUnconfirmed {
		t.Fatalf("expected broadcast_unconfirmed result alongside the error, got %+v", result)
	}
}

func TestSubmitMinedSuccess(t *testing.T) {
	backend := &fakeBackend{
		status: chain.TxStatus{Found: true},
		receipts: []receiptStep{
			{err: chain.ErrNotFound},
			{receipt: &chain.Receipt{Status: types.ReceiptStatusSuccessful, GasUsed: 50_000}},
		},
	}
	tracker := newTestTracker(backend, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{
		ReceiptTimeout:  time.Minute,
		ReceiptInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.Outcome != OutcomeMinedSuccess {
		t.Fatalf("expected mined_success, got %s", result.Outcome)
	}
	if result.Receipt == nil || result.Receipt.GasUsed != 50_000 {
		t.Fatalf("expected receipt to be attached, got %+v", result.Receipt)
	}
}

func TestSubmitMinedRevert(t *testing.T) {
	backend := &fakeBackend{
		receipts: []receiptStep{
			{receipt: &chain.Receipt{Status: types.ReceiptStatusFailed}},
		},
	}
	tracker := newTestTracker(backend, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{
		ReceiptTimeout:  time.Minute,
		ReceiptInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.Outcome != OutcomeMinedRevert {
		t.Fatalf("expected mined_revert, got %s", result.Outcome)
	}
}

func TestSubmitSeenButNoReceiptTimesOut(t *testing.T) {
	backend := &fakeBackend{status: chain.TxStatus{Found: true}}
	tracker := newTestTracker(backend, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{
		ReceiptTimeout:  10 * time.Second,
		ReceiptInterval: time.Second,
	})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.Outcome != OutcomeTimedOut {
		t.Fatalf("expected timed_out, got %s", result.Outcome)
	}
}

func TestSubmitNeverQueryableAfterReceiptWait(t *testing.T) {
	backend := &fakeBackend{status: chain.TxStatus{Found: false}}
	tracker := newTestTracker(backend, Config{})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{
		ReceiptTimeout:  10 * time.Second,
		ReceiptInterval: time.Second,
	})
	if !errors.Is(err, ErrUnconfirmed) {
		t.Fatalf("expected ErrUnconfirmed, got %v", err)
	}
	if result == nil || result.Outcome != OutcomeBroadcastUnconfirmed {
		t.Fatalf("expected broadcast_unconfirmed, got %+v", result)
	}
}

func TestSubmitRetriesTransportFailures(t *testing.T) {
	transportErr := &rpc.TransportError{Kind: rpc.KindConnectionFailed, Method: "eth_sendRawTransaction", Err: errors.New("dial refused")}
	backend := &fakeBackend{sendErrs: []error{transportErr, nil}}
	tracker := newTestTracker(backend, Config{SendRetries: 2, SendRetryBackoff: time.Millisecond})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{})
	if err != nil {
		t.Fatalf("Submit error: %v", err)
	}
	if result.Outcome != OutcomeBroadcastUnconfirmed {
		t.Fatalf("unexpected outcome %s", result.Outcome)
	}
	if backend.sendCalls != 2 {
		t.Fatalf("expected 2 send attempts, got %d", backend.sendCalls)
	}
}

func TestSubmitDoesNotRetryFeeRejections(t *testing.T) {
	underpriced := &rpc.RPCError{Code: -32000, Message: "transaction underpriced", Method: "eth_sendRawTransaction"}
	backend := &fakeBackend{sendErrs: []error{underpriced, nil}}
	tracker := newTestTracker(backend, Config{SendRetries: 3, SendRetryBackoff: time.Millisecond})
	result, err := tracker.Submit(context.Background(), signedTx(), WaitPolicy{})
	if result != nil {
		t.Fatalf("expected nil result, got %+v", result)
	}
	if !rpc.IsFeeRejected(err) {
		t.Fatalf("expected fee rejection to surface, got %v", err)
	}
	if backend.sendCalls != 1 {
		t.Fatalf("fee rejection must not be retried, got %d sends", backend.sendCalls)
	}
}

func TestSubmitNilTransaction(t *testing.T) {
	tracker := newTestTracker(&fakeBackend{}, Config{})
	if _, err := tracker.Submit(context.Background(), nil, WaitPolicy{}); err == nil {
		t.Fatalf("expected error for nil transaction")
	}
}
