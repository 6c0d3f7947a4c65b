// Package broadcast sends signed payloads and classifies what actually
// happened to them. Endpoints routinely return a hash for transactions they
// then silently drop, so "we got a hash" is never reported as success on
// its own.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/maxibitcat/aisignals/internal/chain"
	"github.com/maxibitcat/aisignals/internal/rpc"
	"github.com/maxibitcat/aisignals/internal/util"
)

// ErrUnconfirmed marks a broadcast whose hash never became queryable on the
// endpoint. The transaction may still exist elsewhere in the network; the
// caller decides whether to bump the fee and resubmit.
var ErrUnconfirmed = errors.New("broadcast accepted but transaction never became queryable")

// Outcome is the terminal classification of one submission.
type Outcome int

const (
	OutcomeSignedOnly Outcome = iota
	OutcomeBroadcastUnconfirmed
	OutcomeBroadcastPending
	OutcomeMinedSuccess
	OutcomeMinedRevert
	OutcomeTimedOut
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSignedOnly:
		return "signed_only"
	case OutcomeBroadcastUnconfirmed:
		return "broadcast_unconfirmed"
	case OutcomeBroadcastPending:
		return "broadcast_pending"
	case OutcomeMinedSuccess:
		return "mined_success"
	case OutcomeMinedRevert:
		return "mined_revert"
	case OutcomeTimedOut:
		return "timed_out"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// WaitPolicy says how long Submit keeps watching after a successful send.
// The zero value returns immediately after broadcast.
type WaitPolicy struct {
	// PollAttempts bounds the by-hash presence poll; zero skips it.
	PollAttempts int
	PollInterval time.Duration
	// ReceiptTimeout bounds the receipt wait; zero skips it.
	ReceiptTimeout  time.Duration
	ReceiptInterval time.Duration
	// ProgressInterval, when set, logs a status tick while waiting.
	ProgressInterval time.Duration
}

// Config controls the send itself.
type Config struct {
	// SendRetries re-attempts the raw send on transport failures only.
	// Endpoint rejections, underpriced ones included, are never retried.
	SendRetries      int
	SendRetryBackoff time.Duration
}

// Result is what the caller gets back alongside the outcome-specific error.
type Result struct {
	Hash    common.Hash
	Outcome Outcome
	Receipt *chain.Receipt
}

// Backend is the endpoint view the tracker operates on.
type Backend interface {
	SendRawTransaction(ctx context.Context, raw []byte) (common.Hash, error)
	TransactionStatus(ctx context.Context, hash common.Hash) (chain.TxStatus, error)
	TransactionReceipt(ctx context.Context, hash common.Hash) (*chain.Receipt, error)
}

// Tracker broadcasts signed transactions and watches for inclusion.
type Tracker struct {
	client Backend
	logger *slog.Logger
	clock  Clock
	cfg    Config
}

// NewTracker builds a tracker on the real clock.
func NewTracker(client Backend, logger *slog.Logger, cfg Config) *Tracker {
	return NewTrackerWithClock(client, logger, cfg, SystemClock())
}

// NewTrackerWithClock is NewTracker with an injected clock, for tests.
func NewTrackerWithClock(client Backend, logger *slog.Logger, cfg Config, clock Clock) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if clock == nil {
		clock = SystemClock()
	}
	if cfg.SendRetryBackoff <= 0 {
		cfg.SendRetryBackoff = 500 * time.Millisecond
	}
	return &Tracker{client: client, logger: logger, cfg: cfg, clock: clock}
}

// Submit broadcasts the signed transaction and classifies the result per
// the wait policy. An underpriced rejection is returned as-is: re-signing
// at a higher fee is a new logical submission with a fresh nonce, decided
// by the caller.
func (t *Tracker) Submit(ctx context.Context, signed *types.Transaction, policy WaitPolicy) (*Result, error) {
	if signed == nil {
		return nil, errors.New("signed transaction is nil")
	}
	raw, err := signed.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode signed transaction: %w", err)
	}

	var hash common.Hash
	err = util.RetryIf(ctx, t.cfg.SendRetries, t.cfg.SendRetryBackoff, isTransport, func() error {
		var sendErr error
		hash, sendErr = t.client.SendRawTransaction(ctx, raw)
		return sendErr
	})
	if err != nil {
		if rpc.IsFeeRejected(err) {
			t.logger.Warn("broadcast rejected as underpriced", "nonce", signed.Nonce(), "error", err)
		}
		return nil, err
	}
	t.logger.Info("transaction broadcast", "hash", hash.Hex(), "nonce", signed.Nonce())

	if policy.PollAttempts <= 0 && policy.ReceiptTimeout <= 0 {
		return &Result{Hash: hash, Outcome: OutcomeBroadcastUnconfirmed}, nil
	}

	stopProgress := t.startProgress(hash, policy.ProgressInterval)
	defer stopProgress()

	seen := false
	if policy.PollAttempts > 0 {
		seen, err = t.pollPresence(ctx, hash, policy)
		if err != nil {
			return nil, err
		}
	}

	if policy.ReceiptTimeout <= 0 {
		if seen {
			return &Result{Hash: hash, Outcome: OutcomeBroadcastPending}, nil
		}
		return &Result{Hash: hash, Outcome: OutcomeBroadcastUnconfirmed}, ErrUnconfirmed
	}

	receipt, seenDuringWait, err := t.awaitReceipt(ctx, hash, policy)
	if err != nil {
		return nil, err
	}
	seen = seen || seenDuringWait
	if receipt != nil {
		outcome := OutcomeMinedSuccess
		if receipt.Status != types.ReceiptStatusSuccessful {
			outcome = OutcomeMinedRevert
		}
		return &Result{Hash: hash, Outcome: outcome, Receipt: receipt}, nil
	}
	if !seen {
		return &Result{Hash: hash, Outcome: OutcomeBroadcastUnconfirmed}, ErrUnconfirmed
	}
	return &Result{Hash: hash, Outcome: OutcomeTimedOut}, nil
}

// pollPresence asks the endpoint whether it knows the hash at all: a
// bounded number of attempts at a fixed interval.
func (t *Tracker) pollPresence(ctx context.Context, hash common.Hash, policy WaitPolicy) (bool, error) {
	interval := policy.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	for attempt := 0; attempt < policy.PollAttempts; attempt++ {
		status, err := t.client.TransactionStatus(ctx, hash)
		if err == nil && status.Found {
			return true, nil
		}
		// Lookup errors here are tolerated: the endpoint may simply not
		// support the method, which the receipt wait can still resolve.
		if attempt == policy.PollAttempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-t.clock.After(interval):
		}
	}
	return false, nil
}

// awaitReceipt polls for a receipt until the policy timeout elapses.
func (t *Tracker) awaitReceipt(ctx context.Context, hash common.Hash, policy WaitPolicy) (*chain.Receipt, bool, error) {
	interval := policy.ReceiptInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	deadline := t.clock.Now().Add(policy.ReceiptTimeout)
	seen := false
	for {
		receipt, err := t.client.TransactionReceipt(ctx, hash)
		if err == nil {
			return receipt, true, nil
		}
		if !errors.Is(err, chain.ErrNotFound) {
			var transportErr *rpc.TransportError
			if !errors.As(err, &transportErr) {
				return nil, seen, err
			}
			// Transport blips during the wait are absorbed; the deadline
			// still bounds the loop.
		} else if !seen {
			if status, statusErr := t.client.TransactionStatus(ctx, hash); statusErr == nil && status.Found {
				seen = true
			}
		}
		if !t.clock.Now().Add(interval).Before(deadline) {
			return nil, seen, nil
		}
		select {
		case <-ctx.Done():
			return nil, seen, ctx.Err()
		case <-t.clock.After(interval):
		}
	}
}

// startProgress emits a periodic status tick while a wait is in flight.
// The returned stop function is safe to call on every exit path.
func (t *Tracker) startProgress(hash common.Hash, interval time.Duration) func() {
	if interval <= 0 {
		return func() {}
	}
	ticker := t.clock.NewTicker(interval)
	done := make(chan struct{})
	start := t.clock.Now()
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.Chan():
				t.logger.Info("awaiting confirmation", "hash", hash.Hex(), "elapsed", t.clock.Now().Sub(start).Round(time.Second))
			}
		}
	}()
	var once func()
	stopped := false
	once = func() {
		if stopped {
			return
		}
		stopped = true
		ticker.Stop()
		close(done)
	}
	return once
}

func isTransport(err error) bool {
	var transportErr *rpc.TransportError
	return errors.As(err, &transportErr)
}
