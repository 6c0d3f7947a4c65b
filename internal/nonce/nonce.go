// Package nonce allocates strictly increasing per-account transaction
// sequence numbers. The cursor is initialized once from the endpoint and
// then advances locally: many public endpoints lag in reflecting
// just-broadcast transactions, so re-querying mid-run would hand out
// duplicate nonces.
package nonce

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/maxibitcat/aisignals/internal/rpc"
)

// CountSource is the endpoint view the allocator initializes from.
type CountSource interface {
	TransactionCount(ctx context.Context, account common.Address, blockArg interface{}) (uint64, error)
	BlockNumber(ctx context.Context) (uint64, error)
}

// Allocator hands out nonces for accounts. The cursor never goes backwards
// while the process lives; recovering a burned nonce is a restart decision.
type Allocator struct {
	client CountSource

	mu   sync.Mutex
	next map[common.Address]uint64
	seen map[common.Address]bool
}

// NewAllocator builds an allocator over the given endpoint view.
func NewAllocator(client CountSource) *Allocator {
	return &Allocator{
		client: client,
		next:   make(map[common.Address]uint64),
		seen:   make(map[common.Address]bool),
	}
}

// Next returns the next nonce for account and advances the cursor. The
// first call per account queries the endpoint's pending count through a
// fallback ladder of request shapes; later calls never query again.
func (a *Allocator) Next(ctx context.Context, account common.Address) (uint64, error) {
	if a.client == nil {
		return 0, errors.New("nonce allocator has no client")
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen[account] {
		n := a.next[account]
		a.next[account] = n + 1
		return n, nil
	}
	n, err := a.initialCount(ctx, account)
	if err != nil {
		return 0, err
	}
	a.seen[account] = true
	a.next[account] = n + 1
	return n, nil
}

// Current returns the cursor without advancing it, querying the endpoint if
// the account has not been seen yet. Diagnostic use only.
func (a *Allocator) Current(ctx context.Context, account common.Address) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.seen[account] {
		return a.next[account], nil
	}
	return a.initialCount(ctx, account)
}

// initialCount walks the ladder of transaction-count request shapes. Only
// request-shape rejections advance the ladder; transport failures and other
// endpoint errors escalate immediately. The later rungs are a best-effort
// approximation of pending semantics, not an equivalent.
func (a *Allocator) initialCount(ctx context.Context, account common.Address) (uint64, error) {
	var lastErr error
	for _, tag := range []interface{}{"pending", "latest", nil} {
		n, err := a.client.TransactionCount(ctx, account, tag)
		if err == nil {
			return n, nil
		}
		if !rpc.IsRequestShape(err) {
			return 0, err
		}
		lastErr = err
	}
	block, err := a.client.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("transaction count fallbacks exhausted (%v); block number: %w", lastErr, err)
	}
	n, err := a.client.TransactionCount(ctx, account, hexutil.EncodeUint64(block))
	if err != nil {
		return 0, fmt.Errorf("transaction count by explicit block: %w", err)
	}
	return n, nil
}
