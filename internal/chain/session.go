package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
)

// FeeMode says how transactions for this endpoint are priced.
type FeeMode int

const (
	FeeModeUnknown FeeMode = iota
	FeeModeLegacy
	FeeModeMarket
)

func (m FeeMode) String() string {
	switch m {
	case FeeModeLegacy:
		return "legacy"
	case FeeModeMarket:
		return "fee-market"
	}
	return "unknown"
}

// ParseFeeMode parses the config override. Empty and "auto" mean probe.
func ParseFeeMode(s string) (FeeMode, error) {
	switch s {
	case "", "auto":
		return FeeModeUnknown, nil
	case "legacy":
		return FeeModeLegacy, nil
	case "fee-market", "eip1559":
		return FeeModeMarket, nil
	}
	return FeeModeUnknown, fmt.Errorf("unknown fee mode %q", s)
}

// SessionConfig carries the operator overrides for session resolution.
type SessionConfig struct {
	// ChainID, when non-zero, is used without querying the endpoint.
	ChainID uint64
	// FeeModeOverride, when not FeeModeUnknown, skips the probe.
	FeeModeOverride FeeMode
}

// session holds the per-client-lifetime resolved parameters. Each field
// transitions from unset to resolved at most once.
type session struct {
	cfg SessionConfig

	mu      sync.Mutex
	chainID *big.Int
	feeMode FeeMode
}

// ResolveChainID returns the effective network identifier: the configured
// value when present, otherwise the endpoint's answer, cached either way.
func (c *Client) ResolveChainID(ctx context.Context) (*big.Int, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.chainID != nil {
		return new(big.Int).Set(c.session.chainID), nil
	}
	if c.session.cfg.ChainID != 0 {
		c.session.chainID = new(big.Int).SetUint64(c.session.cfg.ChainID)
		return new(big.Int).Set(c.session.chainID), nil
	}
	id, err := c.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolve chain id: %w", err)
	}
	if id.Sign() <= 0 {
		return nil, fmt.Errorf("resolve chain id: endpoint reported %s", id)
	}
	c.session.chainID = id
	return new(big.Int).Set(id), nil
}

// ResolveFeeMode returns the endpoint's transaction pricing model. An
// operator override is honored unconditionally; otherwise a one-block fee
// history probe decides: success means fee-market, any failure means the
// endpoint is treated as legacy. The result is cached for the session.
func (c *Client) ResolveFeeMode(ctx context.Context) (FeeMode, error) {
	c.session.mu.Lock()
	defer c.session.mu.Unlock()
	if c.session.feeMode != FeeModeUnknown {
		return c.session.feeMode, nil
	}
	if c.session.cfg.FeeModeOverride != FeeModeUnknown {
		c.session.feeMode = c.session.cfg.FeeModeOverride
		return c.session.feeMode, nil
	}
	if _, err := c.LatestBaseFee(ctx); err != nil {
		c.session.feeMode = FeeModeLegacy
	} else {
		c.session.feeMode = FeeModeMarket
	}
	return c.session.feeMode, nil
}
