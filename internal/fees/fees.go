// Package fees computes transaction pricing under a hard operator ceiling.
// Legacy endpoints get a single gas price; fee-market endpoints get a
// base-fee plus priority-fee pair so the paid price tracks the market
// instead of the declared cap.
package fees

import (
	"context"
	"errors"
	"fmt"
	"math/big"
)

var oneWei = big.NewInt(1)

// Source is the endpoint view the strategy prices against.
type Source interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	LatestBaseFee(ctx context.Context) (*big.Int, error)
}

// Config carries the operator fee policy.
type Config struct {
	// FixedGasPrice, when set, short-circuits the legacy suggestion query.
	FixedGasPrice *big.Int
	// Ceiling caps every produced value. Required.
	Ceiling *big.Int
	// Multiplier scales the endpoint's suggested legacy price.
	Multiplier float64
	// PriorityFee is the fee-market tip.
	PriorityFee *big.Int
}

// Params is the priced result. Exactly one variant is populated: GasPrice
// for legacy, the cap pair for fee-market.
type Params struct {
	GasPrice             *big.Int
	MaxFeePerGas         *big.Int
	MaxPriorityFeePerGas *big.Int
}

// Legacy reports which variant p carries.
func (p Params) Legacy() bool { return p.GasPrice != nil }

// Strategy prices transactions for one endpoint.
type Strategy struct {
	source Source
	cfg    Config
}

// NewStrategy validates the policy and builds a strategy.
func NewStrategy(source Source, cfg Config) (*Strategy, error) {
	if source == nil {
		return nil, errors.New("fee source is required")
	}
	if cfg.Ceiling == nil || cfg.Ceiling.Sign() <= 0 {
		return nil, errors.New("fee ceiling must be positive")
	}
	if cfg.Multiplier <= 0 {
		cfg.Multiplier = 1.1
	}
	if cfg.PriorityFee == nil || cfg.PriorityFee.Sign() < 0 {
		cfg.PriorityFee = big.NewInt(1_000_000_000) // 1 gwei
	}
	return &Strategy{source: source, cfg: cfg}, nil
}

// LegacyGasPrice returns the single gas price for a legacy transaction,
// clamped to [1 wei, ceiling].
func (s *Strategy) LegacyGasPrice(ctx context.Context) (Params, error) {
	if s.cfg.FixedGasPrice != nil {
		return Params{GasPrice: s.clamp(s.cfg.FixedGasPrice)}, nil
	}
	suggested, err := s.source.SuggestGasPrice(ctx)
	if err != nil {
		return Params{}, fmt.Errorf("suggested gas price: %w", err)
	}
	return Params{GasPrice: s.clamp(mulFloat(suggested, s.cfg.Multiplier))}, nil
}

// FeeMarketParams returns the cap pair for a fee-market transaction. The
// max fee is base fee + priority fee clamped to the ceiling; the priority
// fee is further clamped so it never exceeds the max fee.
func (s *Strategy) FeeMarketParams(ctx context.Context) (Params, error) {
	baseFee, err := s.source.LatestBaseFee(ctx)
	if err != nil {
		// Endpoints that advertise fee-market support sometimes still fail
		// the history query; the suggested price stands in for the base fee.
		baseFee, err = s.source.SuggestGasPrice(ctx)
		if err != nil {
			return Params{}, fmt.Errorf("base fee: %w", err)
		}
	}
	tip := new(big.Int).Set(s.cfg.PriorityFee)
	maxFee := s.clamp(new(big.Int).Add(baseFee, tip))
	if tip.Cmp(maxFee) > 0 {
		tip = new(big.Int).Set(maxFee)
	}
	return Params{MaxFeePerGas: maxFee, MaxPriorityFeePerGas: tip}, nil
}

// Ceiling returns a copy of the configured hard cap.
func (s *Strategy) Ceiling() *big.Int { return new(big.Int).Set(s.cfg.Ceiling) }

func (s *Strategy) clamp(v *big.Int) *big.Int {
	out := new(big.Int).Set(v)
	if out.Cmp(oneWei) < 0 {
		out.Set(oneWei)
	}
	if out.Cmp(s.cfg.Ceiling) > 0 {
		out.Set(s.cfg.Ceiling)
	}
	return out
}

// GweiToWei converts a gwei amount from config into wei.
func GweiToWei(gwei float64) (*big.Int, error) {
	if gwei < 0 {
		return nil, errors.New("gwei must be non-negative")
	}
	v := new(big.Rat).SetFloat64(gwei)
	v.Mul(v, new(big.Rat).SetInt(big.NewInt(1_000_000_000)))
	out := new(big.Int)
	out.Div(v.Num(), v.Denom())
	return out, nil
}

// mulFloat scales v by f through big.Rat so large wei values never round
// through a float64.
func mulFloat(v *big.Int, f float64) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	if f == 1.0 {
		return new(big.Int).Set(v)
	}
	r := new(big.Rat).SetInt(v)
	r.Mul(r, new(big.Rat).SetFloat64(f))
	out := new(big.Int)
	out.Div(r.Num(), r.Denom())
	return out
}
