// Package txbuilder assembles protocol-correct transaction requests. The
// transaction type follows the session's resolved fee mode: a single gas
// price yields a legacy transaction, a cap pair yields a fee-market one.
package txbuilder

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/maxibitcat/aisignals/internal/chain"
	"github.com/maxibitcat/aisignals/internal/fees"
)

// Estimates absorb state drift between estimation and inclusion.
const gasLimitMargin = 1.22

// Estimator is the endpoint view used for gas estimation.
type Estimator interface {
	EstimateGas(ctx context.Context, msg chain.CallMsg) (uint64, error)
}

// Config controls gas limit behavior.
type Config struct {
	// GasLimitFallback is used when the estimate call fails.
	GasLimitFallback uint64
}

// BuildParams are the per-submission inputs.
type BuildParams struct {
	From  common.Address
	To    common.Address
	Data  []byte
	Value *big.Int
	Nonce uint64
	Fee   fees.Params
}

// Builder builds unsigned transactions against one chain.
type Builder struct {
	chainID  *big.Int
	client   Estimator
	fallback uint64
}

// NewBuilder builds a Builder for the given chain id.
func NewBuilder(chainID *big.Int, client Estimator, cfg Config) (*Builder, error) {
	if chainID == nil || chainID.Sign() <= 0 {
		return nil, errors.New("chain id is required")
	}
	if client == nil {
		return nil, errors.New("gas estimator is required")
	}
	if cfg.GasLimitFallback == 0 {
		cfg.GasLimitFallback = 400_000
	}
	return &Builder{
		chainID:  new(big.Int).Set(chainID),
		client:   client,
		fallback: cfg.GasLimitFallback,
	}, nil
}

// ChainID returns a copy of the builder's chain id.
func (b *Builder) ChainID() *big.Int { return new(big.Int).Set(b.chainID) }

// Build estimates gas and assembles the unsigned transaction. A successful
// estimate is padded by the safety margin; a failed estimate falls back to
// the fixed limit rather than failing the submission.
func (b *Builder) Build(ctx context.Context, p BuildParams) (*types.Transaction, error) {
	if p.Value == nil {
		p.Value = big.NewInt(0)
	}
	if p.Value.Sign() < 0 {
		return nil, errors.New("value must be non-negative")
	}
	if p.Fee.GasPrice == nil && (p.Fee.MaxFeePerGas == nil || p.Fee.MaxPriorityFeePerGas == nil) {
		return nil, errors.New("fee params carry neither variant")
	}
	gasLimit := b.gasLimit(ctx, p)
	if p.Fee.Legacy() {
		return types.NewTx(&types.LegacyTx{
			Nonce:    p.Nonce,
			GasPrice: p.Fee.GasPrice,
			Gas:      gasLimit,
			To:       &p.To,
			Value:    p.Value,
			Data:     p.Data,
		}), nil
	}
	if p.Fee.MaxPriorityFeePerGas.Cmp(p.Fee.MaxFeePerGas) > 0 {
		return nil, fmt.Errorf("priority fee %s exceeds max fee %s", p.Fee.MaxPriorityFeePerGas, p.Fee.MaxFeePerGas)
	}
	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   b.chainID,
		Nonce:     p.Nonce,
		Gas:       gasLimit,
		GasFeeCap: p.Fee.MaxFeePerGas,
		GasTipCap: p.Fee.MaxPriorityFeePerGas,
		To:        &p.To,
		Value:     p.Value,
		Data:      p.Data,
	}), nil
}

func (b *Builder) gasLimit(ctx context.Context, p BuildParams) uint64 {
	msg := chain.CallMsg{
		From:      p.From,
		To:        &p.To,
		Value:     p.Value,
		Data:      p.Data,
		GasPrice:  p.Fee.GasPrice,
		GasFeeCap: p.Fee.MaxFeePerGas,
		GasTipCap: p.Fee.MaxPriorityFeePerGas,
	}
	gas, err := b.client.EstimateGas(ctx, msg)
	if err != nil {
		return b.fallback
	}
	return applyMargin(gas, gasLimitMargin)
}

func applyMargin(gas uint64, margin float64) uint64 {
	adjusted := uint64(float64(gas) * margin)
	if adjusted < gas {
		return gas
	}
	return adjusted
}
