// Package post is the submission facade: it turns a validated signal record
// into a signed, broadcast transaction and an accurate outcome, and exposes
// the ledger read side for feedback queries.
package post

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/maxibitcat/aisignals/internal/broadcast"
	"github.com/maxibitcat/aisignals/internal/chain"
	"github.com/maxibitcat/aisignals/internal/fees"
	"github.com/maxibitcat/aisignals/internal/keys"
	"github.com/maxibitcat/aisignals/internal/ledger"
	"github.com/maxibitcat/aisignals/internal/metrics"
	"github.com/maxibitcat/aisignals/internal/nonce"
	"github.com/maxibitcat/aisignals/internal/signal"
	"github.com/maxibitcat/aisignals/internal/txbuilder"
)

// Config is the per-submission policy.
type Config struct {
	Wait broadcast.WaitPolicy
	// SubmitTimeout bounds one whole Post call, racing the wait policy.
	SubmitTimeout time.Duration
	// DryRun signs but never broadcasts.
	DryRun bool
	// GasLimitFallback is handed to the transaction builder.
	GasLimitFallback uint64
}

// Result is returned to the caller for every submission that produced a
// signed transaction.
type Result struct {
	Hash    common.Hash       `json:"hash"`
	Nonce   uint64            `json:"nonce"`
	ChainID *big.Int          `json:"chain_id"`
	Outcome broadcast.Outcome `json:"-"`
	Receipt *chain.Receipt    `json:"receipt,omitempty"`
}

// Service wires the submission pipeline together. One instance per signing
// account and endpoint.
type Service struct {
	logger   *slog.Logger
	chain    *chain.Client
	fees     *fees.Strategy
	nonces   *nonce.Allocator
	tracker  *broadcast.Tracker
	contract *ledger.Contract
	cache    *ledger.Cache
	key      *keys.Key
	cfg      Config
}

// New builds the service. All collaborators are required except the cache,
// which is created from the contract when nil.
func New(logger *slog.Logger, chainClient *chain.Client, strategy *fees.Strategy, allocator *nonce.Allocator,
	tracker *broadcast.Tracker, contract *ledger.Contract, key *keys.Key, cfg Config) (*Service, error) {
	if chainClient == nil || strategy == nil || allocator == nil || tracker == nil || contract == nil || key == nil {
		return nil, errors.New("post service is missing a collaborator")
	}
	if logger == nil {
		logger = slog.Default()
	}
	cache, err := ledger.NewCache(contract)
	if err != nil {
		return nil, err
	}
	return &Service{
		logger:   logger,
		chain:    chainClient,
		fees:     strategy,
		nonces:   allocator,
		tracker:  tracker,
		contract: contract,
		cache:    cache,
		key:      key,
		cfg:      cfg,
	}, nil
}

// Account returns the signing account address.
func (s *Service) Account() common.Address { return s.key.Address() }

// Post validates, prices, nonces, builds, signs and broadcasts one signal.
// Validation failures are returned before any network call. The returned
// Result is non-nil whenever a transaction was signed, even when err is
// broadcast.ErrUnconfirmed.
func (s *Service) Post(ctx context.Context, rec signal.Record) (*Result, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	if s.cfg.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.SubmitTimeout)
		defer cancel()
	}

	chainID, err := s.chain.ResolveChainID(ctx)
	if err != nil {
		return nil, err
	}
	mode, err := s.chain.ResolveFeeMode(ctx)
	if err != nil {
		return nil, err
	}
	var fee fees.Params
	if mode == chain.FeeModeMarket {
		fee, err = s.fees.FeeMarketParams(ctx)
	} else {
		fee, err = s.fees.LegacyGasPrice(ctx)
	}
	if err != nil {
		return nil, err
	}

	postingFee, err := s.contract.PostingFee(ctx)
	if err != nil {
		return nil, fmt.Errorf("posting fee: %w", err)
	}
	data, err := s.contract.PostCalldata(rec)
	if err != nil {
		return nil, err
	}
	builder, err := txbuilder.NewBuilder(chainID, s.chain, txbuilder.Config{GasLimitFallback: s.cfg.GasLimitFallback})
	if err != nil {
		return nil, err
	}

	// Allocated as late as possible: everything after this point either
	// broadcasts or burns the nonce.
	n, err := s.nonces.Next(ctx, s.key.Address())
	if err != nil {
		return nil, fmt.Errorf("allocate nonce: %w", err)
	}
	metrics.NonceCursor.Set(float64(n + 1))

	tx, err := builder.Build(ctx, txbuilder.BuildParams{
		From:  s.key.Address(),
		To:    s.contract.Address(),
		Data:  data,
		Value: postingFee,
		Nonce: n,
		Fee:   fee,
	})
	if err != nil {
		return nil, err
	}
	signed, err := s.key.SignTx(tx, chainID)
	if err != nil {
		return nil, err
	}

	s.balanceDiagnostic(ctx, signed.Cost())

	result := &Result{Hash: signed.Hash(), Nonce: n, ChainID: chainID}
	if s.cfg.DryRun {
		result.Outcome = broadcast.OutcomeSignedOnly
		metrics.Submissions.WithLabelValues(result.Outcome.String()).Inc()
		s.logger.Info("dry run, signal signed but not sent",
			"strategy", rec.Strategy, "asset", rec.Asset, "nonce", n, "hash", result.Hash.Hex())
		return result, nil
	}

	tracked, err := s.tracker.Submit(ctx, signed, s.cfg.Wait)
	if tracked == nil {
		metrics.Submissions.WithLabelValues("send_failed").Inc()
		return nil, err
	}
	result.Hash = tracked.Hash
	result.Outcome = tracked.Outcome
	result.Receipt = tracked.Receipt
	metrics.Submissions.WithLabelValues(result.Outcome.String()).Inc()
	s.logger.Info("signal submitted",
		"strategy", rec.Strategy, "asset", rec.Asset, "direction", rec.Direction.String(),
		"hash", result.Hash.Hex(), "nonce", n, "outcome", result.Outcome.String())
	return result, err
}

// Recent returns the account's most recent count entries for a strategy,
// oldest first.
func (s *Service) Recent(ctx context.Context, strategy string, count int) ([]ledger.Entry, error) {
	return s.cache.RecentEntries(ctx, s.key.Address(), strategy, count)
}

// Balance returns the signing account's balance in wei.
func (s *Service) Balance(ctx context.Context) (*big.Int, error) {
	balance, err := s.chain.BalanceAt(ctx, s.key.Address())
	if err != nil {
		return nil, err
	}
	metrics.SetBalance(balance)
	return balance, nil
}

// balanceDiagnostic warns when the account cannot cover the worst-case cost
// of the transaction it is about to send. Best effort only.
func (s *Service) balanceDiagnostic(ctx context.Context, cost *big.Int) {
	balance, err := s.chain.BalanceAt(ctx, s.key.Address())
	if err != nil {
		return
	}
	metrics.SetBalance(balance)
	if balance.Cmp(cost) < 0 {
		s.logger.Warn("balance below worst-case transaction cost",
			"balance_wei", balance.String(), "cost_wei", cost.String())
	}
}
