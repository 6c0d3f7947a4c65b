// Package app wires the submission pipeline from configuration and
// supervises the long-running servers.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maxibitcat/aisignals/internal/api"
	"github.com/maxibitcat/aisignals/internal/broadcast"
	"github.com/maxibitcat/aisignals/internal/chain"
	"github.com/maxibitcat/aisignals/internal/config"
	"github.com/maxibitcat/aisignals/internal/fees"
	"github.com/maxibitcat/aisignals/internal/keys"
	"github.com/maxibitcat/aisignals/internal/ledger"
	"github.com/maxibitcat/aisignals/internal/metrics"
	"github.com/maxibitcat/aisignals/internal/nonce"
	"github.com/maxibitcat/aisignals/internal/post"
	"github.com/maxibitcat/aisignals/internal/rpc"
)

// BuildService assembles the full submission pipeline from config. The
// signing key is read from the environment variable the config names.
func BuildService(cfg *config.Config, logger *slog.Logger) (*post.Service, *chain.Client, error) {
	transport, err := rpc.NewClient(rpc.Config{
		URL:            cfg.RPC.URL,
		ConnectTimeout: cfg.RPC.ConnectTimeout.Duration,
		HeaderTimeout:  cfg.RPC.HeaderTimeout.Duration,
		CallTimeout:    cfg.RPC.CallTimeout.Duration,
		Trace:          cfg.RPC.Trace,
	}, logger)
	if err != nil {
		return nil, nil, err
	}

	feeMode, err := chain.ParseFeeMode(cfg.Fees.Mode)
	if err != nil {
		return nil, nil, err
	}
	chainClient := chain.NewClient(transport, chain.SessionConfig{
		ChainID:         cfg.ChainID,
		FeeModeOverride: feeMode,
	})

	feeCfg, err := feeConfig(cfg)
	if err != nil {
		return nil, nil, err
	}
	strategy, err := fees.NewStrategy(chainClient, feeCfg)
	if err != nil {
		return nil, nil, err
	}

	keyHex := os.Getenv(cfg.Key.PrivateKeyEnv)
	if keyHex == "" {
		return nil, nil, fmt.Errorf("private key env %s is empty", cfg.Key.PrivateKeyEnv)
	}
	key, err := keys.FromHex(keyHex)
	if err != nil {
		return nil, nil, err
	}

	contract, err := ledger.NewContract(cfg.Contract(), chainClient)
	if err != nil {
		return nil, nil, err
	}

	tracker := broadcast.NewTracker(chainClient, logger, broadcast.Config{
		SendRetries: cfg.Tx.BroadcastRetries,
	})

	svc, err := post.New(logger, chainClient, strategy, nonce.NewAllocator(chainClient), tracker, contract, key, post.Config{
		Wait:             waitPolicy(cfg),
		SubmitTimeout:    cfg.Tx.SubmitTimeout.Duration,
		DryRun:           cfg.Tx.DryRun,
		GasLimitFallback: cfg.Tx.GasLimitFallback,
	})
	if err != nil {
		return nil, nil, err
	}
	return svc, chainClient, nil
}

func feeConfig(cfg *config.Config) (fees.Config, error) {
	out := fees.Config{Multiplier: cfg.Fees.Multiplier}
	var err error
	if out.Ceiling, err = fees.GweiToWei(cfg.Fees.CeilingGwei); err != nil {
		return out, fmt.Errorf("fees.ceiling_gwei: %w", err)
	}
	if out.PriorityFee, err = fees.GweiToWei(cfg.Fees.PriorityFeeGwei); err != nil {
		return out, fmt.Errorf("fees.priority_fee_gwei: %w", err)
	}
	if cfg.Fees.FixedGasPriceGwei > 0 {
		if out.FixedGasPrice, err = fees.GweiToWei(cfg.Fees.FixedGasPriceGwei); err != nil {
			return out, fmt.Errorf("fees.fixed_gas_price_gwei: %w", err)
		}
	}
	return out, nil
}

func waitPolicy(cfg *config.Config) broadcast.WaitPolicy {
	policy := broadcast.WaitPolicy{
		PollAttempts:     cfg.Tx.PollAttempts,
		PollInterval:     cfg.Tx.PollInterval.Duration,
		ProgressInterval: cfg.Tx.ProgressInterval.Duration,
	}
	if cfg.Tx.WaitForReceipt {
		policy.ReceiptTimeout = cfg.Tx.ReceiptTimeout.Duration
		policy.ReceiptInterval = cfg.Tx.ReceiptInterval.Duration
	}
	return policy
}

// App runs the HTTP API and the metrics endpoint until shutdown.
type App struct {
	cfg    *config.Config
	logger *slog.Logger
}

// New builds the server application.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger}
}

// Run blocks until ctx is cancelled or a server fails.
func (a *App) Run(ctx context.Context) error {
	svc, _, err := BuildService(a.cfg, a.logger)
	if err != nil {
		return err
	}
	server := api.NewServer(a.cfg, a.logger, svc)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.logger.Info("api listening", "addr", a.cfg.API.Listen, "account", svc.Account().Hex())
		return server.Start(gctx)
	})
	g.Go(func() error {
		return a.runMetrics(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func (a *App) runMetrics(ctx context.Context) error {
	server := &http.Server{
		Addr:              a.cfg.Metrics.Listen,
		Handler:           metricsMux(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(ctxTimeout)
	}()
	a.logger.Info("metrics listening", "addr", a.cfg.Metrics.Listen)
	err := server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}
