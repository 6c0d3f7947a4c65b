// Command signals-smoke checks endpoint connectivity before the first real
// submission: resolved chain id, detected fee mode, posting fee, balance and
// the endpoint's nonce view for the signing account.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/maxibitcat/aisignals/internal/app"
	"github.com/maxibitcat/aisignals/internal/config"
	"github.com/maxibitcat/aisignals/internal/ledger"
	"github.com/maxibitcat/aisignals/internal/nonce"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	timeout := flag.Duration("timeout", 60*time.Second, "overall smoke timeout")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))

	svc, chainClient, err := app.BuildService(cfg, logger)
	if err != nil {
		logger.Error("init failed", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	chainID, err := chainClient.ResolveChainID(ctx)
	if err != nil {
		logger.Error("chain id resolution failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("endpoint   %s\n", cfg.RPC.URL)
	fmt.Printf("chain id   %s\n", chainID)

	mode, err := chainClient.ResolveFeeMode(ctx)
	if err != nil {
		logger.Error("fee mode resolution failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("fee mode   %s\n", mode)

	balance, err := svc.Balance(ctx)
	if err != nil {
		logger.Error("balance query failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("account    %s\n", svc.Account().Hex())
	fmt.Printf("balance    %s wei\n", balance)

	contract, err := ledger.NewContract(cfg.Contract(), chainClient)
	if err != nil {
		logger.Error("contract binding failed", "error", err)
		os.Exit(1)
	}
	fee, err := contract.PostingFee(ctx)
	if err != nil {
		logger.Error("posting fee query failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("post fee   %s wei\n", fee)

	cursor, err := nonce.NewAllocator(chainClient).Current(ctx, svc.Account())
	if err != nil {
		logger.Error("nonce query failed", "error", err)
		os.Exit(1)
	}
	fmt.Printf("nonce      %d\n", cursor)
}
