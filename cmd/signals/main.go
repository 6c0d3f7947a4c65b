// Command signals posts one trading signal to the ledger or reads recent
// entries back, for one-shot use from schedulers and shells.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/maxibitcat/aisignals/internal/app"
	"github.com/maxibitcat/aisignals/internal/config"
	sig "github.com/maxibitcat/aisignals/internal/signal"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	strategy := flag.String("strategy", "", "strategy label (1-30 chars)")
	asset := flag.String("asset", "", "asset label (1-10 chars)")
	message := flag.String("message", "", "signal message (up to 280 chars)")
	direction := flag.String("direction", "", "long or short")
	leverage := flag.Uint("leverage", 1, "leverage (1-5)")
	weight := flag.Uint("weight", 100, "position weight (1-100)")
	recent := flag.Int("recent", 0, "read the most recent N entries for -strategy instead of posting")
	balance := flag.Bool("balance", false, "print the signing account balance and exit")
	debug := flag.Bool("debug", false, "enable debug logs")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if *debug || cfg.RPC.Trace {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	svc, _, err := app.BuildService(cfg, logger)
	if err != nil {
		logger.Error("init failed", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch {
	case *balance:
		wei, err := svc.Balance(ctx)
		if err != nil {
			logger.Error("balance query failed", "error", err)
			os.Exit(1)
		}
		fmt.Printf("%s\t%s wei\n", svc.Account().Hex(), wei.String())

	case *recent > 0:
		entries, err := svc.Recent(ctx, *strategy, *recent)
		if err != nil {
			logger.Error("read failed", "error", err)
			os.Exit(1)
		}
		for _, e := range entries {
			fmt.Printf("%s\t%s\t%s\t%s\tlev=%d\tweight=%d\t%s\n",
				e.Timestamp.Format("2006-01-02 15:04:05"), e.Record.Asset,
				e.Record.Direction.String(), e.Record.Strategy,
				e.Record.Leverage, e.Record.Weight, e.Record.Message)
		}

	default:
		dir, err := sig.ParseDirection(*direction)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(2)
		}
		rec := sig.Record{
			Strategy:  *strategy,
			Asset:     *asset,
			Message:   *message,
			Direction: dir,
			Leverage:  uint8(*leverage),
			Weight:    uint8(*weight),
		}
		result, err := svc.Post(ctx, rec)
		if result != nil {
			fmt.Printf("hash=%s nonce=%d chain=%s outcome=%s\n",
				result.Hash.Hex(), result.Nonce, result.ChainID.String(), result.Outcome.String())
		}
		if err != nil {
			logger.Error("submission failed", "error", err)
			os.Exit(1)
		}
	}
}
