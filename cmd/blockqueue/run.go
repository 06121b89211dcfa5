package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-mive/blockqueue/internal/aggregate"
	"github.com/ethereum-mive/blockqueue/internal/connmgr"
	"github.com/ethereum-mive/blockqueue/internal/executor"
	"github.com/ethereum-mive/blockqueue/internal/lightchain"
	"github.com/ethereum-mive/blockqueue/internal/provider"
	"github.com/ethereum-mive/blockqueue/internal/queueservice"
)

// run is the CLI's only action: load configuration, dial providers, wire the
// queue service and a demo executor together, and block until interrupted.
// Wiring is explicit: one function, no registry.
func run(ctx *cli.Context) error {
	cfg, err := loadBaseConfig(ctx)
	if err != nil {
		return err
	}
	if len(cfg.Providers) == 0 {
		return fmt.Errorf("blockqueue: no providers configured, pass --provider name=url or set [[Providers]] in --config")
	}

	connMgr := connmgr.New(func(name, url string) provider.Provider {
		return provider.NewRPCProvider(name, url)
	})
	for _, p := range cfg.Providers {
		connMgr.Add(p.Name, p.URL)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := connMgr.Init(runCtx); err != nil {
		return fmt.Errorf("blockqueue: %w", err)
	}
	defer connMgr.Shutdown()

	chain := lightchain.New(ctx.Int(lightChainSizeFlag.Name))
	agg := aggregate.New(chain, connMgr)

	svc := queueservice.New(cfg.QueueServiceConfig(), connMgr, cfg.NewNormalizer(), agg)
	exec := executor.New(svc)

	indexedHeight := ctx.Uint64(indexedHeightFlag.Name)
	if err := svc.Start(runCtx, indexedHeight, exec); err != nil {
		return fmt.Errorf("blockqueue: %w", err)
	}
	defer svc.Stop()

	log.Info("blockqueue: running", "indexedHeight", indexedHeight, "strategy", cfg.QueueLoaderStrategyName, "providers", len(cfg.Providers))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("blockqueue: shutting down")
	return nil
}
