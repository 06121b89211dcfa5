package main

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-mive/blockqueue/internal/config"
	"github.com/ethereum-mive/blockqueue/internal/flags"
	"github.com/ethereum-mive/blockqueue/internal/loader"
)

var (
	configFileFlag = &cli.StringFlag{
		Name:     "config",
		Usage:    "TOML configuration file",
		Category: flags.ProviderCategory,
	}
	providerFlag = &cli.StringSliceFlag{
		Name:     "provider",
		Usage:    "Node provider as name=url, repeatable; the first one registered is tried first on startup",
		Category: flags.ProviderCategory,
	}
	indexedHeightFlag = &cli.Uint64Flag{
		Name:     "indexed-height",
		Usage:    "Height of the last block already processed downstream; the queue starts one above it",
		Category: flags.QueueCategory,
	}
	maxQueueSizeFlag = &cli.Uint64Flag{
		Name:     "queue.max-size",
		Usage:    "Maximum total byte size of queued blocks",
		Category: flags.QueueCategory,
	}
	maxBlockHeightFlag = &cli.Uint64Flag{
		Name:     "queue.max-height",
		Usage:    "Upper height bound the queue will accept",
		Category: flags.QueueCategory,
	}
	iteratorBatchSizeFlag = &cli.Uint64Flag{
		Name:     "queue.iterator-batch-size",
		Usage:    "Maximum byte size of each batch dispatched to the executor",
		Category: flags.QueueCategory,
	}
	loaderStrategyFlag = &cli.StringFlag{
		Name:     "loader.strategy",
		Usage:    "Loader strategy: pull or subscribe",
		Category: flags.LoaderCategory,
	}
	loaderRequestBatchSizeFlag = &cli.Uint64Flag{
		Name:     "loader.request-batch-size",
		Usage:    "Maximum estimated byte size of each receipt sub-batch requested from the provider",
		Category: flags.LoaderCategory,
	}
	basePreloadCountFlag = &cli.IntFlag{
		Name:     "loader.base-preload-count",
		Usage:    "Initial number of heights requested per pull-strategy preload",
		Category: flags.LoaderCategory,
	}
	blockTimeMsFlag = &cli.Uint64Flag{
		Name:     "loader.block-time-ms",
		Usage:    "Expected network block time in milliseconds, drives idle-cadence caps",
		Category: flags.LoaderCategory,
	}
	strategyThresholdFlag = &cli.Uint64Flag{
		Name:     "loader.strategy-threshold",
		Usage:    "Pull/Subscribe switchover gap",
		Category: flags.LoaderCategory,
	}
	lightChainSizeFlag = &cli.IntFlag{
		Name:     "chain.max-size",
		Usage:    "Maximum number of headers the network aggregate's light chain retains",
		Value:    256,
		Category: flags.QueueCategory,
	}
)

var (
	providerFlags = []cli.Flag{providerFlag}
	queueFlags    = []cli.Flag{indexedHeightFlag, maxQueueSizeFlag, maxBlockHeightFlag, iteratorBatchSizeFlag, lightChainSizeFlag}
	loaderFlags   = []cli.Flag{loaderStrategyFlag, loaderRequestBatchSizeFlag, basePreloadCountFlag, blockTimeMsFlag, strategyThresholdFlag}
)

// loadBaseConfig loads config.Default(), overlays the TOML file named by
// --config if given, then applies any flags the user set. Flags always win
// over file config.
func loadBaseConfig(ctx *cli.Context) (config.Config, error) {
	cfg := config.Default()

	if file := ctx.String(configFileFlag.Name); file != "" {
		if err := config.Load(file, &cfg); err != nil {
			return cfg, fmt.Errorf("blockqueue: %w", err)
		}
	}

	if err := applyProviderFlags(ctx, &cfg); err != nil {
		return cfg, err
	}
	if ctx.IsSet(maxQueueSizeFlag.Name) {
		cfg.MaxQueueSize = ctx.Uint64(maxQueueSizeFlag.Name)
	}
	if ctx.IsSet(maxBlockHeightFlag.Name) {
		cfg.MaxBlockHeight = ctx.Uint64(maxBlockHeightFlag.Name)
	}
	if ctx.IsSet(iteratorBatchSizeFlag.Name) {
		cfg.QueueIteratorBlocksBatchSize = ctx.Uint64(iteratorBatchSizeFlag.Name)
	}
	if ctx.IsSet(loaderStrategyFlag.Name) {
		cfg.QueueLoaderStrategyName = ctx.String(loaderStrategyFlag.Name)
	}
	if ctx.IsSet(loaderRequestBatchSizeFlag.Name) {
		cfg.QueueLoaderRequestBlocksBatchSize = ctx.Uint64(loaderRequestBatchSizeFlag.Name)
	}
	if ctx.IsSet(basePreloadCountFlag.Name) {
		cfg.BasePreloadCount = ctx.Int(basePreloadCountFlag.Name)
	}
	if ctx.IsSet(blockTimeMsFlag.Name) {
		cfg.BlockTimeMs = ctx.Uint64(blockTimeMsFlag.Name)
	}
	if ctx.IsSet(strategyThresholdFlag.Name) {
		cfg.StrategyThreshold = ctx.Uint64(strategyThresholdFlag.Name)
	}

	if cfg.QueueLoaderStrategyName != string(loader.StrategyPull) && cfg.QueueLoaderStrategyName != string(loader.StrategySubscribe) {
		return cfg, fmt.Errorf("blockqueue: invalid loader strategy %q", cfg.QueueLoaderStrategyName)
	}
	return cfg, nil
}

// applyProviderFlags parses --provider name=url entries onto cfg.Providers,
// replacing whatever the TOML file set.
func applyProviderFlags(ctx *cli.Context, cfg *config.Config) error {
	entries := ctx.StringSlice(providerFlag.Name)
	if len(entries) == 0 {
		return nil
	}
	providers := make([]config.ProviderConfig, 0, len(entries))
	for _, entry := range entries {
		name, url, ok := strings.Cut(entry, "=")
		if !ok || name == "" || url == "" {
			return fmt.Errorf("blockqueue: invalid --provider %q, expected name=url", entry)
		}
		providers = append(providers, config.ProviderConfig{Name: name, URL: url})
	}
	cfg.Providers = providers
	return nil
}
