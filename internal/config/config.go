// Package config defines the module's TOML-loadable configuration, decoded
// with github.com/naoina/toml.
package config

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"reflect"
	"unicode"

	"github.com/naoina/toml"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/loader"
	"github.com/ethereum-mive/blockqueue/internal/normalizer"
	"github.com/ethereum-mive/blockqueue/internal/queueservice"
)

// tomlSettings ensures TOML keys use the same names as the Go struct
// fields.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
	MissingField: func(rt reflect.Type, field string) error {
		var link string
		if unicode.IsUpper(rune(rt.Name()[0])) && rt.PkgPath() != "main" {
			link = fmt.Sprintf(", see https://pkg.go.dev/%s#%s for available fields", rt.PkgPath(), rt.Name())
		}
		return fmt.Errorf("field '%s' is not defined in %s%s", field, rt.String(), link)
	},
}

// ProviderConfig names one node-provider connection the connection manager
// should register, in the order it should try them.
type ProviderConfig struct {
	Name string
	URL  string
}

// NetworkConfig mirrors block.NetworkConfig for TOML decoding.
type NetworkConfig struct {
	ChainID                uint64
	NativeCurrencySymbol   string
	NativeCurrencyDecimals uint8
	BlockTimeMs            uint64
	HasEIP1559             bool
	HasWithdrawals         bool
	HasBlobTransactions    bool
}

func (n NetworkConfig) toBlockNetworkConfig() block.NetworkConfig {
	return block.NetworkConfig{
		ChainID:                n.ChainID,
		NativeCurrencySymbol:   n.NativeCurrencySymbol,
		NativeCurrencyDecimals: n.NativeCurrencyDecimals,
		BlockTimeMs:            n.BlockTimeMs,
		HasEIP1559:             n.HasEIP1559,
		HasWithdrawals:         n.HasWithdrawals,
		HasBlobTransactions:    n.HasBlobTransactions,
	}
}

// Config is the full set of options described by the configuration option
// table, plus the provider pool and network capability flags needed to
// actually run the pipeline.
type Config struct {
	Network   NetworkConfig
	Providers []ProviderConfig

	MaxQueueSize   uint64
	MaxBlockHeight uint64
	BlockSize      uint64

	QueueLoaderStrategyName           string
	QueueLoaderRequestBlocksBatchSize uint64
	QueueIteratorBlocksBatchSize      uint64
	BasePreloadCount                  int
	BlockTimeMs                       uint64
	StrategyThreshold                 uint64

	// Forwarded to the out-of-scope aggregate/CQRS framework; this module
	// only carries them through, it does not interpret them.
	SnapshotInterval   uint64
	SnapshotsEnabled   bool
	AllowPruning       bool
	SnapshotMinKeep    uint64
	SnapshotKeepWindow uint64
}

// Default returns the configuration's zero-value-safe defaults.
func Default() Config {
	return Config{
		MaxQueueSize:                      256 * 1024 * 1024,
		MaxBlockHeight:                    ^uint64(0),
		BlockSize:                         128 * 1024,
		QueueLoaderStrategyName:           string(loader.StrategySubscribe),
		QueueLoaderRequestBlocksBatchSize: 8 * 1024 * 1024,
		QueueIteratorBlocksBatchSize:      4 * 1024 * 1024,
		BasePreloadCount:                  5,
		BlockTimeMs:                       12_000,
		StrategyThreshold:                 20,
	}
}

// Load reads and decodes a TOML configuration file into cfg, overlaying it
// on whatever defaults cfg already holds.
func Load(file string, cfg *Config) error {
	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	err = tomlSettings.NewDecoder(bufio.NewReader(f)).Decode(cfg)
	if _, ok := err.(*toml.LineError); ok {
		err = errors.New(file + ", " + err.Error())
	}
	return err
}

// NormalizerConfig projects the network capability flags used by the
// normalizer.
func (c Config) NormalizerConfig() block.NetworkConfig {
	return c.Network.toBlockNetworkConfig()
}

// NewNormalizer builds a normalizer.Normalizer from this configuration.
func (c Config) NewNormalizer() *normalizer.Normalizer {
	return normalizer.New(c.NormalizerConfig())
}

// LoaderConfig projects the loader's tunable options. A zero request batch
// size falls back to a multiple of the expected average block size.
func (c Config) LoaderConfig() loader.Config {
	requestBatch := c.QueueLoaderRequestBlocksBatchSize
	if requestBatch == 0 {
		requestBatch = 64 * c.BlockSize
	}
	return loader.Config{
		StrategyName:           loader.StrategyName(c.QueueLoaderStrategyName),
		RequestBlocksBatchSize: requestBatch,
		BasePreloadCount:       c.BasePreloadCount,
		BlockTimeMs:            c.BlockTimeMs,
		StrategyThreshold:      c.StrategyThreshold,
	}
}

// QueueServiceConfig projects the full configuration needed to build a
// queueservice.QueueService. A zero iterator batch size falls back to a
// multiple of the expected average block size.
func (c Config) QueueServiceConfig() queueservice.Config {
	iterBatch := c.QueueIteratorBlocksBatchSize
	if iterBatch == 0 {
		iterBatch = 32 * c.BlockSize
	}
	return queueservice.Config{
		MaxQueueSize:           c.MaxQueueSize,
		MaxBlockHeight:         c.MaxBlockHeight,
		QueueIteratorBatchSize: iterBatch,
		Loader:                 c.LoaderConfig(),
	}
}
