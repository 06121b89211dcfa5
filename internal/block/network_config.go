package block

// NetworkConfig is immutable at runtime. Its capability flags gate which
// optional block/receipt fields survive normalization.
type NetworkConfig struct {
	ChainID                uint64
	NativeCurrencySymbol   string
	NativeCurrencyDecimals uint8
	BlockTimeMs            uint64

	HasEIP1559          bool
	HasWithdrawals      bool
	HasBlobTransactions bool
}
