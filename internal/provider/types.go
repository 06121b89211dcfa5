// Package provider defines the remote-node capability surface the loader and
// connection manager depend on, plus a concrete implementation over
// go-ethereum's rpc/ethclient packages.
package provider

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
)

// RawBlock is the normalizer's translation input for a fetched block. It
// wraps go-ethereum's own header/transaction types (rather than
// reinventing a parallel JSON-RPC schema) plus a SizeHint: the raw "size"
// as reported by the node, when the transport surfaced one. SizeHint == 0
// means "not provided", which routes the normalizer to its size-estimate
// fallback.
type RawBlock struct {
	Header       *gethtypes.Header
	Transactions gethtypes.Transactions
	SizeHint     uint64

	// TransactionsFrom holds the sender address the node reported for each
	// entry in Transactions, aligned by index. A signed transaction's RLP
	// encoding never carries its sender, so this is populated out-of-band
	// from the JSON-RPC response's own "from" field rather than recovered
	// locally. Nil when unavailable.
	TransactionsFrom []common.Address
}

// RawBlockWithReceipts bundles a RawBlock with its receipts, as returned by
// GetManyBlocksWithReceipts.
type RawBlockWithReceipts struct {
	RawBlock
	Receipts gethtypes.Receipts
}

// Capabilities describes what an individual provider connection supports.
type Capabilities struct {
	HasWebSocketSupport  bool
	IsWebSocketConnected bool
}

// NewBlockHandle is returned by SubscribeToNewBlocks; Unsubscribe is
// idempotent.
type NewBlockHandle interface {
	Unsubscribe()
}

// Provider is the capability surface exposed by a single remote node
// connection, consumed by the loader and the connection manager.
type Provider interface {
	Connect(ctx context.Context) error
	Disconnect() error

	Healthcheck(ctx context.Context) bool
	HealthcheckWebSocket(ctx context.Context) bool
	ReconnectWebSocket(ctx context.Context) error

	Capabilities() Capabilities

	GetBlockHeight(ctx context.Context) (uint64, error)

	GetManyBlocksByHeights(ctx context.Context, heights []uint64, fullTxs bool) ([]RawBlock, error)
	GetManyBlocksWithReceipts(ctx context.Context, heights []uint64, fullTxs bool) ([]RawBlockWithReceipts, error)
	GetManyBlocksByHashes(ctx context.Context, hashes []common.Hash, fullTxs bool) ([]RawBlock, error)

	// SubscribeToNewBlocks invokes cb with each new block number as it
	// arrives. The returned handle's Unsubscribe is idempotent and safe to
	// call concurrently with in-flight callback invocations.
	SubscribeToNewBlocks(ctx context.Context, cb func(blockNumber uint64)) (NewBlockHandle, error)
}
