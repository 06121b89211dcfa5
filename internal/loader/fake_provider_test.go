package loader

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// fakeProvider serves synthetic blocks/receipts by height for loader tests,
// without any network I/O.
type fakeProvider struct {
	mu     sync.Mutex
	height uint64
}

func newFakeProvider(height uint64) *fakeProvider {
	return &fakeProvider{height: height}
}

func (f *fakeProvider) Connect(ctx context.Context) error { return nil }

func (f *fakeProvider) Disconnect() error { return nil }

func (f *fakeProvider) Healthcheck(ctx context.Context) bool { return true }

func (f *fakeProvider) HealthcheckWebSocket(ctx context.Context) bool { return true }

func (f *fakeProvider) ReconnectWebSocket(ctx context.Context) error { return nil }

func (f *fakeProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }

func (f *fakeProvider) GetBlockHeight(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.height, nil
}

func headerFor(height uint64) *gethtypes.Header {
	return &gethtypes.Header{
		Number:     new(big.Int).SetUint64(height),
		ParentHash: common.BigToHash(new(big.Int).SetUint64(height - 1)),
		Time:       height,
		GasLimit:   30_000_000,
	}
}

func (f *fakeProvider) GetManyBlocksByHeights(ctx context.Context, heights []uint64, fullTxs bool) ([]provider.RawBlock, error) {
	out := make([]provider.RawBlock, len(heights))
	for i, h := range heights {
		out[i] = provider.RawBlock{Header: headerFor(h), SizeHint: 1000}
	}
	return out, nil
}

func (f *fakeProvider) GetManyBlocksWithReceipts(ctx context.Context, heights []uint64, fullTxs bool) ([]provider.RawBlockWithReceipts, error) {
	out := make([]provider.RawBlockWithReceipts, len(heights))
	for i, h := range heights {
		out[i] = provider.RawBlockWithReceipts{
			RawBlock: provider.RawBlock{Header: headerFor(h), SizeHint: 1000},
		}
	}
	return out, nil
}

func (f *fakeProvider) GetManyBlocksByHashes(ctx context.Context, hashes []common.Hash, fullTxs bool) ([]provider.RawBlock, error) {
	return nil, nil
}

func (f *fakeProvider) SubscribeToNewBlocks(ctx context.Context, cb func(uint64)) (provider.NewBlockHandle, error) {
	return nil, nil
}

// fakeProviderSource always returns the same fakeProvider as active.
type fakeProviderSource struct {
	conn provider.Provider
}

func (s *fakeProviderSource) GetActive() (string, provider.Provider, bool) {
	return "fake", s.conn, true
}
