package connmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// fakeProvider is a minimal in-memory provider.Provider used to exercise the
// connection manager's pool/failover logic without a live node.
type fakeProvider struct {
	name string

	mu         sync.Mutex
	connected  bool
	healthy    bool
	connectErr error
}

func newFakeProvider(name string) *fakeProvider {
	return &fakeProvider{name: name, healthy: true}
}

func (f *fakeProvider) setHealthy(h bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.healthy = h
}

func (f *fakeProvider) setConnectErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectErr = err
}

func (f *fakeProvider) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.connectErr != nil {
		return f.connectErr
	}
	f.connected = true
	return nil
}

func (f *fakeProvider) Disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
	return nil
}

func (f *fakeProvider) Healthcheck(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected && f.healthy
}

func (f *fakeProvider) HealthcheckWebSocket(ctx context.Context) bool {
	return f.Healthcheck(ctx)
}

func (f *fakeProvider) ReconnectWebSocket(ctx context.Context) error {
	return f.Connect(ctx)
}

func (f *fakeProvider) Capabilities() provider.Capabilities {
	return provider.Capabilities{HasWebSocketSupport: false}
}

func (f *fakeProvider) GetBlockHeight(ctx context.Context) (uint64, error) {
	return 0, fmt.Errorf("fakeProvider: not implemented")
}

func (f *fakeProvider) GetManyBlocksByHeights(ctx context.Context, heights []uint64, fullTxs bool) ([]provider.RawBlock, error) {
	return nil, fmt.Errorf("fakeProvider: not implemented")
}

func (f *fakeProvider) GetManyBlocksWithReceipts(ctx context.Context, heights []uint64, fullTxs bool) ([]provider.RawBlockWithReceipts, error) {
	return nil, fmt.Errorf("fakeProvider: not implemented")
}

func (f *fakeProvider) GetManyBlocksByHashes(ctx context.Context, hashes []common.Hash, fullTxs bool) ([]provider.RawBlock, error) {
	return nil, fmt.Errorf("fakeProvider: not implemented")
}

func (f *fakeProvider) SubscribeToNewBlocks(ctx context.Context, cb func(uint64)) (provider.NewBlockHandle, error) {
	return nil, fmt.Errorf("fakeProvider: not implemented")
}
