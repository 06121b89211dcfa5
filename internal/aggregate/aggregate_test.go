package aggregate

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/lightchain"
	"github.com/ethereum-mive/blockqueue/internal/provider"
)

func h(n uint64) common.Hash { return common.BigToHash(new(big.Int).SetUint64(n)) }

// fakeHeaderProvider serves a fixed header per height, configured by the
// test, implementing only what the reorg walk calls.
type fakeHeaderProvider struct {
	byHeight map[uint64]*gethtypes.Header
}

func (f *fakeHeaderProvider) Connect(ctx context.Context) error { return nil }

func (f *fakeHeaderProvider) Disconnect() error { return nil }

func (f *fakeHeaderProvider) Healthcheck(ctx context.Context) bool { return true }

func (f *fakeHeaderProvider) HealthcheckWebSocket(ctx context.Context) bool { return true }

func (f *fakeHeaderProvider) ReconnectWebSocket(ctx context.Context) error { return nil }

func (f *fakeHeaderProvider) Capabilities() provider.Capabilities { return provider.Capabilities{} }

func (f *fakeHeaderProvider) GetBlockHeight(ctx context.Context) (uint64, error) { return 0, nil }

func (f *fakeHeaderProvider) GetManyBlocksByHashes(ctx context.Context, hashes []common.Hash, fullTxs bool) ([]provider.RawBlock, error) {
	return nil, nil
}

func (f *fakeHeaderProvider) GetManyBlocksWithReceipts(ctx context.Context, heights []uint64, fullTxs bool) ([]provider.RawBlockWithReceipts, error) {
	return nil, nil
}

func (f *fakeHeaderProvider) SubscribeToNewBlocks(ctx context.Context, cb func(uint64)) (provider.NewBlockHandle, error) {
	return nil, nil
}

func (f *fakeHeaderProvider) GetManyBlocksByHeights(ctx context.Context, heights []uint64, fullTxs bool) ([]provider.RawBlock, error) {
	out := make([]provider.RawBlock, len(heights))
	for i, height := range heights {
		out[i] = provider.RawBlock{Header: f.byHeight[height]}
	}
	return out, nil
}

type fixedProviderSource struct{ conn provider.Provider }

func (s *fixedProviderSource) GetActive() (string, provider.Provider, bool) {
	return "fake", s.conn, true
}

func lightBlockOf(header *gethtypes.Header) lightchain.LightBlock {
	return lightchain.LightBlock{
		BlockNumber: header.Number.Uint64(),
		Hash:        header.Hash(),
		ParentHash:  header.ParentHash,
	}
}

func TestResolveReorgFindsForkPoint(t *testing.T) {
	// Local chain [100:A, 101:B, 102:C]; the remote replaced 101 and 102
	// with B' and C' but still agrees on A, so the walk must find the fork
	// at 100 with [C, B] displaced, tip-first.
	headerA := &gethtypes.Header{Number: big.NewInt(100), ParentHash: h(99)}
	headerB := &gethtypes.Header{Number: big.NewInt(101), ParentHash: headerA.Hash(), Time: 1}
	headerC := &gethtypes.Header{Number: big.NewInt(102), ParentHash: headerB.Hash(), Time: 2}
	headerB2 := &gethtypes.Header{Number: big.NewInt(101), ParentHash: headerA.Hash(), Time: 3}
	headerC2 := &gethtypes.Header{Number: big.NewInt(102), ParentHash: headerB2.Hash(), Time: 4}

	chain := lightchain.New(0)
	local := []lightchain.LightBlock{lightBlockOf(headerA), lightBlockOf(headerB), lightBlockOf(headerC)}
	if err := chain.AddBlocks(local); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}

	prov := &fakeHeaderProvider{byHeight: map[uint64]*gethtypes.Header{
		100: headerA,
		101: headerB2,
		102: headerC2,
	}}
	a := New(chain, &fixedProviderSource{conn: prov})

	result, err := a.ResolveReorg(context.Background())
	if err != nil {
		t.Fatalf("ResolveReorg: %v", err)
	}
	if result.ForkHeight != 100 {
		t.Fatalf("ForkHeight = %d, want 100", result.ForkHeight)
	}
	if len(result.Removed) != 2 || result.Removed[0].BlockNumber != 102 || result.Removed[1].BlockNumber != 101 {
		t.Fatalf("Removed = %+v, want [102, 101] (tip-first)", result.Removed)
	}

	tail, ok := chain.Tail()
	if !ok || tail.BlockNumber != 100 {
		t.Fatalf("chain.Tail() = %+v, %v, want height 100 after truncation", tail, ok)
	}
}

func TestResolveReorgFailsBelowGenesis(t *testing.T) {
	// Local and remote disagree at every height down to 0, so the walk runs
	// out of chain without ever finding a fork point.
	headerA := &gethtypes.Header{Number: big.NewInt(0), ParentHash: h(0), Time: 1}
	headerA2 := &gethtypes.Header{Number: big.NewInt(0), ParentHash: h(0), Time: 2}

	chain := lightchain.New(0)
	if err := chain.AddBlock(lightBlockOf(headerA)); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	prov := &fakeHeaderProvider{byHeight: map[uint64]*gethtypes.Header{0: headerA2}}
	a := New(chain, &fixedProviderSource{conn: prov})

	if _, err := a.ResolveReorg(context.Background()); err == nil {
		t.Fatal("ResolveReorg: want error after walking below genesis")
	}
}

func TestDetectsReorgOnParentHashMismatch(t *testing.T) {
	chain := lightchain.New(0)
	if err := chain.AddBlock(lightchain.LightBlock{BlockNumber: 100, Hash: h(100), ParentHash: h(99)}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	a := New(chain, &fixedProviderSource{})

	extends := block.Block{BlockNumber: 101, ParentHash: h(100)}
	if a.DetectsReorg(extends) {
		t.Fatal("DetectsReorg: want false, head extends tail")
	}

	forked := block.Block{BlockNumber: 101, ParentHash: h(999)}
	if !a.DetectsReorg(forked) {
		t.Fatal("DetectsReorg: want true, head does not extend tail")
	}
}

func TestAppendConfirmedBatchPropagatesValidationError(t *testing.T) {
	chain := lightchain.New(0)
	if err := chain.AddBlock(lightchain.LightBlock{BlockNumber: 100, Hash: h(100), ParentHash: h(99)}); err != nil {
		t.Fatalf("AddBlock: %v", err)
	}
	a := New(chain, &fixedProviderSource{})

	good := block.Block{BlockNumber: 101, Hash: h(101), ParentHash: h(100)}
	if err := a.AppendConfirmedBatch([]block.Block{good}); err != nil {
		t.Fatalf("AppendConfirmedBatch: %v", err)
	}

	bad := block.Block{BlockNumber: 103, Hash: h(103), ParentHash: h(102)}
	if err := a.AppendConfirmedBatch([]block.Block{bad}); err == nil {
		t.Fatal("AppendConfirmedBatch: want error for non-contiguous block")
	}
}
