// Package aggregate implements the network aggregate: it keeps the light
// chain in sync with confirmed batches and performs the backward reorg walk
// when a freshly observed head no longer extends the local tail.
package aggregate

import (
	"context"
	"fmt"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/lightchain"
	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// ProviderSource resolves the connection manager's current active
// provider, used by the reorg walk to fetch the remote view at each
// candidate height.
type ProviderSource interface {
	GetActive() (name string, conn provider.Provider, ok bool)
}

// ReorgResult describes a detected reorganization: the fork point and the
// list of local blocks displaced by it, in walk order (highest height
// first).
type ReorgResult struct {
	ForkHeight uint64
	Removed    []lightchain.LightBlock
}

// NetworkAggregate appends confirmed blocks to an in-memory light chain and
// detects/resolves reorgs against the active provider's view.
type NetworkAggregate struct {
	chain     *lightchain.LightChain
	providers ProviderSource
}

// New creates a NetworkAggregate over chain, using providers to fetch the
// remote view during reorg walks.
func New(chain *lightchain.LightChain, providers ProviderSource) *NetworkAggregate {
	return &NetworkAggregate{chain: chain, providers: providers}
}

func toLightBlock(b block.Block) lightchain.LightBlock {
	return lightchain.LightBlock{
		BlockNumber: b.BlockNumber,
		Hash:        b.Hash,
		ParentHash:  b.ParentHash,
	}
}

// AppendConfirmedBatch appends a confirmed, contiguous batch of blocks to
// the light chain. Validation errors propagate to the caller, who decides
// whether to trigger a reorg walk via DetectsReorg and ResolveReorg.
func (a *NetworkAggregate) AppendConfirmedBatch(blocks []block.Block) error {
	lbs := make([]lightchain.LightBlock, len(blocks))
	for i, b := range blocks {
		lbs[i] = toLightBlock(b)
	}
	return a.chain.AddBlocks(lbs)
}

// DetectsReorg reports whether head would fail to extend the current tail
// (empty chain never signals a reorg: any head is its first block).
func (a *NetworkAggregate) DetectsReorg(head block.Block) bool {
	tail, ok := a.chain.Tail()
	if !ok {
		return false
	}
	return head.ParentHash != tail.Hash
}

func (a *NetworkAggregate) activeProvider() (provider.Provider, error) {
	_, conn, ok := a.providers.GetActive()
	if !ok {
		return nil, fmt.Errorf("aggregate: no active provider")
	}
	return conn, nil
}

func (a *NetworkAggregate) fetchRemote(ctx context.Context, height uint64) (lightchain.LightBlock, error) {
	conn, err := a.activeProvider()
	if err != nil {
		return lightchain.LightBlock{}, err
	}
	raws, err := conn.GetManyBlocksByHeights(ctx, []uint64{height}, false)
	if err != nil {
		return lightchain.LightBlock{}, fmt.Errorf("aggregate: fetch remote %d: %w", height, err)
	}
	if len(raws) == 0 || raws[0].Header == nil {
		return lightchain.LightBlock{}, fmt.Errorf("aggregate: no remote block at %d", height)
	}
	h := raws[0].Header
	return lightchain.LightBlock{
		BlockNumber: h.Number.Uint64(),
		Hash:        h.Hash(),
		ParentHash:  h.ParentHash,
	}, nil
}

// ResolveReorg walks backward from the chain's current tail until it finds
// a height where the remote and local views agree on both hash and parent
// hash (the fork point), truncates the light chain to that height, and
// returns the fork height plus the locally displaced blocks in walk order
// (tip-first).
func (a *NetworkAggregate) ResolveReorg(ctx context.Context) (ReorgResult, error) {
	tail, ok := a.chain.Tail()
	if !ok {
		return ReorgResult{}, fmt.Errorf("aggregate: reorg walk requested on empty chain")
	}

	reorgHeight := int64(tail.BlockNumber)
	var removed []lightchain.LightBlock

	for {
		if reorgHeight < 0 {
			return ReorgResult{}, fmt.Errorf("aggregate: reorg walked below genesis without a fork point")
		}

		remote, err := a.fetchRemote(ctx, uint64(reorgHeight))
		if err != nil {
			return ReorgResult{}, err
		}
		local, hasLocal := a.chain.FindBlockByHeight(uint64(reorgHeight))

		if hasLocal && remote.Hash == local.Hash && remote.ParentHash == local.ParentHash {
			if err := a.chain.TruncateToBlock(reorgHeight); err != nil {
				return ReorgResult{}, fmt.Errorf("aggregate: truncate to fork height %d: %w", reorgHeight, err)
			}
			return ReorgResult{ForkHeight: uint64(reorgHeight), Removed: removed}, nil
		}

		if hasLocal {
			removed = append(removed, local)
		}
		reorgHeight--
	}
}
