// Package queueservice wires the queue, loader, iterator and network
// aggregate into the single entry point external callers use: Start,
// ReorganizeBlocks, ConfirmProcessedBatch, GetBlocksByHashes.
package queueservice

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/aggregate"
	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/iterator"
	"github.com/ethereum-mive/blockqueue/internal/loader"
	"github.com/ethereum-mive/blockqueue/internal/normalizer"
	"github.com/ethereum-mive/blockqueue/internal/queue"
)

// Config bundles the options QueueService needs to size and configure its
// owned queue and loader.
type Config struct {
	MaxQueueSize           uint64
	MaxBlockHeight         uint64
	QueueIteratorBatchSize uint64
	Loader                 loader.Config
}

// QueueService is the sole entry point the rest of the system uses to drive
// ingestion: it owns the queue, the loader, the iterator and the network
// aggregate, and exposes the lifecycle/confirmation surface described for
// external callers.
type QueueService struct {
	cfg        Config
	providers  loader.ProviderSource
	normalizer *normalizer.Normalizer

	queue     *queue.BlockQueue
	aggregate *aggregate.NetworkAggregate
	loader    *loader.Loader
	iterator  *iterator.Iterator

	ctx    context.Context
	cancel context.CancelFunc
}

// New builds a QueueService bound to chain and providers. The executor is
// supplied to Start rather than New, since it typically needs a reference
// back to the running QueueService to confirm batches.
func New(cfg Config, providers loader.ProviderSource, n *normalizer.Normalizer, chain *aggregate.NetworkAggregate) *QueueService {
	return &QueueService{
		cfg:        cfg,
		providers:  providers,
		normalizer: n,
		aggregate:  chain,
	}
}

// Start initializes the queue at indexedHeight and launches the loader and
// iterator goroutines. executor receives dispatched batches.
func (s *QueueService) Start(ctx context.Context, indexedHeight uint64, executor iterator.Executor) error {
	if s.cancel != nil {
		return fmt.Errorf("queueservice: already started")
	}

	s.queue = queue.New(indexedHeight, s.cfg.MaxQueueSize, s.cfg.MaxBlockHeight)
	s.loader = loader.New(s.cfg.Loader, s.providers, s.queue, s.normalizer)
	s.iterator = iterator.New(s.queue, executor, s.cfg.QueueIteratorBatchSize, s.cfg.Loader.BlockTimeMs)

	runCtx, cancel := context.WithCancel(ctx)
	s.ctx, s.cancel = runCtx, cancel

	s.loader.Start(runCtx)
	s.iterator.Start(runCtx)
	log.Info("queueservice: started", "indexedHeight", indexedHeight)
	return nil
}

// Stop tears down the loader and iterator goroutines. Safe to call even if
// Start was never called.
func (s *QueueService) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	if s.iterator != nil {
		s.iterator.Stop()
	}
	if s.loader != nil {
		s.loader.Stop()
	}
	s.cancel = nil
}

// ReorganizeBlocks discards every queued block and resets the queue's last
// height to newStartHeight, so the loader resumes from there on its next
// tick. Callers typically invoke this after the network aggregate's
// ResolveReorg reports a fork height.
func (s *QueueService) ReorganizeBlocks(newStartHeight uint64) {
	s.queue.Reorganize(newStartHeight)
	log.Info("queueservice: reorganized", "newStartHeight", newStartHeight)
}

// ConfirmProcessedBatch removes hashes from the head of the queue (failing
// if they are not exactly the current head, in order), appends them to the
// network aggregate's light chain, and wakes the iterator for its next
// batch. Returns the removed blocks.
//
// The queue itself only enforces height contiguity, so a reorg surfaces
// here instead: a confirmed batch whose first block no longer extends the
// aggregate's light chain by parent hash is the reorg signal, and this runs
// the backward fork-point walk and truncates both the light chain and the
// queue to the height it finds, rather than failing the confirmation.
func (s *QueueService) ConfirmProcessedBatch(hashes []common.Hash) ([]block.Block, error) {
	removed, err := s.queue.Dequeue(hashes)
	if err != nil {
		return nil, fmt.Errorf("queueservice: confirm: %w", err)
	}
	defer s.iterator.Acknowledge()

	if len(removed) > 0 && s.aggregate.DetectsReorg(removed[0]) {
		if err := s.resolveReorg(); err != nil {
			return nil, fmt.Errorf("queueservice: confirm: %w", err)
		}
		return removed, nil
	}

	if err := s.aggregate.AppendConfirmedBatch(removed); err != nil {
		// DetectsReorg above should already have caught a mismatched head;
		// fall back to the same walk if one slips through regardless (e.g.
		// the mismatch only surfaces deeper into a multi-block batch).
		log.Warn("queueservice: confirmed batch failed to extend chain, resolving reorg", "err", err)
		if rerr := s.resolveReorg(); rerr != nil {
			return nil, fmt.Errorf("queueservice: append confirmed batch: %w (reorg walk: %v)", err, rerr)
		}
	}
	return removed, nil
}

// resolveReorg runs the network aggregate's backward fork-point walk and
// truncates the queue to the height it finds.
func (s *QueueService) resolveReorg() error {
	result, err := s.aggregate.ResolveReorg(s.ctx)
	if err != nil {
		return fmt.Errorf("resolve reorg: %w", err)
	}
	s.queue.Reorganize(result.ForkHeight)
	log.Warn("queueservice: reorganized", "forkHeight", result.ForkHeight, "removed", len(result.Removed))
	return nil
}

// GetBlocksByHashes returns every currently queued block matching hashes.
func (s *QueueService) GetBlocksByHashes(hashes []common.Hash) []block.Block {
	return s.queue.FindBlocks(hashes)
}
