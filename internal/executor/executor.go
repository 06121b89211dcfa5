// Package executor supplies a minimal, concrete Executor used to exercise
// the pipeline end to end: it has no command bus, no sagas, no
// snapshotting, just enough behavior to log and immediately confirm every
// dispatched batch.
package executor

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/iterator"
)

// Confirmer is the subset of QueueService the executor needs to acknowledge
// processed batches.
type Confirmer interface {
	ConfirmProcessedBatch(hashes []common.Hash) ([]block.Block, error)
}

// LoggingExecutor logs each batch it receives and immediately confirms every
// block in it. It is a demo/test fixture, not a reimplementation of the
// out-of-scope command/query/event framework.
type LoggingExecutor struct {
	confirmer Confirmer
}

// New creates a LoggingExecutor that confirms batches against confirmer.
func New(confirmer Confirmer) *LoggingExecutor {
	return &LoggingExecutor{confirmer: confirmer}
}

// HandleBatch logs the batch and confirms every hash in it.
func (e *LoggingExecutor) HandleBatch(ctx context.Context, batch iterator.Batch) error {
	hashes := make([]common.Hash, len(batch.Blocks))
	for i, b := range batch.Blocks {
		hashes[i] = b.Hash
	}
	log.Info("executor: handling batch", "requestId", batch.RequestID, "blocks", len(batch.Blocks))
	if _, err := e.confirmer.ConfirmProcessedBatch(hashes); err != nil {
		log.Warn("executor: confirm failed", "requestId", batch.RequestID, "err", err)
		return err
	}
	return nil
}
