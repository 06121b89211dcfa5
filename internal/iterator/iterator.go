// Package iterator drives the queue's consumer side: it dispatches
// size-bounded batches to an Executor one at a time, never advancing to the
// next batch before the previous one is acknowledged.
package iterator

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/queue"
)

// Executor consumes dispatched batches. HandleBatch must eventually lead to
// a call to the owning QueueService's ConfirmProcessedBatch for every
// successfully processed hash.
type Executor interface {
	HandleBatch(ctx context.Context, batch Batch) error
}

// Batch is a contiguous, size-bounded slice of FIFO-ordered blocks together
// with a request identifier for correlating logs/traces.
type Batch struct {
	RequestID string
	Blocks    []block.Block
}

// Iterator repeatedly pulls batches from a queue and dispatches them to an
// executor, enforcing at-most-one-in-flight.
type Iterator struct {
	queue          *queue.BlockQueue
	executor       Executor
	batchSizeBytes uint64
	blockTimeMs    uint64

	mu              sync.Mutex
	iterating       bool
	batchProcessed  chan struct{}
	nextRequestID   uint64

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates an Iterator bound to q and executor, dispatching batches
// bounded by batchSizeBytes.
func New(q *queue.BlockQueue, executor Executor, batchSizeBytes uint64, blockTimeMs uint64) *Iterator {
	it := &Iterator{
		queue:          q,
		executor:       executor,
		batchSizeBytes: batchSizeBytes,
		blockTimeMs:    blockTimeMs,
	}
	it.batchProcessed = closedSignal()
	return it
}

func closedSignal() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

func (it *Iterator) tickCap() time.Duration {
	max := time.Duration(it.blockTimeMs/2) * time.Millisecond
	if max < time.Second {
		max = time.Second
	}
	return max
}

// Start marks the iterator as running (idempotent) and launches its
// cooperative dispatch loop.
func (it *Iterator) Start(ctx context.Context) {
	it.mu.Lock()
	if it.iterating {
		it.mu.Unlock()
		return
	}
	it.iterating = true
	it.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	it.cancel = cancel
	it.done = make(chan struct{})
	go it.run(runCtx)
}

// Stop resolves any pending batchProcessed wait, destroys the timer loop,
// and clears the iterating flag. Any in-flight HandleBatch call is left to
// complete; it is owned by the executor.
func (it *Iterator) Stop() {
	it.mu.Lock()
	if !it.iterating {
		it.mu.Unlock()
		return
	}
	it.iterating = false
	cancel, done := it.cancel, it.done
	it.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	it.resolveBatchProcessed()
}

func (it *Iterator) run(ctx context.Context) {
	defer close(it.done)

	maxInterval := it.tickCap()
	interval := time.Second
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			advanced, err := it.tick(ctx)
			if err != nil {
				log.Warn("iterator: batch dispatch failed", "err", err)
				interval = time.Second
			} else if advanced {
				interval = time.Second
			} else {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
			}
			timer.Reset(interval)
		}
	}
}

// tick awaits the outstanding batchProcessed signal, peeks the next batch,
// and dispatches it if non-empty. Returns advanced=true when a batch was
// actually handed to the executor.
func (it *Iterator) tick(ctx context.Context) (advanced bool, err error) {
	it.mu.Lock()
	wait := it.batchProcessed
	it.mu.Unlock()

	select {
	case <-wait:
	case <-ctx.Done():
		return false, nil
	}

	blocks := it.queue.GetBatchUpToSize(it.batchSizeBytes)
	if len(blocks) == 0 {
		return false, nil
	}

	it.mu.Lock()
	it.batchProcessed = make(chan struct{})
	it.nextRequestID++
	reqID := it.nextRequestID
	it.mu.Unlock()

	if err := it.executor.HandleBatch(ctx, Batch{RequestID: strconv.FormatUint(reqID, 10), Blocks: blocks}); err != nil {
		it.resolveBatchProcessed()
		log.Warn("iterator: executor error, batch retryable", "err", err)
		return false, err
	}
	return true, nil
}

// Acknowledge resolves the outstanding batchProcessed signal, allowing the
// next batch to be dispatched. Called by the QueueService after it removes
// confirmed hashes from the queue's head.
func (it *Iterator) Acknowledge() {
	it.resolveBatchProcessed()
}

func (it *Iterator) resolveBatchProcessed() {
	it.mu.Lock()
	defer it.mu.Unlock()
	select {
	case <-it.batchProcessed:
		// already resolved
	default:
		close(it.batchProcessed)
	}
}
