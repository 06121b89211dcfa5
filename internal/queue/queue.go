// Package queue implements the bounded, ordered, in-memory FIFO block queue
// that sits between the loader (producer) and the iterator (consumer).
//
// The structure is a doubly-linked list of nodes plus a hash and a height
// index, giving amortized O(1) head access and O(1) lookups.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-mive/blockqueue/internal/block"
)

type qnode struct {
	block      block.Block
	prev, next *qnode
}

// BlockQueue is a single-owner monitor: every mutating operation is
// serialized behind mu. length, currentSize and lastHeight are also kept in
// atomics so readers of those transient values don't need to take the lock.
type BlockQueue struct {
	mu sync.Mutex

	head, tail *qnode
	byHash     map[common.Hash]*qnode
	byHeight   map[uint64]*qnode

	maxQueueSize   uint64
	maxBlockHeight uint64

	length      atomic.Int64
	currentSize atomic.Uint64
	lastHeight  atomic.Uint64
}

// New creates an empty BlockQueue starting at lastHeight, bounded by
// maxQueueSize bytes and maxBlockHeight.
func New(lastHeight, maxQueueSize, maxBlockHeight uint64) *BlockQueue {
	q := &BlockQueue{
		byHash:         make(map[common.Hash]*qnode),
		byHeight:       make(map[uint64]*qnode),
		maxQueueSize:   maxQueueSize,
		maxBlockHeight: maxBlockHeight,
	}
	q.lastHeight.Store(lastHeight)
	return q
}

// Length returns the number of blocks currently queued. Safe to call
// without holding the queue's lock.
func (q *BlockQueue) Length() int { return int(q.length.Load()) }

// CurrentSize returns the current total byte size of queued blocks. Safe to
// call without holding the queue's lock.
func (q *BlockQueue) CurrentSize() uint64 { return q.currentSize.Load() }

// LastHeight returns the height of the most recently enqueued block. Safe to
// call without holding the queue's lock.
func (q *BlockQueue) LastHeight() uint64 { return q.lastHeight.Load() }

// IsFull reports whether the queue has reached its byte budget.
func (q *BlockQueue) IsFull() bool { return q.currentSize.Load() >= q.maxQueueSize }

// MaxHeightReached reports whether the queue has ingested its configured
// maximum block height.
func (q *BlockQueue) MaxHeightReached() bool { return q.lastHeight.Load() >= q.maxBlockHeight }

// Headroom returns how many bytes remain before the queue is full.
func (q *BlockQueue) Headroom() uint64 {
	size := q.currentSize.Load()
	if size >= q.maxQueueSize {
		return 0
	}
	return q.maxQueueSize - size
}

// Enqueue appends b to the tail of the queue after validating ordering,
// height and size-budget invariants. On success it computes Size if missing
// and updates all indices. The normalized block.Block carries no cached
// raw-hex payloads, so nothing needs stripping before it is retained.
func (q *BlockQueue) Enqueue(b block.Block) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.currentSize.Load() >= q.maxQueueSize {
		return ErrQueueFull
	}
	if q.lastHeight.Load() >= q.maxBlockHeight {
		return ErrMaxHeightReached
	}
	if b.BlockNumber != q.lastHeight.Load()+1 {
		return ErrOutOfOrder
	}

	if b.Size == 0 {
		b.SizeWithoutReceipts = block.EstimateSizeWithoutReceipts(len(b.Transactions))
		b.RecomputeSize()
	}

	n := &qnode{block: b}
	if q.tail == nil {
		q.head, q.tail = n, n
	} else {
		n.prev = q.tail
		q.tail.next = n
		q.tail = n
	}
	q.byHash[b.Hash] = n
	q.byHeight[b.BlockNumber] = n

	q.length.Add(1)
	q.currentSize.Add(b.Size)
	q.lastHeight.Store(b.BlockNumber)
	return nil
}

// FirstBlock returns the block at the head of the queue, or false if empty.
func (q *BlockQueue) FirstBlock() (block.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == nil {
		return block.Block{}, false
	}
	return q.head.block, true
}

// GetBatchUpToSize walks the FIFO from the head, accumulating blocks until
// the next one would push the running total above maxBytes. It guarantees a
// non-empty batch whenever the queue itself is non-empty, even if the head
// block alone exceeds maxBytes: oversized blocks must not stall the
// pipeline.
func (q *BlockQueue) GetBatchUpToSize(maxBytes uint64) []block.Block {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.head == nil {
		return nil
	}
	var (
		batch []block.Block
		total uint64
	)
	for n := q.head; n != nil; n = n.next {
		if len(batch) > 0 && total+n.block.Size > maxBytes {
			break
		}
		batch = append(batch, n.block)
		total += n.block.Size
	}
	return batch
}

// Dequeue removes blocks strictly from the head, one per hash in hashes, in
// order. The current head must match the next hash exactly; any mismatch
// fails the whole call without mutating the queue.
func (q *BlockQueue) Dequeue(hashes []common.Hash) ([]block.Block, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cur := q.head
	for _, h := range hashes {
		if cur == nil {
			return nil, ErrNotAtHead
		}
		if cur.block.Hash != h {
			return nil, ErrHashMismatch
		}
		cur = cur.next
	}

	var removed []block.Block
	for range hashes {
		n := q.head
		removed = append(removed, n.block)
		q.head = n.next
		if q.head != nil {
			q.head.prev = nil
		} else {
			q.tail = nil
		}
		delete(q.byHash, n.block.Hash)
		delete(q.byHeight, n.block.BlockNumber)
		q.length.Add(-1)
		q.currentSize.Add(^(n.block.Size - 1)) // atomic subtract
	}
	return removed, nil
}

// FindBlocks returns every queued block whose hash is in hashes.
func (q *BlockQueue) FindBlocks(hashes []common.Hash) []block.Block {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []block.Block
	for _, h := range hashes {
		if n, ok := q.byHash[h]; ok {
			out = append(out, n.block)
		}
	}
	return out
}

// FindByHeight returns the queued block at height h, if any.
func (q *BlockQueue) FindByHeight(h uint64) (block.Block, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	n, ok := q.byHeight[h]
	if !ok {
		return block.Block{}, false
	}
	return n.block, true
}

// Reorganize clears all queued state and resets lastHeight to newLastHeight.
// Idempotent: calling it twice with the same height is equivalent to calling
// it once.
func (q *BlockQueue) Reorganize(newLastHeight uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
	q.lastHeight.Store(newLastHeight)
}

// Clear empties the queue without changing lastHeight.
func (q *BlockQueue) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.clearLocked()
}

func (q *BlockQueue) clearLocked() {
	q.head, q.tail = nil, nil
	q.byHash = make(map[common.Hash]*qnode)
	q.byHeight = make(map[uint64]*qnode)
	q.length.Store(0)
	q.currentSize.Store(0)
}
