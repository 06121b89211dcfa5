package queue

import "errors"

var (
	// ErrQueueFull is returned by Enqueue when currentSize >= maxQueueSize
	// before the new block is accounted for.
	ErrQueueFull = errors.New("queue: full")

	// ErrMaxHeightReached is returned by Enqueue when lastHeight >= maxBlockHeight.
	ErrMaxHeightReached = errors.New("queue: max height reached")

	// ErrOutOfOrder is returned by Enqueue when block.blockNumber != lastHeight+1.
	ErrOutOfOrder = errors.New("queue: block out of order")

	// ErrHashMismatch is returned by Dequeue when a supplied hash doesn't
	// match the current head.
	ErrHashMismatch = errors.New("queue: hash mismatch")

	// ErrNotAtHead is returned by Dequeue when there are no more blocks to
	// remove at the point a hash was supplied.
	ErrNotAtHead = errors.New("queue: not at head")
)
