package lightchain

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidExtension is returned by AddBlock/AddBlocks when the proposed
	// block does not extend the current tail (wrong height or wrong parent
	// hash).
	ErrInvalidExtension = errors.New("lightchain: block does not extend tail")

	// ErrInvalidTruncateHeight is returned by TruncateToBlock for any height
	// below -1 or above the current tail.
	ErrInvalidTruncateHeight = errors.New("lightchain: invalid truncate height")
)

// LightChain is an ordered, doubly-linked list of LightBlock headers with a
// height index, a maximum retained size, and FIFO eviction of the head on
// overflow.
type LightChain struct {
	mu sync.Mutex

	head, tail *node
	size       int
	maxSize    int

	byHeight map[uint64]*node
}

// New creates a LightChain retaining at most maxSize blocks.
func New(maxSize int) *LightChain {
	return &LightChain{
		maxSize:  maxSize,
		byHeight: make(map[uint64]*node),
	}
}

// Len returns the number of blocks currently retained.
func (lc *LightChain) Len() int {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.size
}

// Tail returns the highest-height block, or false if the chain is empty.
func (lc *LightChain) Tail() (LightBlock, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.tail == nil {
		return LightBlock{}, false
	}
	return lc.tail.block, true
}

// Head returns the lowest-height block, or false if the chain is empty.
func (lc *LightChain) Head() (LightBlock, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if lc.head == nil {
		return LightBlock{}, false
	}
	return lc.head.block, true
}

// validatesExtension reports whether b is a valid extension of tail: either
// tail is nil (empty chain, anything is accepted as the new head) or b
// strictly follows tail by height and parent hash.
func validatesExtension(tail *node, b LightBlock) bool {
	if tail == nil {
		return true
	}
	return b.BlockNumber == tail.block.BlockNumber+1 && b.ParentHash == tail.block.Hash
}

// AddBlock appends b to the tail of the chain after validating it against
// the current tail. Rejects without mutation if the block does not extend
// the chain.
func (lc *LightChain) AddBlock(b LightBlock) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	return lc.addBlockLocked(b)
}

func (lc *LightChain) addBlockLocked(b LightBlock) error {
	if !validatesExtension(lc.tail, b) {
		return fmt.Errorf("%w: number=%d parent=%s", ErrInvalidExtension, b.BlockNumber, b.ParentHash)
	}
	n := &node{block: b}
	if lc.tail == nil {
		lc.head, lc.tail = n, n
	} else {
		n.prev = lc.tail
		lc.tail.next = n
		lc.tail = n
	}
	lc.byHeight[b.BlockNumber] = n
	lc.size++
	lc.evictOverflowLocked()
	return nil
}

func (lc *LightChain) evictOverflowLocked() {
	for lc.maxSize > 0 && lc.size > lc.maxSize && lc.head != nil {
		old := lc.head
		lc.head = old.next
		if lc.head != nil {
			lc.head.prev = nil
		} else {
			lc.tail = nil
		}
		delete(lc.byHeight, old.block.BlockNumber)
		lc.size--
	}
}

// AddBlocks validates bs as a contiguous extension of the current tail and
// commits all-or-nothing: on any validation failure no block is added.
func (lc *LightChain) AddBlocks(bs []LightBlock) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if len(bs) == 0 {
		return nil
	}
	prev := lc.tail
	for i, b := range bs {
		if !validatesExtension(prev, b) {
			return fmt.Errorf("%w: index=%d number=%d", ErrInvalidExtension, i, b.BlockNumber)
		}
		prev = &node{block: b}
	}
	for _, b := range bs {
		if err := lc.addBlockLocked(b); err != nil {
			// Unreachable: already validated above, but fail loudly rather
			// than leave a partial write if the invariants ever drift.
			return err
		}
	}
	return nil
}

// TruncateToBlock removes every node with BlockNumber > h. h == -1 empties
// the chain entirely. Rejects h < -1 or h greater than the current tail
// height.
func (lc *LightChain) TruncateToBlock(h int64) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if h == -1 {
		lc.head, lc.tail = nil, nil
		lc.size = 0
		lc.byHeight = make(map[uint64]*node)
		return nil
	}
	if h < -1 {
		return ErrInvalidTruncateHeight
	}
	if lc.tail != nil && uint64(h) > lc.tail.block.BlockNumber {
		return ErrInvalidTruncateHeight
	}
	if lc.tail == nil {
		return nil
	}
	if uint64(h) < lc.head.block.BlockNumber {
		// h names a height the chain no longer retains (evicted off the
		// head) but is still <= tail, so every retained node has
		// blockNumber > h: truncating to h empties the chain, same as -1.
		lc.head, lc.tail = nil, nil
		lc.size = 0
		lc.byHeight = make(map[uint64]*node)
		return nil
	}

	n, ok := lc.byHeight[uint64(h)]
	if !ok {
		return ErrInvalidTruncateHeight
	}
	cur := n.next
	for cur != nil {
		next := cur.next
		delete(lc.byHeight, cur.block.BlockNumber)
		lc.size--
		cur = next
	}
	n.next = nil
	lc.tail = n
	return nil
}

// ValidateChain reports whether every non-head node properly links to its
// predecessor by parent hash and sequential height.
func (lc *LightChain) ValidateChain() bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	for n := lc.head; n != nil; n = n.next {
		if n.prev == nil {
			continue
		}
		if n.block.ParentHash != n.prev.block.Hash {
			return false
		}
		if n.block.BlockNumber != n.prev.block.BlockNumber+1 {
			return false
		}
	}
	return true
}

// ValidateNextBlocks reports whether bs would be accepted as a contiguous
// extension of the current tail by AddBlocks, without mutating the chain.
func (lc *LightChain) ValidateNextBlocks(bs []LightBlock) bool {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	prev := lc.tail
	for _, b := range bs {
		if !validatesExtension(prev, b) {
			return false
		}
		prev = &node{block: b}
	}
	return true
}

// FindBlockByHeight performs an O(1) lookup via the height index.
func (lc *LightChain) FindBlockByHeight(h uint64) (LightBlock, bool) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	n, ok := lc.byHeight[h]
	if !ok {
		return LightBlock{}, false
	}
	return n.block, true
}

// GetLastNBlocks returns up to the last n blocks, ascending by height.
func (lc *LightChain) GetLastNBlocks(n int) []LightBlock {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	if n <= 0 || lc.tail == nil {
		return nil
	}
	var rev []LightBlock
	cur := lc.tail
	for cur != nil && len(rev) < n {
		rev = append(rev, cur.block)
		cur = cur.prev
	}
	out := make([]LightBlock, len(rev))
	for i, b := range rev {
		out[len(rev)-1-i] = b
	}
	return out
}

// ToArray returns the full chain, ascending by height, as a plain slice, so
// snapshotting collaborators can persist and restore the chain as an
// ordered list.
func (lc *LightChain) ToArray() []LightBlock {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	out := make([]LightBlock, 0, lc.size)
	for n := lc.head; n != nil; n = n.next {
		out = append(out, n.block)
	}
	return out
}

// FromArray replaces the chain's contents with bs, which must already be a
// valid ascending, contiguous chain.
func (lc *LightChain) FromArray(bs []LightBlock) error {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	lc.head, lc.tail = nil, nil
	lc.size = 0
	lc.byHeight = make(map[uint64]*node)

	for _, b := range bs {
		if err := lc.addBlockLocked(b); err != nil {
			return err
		}
	}
	return nil
}
