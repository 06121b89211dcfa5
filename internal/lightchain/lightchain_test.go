package lightchain

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func mkLB(number uint64) LightBlock {
	return LightBlock{
		BlockNumber: number,
		Hash:        common.BigToHash(new(big.Int).SetUint64(number + 1)),
		ParentHash:  common.BigToHash(new(big.Int).SetUint64(number)),
	}
}

func chainOf(numbers ...uint64) []LightBlock {
	out := make([]LightBlock, len(numbers))
	for i, n := range numbers {
		out[i] = mkLB(n)
	}
	return out
}

func TestAddBlockExtendsAndValidates(t *testing.T) {
	lc := New(0)
	for _, b := range chainOf(100, 101, 102) {
		if err := lc.AddBlock(b); err != nil {
			t.Fatalf("AddBlock(%d): %v", b.BlockNumber, err)
		}
	}
	if !lc.ValidateChain() {
		t.Fatal("ValidateChain() = false, want true")
	}
	tail, ok := lc.Tail()
	if !ok || tail.BlockNumber != 102 {
		t.Fatalf("Tail() = %+v, %v", tail, ok)
	}
}

func TestAddBlockRejectsWrongParent(t *testing.T) {
	lc := New(0)
	if err := lc.AddBlock(mkLB(100)); err != nil {
		t.Fatalf("AddBlock(100): %v", err)
	}
	bad := mkLB(101)
	bad.ParentHash = common.Hash{0xff}
	if err := lc.AddBlock(bad); err == nil {
		t.Fatal("AddBlock with wrong parent hash: want error, got nil")
	}
	if lc.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 (rejected block must not mutate state)", lc.Len())
	}
}

func TestAddBlocksAllOrNothing(t *testing.T) {
	lc := New(0)
	if err := lc.AddBlock(mkLB(100)); err != nil {
		t.Fatalf("AddBlock(100): %v", err)
	}

	bad := chainOf(101, 102)
	bad[1].BlockNumber = 104 // breaks contiguity

	if err := lc.AddBlocks(bad); err == nil {
		t.Fatal("AddBlocks with broken contiguity: want error, got nil")
	}
	if lc.Len() != 1 {
		t.Fatalf("Len() after rejected AddBlocks = %d, want 1", lc.Len())
	}

	if err := lc.AddBlocks(chainOf(101, 102, 103)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	if !lc.ValidateChain() {
		t.Fatal("ValidateChain() = false after valid AddBlocks")
	}
}

func TestTruncateToBlock(t *testing.T) {
	lc := New(0)
	if err := lc.AddBlocks(chainOf(100, 101, 102, 103)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}

	if err := lc.TruncateToBlock(101); err != nil {
		t.Fatalf("TruncateToBlock(101): %v", err)
	}
	tail, ok := lc.Tail()
	if !ok || tail.BlockNumber != 101 {
		t.Fatalf("Tail() = %+v, %v, want 101", tail, ok)
	}
	if lc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", lc.Len())
	}

	if err := lc.TruncateToBlock(-1); err != nil {
		t.Fatalf("TruncateToBlock(-1): %v", err)
	}
	if lc.Len() != 0 {
		t.Fatalf("Len() after TruncateToBlock(-1) = %d, want 0", lc.Len())
	}

	if err := lc.TruncateToBlock(-2); err == nil {
		t.Fatal("TruncateToBlock(-2): want error")
	}
}

func TestTruncateRejectsAboveTail(t *testing.T) {
	lc := New(0)
	if err := lc.AddBlocks(chainOf(100, 101)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	if err := lc.TruncateToBlock(200); err == nil {
		t.Fatal("TruncateToBlock(200): want error, chain tail is 101")
	}
}

func TestTruncateBelowHeadEmptiesChain(t *testing.T) {
	lc := New(2)
	if err := lc.AddBlocks(chainOf(100, 101, 102)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	// maxSize 2 evicted height 100, so the head is now 101.
	head, ok := lc.Head()
	if !ok || head.BlockNumber != 101 {
		t.Fatalf("Head() = %+v, %v, want 101", head, ok)
	}

	if err := lc.TruncateToBlock(100); err != nil {
		t.Fatalf("TruncateToBlock(100): %v", err)
	}
	if lc.Len() != 0 {
		t.Fatalf("Len() after TruncateToBlock(100) = %d, want 0", lc.Len())
	}
}

func TestFindBlockByHeight(t *testing.T) {
	lc := New(0)
	if err := lc.AddBlocks(chainOf(100, 101, 102)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	b, ok := lc.FindBlockByHeight(101)
	if !ok || b.BlockNumber != 101 {
		t.Fatalf("FindBlockByHeight(101) = %+v, %v", b, ok)
	}
	if _, ok := lc.FindBlockByHeight(999); ok {
		t.Fatal("FindBlockByHeight(999): want not found")
	}
}

func TestEvictionOnOverflow(t *testing.T) {
	lc := New(2)
	if err := lc.AddBlocks(chainOf(100, 101, 102)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	if lc.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after eviction", lc.Len())
	}
	head, ok := lc.Head()
	if !ok || head.BlockNumber != 101 {
		t.Fatalf("Head() = %+v, %v, want 101 (100 evicted)", head, ok)
	}
}

func TestToArrayFromArrayRoundTrip(t *testing.T) {
	lc := New(0)
	if err := lc.AddBlocks(chainOf(100, 101, 102)); err != nil {
		t.Fatalf("AddBlocks: %v", err)
	}
	arr := lc.ToArray()

	lc2 := New(0)
	if err := lc2.FromArray(arr); err != nil {
		t.Fatalf("FromArray: %v", err)
	}
	if !lc2.ValidateChain() {
		t.Fatal("ValidateChain() = false after FromArray round-trip")
	}
	tail, ok := lc2.Tail()
	if !ok || tail.BlockNumber != 102 {
		t.Fatalf("Tail() after round-trip = %+v, %v", tail, ok)
	}
}
