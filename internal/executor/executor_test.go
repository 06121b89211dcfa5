package executor

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/iterator"
)

type recordingConfirmer struct {
	confirmed [][]common.Hash
	fail      bool
}

func (c *recordingConfirmer) ConfirmProcessedBatch(hashes []common.Hash) ([]block.Block, error) {
	if c.fail {
		return nil, errors.New("confirm failed")
	}
	c.confirmed = append(c.confirmed, hashes)
	return nil, nil
}

func mkBlock(n uint64) block.Block {
	return block.Block{Hash: common.BigToHash(new(big.Int).SetUint64(n)), BlockNumber: n}
}

func TestLoggingExecutorConfirmsEveryHash(t *testing.T) {
	confirmer := &recordingConfirmer{}
	e := New(confirmer)

	batch := iterator.Batch{
		RequestID: "1",
		Blocks:    []block.Block{mkBlock(1), mkBlock(2)},
	}
	if err := e.HandleBatch(context.Background(), batch); err != nil {
		t.Fatalf("HandleBatch: %v", err)
	}
	if len(confirmer.confirmed) != 1 || len(confirmer.confirmed[0]) != 2 {
		t.Fatalf("confirmed = %+v, want one call with 2 hashes", confirmer.confirmed)
	}
	if confirmer.confirmed[0][0] != mkBlock(1).Hash || confirmer.confirmed[0][1] != mkBlock(2).Hash {
		t.Fatalf("confirmed hashes = %+v, want [1, 2]", confirmer.confirmed[0])
	}
}

func TestLoggingExecutorPropagatesConfirmError(t *testing.T) {
	confirmer := &recordingConfirmer{fail: true}
	e := New(confirmer)

	batch := iterator.Batch{RequestID: "1", Blocks: []block.Block{mkBlock(1)}}
	if err := e.HandleBatch(context.Background(), batch); err == nil {
		t.Fatal("HandleBatch: want error when confirm fails")
	}
}
