// Package lightchain implements the network aggregate's in-memory,
// header-only chain used for reorg detection.
//
// The structure is a doubly-linked list of LightBlock nodes plus a
// height -> node index. There is no backing database and no RLP
// persistence; the chain lives and dies with the process.
package lightchain

import "github.com/ethereum/go-ethereum/common"

// LightBlock is a header-only snapshot held by the chain.
type LightBlock struct {
	BlockNumber      uint64
	Hash             common.Hash
	ParentHash       common.Hash
	TransactionsRoot *common.Hash
	ReceiptsRoot     *common.Hash
	StateRoot        *common.Hash
}

type node struct {
	block      LightBlock
	prev, next *node
}
