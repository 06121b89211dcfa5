// Package block defines the canonical, normalized block representation that
// flows through the queue, the loader and the iterator.
package block

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Log is a normalized EVM log entry.
type Log struct {
	Address     common.Address `json:"address"`
	Topics      []common.Hash  `json:"topics"`
	Data        []byte         `json:"data"`
	BlockHash   common.Hash    `json:"blockHash"`
	BlockNumber uint64         `json:"blockNumber"`
	TxHash      common.Hash    `json:"transactionHash"`
	TxIndex     uint           `json:"transactionIndex"`
	LogIndex    uint           `json:"logIndex"`
	Removed     bool           `json:"removed"`
}

// Receipt is a normalized transaction receipt.
type Receipt struct {
	TxHash            common.Hash     `json:"transactionHash"`
	Status            uint64          `json:"status"`
	GasUsed           uint64          `json:"gasUsed"`
	CumulativeGasUsed uint64          `json:"cumulativeGasUsed"`
	ContractAddress   *common.Address `json:"contractAddress,omitempty"`
	Logs              []Log           `json:"logs"`

	// Size is the estimated on-wire size of this receipt, used by the queue's
	// byte budget and the loader's sub-batch partitioning.
	Size uint64 `json:"-"`
}

// Transaction is a normalized transaction. Signature and pricing fields are
// preserved verbatim whenever the raw transaction carries them, independent
// of the network's capability flags: a forked chain may carry heterogeneous
// tx types regardless of the block's own feature set.
type Transaction struct {
	Hash  common.Hash     `json:"hash"`
	From  common.Address  `json:"from"`
	To    *common.Address `json:"to,omitempty"`
	Nonce uint64          `json:"nonce"`
	Value *big.Int        `json:"value"`
	Gas   uint64          `json:"gas"`
	Input []byte          `json:"input"`
	Type  uint8           `json:"type"`

	// Always copied when present on the raw transaction, regardless of
	// NetworkConfig capability flags.
	GasPrice             *big.Int      `json:"gasPrice,omitempty"`
	MaxFeePerGas         *big.Int      `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *big.Int      `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerBlobGas     *big.Int      `json:"maxFeePerBlobGas,omitempty"`
	BlobVersionedHashes  []common.Hash `json:"blobVersionedHashes,omitempty"`
	AccessList           []AccessTuple `json:"accessList,omitempty"`
}

// AccessTuple mirrors an EIP-2930 access list entry.
type AccessTuple struct {
	Address     common.Address `json:"address"`
	StorageKeys []common.Hash  `json:"storageKeys"`
}

// Withdrawal is an EIP-4895 validator withdrawal.
type Withdrawal struct {
	Index          uint64         `json:"index"`
	ValidatorIndex uint64         `json:"validatorIndex"`
	Address        common.Address `json:"address"`
	Amount         uint64         `json:"amount"`
}

// Block is the canonical, normalized block. blockNumber is authoritative for
// ordering throughout the pipeline.
type Block struct {
	Hash        common.Hash `json:"hash"`
	ParentHash  common.Hash `json:"parentHash"`
	BlockNumber uint64      `json:"blockNumber"`
	Timestamp   uint64      `json:"timestamp"`
	GasLimit    uint64      `json:"gasLimit"`
	GasUsed     uint64      `json:"gasUsed"`

	// Size is sizeWithoutReceipts plus the sum of all attached receipt sizes.
	// Invariant: Size == SizeWithoutReceipts + sum(receipt.Size).
	Size                uint64 `json:"size"`
	SizeWithoutReceipts uint64 `json:"sizeWithoutReceipts"`

	Transactions []Transaction `json:"transactions,omitempty"`
	Receipts     []Receipt     `json:"receipts,omitempty"`

	// Capability-gated fields: present only when NetworkConfig says the
	// network supports them, dropped otherwise even if the raw input had them.
	BaseFeePerGas         *big.Int     `json:"baseFeePerGas,omitempty"`
	Withdrawals           []Withdrawal `json:"withdrawals,omitempty"`
	WithdrawalsRoot       *common.Hash `json:"withdrawalsRoot,omitempty"`
	BlobGasUsed           *uint64      `json:"blobGasUsed,omitempty"`
	ExcessBlobGas         *uint64      `json:"excessBlobGas,omitempty"`
	ParentBeaconBlockRoot *common.Hash `json:"parentBeaconBlockRoot,omitempty"`
}

// HasReceipts reports whether this block carries attached receipts.
func (b *Block) HasReceipts() bool {
	return len(b.Receipts) > 0
}

// RecomputeSize recomputes Size from SizeWithoutReceipts and the attached
// receipts, enforcing the queue/normalizer invariant
// size = sizeWithoutReceipts + sum(receiptSize).
func (b *Block) RecomputeSize() {
	total := b.SizeWithoutReceipts
	for i := range b.Receipts {
		total += b.Receipts[i].Size
	}
	b.Size = total
}
