// Package normalizer translates raw provider payloads (go-ethereum's own
// header/transaction/receipt types) into this module's canonical block.Block
// representation, gating optional fields by the network's capability flags.
package normalizer

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/ethereum-mive/blockqueue/internal/block"
	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// ErrMissingBlockNumber is returned when the raw input carries no block
// number at all; a block number is required on every raw block and receipt.
var ErrMissingBlockNumber = errors.New("normalizer: missing block number")

// Normalizer is a pure translator; it holds only the immutable network
// configuration that gates optional fields.
type Normalizer struct {
	cfg block.NetworkConfig
}

// New creates a Normalizer bound to cfg.
func New(cfg block.NetworkConfig) *Normalizer {
	return &Normalizer{cfg: cfg}
}

// NormalizeBlock translates a RawBlock (no receipts) into a canonical Block.
func (n *Normalizer) NormalizeBlock(raw provider.RawBlock) (block.Block, error) {
	return n.normalize(raw, nil)
}

// NormalizeBlockWithReceipts translates a RawBlockWithReceipts into a
// canonical Block, attaching normalized receipts and folding their sizes
// into the total Size.
func (n *Normalizer) NormalizeBlockWithReceipts(raw provider.RawBlockWithReceipts) (block.Block, error) {
	return n.normalize(raw.RawBlock, raw.Receipts)
}

func (n *Normalizer) normalize(raw provider.RawBlock, rawReceipts gethtypes.Receipts) (block.Block, error) {
	if raw.Header == nil || raw.Header.Number == nil {
		return block.Block{}, ErrMissingBlockNumber
	}

	out := block.Block{
		Hash:        raw.Header.Hash(),
		ParentHash:  raw.Header.ParentHash,
		BlockNumber: raw.Header.Number.Uint64(),
		Timestamp:   raw.Header.Time,
		GasLimit:    raw.Header.GasLimit,
		GasUsed:     raw.Header.GasUsed,
	}

	n.applyCapabilityGatedFields(&out, raw.Header)
	out.Transactions = n.normalizeTransactions(raw.Transactions, raw.TransactionsFrom)

	if raw.SizeHint > 0 {
		out.SizeWithoutReceipts = raw.SizeHint
	} else {
		out.SizeWithoutReceipts = block.EstimateSizeWithoutReceipts(len(raw.Transactions))
	}

	if rawReceipts != nil {
		receipts, err := n.normalizeReceipts(rawReceipts)
		if err != nil {
			return block.Block{}, err
		}
		out.Receipts = receipts
	}
	out.RecomputeSize()

	return out, nil
}

// applyCapabilityGatedFields copies optional header fields onto out only
// when the network's capability flags say they are supported, dropping them
// otherwise even when the raw header carries them.
func (n *Normalizer) applyCapabilityGatedFields(out *block.Block, h *gethtypes.Header) {
	if n.cfg.HasEIP1559 && h.BaseFee != nil {
		out.BaseFeePerGas = h.BaseFee
	}
	if n.cfg.HasWithdrawals && h.WithdrawalsHash != nil {
		root := *h.WithdrawalsHash
		out.WithdrawalsRoot = &root
	}
	if n.cfg.HasBlobTransactions {
		if h.BlobGasUsed != nil {
			v := *h.BlobGasUsed
			out.BlobGasUsed = &v
		}
		if h.ExcessBlobGas != nil {
			v := *h.ExcessBlobGas
			out.ExcessBlobGas = &v
		}
		if h.ParentBeaconRoot != nil {
			root := *h.ParentBeaconRoot
			out.ParentBeaconBlockRoot = &root
		}
	}
}

// normalizeTransactions translates raw transactions, always preserving
// gas-pricing and signature-adjacent fields regardless of NetworkConfig,
// since a forked chain may carry heterogeneous transaction types.
func (n *Normalizer) normalizeTransactions(raw gethtypes.Transactions, froms []common.Address) []block.Transaction {
	if len(raw) == 0 {
		return nil
	}
	out := make([]block.Transaction, 0, len(raw))
	for i, tx := range raw {
		nt := block.Transaction{
			Hash:  tx.Hash(),
			To:    tx.To(),
			Nonce: tx.Nonce(),
			Value: tx.Value(),
			Gas:   tx.Gas(),
			Input: tx.Data(),
			Type:  tx.Type(),
		}
		if i < len(froms) {
			nt.From = froms[i]
		}
		if gp := tx.GasPrice(); gp != nil {
			nt.GasPrice = gp
		}
		if tx.Type() != gethtypes.LegacyTxType {
			if fc := tx.GasFeeCap(); fc != nil {
				nt.MaxFeePerGas = fc
			}
			if tc := tx.GasTipCap(); tc != nil {
				nt.MaxPriorityFeePerGas = tc
			}
		}
		if bfc := tx.BlobGasFeeCap(); bfc != nil {
			nt.MaxFeePerBlobGas = bfc
		}
		if hashes := tx.BlobHashes(); len(hashes) > 0 {
			nt.BlobVersionedHashes = hashes
		}
		if al := tx.AccessList(); len(al) > 0 {
			nt.AccessList = make([]block.AccessTuple, len(al))
			for i, t := range al {
				nt.AccessList[i] = block.AccessTuple{Address: t.Address, StorageKeys: t.StorageKeys}
			}
		}
		out = append(out, nt)
	}
	return out
}

func (n *Normalizer) normalizeReceipts(raw gethtypes.Receipts) ([]block.Receipt, error) {
	out := make([]block.Receipt, 0, len(raw))
	for _, r := range raw {
		if r.BlockNumber == nil {
			return nil, ErrMissingBlockNumber
		}
		nr := block.Receipt{
			TxHash:            r.TxHash,
			Status:            r.Status,
			GasUsed:           r.GasUsed,
			CumulativeGasUsed: r.CumulativeGasUsed,
		}
		if r.ContractAddress != (common.Address{}) {
			addr := r.ContractAddress
			nr.ContractAddress = &addr
		}
		if len(r.Logs) > 0 {
			nr.Logs = make([]block.Log, len(r.Logs))
			for i, l := range r.Logs {
				nr.Logs[i] = block.Log{
					Address:     l.Address,
					Topics:      l.Topics,
					Data:        l.Data,
					BlockHash:   l.BlockHash,
					BlockNumber: l.BlockNumber,
					TxHash:      l.TxHash,
					TxIndex:     l.TxIndex,
					LogIndex:    l.Index,
					Removed:     l.Removed,
				}
			}
		}
		if enc, ok := block.RLPEncodedSize(r); ok {
			nr.Size = enc
		} else {
			nr.Size = estimateReceiptSize(&nr)
		}
		out = append(out, nr)
	}
	return out, nil
}

// estimateReceiptSize is used only if RLP-encoding the raw receipt itself
// fails (shouldn't happen for a well-formed receipt); a small per-log
// estimate keeps the queue's byte budget sane regardless.
func estimateReceiptSize(r *block.Receipt) uint64 {
	return uint64(200 + 300*len(r.Logs))
}
