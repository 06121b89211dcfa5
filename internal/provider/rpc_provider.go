package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/log"
	"github.com/ethereum/go-ethereum/rpc"
)

// rpcTransaction mirrors go-ethereum's own ethclient decode target: a
// transaction's RLP encoding never carries its sender, so the node's "from"
// field has to be captured alongside it via a second pass rather than
// recovered locally (types.Transaction's own UnmarshalJSON would otherwise
// swallow the whole object and leave "from" unparsed).
type rpcTransaction struct {
	tx   *gethtypes.Transaction
	from common.Address
}

func (t *rpcTransaction) UnmarshalJSON(msg []byte) error {
	if err := json.Unmarshal(msg, &t.tx); err != nil {
		return err
	}
	var extra struct {
		From *common.Address `json:"from"`
	}
	if err := json.Unmarshal(msg, &extra); err != nil {
		return err
	}
	if extra.From != nil {
		t.from = *extra.From
	}
	return nil
}

// rpcBlock is the decode target for a raw eth_getBlockBy* JSON-RPC result.
// The header knows how to unmarshal itself; the same message is decoded a
// second time for the fields the header alone doesn't carry, the embedded
// transaction list and the node's reported byte size. Embedding the header
// directly would promote its UnmarshalJSON and swallow the whole object, so
// the two passes stay explicit.
type rpcBlock struct {
	Header       *gethtypes.Header
	Transactions []rpcTransaction
	Size         uint64
}

func (b *rpcBlock) UnmarshalJSON(msg []byte) error {
	if err := json.Unmarshal(msg, &b.Header); err != nil {
		return err
	}
	var extra struct {
		Transactions []json.RawMessage `json:"transactions"`
		Size         *hexutil.Uint64   `json:"size"`
	}
	if err := json.Unmarshal(msg, &extra); err != nil {
		return err
	}
	if extra.Size != nil {
		b.Size = uint64(*extra.Size)
	}
	// With fullTxs=false the list holds bare hash strings; only full
	// transaction objects are decoded.
	for _, raw := range extra.Transactions {
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var tx rpcTransaction
		if err := json.Unmarshal(raw, &tx); err != nil {
			return err
		}
		b.Transactions = append(b.Transactions, tx)
	}
	return nil
}

// RPCProvider is a Provider backed by a JSON-RPC/WebSocket endpoint, using
// go-ethereum's rpc.Client for batched calls and ethclient.Client for
// higher-level single calls and subscriptions.
type RPCProvider struct {
	name string
	url  string

	mu     sync.RWMutex
	rpcCli *rpc.Client
	ethCli *ethclient.Client
	wsOK   bool
}

// NewRPCProvider creates a disconnected RPCProvider for the given endpoint.
// Call Connect before use.
func NewRPCProvider(name, url string) *RPCProvider {
	return &RPCProvider{name: name, url: url}
}

func (p *RPCProvider) Connect(ctx context.Context) error {
	cli, err := rpc.DialContext(ctx, p.url)
	if err != nil {
		return fmt.Errorf("provider %s: dial: %w", p.name, err)
	}
	p.mu.Lock()
	p.rpcCli = cli
	p.ethCli = ethclient.NewClient(cli)
	p.mu.Unlock()
	log.Info("provider connected", "name", p.name, "url", p.url)
	return nil
}

func (p *RPCProvider) Disconnect() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rpcCli != nil {
		p.rpcCli.Close()
		p.rpcCli, p.ethCli = nil, nil
	}
	return nil
}

func (p *RPCProvider) client() (*rpc.Client, *ethclient.Client, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rpcCli, p.ethCli, p.rpcCli != nil
}

func (p *RPCProvider) Healthcheck(ctx context.Context) bool {
	_, ethCli, ok := p.client()
	if !ok {
		return false
	}
	_, err := ethCli.BlockNumber(ctx)
	return err == nil
}

func (p *RPCProvider) HealthcheckWebSocket(ctx context.Context) bool {
	p.mu.RLock()
	wsOK := p.wsOK
	p.mu.RUnlock()
	return wsOK && p.Healthcheck(ctx)
}

func (p *RPCProvider) ReconnectWebSocket(ctx context.Context) error {
	// A single rpc.Client multiplexes both HTTP and WS semantics depending
	// on the dialed scheme; reconnecting the WS side means redialing.
	return p.Connect(ctx)
}

func (p *RPCProvider) Capabilities() Capabilities {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return Capabilities{
		HasWebSocketSupport:  true,
		IsWebSocketConnected: p.wsOK,
	}
}

func (p *RPCProvider) GetBlockHeight(ctx context.Context) (uint64, error) {
	_, ethCli, ok := p.client()
	if !ok {
		return 0, fmt.Errorf("provider %s: not connected", p.name)
	}
	return ethCli.BlockNumber(ctx)
}

func toBlockNumArg(height uint64) string {
	return hexutil.EncodeUint64(height)
}

// GetManyBlocksByHeights batches eth_getBlockByNumber across heights in a
// single round trip via rpc.Client.BatchCallContext.
func (p *RPCProvider) GetManyBlocksByHeights(ctx context.Context, heights []uint64, fullTxs bool) ([]RawBlock, error) {
	rpcCli, _, ok := p.client()
	if !ok {
		return nil, fmt.Errorf("provider %s: not connected", p.name)
	}

	results := make([]rpcBlock, len(heights))
	elems := make([]rpc.BatchElem, len(heights))
	for i, h := range heights {
		elems[i] = rpc.BatchElem{
			Method: "eth_getBlockByNumber",
			Args:   []interface{}{toBlockNumArg(h), fullTxs},
			Result: &results[i],
		}
	}
	if err := rpcCli.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("provider %s: batch getBlockByNumber: %w", p.name, err)
	}

	out := make([]RawBlock, 0, len(heights))
	for i, elem := range elems {
		if elem.Error != nil {
			return nil, fmt.Errorf("provider %s: getBlockByNumber(%d): %w", p.name, heights[i], elem.Error)
		}
		out = append(out, rawBlockFromRPC(&results[i]))
	}
	return out, nil
}

// rawBlockFromRPC splits an rpcBlock's per-transaction sender overlay out
// into RawBlock.TransactionsFrom, aligned by index with Transactions.
func rawBlockFromRPC(rb *rpcBlock) RawBlock {
	txs := make(gethtypes.Transactions, len(rb.Transactions))
	froms := make([]common.Address, len(rb.Transactions))
	for i, t := range rb.Transactions {
		txs[i] = t.tx
		froms[i] = t.from
	}
	return RawBlock{
		Header:           rb.Header,
		Transactions:     txs,
		SizeHint:         rb.Size,
		TransactionsFrom: froms,
	}
}

// GetManyBlocksWithReceipts fetches blocks the same way as
// GetManyBlocksByHeights, then batches eth_getBlockReceipts per height.
func (p *RPCProvider) GetManyBlocksWithReceipts(ctx context.Context, heights []uint64, fullTxs bool) ([]RawBlockWithReceipts, error) {
	blocks, err := p.GetManyBlocksByHeights(ctx, heights, fullTxs)
	if err != nil {
		return nil, err
	}

	rpcCli, _, ok := p.client()
	if !ok {
		return nil, fmt.Errorf("provider %s: not connected", p.name)
	}

	results := make([][]*gethtypes.Receipt, len(heights))
	elems := make([]rpc.BatchElem, len(heights))
	for i, h := range heights {
		elems[i] = rpc.BatchElem{
			Method: "eth_getBlockReceipts",
			Args:   []interface{}{toBlockNumArg(h)},
			Result: &results[i],
		}
	}
	if err := rpcCli.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("provider %s: batch getBlockReceipts: %w", p.name, err)
	}

	out := make([]RawBlockWithReceipts, 0, len(heights))
	for i, elem := range elems {
		if elem.Error != nil {
			return nil, fmt.Errorf("provider %s: getBlockReceipts(%d): %w", p.name, heights[i], elem.Error)
		}
		out = append(out, RawBlockWithReceipts{
			RawBlock: blocks[i],
			Receipts: results[i],
		})
	}
	return out, nil
}

// GetManyBlocksByHashes batches eth_getBlockByHash across hashes.
func (p *RPCProvider) GetManyBlocksByHashes(ctx context.Context, hashes []common.Hash, fullTxs bool) ([]RawBlock, error) {
	rpcCli, _, ok := p.client()
	if !ok {
		return nil, fmt.Errorf("provider %s: not connected", p.name)
	}

	results := make([]rpcBlock, len(hashes))
	elems := make([]rpc.BatchElem, len(hashes))
	for i, h := range hashes {
		elems[i] = rpc.BatchElem{
			Method: "eth_getBlockByHash",
			Args:   []interface{}{h, fullTxs},
			Result: &results[i],
		}
	}
	if err := rpcCli.BatchCallContext(ctx, elems); err != nil {
		return nil, fmt.Errorf("provider %s: batch getBlockByHash: %w", p.name, err)
	}

	out := make([]RawBlock, 0, len(hashes))
	for i, elem := range elems {
		if elem.Error != nil {
			return nil, fmt.Errorf("provider %s: getBlockByHash(%s): %w", p.name, hashes[i], elem.Error)
		}
		out = append(out, rawBlockFromRPC(&results[i]))
	}
	return out, nil
}

type rpcSubscription struct {
	sub  ethereum.Subscription
	once sync.Once
}

func (s *rpcSubscription) Unsubscribe() {
	s.once.Do(s.sub.Unsubscribe)
}

// SubscribeToNewBlocks opens a single eth_subscribe("newHeads") stream and
// invokes cb with each header's block number as it arrives.
func (p *RPCProvider) SubscribeToNewBlocks(ctx context.Context, cb func(blockNumber uint64)) (NewBlockHandle, error) {
	_, ethCli, ok := p.client()
	if !ok {
		return nil, fmt.Errorf("provider %s: not connected", p.name)
	}

	headers := make(chan *gethtypes.Header)
	sub, err := ethCli.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, fmt.Errorf("provider %s: subscribeNewHead: %w", p.name, err)
	}

	p.mu.Lock()
	p.wsOK = true
	p.mu.Unlock()

	go func() {
		defer func() {
			p.mu.Lock()
			p.wsOK = false
			p.mu.Unlock()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-sub.Err():
				if err != nil {
					log.Warn("provider subscription error", "name", p.name, "err", err)
				}
				return
			case h := <-headers:
				cb(h.Number.Uint64())
			}
		}
	}()

	return &rpcSubscription{sub: sub}, nil
}
