package loader

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/normalizer"
	"github.com/ethereum-mive/blockqueue/internal/provider"
	"github.com/ethereum-mive/blockqueue/internal/queue"
)

// linearBackOff implements backoff.BackOff with a fixed-step linear
// schedule (50ms, 100ms, 150ms, ...), used for the Pull strategy's
// receipt-fetch retries.
type linearBackOff struct {
	step    time.Duration
	attempt int
}

func (b *linearBackOff) NextBackOff() time.Duration {
	b.attempt++
	return time.Duration(b.attempt) * b.step
}

func (b *linearBackOff) Reset() { b.attempt = 0 }

type preloadedBlock struct {
	height              uint64
	sizeWithoutReceipts uint64
	txCount             int
}

// PullStrategy fetches blocks in two phases: a preload phase that fetches
// headers+transactions in one batch, and a receipts phase that hydrates
// them in size-bounded sub-batches before enqueueing.
type PullStrategy struct {
	providers  ProviderSource
	queue      *queue.BlockQueue
	normalizer *normalizer.Normalizer

	requestBlocksBatchSize uint64
	basePreloadCount       int

	buffer []preloadedBlock

	prevDuration time.Duration
	lastDuration time.Duration
}

// NewPullStrategy creates a Pull strategy seeded with the configured
// initial preload count.
func NewPullStrategy(providers ProviderSource, q *queue.BlockQueue, n *normalizer.Normalizer, requestBlocksBatchSize uint64, basePreloadCount int) *PullStrategy {
	if basePreloadCount < 1 {
		basePreloadCount = 1
	}
	return &PullStrategy{
		providers:              providers,
		queue:                  q,
		normalizer:             n,
		requestBlocksBatchSize: requestBlocksBatchSize,
		basePreloadCount:       basePreloadCount,
	}
}

// Stop is a no-op for Pull: it runs to completion each tick and carries no
// background goroutine.
func (s *PullStrategy) Stop() {}

func (s *PullStrategy) activeProvider() (provider.Provider, error) {
	_, conn, ok := s.providers.GetActive()
	if !ok {
		return nil, fmt.Errorf("pull: no active provider")
	}
	return conn, nil
}

// Load runs phase A (preload) when the buffer is empty, then phase B
// (receipts + enqueue) when the buffer is non-empty and the queue has
// headroom for at least one sub-batch.
func (s *PullStrategy) Load(ctx context.Context, networkHeight uint64) error {
	if len(s.buffer) == 0 {
		return s.preload(ctx, networkHeight)
	}
	if s.queue.Headroom() >= s.requestBlocksBatchSize {
		return s.drainReceipts(ctx)
	}
	return nil
}

func (s *PullStrategy) preload(ctx context.Context, networkHeight uint64) error {
	if s.queue.MaxHeightReached() {
		return queue.ErrMaxHeightReached
	}
	if s.queue.IsFull() {
		return queue.ErrQueueFull
	}
	lastHeight := s.queue.LastHeight()
	if lastHeight >= networkHeight {
		return nil
	}

	s.adjustBasePreloadCount()

	end := lastHeight + uint64(s.basePreloadCount)
	if end > networkHeight {
		end = networkHeight
	}
	heights := make([]uint64, 0, end-lastHeight)
	for h := lastHeight + 1; h <= end; h++ {
		heights = append(heights, h)
	}

	conn, err := s.activeProvider()
	if err != nil {
		return err
	}
	raws, err := conn.GetManyBlocksByHeights(ctx, heights, true)
	if err != nil {
		return fmt.Errorf("pull: preload: %w", err)
	}

	buffer := make([]preloadedBlock, 0, len(raws))
	for _, raw := range raws {
		b, err := s.normalizer.NormalizeBlock(raw)
		if err != nil {
			return fmt.Errorf("pull: preload normalize: %w", err)
		}
		buffer = append(buffer, preloadedBlock{
			height:              b.BlockNumber,
			sizeWithoutReceipts: b.SizeWithoutReceipts,
			txCount:             len(b.Transactions),
		})
	}
	s.buffer = buffer
	return nil
}

// adjustBasePreloadCount implements the preload/receipt-duration feedback
// loop: a ratio above 1.2 (receipts got slower) grows the preload count,
// below 0.8 (receipts got faster) shrinks it, floored at 1.
func (s *PullStrategy) adjustBasePreloadCount() {
	if s.prevDuration <= 0 || s.lastDuration <= 0 {
		return
	}
	r := float64(s.lastDuration) / float64(s.prevDuration)
	switch {
	case r > 1.2:
		s.basePreloadCount = int(math.Ceil(1.25 * float64(s.basePreloadCount)))
	case r < 0.8:
		c := int(math.Round(0.75 * float64(s.basePreloadCount)))
		if c < 1 {
			c = 1
		}
		s.basePreloadCount = c
	}
}

// estimateReceiptSize approximates a block's attached-receipt byte size
// from its transaction count and header-phase size, used only to decide
// sub-batch partitioning before the real receipts are fetched.
func estimateReceiptSize(txCount int, sizeWithoutReceipts uint64) uint64 {
	var perTx uint64
	switch {
	case sizeWithoutReceipts > 2_000_000:
		perTx = 2048
	case sizeWithoutReceipts > 500_000:
		perTx = 1024
	default:
		perTx = 512
	}
	return uint64(txCount) * perTx
}

// partitionHeights groups buf into contiguous sub-batches whose estimated
// receipt sizes sum to at most maxBytes; a single oversized block still
// gets its own one-block sub-batch so it is never stalled.
func partitionHeights(buf []preloadedBlock, maxBytes uint64) [][]uint64 {
	var out [][]uint64
	var cur []uint64
	var total uint64
	for _, b := range buf {
		est := estimateReceiptSize(b.txCount, b.sizeWithoutReceipts)
		if len(cur) > 0 && total+est > maxBytes {
			out = append(out, cur)
			cur = nil
			total = 0
		}
		cur = append(cur, b.height)
		total += est
	}
	if len(cur) > 0 {
		out = append(out, cur)
	}
	return out
}

func (s *PullStrategy) drainReceipts(ctx context.Context) error {
	sort.Slice(s.buffer, func(i, j int) bool { return s.buffer[i].height < s.buffer[j].height })

	subBatches := partitionHeights(s.buffer, s.requestBlocksBatchSize)
	start := time.Now()

	for _, heights := range subBatches {
		var withReceipts []provider.RawBlockWithReceipts
		op := func() error {
			conn, err := s.activeProvider()
			if err != nil {
				return backoff.Permanent(err)
			}
			withReceipts, err = conn.GetManyBlocksWithReceipts(ctx, heights, true)
			return err
		}
		bo := backoff.WithContext(backoff.WithMaxRetries(&linearBackOff{step: 50 * time.Millisecond}, 3), ctx)
		if err := backoff.Retry(op, bo); err != nil {
			return fmt.Errorf("pull: receipts: %w", err)
		}

		lastHeight := s.queue.LastHeight()
		for _, raw := range withReceipts {
			b, err := s.normalizer.NormalizeBlockWithReceipts(raw)
			if err != nil {
				return fmt.Errorf("pull: normalize receipts: %w", err)
			}
			if b.BlockNumber <= lastHeight {
				continue
			}
			if err := s.queue.Enqueue(b); err != nil {
				return fmt.Errorf("pull: enqueue %d: %w", b.BlockNumber, err)
			}
			lastHeight = b.BlockNumber
		}
	}

	s.buffer = nil
	s.prevDuration = s.lastDuration
	s.lastDuration = time.Since(start)
	log.Debug("pull: drained receipts", "subBatches", len(subBatches), "duration", s.lastDuration)
	return nil
}
