package loader

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/normalizer"
	"github.com/ethereum-mive/blockqueue/internal/provider"
	"github.com/ethereum-mive/blockqueue/internal/queue"
)

// maxCatchUpGap bounds how large a lastHeight/networkHeight gap the catch-up
// phase will fetch in a single batched call; beyond this the strategy
// refuses so no gap silently disappears and the loader's selection rule
// routes to Pull on the next tick instead.
const maxCatchUpGap = 256

// SubscribeStrategy catches up to the network head with one batched call,
// then streams new blocks as the provider announces them.
type SubscribeStrategy struct {
	providers  ProviderSource
	queue      *queue.BlockQueue
	normalizer *normalizer.Normalizer

	mu     sync.Mutex
	handle provider.NewBlockHandle
}

// NewSubscribeStrategy creates a Subscribe strategy.
func NewSubscribeStrategy(providers ProviderSource, q *queue.BlockQueue, n *normalizer.Normalizer) *SubscribeStrategy {
	return &SubscribeStrategy{providers: providers, queue: q, normalizer: n}
}

func (s *SubscribeStrategy) activeProvider() (provider.Provider, error) {
	_, conn, ok := s.providers.GetActive()
	if !ok {
		return nil, fmt.Errorf("subscribe: no active provider")
	}
	return conn, nil
}

// Load catches up the gap to networkHeight, then opens a subscription and
// blocks forwarding new blocks until ctx is cancelled or fetching or
// enqueueing an announced block fails. Stop unsubscribes but does not wake a
// blocked Load; neither does an error on the subscription itself.
func (s *SubscribeStrategy) Load(ctx context.Context, networkHeight uint64) error {
	if err := s.catchUp(ctx, networkHeight); err != nil {
		return err
	}
	return s.stream(ctx)
}

func (s *SubscribeStrategy) catchUp(ctx context.Context, networkHeight uint64) error {
	lastHeight := s.queue.LastHeight()
	if lastHeight >= networkHeight {
		return nil
	}
	if networkHeight-lastHeight > maxCatchUpGap {
		return fmt.Errorf("subscribe: catch-up gap %d exceeds safety bound %d", networkHeight-lastHeight, maxCatchUpGap)
	}

	heights := make([]uint64, 0, networkHeight-lastHeight)
	for h := lastHeight + 1; h <= networkHeight; h++ {
		heights = append(heights, h)
	}

	conn, err := s.activeProvider()
	if err != nil {
		return err
	}
	raws, err := conn.GetManyBlocksWithReceipts(ctx, heights, true)
	if err != nil {
		return fmt.Errorf("subscribe: catch-up: %w", err)
	}

	for _, raw := range raws {
		b, err := s.normalizer.NormalizeBlockWithReceipts(raw)
		if err != nil {
			return fmt.Errorf("subscribe: catch-up normalize: %w", err)
		}
		if b.BlockNumber <= s.queue.LastHeight() {
			continue
		}
		if err := s.queue.Enqueue(b); err != nil {
			return fmt.Errorf("subscribe: catch-up enqueue %d: %w", b.BlockNumber, err)
		}
	}
	return nil
}

func (s *SubscribeStrategy) stream(ctx context.Context) error {
	conn, err := s.activeProvider()
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	handle, err := conn.SubscribeToNewBlocks(ctx, func(blockNumber uint64) {
		if err := s.fetchAndEnqueue(ctx, conn, blockNumber); err != nil {
			select {
			case errCh <- err:
			default:
			}
		}
	})
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	s.mu.Lock()
	s.handle = handle
	s.mu.Unlock()
	defer s.Stop()

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

func (s *SubscribeStrategy) fetchAndEnqueue(ctx context.Context, conn provider.Provider, blockNumber uint64) error {
	if blockNumber <= s.queue.LastHeight() {
		return nil
	}
	if s.queue.MaxHeightReached() {
		return queue.ErrMaxHeightReached
	}
	if s.queue.IsFull() {
		return queue.ErrQueueFull
	}

	raws, err := conn.GetManyBlocksWithReceipts(ctx, []uint64{blockNumber}, true)
	if err != nil {
		return fmt.Errorf("subscribe: fetch %d: %w", blockNumber, err)
	}
	for _, raw := range raws {
		b, err := s.normalizer.NormalizeBlockWithReceipts(raw)
		if err != nil {
			return fmt.Errorf("subscribe: normalize %d: %w", blockNumber, err)
		}
		if b.BlockNumber <= s.queue.LastHeight() {
			continue
		}
		if err := s.queue.Enqueue(b); err != nil {
			return fmt.Errorf("subscribe: enqueue %d: %w", b.BlockNumber, err)
		}
	}
	return nil
}

// Stop unsubscribes idempotently; any in-flight per-block fetch is left to
// complete or be cancelled cooperatively via ctx.
func (s *SubscribeStrategy) Stop() {
	s.mu.Lock()
	handle := s.handle
	s.handle = nil
	s.mu.Unlock()
	if handle == nil {
		return
	}
	handle.Unsubscribe()
	log.Debug("subscribe: unsubscribed")
}
