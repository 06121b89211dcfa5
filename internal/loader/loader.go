package loader

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/normalizer"
	"github.com/ethereum-mive/blockqueue/internal/queue"
)

// StrategyName selects which loader policy drives ingestion.
type StrategyName string

const (
	StrategyPull      StrategyName = "pull"
	StrategySubscribe StrategyName = "subscribe"
)

// defaultStrategyThreshold is the Pull/Subscribe switchover gap used when
// Config.StrategyThreshold is left at zero.
const defaultStrategyThreshold = 20

// Config holds the loader's tunable options.
type Config struct {
	StrategyName           StrategyName
	RequestBlocksBatchSize uint64
	BasePreloadCount       int
	BlockTimeMs            uint64
	StrategyThreshold      uint64
}

// Loader owns the ingestion tick loop: query height, select a strategy,
// drive it, and reschedule based on success/failure.
type Loader struct {
	cfg       Config
	providers ProviderSource
	queue     *queue.BlockQueue

	pull      *PullStrategy
	subscribe *SubscribeStrategy
	active    Strategy

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Loader with both strategies constructed up front; selection
// happens per tick.
func New(cfg Config, providers ProviderSource, q *queue.BlockQueue, n *normalizer.Normalizer) *Loader {
	if cfg.StrategyThreshold == 0 {
		cfg.StrategyThreshold = defaultStrategyThreshold
	}
	return &Loader{
		cfg:       cfg,
		providers: providers,
		queue:     q,
		pull:      NewPullStrategy(providers, q, n, cfg.RequestBlocksBatchSize, cfg.BasePreloadCount),
		subscribe: NewSubscribeStrategy(providers, q, n),
	}
}

func (l *Loader) tickCap() time.Duration {
	max := time.Duration(l.cfg.BlockTimeMs/2) * time.Millisecond
	if max < 3*time.Second {
		max = 3 * time.Second
	}
	return max
}

// Start launches the loader's tick loop in a background goroutine.
func (l *Loader) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	l.cancel = cancel
	l.done = make(chan struct{})
	go l.run(runCtx)
}

// Stop cancels the tick loop and waits for it to exit, stopping whatever
// strategy was last active.
func (l *Loader) Stop() {
	if l.cancel != nil {
		l.cancel()
	}
	if l.done != nil {
		<-l.done
	}
}

func (l *Loader) run(ctx context.Context) {
	defer close(l.done)

	maxInterval := l.tickCap()
	interval := time.Second
	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			l.stopActive()
			return
		case <-timer.C:
			if err := l.tick(ctx); err != nil {
				log.Warn("loader: tick failed", "err", err)
				l.stopActive()
				interval = time.Second
			} else {
				interval *= 2
				if interval > maxInterval {
					interval = maxInterval
				}
			}
			timer.Reset(interval)
		}
	}
}

func (l *Loader) stopActive() {
	if l.active != nil {
		l.active.Stop()
	}
}

func (l *Loader) tick(ctx context.Context) error {
	_, conn, ok := l.providers.GetActive()
	if !ok {
		return fmt.Errorf("loader: no active provider")
	}
	networkHeight, err := conn.GetBlockHeight(ctx)
	if err != nil {
		return fmt.Errorf("loader: query height: %w", err)
	}

	l.active = l.selectStrategy(networkHeight)
	return l.active.Load(ctx, networkHeight)
}

// selectStrategy picks the strategy for this tick: configured Pull always
// wins; otherwise a gap bigger than the threshold routes to Pull as a
// catch-up measure, else Subscribe.
func (l *Loader) selectStrategy(networkHeight uint64) Strategy {
	if l.cfg.StrategyName == StrategyPull {
		return l.pull
	}
	gap := int64(networkHeight) - int64(l.queue.LastHeight())
	if gap > int64(l.cfg.StrategyThreshold) {
		return l.pull
	}
	return l.subscribe
}
