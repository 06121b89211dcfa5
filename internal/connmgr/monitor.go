package connmgr

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// reconnectKind selects which side of a provider connection a reconnection
// loop is trying to restore.
type reconnectKind int

const (
	fullReconnect reconnectKind = iota
	wsOnlyReconnect
)

func (k reconnectKind) String() string {
	if k == wsOnlyReconnect {
		return "websocket"
	}
	return "full"
}

func healthCheckBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 30 * time.Second
	b.Multiplier = 1.2
	b.MaxInterval = 120 * time.Second
	b.MaxElapsedTime = 0
	return b
}

func reconnectBackoff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 1 * time.Second
	b.Multiplier = 2
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0
	return b
}

// startHealthMonitor launches the single cooperative health-check timer.
// Calling it while a monitor is already running is a no-op.
func (m *ConnectionManager) startHealthMonitor() {
	m.mu.Lock()
	if m.stopHealth != nil {
		m.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	m.stopHealth = stop
	m.healthDone = done
	m.mu.Unlock()

	go m.healthLoop(stop, done)
}

func (m *ConnectionManager) stopHealthMonitor() {
	m.mu.Lock()
	stop, done := m.stopHealth, m.healthDone
	m.stopHealth, m.healthDone = nil, nil
	m.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

// healthLoop runs one tick per backoff-scheduled interval; at most one tick
// executes at a time via singleflight, so overlapping ticks are skipped
// without a hand-rolled atomic bool.
func (m *ConnectionManager) healthLoop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	b := healthCheckBackoff()
	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	for {
		select {
		case <-stop:
			return
		case <-timer.C:
			m.healthGroup.Do("tick", func() (interface{}, error) {
				m.runHealthTick()
				return nil, nil
			})
			timer.Reset(b.NextBackOff())
		}
	}
}

func (m *ConnectionManager) runHealthTick() {
	name, conn, ok := m.GetActive()
	if !ok {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if !conn.Healthcheck(ctx) {
		log.Warn("connmgr: health check failed", "provider", name)
		m.mu.Lock()
		moreThanOne := len(m.conns) > 1
		m.mu.Unlock()
		if moreThanOne && m.failoverTo(ctx, name) {
			return
		}
		m.startReconnectLoop(fullReconnect)
		return
	}

	caps := conn.Capabilities()
	if caps.HasWebSocketSupport && !conn.HealthcheckWebSocket(ctx) {
		log.Warn("connmgr: websocket health check failed", "provider", name)
		m.startReconnectLoop(wsOnlyReconnect)
	}
}

// startReconnectLoop starts a reconnection loop of the given kind against
// the current active provider. Starting a new reconnection cancels any in
// progress, since only one reconnection of either kind runs at a time.
func (m *ConnectionManager) startReconnectLoop(kind reconnectKind) {
	m.stopReconnectLoop()

	name, conn, ok := m.GetActive()
	if !ok {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	m.mu.Lock()
	m.reconnCancel = cancel
	m.reconnDone = done
	m.mu.Unlock()

	go m.reconnectLoop(ctx, done, name, conn, kind)
}

func (m *ConnectionManager) stopReconnectLoop() {
	m.mu.Lock()
	cancel, done := m.reconnCancel, m.reconnDone
	m.reconnCancel, m.reconnDone = nil, nil
	m.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (m *ConnectionManager) reconnectLoop(ctx context.Context, done chan<- struct{}, name string, conn provider.Provider, kind reconnectKind) {
	defer close(done)
	b := reconnectBackoff()
	timer := time.NewTimer(b.NextBackOff())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			var err error
			switch kind {
			case wsOnlyReconnect:
				err = conn.ReconnectWebSocket(ctx)
			default:
				err = conn.Connect(ctx)
			}
			if err == nil {
				log.Info("connmgr: reconnected", "provider", name, "kind", kind)
				return
			}
			log.Warn("connmgr: reconnect attempt failed", "provider", name, "kind", kind, "err", err)
			timer.Reset(b.NextBackOff())
		}
	}
}
