// Package connmgr manages a keyed pool of provider connections, exactly one
// of which is active at a time, with health monitoring, failover and
// exponential-backoff reconnection.
package connmgr

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"
	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/singleflight"

	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// Factory dials a fresh provider.Provider for the given registered name/URL
// pair. Kept separate from the Provider interface so tests can substitute a
// fake without touching network code.
type Factory func(name, url string) provider.Provider

type registration struct {
	name string
	url  string
	conn provider.Provider
}

// ConnectionManager owns a named pool of provider connections and keeps
// exactly one marked active.
type ConnectionManager struct {
	factory Factory

	mu      sync.Mutex
	order   []string
	conns   map[string]*registration
	active  string

	healthGroup singleflight.Group

	stopHealth   chan struct{}
	healthDone   chan struct{}
	reconnCancel context.CancelFunc
	reconnDone   chan struct{}
}

// New creates an empty ConnectionManager. Register providers with Add before
// calling Init.
func New(factory Factory) *ConnectionManager {
	return &ConnectionManager{
		factory: factory,
		conns:   make(map[string]*registration),
	}
}

// Add registers a provider by name in the pool, in the order Init will try
// them. Add must be called before Init.
func (m *ConnectionManager) Add(name, url string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.conns[name]; exists {
		return
	}
	m.order = append(m.order, name)
	m.conns[name] = &registration{name: name, url: url, conn: m.factory(name, url)}
}

// Init tries each registered provider in registration order; the first that
// connects becomes active. If every provider fails to dial, the returned
// error combines each provider's own dial failure via go-multierror rather
// than reporting only the last one.
func (m *ConnectionManager) Init(ctx context.Context) error {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	m.mu.Unlock()

	var dialErrs *multierror.Error
	for _, name := range order {
		m.mu.Lock()
		reg := m.conns[name]
		m.mu.Unlock()
		if err := reg.conn.Connect(ctx); err != nil {
			log.Warn("connmgr: provider connect failed", "name", name, "err", err)
			dialErrs = multierror.Append(dialErrs, fmt.Errorf("%s: %w", name, err))
			continue
		}
		m.mu.Lock()
		m.active = name
		m.mu.Unlock()
		log.Info("connmgr: active provider set", "name", name)
		m.startHealthMonitor()
		return nil
	}
	if dialErrs == nil {
		return fmt.Errorf("connmgr: no provider registered")
	}
	return fmt.Errorf("connmgr: no provider could connect: %w", dialErrs)
}

// Shutdown stops health/reconnection monitoring and disconnects every
// registered provider.
func (m *ConnectionManager) Shutdown() {
	m.stopHealthMonitor()
	m.stopReconnectLoop()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, reg := range m.conns {
		if err := reg.conn.Disconnect(); err != nil {
			log.Warn("connmgr: disconnect failed", "name", reg.name, "err", err)
		}
	}
	m.active = ""
}

// GetActive returns the name and connection of the currently active
// provider, or ok=false if the active slot is empty.
func (m *ConnectionManager) GetActive() (name string, conn provider.Provider, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == "" {
		return "", nil, false
	}
	return m.active, m.conns[m.active].conn, true
}

// GetByName returns the provider registered under name. If autoConnect is
// true and the provider reports unhealthy, GetByName attempts to reconnect
// it before returning.
func (m *ConnectionManager) GetByName(ctx context.Context, name string, autoConnect bool) (provider.Provider, error) {
	m.mu.Lock()
	reg, ok := m.conns[name]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("connmgr: no such provider %q", name)
	}
	if autoConnect && !reg.conn.Healthcheck(ctx) {
		if err := reg.conn.Connect(ctx); err != nil {
			return nil, fmt.Errorf("connmgr: reconnect %q: %w", name, err)
		}
	}
	return reg.conn, nil
}

// Switch makes name the active provider, disconnecting nothing (the
// previously active provider is left connected so callers may Switch back).
func (m *ConnectionManager) Switch(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.conns[name]; !ok {
		return fmt.Errorf("connmgr: no such provider %q", name)
	}
	m.active = name
	log.Info("connmgr: switched active provider", "name", name)
	return nil
}

// Remove unregisters name. If name is the active provider, Remove first
// attempts to switch to a backup; if no backup connects (including when name
// was the only provider), monitoring/reconnection stop and the active slot
// empties.
func (m *ConnectionManager) Remove(ctx context.Context, name string) error {
	m.mu.Lock()
	reg, ok := m.conns[name]
	wasActive := m.active == name
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("connmgr: no such provider %q", name)
	}

	if wasActive {
		if !m.failoverTo(ctx, name) {
			m.stopHealthMonitor()
			m.stopReconnectLoop()
			m.mu.Lock()
			m.active = ""
			m.mu.Unlock()
		}
	}

	reg.conn.Disconnect()
	m.mu.Lock()
	delete(m.conns, name)
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// Disconnect disconnects the named provider without removing it from the
// pool.
func (m *ConnectionManager) Disconnect(name string) error {
	m.mu.Lock()
	reg, ok := m.conns[name]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("connmgr: no such provider %q", name)
	}
	return reg.conn.Disconnect()
}

// ReportFailure lets a service wrapper report a call failure against a named
// provider; if that provider is the active one, it triggers the same
// failover path the health monitor would, returning the (possibly new)
// active connection.
func (m *ConnectionManager) ReportFailure(ctx context.Context, name string, err error, method string) (provider.Provider, error) {
	log.Warn("connmgr: reported failure", "provider", name, "method", method, "err", err)

	m.mu.Lock()
	isActive := m.active == name
	m.mu.Unlock()
	if !isActive {
		_, conn, ok := m.GetActive()
		if !ok {
			return nil, fmt.Errorf("connmgr: no active provider")
		}
		return conn, nil
	}

	if !m.failoverTo(ctx, name) {
		m.startReconnectLoop(fullReconnect)
	}
	_, conn, ok := m.GetActive()
	if !ok {
		return nil, fmt.Errorf("connmgr: no active provider after failover")
	}
	return conn, nil
}

// failoverTo attempts to connect another registered provider (in
// registration order, skipping excludeName) and, on success, makes it
// active and disconnects the old one. Reports whether a new active
// provider was established.
func (m *ConnectionManager) failoverTo(ctx context.Context, excludeName string) bool {
	m.mu.Lock()
	order := append([]string(nil), m.order...)
	old := m.conns[excludeName]
	m.mu.Unlock()

	for _, name := range order {
		if name == excludeName {
			continue
		}
		m.mu.Lock()
		reg := m.conns[name]
		m.mu.Unlock()
		if err := reg.conn.Connect(ctx); err != nil {
			continue
		}
		m.mu.Lock()
		m.active = name
		m.mu.Unlock()
		if old != nil {
			old.conn.Disconnect()
		}
		log.Info("connmgr: failed over", "from", excludeName, "to", name)
		return true
	}
	return false
}
