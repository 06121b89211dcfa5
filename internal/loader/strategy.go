// Package loader drives the ingestion pipeline's producer side: on each
// cooperative tick it queries the active provider's height, picks a
// strategy (Pull or Subscribe), and lets that strategy fetch and enqueue
// blocks.
package loader

import (
	"context"

	"github.com/ethereum-mive/blockqueue/internal/provider"
)

// Strategy is a swappable loader policy.
type Strategy interface {
	// Load drives one unit of work against networkHeight. For Pull this is
	// a single bounded phase; for Subscribe this call is long-running and
	// returns only when ctx is cancelled or fetching or enqueueing an
	// announced block fails. Stop cancels Subscribe's subscription but does
	// not by itself make a running Load return.
	Load(ctx context.Context, networkHeight uint64) error
	Stop()
}

// ProviderSource resolves the connection manager's current active
// provider. Satisfied by *connmgr.ConnectionManager; kept as a narrow
// interface so strategies don't import connmgr directly.
type ProviderSource interface {
	GetActive() (name string, conn provider.Provider, ok bool)
}
