package monitor

import (
	"context"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/supply"
)

// Source defines where the engine reads supply parts from.
// To add a new upstream, create a struct that implements this interface
// and pass it to NewEngine.
type Source interface {
	// Name returns a unique identifier for this source (e.g., "ultrasound").
	Name() string

	// URL returns a human-facing link for reports.
	URL() string

	// FetchSupply fetches the current supply parts in wire form.
	FetchSupply(ctx context.Context) (supply.WireSnapshot, error)
}

// Snapshot is the latest decoded supply reading held by the engine.
type Snapshot struct {
	Source    string
	Supply    supply.Snapshot
	FetchedAt time.Time
}

// Projection is the throttled, display-only ETH supply.
type Projection struct {
	EthSupply  float64   `json:"eth_supply"`
	ComputedAt time.Time `json:"computed_at"`
}
