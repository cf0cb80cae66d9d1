package supply

import (
	"math/big"
	"sync"
	"time"
)

// DefaultCooldown is the minimum wall-clock time between two projections.
const DefaultCooldown = 60 * time.Second

// TotalWei returns execution balances + beacon balances - beacon deposits.
// The result may be negative for an inconsistent snapshot.
func TotalWei(s Snapshot) *big.Int {
	total := new(big.Int).Add(s.ExecutionBalancesSum.BalancesSum, s.BeaconBalancesSum.BalancesSum)
	return total.Sub(total, s.BeaconDepositsSum.DepositsSum)
}

// ImpreciseSupply projects the exact total into ETH as a float64. Only the
// final conversion and the division by 10^18 round; the sum is exact.
func ImpreciseSupply(s Snapshot) float64 {
	wei, _ := new(big.Float).SetInt(TotalWei(s)).Float64()
	return wei / 1e18
}

// ProjectionState is the last projection handed to the caller.
type ProjectionState struct {
	LastComputedAt time.Time
	LastValue      float64
}

// Computed reports whether a projection has been made yet.
func (s ProjectionState) Computed() bool { return !s.LastComputedAt.IsZero() }

// MaybeRecompute returns the next state and the value to display. The value is
// recomputed from snap only when no projection exists yet or when at least
// cooldown has elapsed since the last one; otherwise the retained value is returned.
func MaybeRecompute(state ProjectionState, snap Snapshot, now time.Time, cooldown time.Duration) (ProjectionState, float64) {
	if state.Computed() && now.Sub(state.LastComputedAt) < cooldown {
		return state, state.LastValue
	}
	next := ProjectionState{LastComputedAt: now, LastValue: ImpreciseSupply(snap)}
	return next, next.LastValue
}

// Projector holds a ProjectionState for concurrent observers. Observe runs the
// cooldown check and the state update under one lock.
type Projector struct {
	mu       sync.Mutex
	state    ProjectionState
	cooldown time.Duration
}

func NewProjector(cooldown time.Duration) *Projector {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Projector{cooldown: cooldown}
}

// Observe feeds a newly arrived snapshot and returns the value to display and
// whether it was recomputed.
func (p *Projector) Observe(snap Snapshot, now time.Time) (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev := p.state.LastComputedAt
	next, v := MaybeRecompute(p.state, snap, now, p.cooldown)
	p.state = next
	return v, !next.LastComputedAt.Equal(prev)
}

// State returns a copy of the current projection.
func (p *Projector) State() ProjectionState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
