package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/web3-frozen/ultrasound-monitor/internal/metrics"
	"github.com/web3-frozen/ultrasound-monitor/internal/store"
	"github.com/web3-frozen/ultrasound-monitor/internal/supply"
)

const (
	defaultPollInterval = 4 * time.Second
	fetchTimeout        = 15 * time.Second
	reportEvent         = "supply_daily_report"
)

// AlertFunc sends a message to a Telegram chat.
type AlertFunc func(chatID int64, message string) error

// SnapshotStore persists supply history and resolves report subscribers.
type SnapshotStore interface {
	InsertSupplySnapshot(ctx context.Context, r store.SupplyRecord) error
	NearestSupplySnapshot(ctx context.Context, at time.Time, tolerance time.Duration) (*store.SupplyRecord, error)
	GetDailyReportSubscribers(ctx context.Context, eventName string, hour int) ([]int64, error)
	CountSubscriptions(ctx context.Context, eventName string) (int, error)
	CountLinkedUsers(ctx context.Context) (int, error)
}

// Claimer grants a key to one replica for a window and remembers
// per-chat deliveries.
type Claimer interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Clear(ctx context.Context, key string)
	AlreadySent(ctx context.Context, key string) bool
	Record(ctx context.Context, key string, ttl time.Duration)
}

type Options struct {
	PollInterval time.Duration
	Cooldown     time.Duration
}

// Engine polls the supply source, keeps the latest decoded snapshot and the
// throttled projection, records history and sends the hourly report round.
type Engine struct {
	source    Source
	store     SnapshotStore
	claimer   Claimer
	logger    *slog.Logger
	alertFn   AlertFunc
	projector *supply.Projector
	interval  time.Duration
	now       func() time.Time

	mu     sync.RWMutex
	latest *Snapshot
}

// NewEngine builds an engine. store, claimer and alertFn may be nil; the
// features depending on them are then skipped.
func NewEngine(src Source, s SnapshotStore, claimer Claimer, logger *slog.Logger, alertFn AlertFunc, opts Options) *Engine {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	return &Engine{
		source:     src,
		store:      s,
		claimer:    claimer,
		logger:     logger,
		alertFn:    alertFn,
		projector:  supply.NewProjector(opts.Cooldown),
		interval:   opts.PollInterval,
		now:        time.Now,
	}
}

// PollInterval returns the configured poll interval.
func (e *Engine) PollInterval() time.Duration { return e.interval }

// SourceName returns the name of the polled source.
func (e *Engine) SourceName() string { return e.source.Name() }

// Latest returns the most recent decoded snapshot, or nil before the first poll.
func (e *Engine) Latest() *Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.latest
}

// Projection returns the throttled supply and whether one has been computed.
func (e *Engine) Projection() (Projection, bool) {
	st := e.projector.State()
	if !st.Computed() {
		return Projection{}, false
	}
	return Projection{EthSupply: st.LastValue, ComputedAt: st.LastComputedAt}, true
}

// Run polls until ctx is done and triggers a report round at every UTC hour.
func (e *Engine) Run(ctx context.Context) {
	// Initial fetch
	_ = e.Poll(ctx)

	pollTicker := time.NewTicker(e.interval)
	defer pollTicker.Stop()

	reportTimer := e.nextReportTimer()
	defer reportTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			_ = e.Poll(ctx)
		case <-reportTimer.C:
			e.SendReports(ctx, e.now().UTC())
			e.refreshBusinessMetrics(ctx)
			reportTimer = e.nextReportTimer()
		}
	}
}

// Poll fetches and decodes one snapshot. A failed fetch or decode keeps the
// previous snapshot.
func (e *Engine) Poll(ctx context.Context) error {
	name := e.source.Name()
	start := time.Now()
	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	wire, err := e.source.FetchSupply(fetchCtx)
	cancel()
	metrics.PollDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.PollTotal.WithLabelValues(name, "error").Inc()
		e.logger.Error("fetch supply failed", "source", name, "error", err)
		return fmt.Errorf("fetch %s: %w", name, err)
	}

	decoded, err := supply.Decode(wire)
	if err != nil {
		metrics.PollTotal.WithLabelValues(name, "decode_error").Inc()
		e.logger.Error("decode supply failed", "source", name, "error", err)
		return fmt.Errorf("decode %s: %w", name, err)
	}

	now := e.now()
	snap := &Snapshot{Source: name, Supply: decoded, FetchedAt: now}

	e.mu.Lock()
	prev := e.latest
	e.latest = snap
	e.mu.Unlock()

	metrics.PollTotal.WithLabelValues(name, "ok").Inc()
	metrics.PollLastSuccess.WithLabelValues(name).Set(float64(now.Unix()))
	metrics.SupplyBlockNumber.Set(float64(decoded.ExecutionBalancesSum.BlockNumber))
	metrics.SupplyBeaconSlot.Set(float64(decoded.BeaconBalancesSum.Slot))

	value, fresh := e.projector.Observe(decoded, now)
	if fresh {
		metrics.SupplyRecomputeTotal.Inc()
		metrics.SupplyEth.Set(value)
		e.logger.Info("supply projected",
			"eth_supply", value,
			"block_number", decoded.ExecutionBalancesSum.BlockNumber,
			"slot", decoded.BeaconBalancesSum.Slot,
		)
	}

	if e.store != nil && advanced(prev, snap) {
		if err := e.store.InsertSupplySnapshot(ctx, toRecord(snap)); err != nil {
			e.logger.Error("persist supply snapshot failed", "block_number", decoded.ExecutionBalancesSum.BlockNumber, "error", err)
		}
	}
	return nil
}

func advanced(prev, curr *Snapshot) bool {
	return prev == nil || curr.Supply.ExecutionBalancesSum.BlockNumber > prev.Supply.ExecutionBalancesSum.BlockNumber
}

func toRecord(s *Snapshot) store.SupplyRecord {
	return store.SupplyRecord{
		BlockNumber:          int64(s.Supply.ExecutionBalancesSum.BlockNumber),
		BeaconSlot:           int64(s.Supply.BeaconBalancesSum.Slot),
		ExecutionBalancesWei: s.Supply.ExecutionBalancesSum.BalancesSum.String(),
		BeaconBalancesWei:    s.Supply.BeaconBalancesSum.BalancesSum.String(),
		BeaconDepositsWei:    s.Supply.BeaconDepositsSum.DepositsSum.String(),
		EthSupply:            supply.ImpreciseSupply(s.Supply),
		FetchedAt:            s.FetchedAt,
	}
}

func (e *Engine) refreshBusinessMetrics(ctx context.Context) {
	if e.store == nil {
		return
	}
	if n, err := e.store.CountSubscriptions(ctx, reportEvent); err == nil {
		metrics.SubscriptionsActive.WithLabelValues(reportEvent).Set(float64(n))
	}
	if n, err := e.store.CountLinkedUsers(ctx); err == nil {
		metrics.TelegramLinkedUsers.Set(float64(n))
	}
}

func (e *Engine) nextReportTimer() *time.Timer {
	now := e.now().UTC()
	next := now.Truncate(time.Hour).Add(time.Hour)
	return time.NewTimer(next.Sub(now))
}
