package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ultrasound"

// ── HTTP request metrics (RED method) ──────────────────────────────────

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total number of HTTP requests.",
	}, []string{"method", "path", "status_code"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path"})

	HTTPRequestsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_in_flight",
		Help:      "Number of HTTP requests currently being processed.",
	})
)

// ── Polling / source metrics ───────────────────────────────────────────

var (
	PollTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "total",
		Help:      "Total number of poll attempts per source.",
	}, []string{"source", "status"})

	PollDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "duration_seconds",
		Help:      "Duration of poll fetch per source in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
	}, []string{"source"})

	PollLastSuccess = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "poll",
		Name:      "last_success_timestamp",
		Help:      "Unix timestamp of the last successful poll per source.",
	}, []string{"source"})
)

// ── Supply metrics ─────────────────────────────────────────────────────

var (
	SupplyEth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supply",
		Name:      "eth",
		Help:      "Throttled imprecise ETH supply.",
	})

	SupplyBlockNumber = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supply",
		Name:      "block_number",
		Help:      "Execution block number of the latest supply snapshot.",
	})

	SupplyBeaconSlot = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "supply",
		Name:      "beacon_slot",
		Help:      "Beacon slot of the latest balances sum.",
	})

	SupplyRecomputeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "supply",
		Name:      "recompute_total",
		Help:      "Number of times the imprecise supply was recomputed.",
	})
)

// ── Report delivery metrics ────────────────────────────────────────────

var (
	ReportsSentTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "sent_total",
		Help:      "Total reports successfully delivered.",
	}, []string{"event"})

	ReportsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "failed_total",
		Help:      "Total report delivery failures.",
	}, []string{"event"})

	ReportsDeduplicatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reports",
		Name:      "deduplicated_total",
		Help:      "Total report rounds skipped because another replica claimed them.",
	}, []string{"event"})
)

// ── Business metrics ───────────────────────────────────────────────────

var (
	SubscriptionsActive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "business",
		Name:      "subscriptions_active",
		Help:      "Number of active subscriptions per event.",
	}, []string{"event_name"})

	TelegramLinkedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "business",
		Name:      "telegram_linked_users",
		Help:      "Total number of linked Telegram users.",
	})
)
