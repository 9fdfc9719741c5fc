package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Process-wide metrics for the user cache and push registry. Registered on
// the default registry; main exposes them via promhttp on /metrics.
var (
	CacheSnapshots = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "shipboard_usercache_snapshots",
		Help: "Number of account snapshots currently installed in the cache.",
	})

	CacheKnownMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipboard_usercache_known_misses_total",
		Help: "Cache misses for accounts that should be present (invariant violations).",
	})

	RefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipboard_usercache_refresh_total",
		Help: "Snapshot refreshes by result.",
	}, []string{"result"})

	PushConnections = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "shipboard_push_connections",
		Help: "Open push connections by kind.",
	}, []string{"kind"})

	FanoutMessages = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shipboard_push_fanout_total",
		Help: "Messages delivered through fanout by kind.",
	}, []string{"kind"})

	FanoutFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipboard_push_send_failures_total",
		Help: "Per-connection send or render failures during fanout.",
	})

	DispatchDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "shipboard_notify_dropped_total",
		Help: "Dispatch events dropped because a required snapshot was missing.",
	})
)
