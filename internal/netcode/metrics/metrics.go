// Package metrics exposes the controller's prometheus instrumentation:
// tick duration, rollback counts, hash-check mismatches, and peer
// counts. Cardinality stays bounded — no per-player labels.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spacelock_tick_duration_seconds",
		Help:    "Time spent inside one controller tick",
		Buckets: []float64{0.0005, 0.001, 0.002, 0.004, 0.008, 0.016, 0.033},
	})

	RollbacksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacelock_rollbacks_total",
		Help: "Number of times PushCommand triggered a rollback-and-replay",
	})

	RollbackDepthFrames = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "spacelock_rollback_depth_frames",
		Help:    "Frames replayed per rollback (leading_frame - rollback_target_frame)",
		Buckets: []float64{1, 2, 5, 10, 20, 50, 100},
	})

	HashChecksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacelock_hash_checks_total",
		Help: "HASH_CHECK messages sent (server) or compared against the local trailing hash (client)",
	})

	HashMismatchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacelock_hash_mismatches_total",
		Help: "HASH_CHECK comparisons that did not match, triggering a full resync",
	})

	FullResyncsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacelock_full_resyncs_total",
		Help: "GAME_STATE_REQUEST/RESPONSE cycles completed",
	})

	PeerCount = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "spacelock_peer_count",
		Help: "Currently connected peers",
	})

	CommandsRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "spacelock_commands_rejected_total",
		Help: "Commands rejected at intake, by reason",
	}, []string{"reason"}) // bounded: "too_old", "malformed", "too_large", "over_capacity", "session_full"

	PeerTimeoutsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "spacelock_peer_timeouts_total",
		Help: "Peers disconnected for exceeding the silence deadline",
	})
)

// RecordTick observes one controller tick's wall-clock duration.
func RecordTick(d time.Duration) { TickDuration.Observe(d.Seconds()) }

// RecordRollback observes a completed rollback-and-replay, reporting
// how many frames were replayed.
func RecordRollback(framesReplayed int64) {
	RollbacksTotal.Inc()
	RollbackDepthFrames.Observe(float64(framesReplayed))
}

// RecordCommandRejected increments the rejection counter for reason,
// which must be one of "too_old", "malformed", "too_large",
// "over_capacity", or "session_full" to keep the metric's cardinality
// bounded.
func RecordCommandRejected(reason string) { CommandsRejectedTotal.WithLabelValues(reason).Inc() }
