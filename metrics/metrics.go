package metrics

import (
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "crypto_tracker"

var (
	cyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "refresh_cycles_total",
		Help:      "Refresh cycles by outcome",
	}, []string{"outcome"})

	fetchErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "fetch_errors_total",
		Help:      "Market data fetch failures by kind",
	}, []string{"kind"})

	persistErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "persist_errors_total",
		Help:      "Snapshot persistence failures by sink and kind",
	}, []string{"sink", "kind"})

	consecutiveFailures = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "consecutive_failures",
		Help:      "Current consecutive fetch/analyze failures",
	})

	schedulerState = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "scheduler_state",
		Help:      "Refresh scheduler state (0 idle, 1 fetching, 2 analyzing, 3 distributing, 4 sleeping, 5 halted)",
	})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "refresh_cycle_seconds",
		Help:      "Time spent in fetch, analyze and distribute",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})

	upstreamDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "upstream_request_seconds",
		Help:      "Market data provider request latency",
		Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10},
	}, []string{"status"})

	subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_subscribers",
		Help:      "Currently connected live subscribers",
	})

	droppedSubscribers = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_subscribers_dropped_total",
		Help:      "Subscribers dropped because they could not keep up",
	})

	// Internal counters
	lastSuccess atomic.Int64
	startTime   = time.Now()
)

func IncrementCycle(outcome string) {
	cyclesTotal.WithLabelValues(outcome).Inc()
	if outcome == "success" {
		lastSuccess.Store(time.Now().UnixNano())
	}
}

func IncrementFetchError(kind string) {
	fetchErrors.WithLabelValues(kind).Inc()
}

func IncrementPersistError(sink, kind string) {
	persistErrors.WithLabelValues(sink, kind).Inc()
}

func SetConsecutiveFailures(n int) {
	consecutiveFailures.Set(float64(n))
}

func SetSchedulerState(state int) {
	schedulerState.Set(float64(state))
}

func RecordCycleDuration(d time.Duration) {
	cycleDuration.Observe(d.Seconds())
}

func RecordUpstreamDuration(status string, d time.Duration) {
	upstreamDuration.WithLabelValues(status).Observe(d.Seconds())
}

func SetSubscribers(n int) {
	subscribers.Set(float64(n))
}

func IncrementDroppedSubscribers() {
	droppedSubscribers.Inc()
}

// GetStats returns the time of the last successful cycle (zero if none) and uptime.
func GetStats() (time.Time, time.Duration) {
	var last time.Time
	if ns := lastSuccess.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	return last, time.Since(startTime)
}
