package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/mmdatafocus/catalogsync_backend/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "catalogsync"

var (
	Registry = prometheus.NewRegistry()

	reconcileActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "actions_total",
			Help:      "Reconciliation actions by resource kind, action and outcome.",
		},
		[]string{"kind", "action", "outcome"},
	)
	reconcilePassDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pass_duration_seconds",
			Help:      "Duration of one review pass over one target.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind", "pass"},
	)
	identityMismatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "identity_mismatches_total",
			Help:      "Linked resources whose external id no longer matches.",
		},
		[]string{"kind"},
	)
	syncRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "worker",
			Name:      "runs_total",
			Help:      "Finished sync runs by status.",
		},
		[]string{"status"},
	)
	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		reconcileActions,
		reconcilePassDuration,
		identityMismatches,
		syncRuns,
		httpRequests,
		httpDuration,
	)
}

// Handler serves the package registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Recorder feeds reconciliation measurements into the package collectors.
type Recorder struct{}

var _ reconcile.Observer = Recorder{}

func (Recorder) ObserveAction(kind string, action reconcile.Action, outcome string) {
	reconcileActions.WithLabelValues(kind, string(action), outcome).Inc()
}

func (Recorder) ObservePass(kind string, pass string, elapsed time.Duration) {
	reconcilePassDuration.WithLabelValues(kind, pass).Observe(elapsed.Seconds())
}

func (Recorder) ObserveMismatch(kind string) {
	identityMismatches.WithLabelValues(kind).Inc()
}

func RecordSyncRun(status string) {
	syncRuns.WithLabelValues(status).Inc()
}

// RecordHTTPRequest takes the route template as path to keep label cardinality bounded.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}
