package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the process metrics. A nil *Recorder is valid and records
// nothing, which keeps tests free of registry setup.
type Recorder struct {
	registry         *prometheus.Registry
	commits          *prometheus.CounterVec
	decrements       *prometheus.CounterVec
	movementFailures prometheus.Counter
	fuelLiters       *prometheus.CounterVec
	driftArticles    prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
}

func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sales_commits_total",
			Help: "Sale commits by final state",
		}, []string{"state"}),
		decrements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "stock_decrement_total",
			Help: "Stock adjustments by path (atomic, fallback, failed)",
		}, []string{"path"}),
		movementFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "stock_movement_failures_total",
			Help: "Stock movement appends that failed after the sale was stored",
		}),
		fuelLiters: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fuel_liters_recorded_total",
			Help: "Fuel volume recorded in liters",
		}, []string{"fuel_type"}),
		driftArticles: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "stock_drift_articles",
			Help: "Articles whose stock disagrees with the movement ledger at the last reconciliation",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests",
		}, []string{"method", "path", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
	}
	r.registry.MustRegister(
		r.commits,
		r.decrements,
		r.movementFailures,
		r.fuelLiters,
		r.driftArticles,
		r.httpRequests,
		r.httpDuration,
	)
	return r
}

func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) CommitFinished(state string) {
	if r == nil {
		return
	}
	r.commits.WithLabelValues(state).Inc()
}

func (r *Recorder) StockAdjusted(path string) {
	if r == nil {
		return
	}
	r.decrements.WithLabelValues(path).Inc()
}

func (r *Recorder) MovementFailed() {
	if r == nil {
		return
	}
	r.movementFailures.Inc()
}

func (r *Recorder) FuelRecorded(fuelType string, liters float64) {
	if r == nil {
		return
	}
	r.fuelLiters.WithLabelValues(fuelType).Add(liters)
}

func (r *Recorder) DriftObserved(articles int) {
	if r == nil {
		return
	}
	r.driftArticles.Set(float64(articles))
}

func (r *Recorder) ObserveHTTP(method string, path string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	r.httpDuration.WithLabelValues(path).Observe(elapsed.Seconds())
}
