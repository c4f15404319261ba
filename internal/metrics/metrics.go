package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Registry holds all Prometheus metrics.
type Registry struct {
	*prometheus.Registry

	// Backend API metrics
	apiRequestsTotal    *prometheus.CounterVec
	apiRequestDuration  *prometheus.HistogramVec
	apiRequestsInFlight prometheus.Gauge

	// Session and backtest metrics
	logins           *prometheus.CounterVec
	loggedIn         prometheus.Gauge
	catalogFetches   *prometheus.CounterVec
	catalogSize      prometheus.Gauge
	backtestsTotal   *prometheus.CounterVec
	backtestDuration prometheus.Histogram
}

// NewRegistry creates a new metrics registry with all metrics registered.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	// Register Go runtime metrics
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &Registry{
		Registry: reg,

		apiRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradedesk_api_requests_total",
				Help: "Total number of requests sent to the backtest backend",
			},
			[]string{"method", "endpoint", "status"},
		),

		apiRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradedesk_api_request_duration_seconds",
				Help:    "Backend request duration in seconds",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"method", "endpoint"},
		),

		apiRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "tradedesk_api_requests_in_flight",
				Help: "Number of backend requests currently in flight",
			},
		),
	}

	reg.MustRegister(r.apiRequestsTotal)
	reg.MustRegister(r.apiRequestDuration)
	reg.MustRegister(r.apiRequestsInFlight)

	r.logins = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_logins_total",
			Help: "Total number of session starts",
		},
		[]string{"source", "status"},
	)
	r.loggedIn = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradedesk_session_logged_in",
			Help: "1 when a session is logged in, 0 otherwise",
		},
	)
	r.catalogFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_catalog_fetches_total",
			Help: "Total number of strategy catalog fetches",
		},
		[]string{"status"},
	)
	r.catalogSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "tradedesk_catalog_strategies",
			Help: "Number of strategies in the current catalog",
		},
	)
	r.backtestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tradedesk_backtests_total",
			Help: "Total number of backtests",
		},
		[]string{"status"},
	)
	r.backtestDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "tradedesk_backtest_duration_seconds",
			Help:    "Backtest duration in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	reg.MustRegister(r.logins)
	reg.MustRegister(r.loggedIn)
	reg.MustRegister(r.catalogFetches)
	reg.MustRegister(r.catalogSize)
	reg.MustRegister(r.backtestsTotal)
	reg.MustRegister(r.backtestDuration)

	return r
}

// RecordRequest records metrics for a backend request. status 0 means the
// request never got a response.
func (r *Registry) RecordRequest(method, endpoint string, status int, duration float64) {
	statusStr := statusToString(status)
	r.apiRequestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	r.apiRequestDuration.WithLabelValues(method, endpoint).Observe(duration)
}

// InFlightInc increments in-flight requests.
func (r *Registry) InFlightInc() {
	r.apiRequestsInFlight.Inc()
}

// InFlightDec decrements in-flight requests.
func (r *Registry) InFlightDec() {
	r.apiRequestsInFlight.Dec()
}

// RecordLogin records a session start attempt. source is "login" or "restore".
func (r *Registry) RecordLogin(source string, ok bool) {
	r.logins.WithLabelValues(source, okLabel(ok)).Inc()
	if ok {
		r.loggedIn.Set(1)
	}
}

// RecordLogout marks the session as logged out.
func (r *Registry) RecordLogout() {
	r.loggedIn.Set(0)
}

// RecordCatalogFetch records a catalog fetch and, on success, its size.
func (r *Registry) RecordCatalogFetch(ok bool, size int) {
	r.catalogFetches.WithLabelValues(okLabel(ok)).Inc()
	if ok {
		r.catalogSize.Set(float64(size))
	}
}

// RecordBacktest records a backtest completion.
func (r *Registry) RecordBacktest(status string, duration float64) {
	r.backtestsTotal.WithLabelValues(status).Inc()
	r.backtestDuration.Observe(duration)
}

// WriteTextfile dumps the registry in the node-exporter textfile format.
func (r *Registry) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}

func okLabel(ok bool) string {
	if ok {
		return "ok"
	}
	return "error"
}

func statusToString(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	case status >= 200:
		return "2xx"
	case status >= 100:
		return "1xx"
	default:
		return "error"
	}
}
