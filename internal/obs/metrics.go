package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Common HTTP metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Account-workflow metrics.
var (
	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biblioteca_logins_total",
			Help: "Login attempts by result.",
		},
		[]string{"result"},
	)

	accountsProvisionedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biblioteca_accounts_provisioned_total",
			Help: "Accounts created through the provisioning flows, by role.",
		},
		[]string{"role"},
	)

	passwordResetsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "biblioteca_password_resets_total",
			Help: "Password changes by kind (own, admin).",
		},
		[]string{"kind"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "biblioteca_audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		loginsTotal, accountsProvisionedTotal, passwordResetsTotal,
		auditWriteFailures,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveLogin counts a login attempt; result is "ok" or "denied".
func ObserveLogin(result string) {
	loginsTotal.WithLabelValues(result).Inc()
}

// ObserveProvisioned counts a successful account creation.
func ObserveProvisioned(role string) {
	accountsProvisionedTotal.WithLabelValues(role).Inc()
}

// ObservePasswordReset counts a password change; kind is "own" or "admin".
func ObservePasswordReset(kind string) {
	passwordResetsTotal.WithLabelValues(kind).Inc()
}

// ObserveAuditWriteFailure counts a failed audit append.
func ObserveAuditWriteFailure() {
	auditWriteFailures.Inc()
}

// CanonicalPath collapses identifier segments so the path label stays
// low-cardinality.
func CanonicalPath(path string) string {
	if path == "" {
		return "/"
	}
	if i := strings.IndexByte(path, '?'); i >= 0 {
		path = path[:i]
	}
	if rest, ok := strings.CutPrefix(path, "/api/auth/reset-password/"); ok && rest != "" {
		return "/api/auth/reset-password/:id"
	}
	if rest, ok := strings.CutPrefix(path, "/api/users/"); ok && rest != "" {
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		switch {
		case parts[0] == "audit":
			return path
		case len(parts) == 1:
			return "/api/users/:id"
		case len(parts) == 2 && (parts[1] == "audit" || parts[1] == "restore"):
			return "/api/users/:id/" + parts[1]
		}
	}
	return path
}

// Instrument wraps a handler with RPS/latency/in-flight measurements.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code for metrics.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
