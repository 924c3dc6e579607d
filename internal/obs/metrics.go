package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Shared HTTP metrics.
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

	ready = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service considers itself ready.",
	})
)

// Authentication metrics. The outcome label is the only place outside the
// logs where the malformed/expired/revoked distinction is visible; the API
// response stays an undifferentiated 401.
var (
	authenticationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_authentications_total",
			Help: "Request authentications by outcome.",
		},
		[]string{"outcome"},
	)

	tokensIssuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auth_tokens_issued_total",
			Help: "Tokens issued by kind.",
		},
		[]string{"kind"},
	)

	revocationsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "auth_revocations_total",
		Help: "Tokens recorded as revoked.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration, ready,
		authenticationsTotal, tokensIssuedTotal, revocationsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady flips the readiness gauge.
func SetReady(ok bool) {
	if ok {
		ready.Set(1)
		return
	}
	ready.Set(0)
}

// ObserveAuthentication counts one request authentication with its outcome
// (ok, malformed, expired, revoked, wrong_kind, unknown_subject, error).
func ObserveAuthentication(outcome string) {
	authenticationsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTokenIssued counts one issued token by kind (access or refresh).
func ObserveTokenIssued(kind string) {
	tokensIssuedTotal.WithLabelValues(kind).Inc()
}

// ObserveRevocation counts one recorded revocation.
func ObserveRevocation() {
	revocationsTotal.Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
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

// CanonicalPath collapses per-entity path segments so metric labels stay
// low-cardinality.
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	const usersPrefix = "/v1/directory/users/"
	if strings.HasPrefix(path, usersPrefix) {
		rest := strings.Trim(path[len(usersPrefix):], "/")
		if rest == "" {
			return path
		}
		parts := strings.SplitN(rest, "/", 2)
		if len(parts) == 1 {
			return usersPrefix + ":id"
		}
		return usersPrefix + ":id/" + parts[1]
	}
	return path
}

// statusWriter captures the response code for labels.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
