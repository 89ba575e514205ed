package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	tokensIssued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_tokens_issued_total",
			Help: "Signed tokens by type.",
		},
		[]string{"type"},
	)

	loginsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_logins_total",
			Help: "Login attempts by outcome.",
		},
		[]string{"outcome"},
	)

	guardDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campuslink_guard_decisions_total",
			Help: "Authorization guard decisions.",
		},
		[]string{"decision"},
	)

	auditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "campuslink_audit_write_failures_total",
		Help: "Audit entries or security events that could not be stored.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "campuslink_ready",
		Help: "1 when the last readiness probe succeeded.",
	})

	initOnce sync.Once
)

// Init registers metrics in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			tokensIssued, loginsTotal, guardDecisions, auditWriteFailures, readyGauge,
		)
	})
}

// Handler exposes the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TokenIssued counts a signed token of the given type.
func TokenIssued(tokenType string) { tokensIssued.WithLabelValues(tokenType).Inc() }

// LoginAttempt counts a login by outcome (success, failure, inactive).
func LoginAttempt(outcome string) { loginsTotal.WithLabelValues(outcome).Inc() }

// GuardDecision counts an authorization decision (allowed, unauthenticated, forbidden, inactive).
func GuardDecision(decision string) { guardDecisions.WithLabelValues(decision).Inc() }

// AuditWriteFailed counts an audit record that was dropped.
func AuditWriteFailed() { auditWriteFailures.Inc() }

// AuditWriteFailuresCounter exposes the dropped audit record counter.
func AuditWriteFailuresCounter() prometheus.Counter { return auditWriteFailures }

// LoginsCounter exposes the login counter for outcome.
func LoginsCounter(outcome string) prometheus.Counter { return loginsTotal.WithLabelValues(outcome) }

// SetReady records the outcome of the last readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

// CanonicalPath collapses identifiers in known routes so label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.Trim(p, "/"), "/")
	switch {
	case len(parts) == 4 && parts[0] == "api" && parts[1] == "auth" && parts[2] == "profile":
		return "/api/auth/profile/:id"
	case len(parts) == 6 && parts[0] == "api" && parts[1] == "auth" && parts[2] == "admin" &&
		parts[3] == "security-events" && parts[5] == "resolve":
		return "/api/auth/admin/security-events/:id/resolve"
	}
	return p
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps server-sent events working through the instrumented writer.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
