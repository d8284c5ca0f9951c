package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "alfred",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alfred",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alfred",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "path"},
	)

	chatExchanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alfred",
			Subsystem: "chat",
			Name:      "exchanges_total",
			Help:      "Total number of chat exchanges by mode and outcome.",
		},
		[]string{"mode", "status"},
	)

	providerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alfred",
			Subsystem: "provider",
			Name:      "calls_total",
			Help:      "Total number of calls to Google AI providers.",
		},
		[]string{"provider", "success"},
	)

	providerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "alfred",
			Subsystem: "provider",
			Name:      "call_duration_seconds",
			Help:      "Duration of calls to Google AI providers.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
		[]string{"provider"},
	)

	rateLimited = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "alfred",
			Subsystem: "http",
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		},
		[]string{"scope"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		chatExchanges,
		providerCalls,
		providerDuration,
		rateLimited,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records one handled request.
func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	path = canonicalPath(path)
	method = strings.ToUpper(method)
	httpRequests.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	httpDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// TrackInFlight increments the in-flight gauge; call the returned func when done.
func TrackInFlight() func() {
	httpInFlight.Inc()
	return httpInFlight.Dec
}

// RecordChatExchange counts a text or audio exchange.
func RecordChatExchange(mode string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	chatExchanges.WithLabelValues(mode, status).Inc()
}

// RecordProviderCall records a call to gemini, speech or voice.
func RecordProviderCall(provider string, duration time.Duration, success bool) {
	if duration <= 0 {
		duration = time.Millisecond
	}
	providerCalls.WithLabelValues(provider, strconv.FormatBool(success)).Inc()
	providerDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// RecordRateLimited counts a request rejected by the limiter for scope.
func RecordRateLimited(scope string) {
	rateLimited.WithLabelValues(scope).Inc()
}

var knownPaths = map[string]bool{
	"/":                    true,
	"/login":               true,
	"/chat":                true,
	"/settings":            true,
	"/audiochat":           true,
	"/transcribe_and_chat": true,
	"/clear-history":       true,
	"/logout":              true,
	"/admin/create-user":   true,
	"/healthz":             true,
}

// canonicalPath keeps label cardinality bounded by folding unknown paths.
func canonicalPath(raw string) string {
	if raw == "" {
		return "/"
	}
	if p := "/" + strings.Trim(raw, "/"); knownPaths[p] {
		return p
	}
	if strings.HasPrefix(raw, "/static/") {
		return "/static"
	}
	return "other"
}
