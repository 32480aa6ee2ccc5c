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
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astral_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "astral_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	catalogEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "astral_catalog_entries",
		Help: "Number of element sets in the loaded catalog.",
	})

	catalogAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "astral_catalog_age_seconds",
		Help: "Age of the loaded catalog when it was loaded.",
	})

	propagationDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "astral_propagation_duration_seconds",
		Help:    "Wall time to propagate all selected objects over the time grid.",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 8),
	})

	propagationErrorsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "astral_propagation_errors_total",
		Help: "Objects whose propagation failed.",
	})

	scanDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "astral_scan_duration_seconds",
		Help:    "Wall time of a proximity scan.",
		Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
	})

	proximityEvents = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "astral_proximity_events",
		Help: "Proximity events found by the last scan.",
	})

	sceneRefreshTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astral_scene_refresh_total",
			Help: "Scene recomputations by result.",
		},
		[]string{"result"},
	)

	sceneAgeSeconds = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "astral_scene_age_seconds",
		Help: "Seconds since the served scene was computed.",
	})

	framesRenderedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astral_frames_rendered_total",
			Help: "Playback frames rendered, by renderer.",
		},
		[]string{"renderer"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astral_stream_connections_total",
			Help: "SSE connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "astral_streams_active",
		Help: "Currently open SSE streams.",
	})

	streamMessagesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "astral_stream_messages_total",
		Help: "SSE data messages sent.",
	})

	streamBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "astral_stream_bytes_total",
		Help: "Bytes written to SSE streams.",
	})

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "astral_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		catalogEntries,
		catalogAgeSeconds,
		propagationDurationSeconds,
		propagationErrorsTotal,
		scanDurationSeconds,
		proximityEvents,
		sceneRefreshTotal,
		sceneAgeSeconds,
		framesRenderedTotal,
		streamConnectionsTotal,
		streamsActive,
		streamMessagesTotal,
		streamBytesTotal,
		streamErrorsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

func SetCatalogEntries(n int) { catalogEntries.Set(float64(n)) }
func SetCatalogAge(seconds float64) { catalogAgeSeconds.Set(seconds) }
func ObservePropagation(d time.Duration) { propagationDurationSeconds.Observe(d.Seconds()) }
func IncPropagationErrors() { propagationErrorsTotal.Inc() }

// ObserveScan records a scan's duration and its event count.
func ObserveScan(d time.Duration, events int) {
	scanDurationSeconds.Observe(d.Seconds())
	proximityEvents.Set(float64(events))
}

// IncSceneRefresh counts a recomputation with result "ok", "error" or "busy".
func IncSceneRefresh(result string) { sceneRefreshTotal.WithLabelValues(result).Inc() }
func SetSceneAge(seconds float64) { sceneAgeSeconds.Set(seconds) }

// IncFramesRendered counts one frame for renderer ("terminal", "png", "stream").
func IncFramesRendered(renderer string) { framesRenderedTotal.WithLabelValues(renderer).Inc() }

func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }
func IncStreamsActive() { streamsActive.Inc() }
func DecStreamsActive() { streamsActive.Dec() }
func IncStreamMessages() { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64) { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string) { streamErrorsTotal.WithLabelValues(reason).Inc() }

var knownRoutes = map[string]bool{
	"/":                     true,
	"/index.html":           true,
	"/app.js":               true,
	"/styles.css":           true,
	"/healthz":              true,
	"/readyz":               true,
	"/metrics":              true,
	"/api/v1/scene":         true,
	"/api/v1/scene/events":  true,
	"/api/v1/scene/chart":   true,
	"/api/v1/scene/export":  true,
	"/api/v1/scene/refresh": true,
	"/api/v1/stream/frames": true,
}

const framePrefix = "/api/v1/scene/frames/"

// normalizeRoute maps a request path to a bounded label set. Frame indices
// collapse to one label and unknown paths become "other".
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if idx, ok := strings.CutPrefix(path, framePrefix); ok && idx != "" {
		if _, err := strconv.Atoi(idx); err == nil {
			return framePrefix + "{index}"
		}
	}
	return "other"
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Flush lets SSE handlers flush through the wrapper.
func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware records request count and duration for each request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		code := strconv.Itoa(rw.statusCode)
		route := normalizeRoute(r.URL.Path)

		httpRequestsTotal.WithLabelValues(route, r.Method, code).Inc()
		httpDurationSeconds.WithLabelValues(route, r.Method).Observe(duration)
	})
}
