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
			Name: "starglobe_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"path", "method", "code"},
	)

	httpDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "starglobe_http_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"path", "method"},
	)

	pollTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starglobe_poll_total",
			Help: "Satellite position polls by result.",
		},
		[]string{"result"},
	)

	pollDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "starglobe_poll_duration_seconds",
			Help:    "Duration of satellite position polls in seconds.",
			Buckets: prometheus.DefBuckets,
		},
	)

	positionAgeSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starglobe_satellite_position_age_seconds",
			Help: "Age of the current satellite position in seconds.",
		},
	)

	drawDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "starglobe_draw_duration_seconds",
			Help:    "Duration of globe draw passes in seconds.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	drawPrimitives = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starglobe_draw_primitives",
			Help: "Drawing primitives emitted by the last draw pass.",
		},
	)

	framesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starglobe_frames_total",
			Help: "Total number of rendered frames.",
		},
	)

	globePolygons = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starglobe_globe_polygons",
			Help: "Border polygons held by the globe view.",
		},
	)

	globeRotation = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starglobe_globe_rotation_radians",
			Help: "Accumulated globe rotation since the last load, in radians.",
		},
	)

	geocodeTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starglobe_geocode_total",
			Help: "Reverse geocode lookups by result.",
		},
		[]string{"result"},
	)

	streamConnectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starglobe_stream_connections_total",
			Help: "SSE stream connection events.",
		},
		[]string{"event"},
	)

	streamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "starglobe_streams_active",
			Help: "Currently open SSE streams.",
		},
	)

	streamMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starglobe_stream_messages_total",
			Help: "SSE messages sent.",
		},
	)

	streamBytesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "starglobe_stream_bytes_total",
			Help: "Bytes written to SSE streams.",
		},
	)

	streamErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "starglobe_stream_errors_total",
			Help: "SSE stream errors by reason.",
		},
		[]string{"reason"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpDurationSeconds,
		pollTotal,
		pollDurationSeconds,
		positionAgeSeconds,
		drawDurationSeconds,
		drawPrimitives,
		framesTotal,
		globePolygons,
		globeRotation,
		geocodeTotal,
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

// ObservePoll records one poll cycle. result is "success" or "error".
func ObservePoll(result string, d time.Duration) {
	pollTotal.WithLabelValues(result).Inc()
	pollDurationSeconds.Observe(d.Seconds())
}

func SetPositionAge(seconds float64) { positionAgeSeconds.Set(seconds) }

// ObserveDraw records one draw pass.
func ObserveDraw(d time.Duration, primitives int) {
	drawDurationSeconds.Observe(d.Seconds())
	drawPrimitives.Set(float64(primitives))
	framesTotal.Inc()
}

// SetGlobe records the view state after a load, resize or rotation.
func SetGlobe(polygons int, rotation float64) {
	globePolygons.Set(float64(polygons))
	globeRotation.Set(rotation)
}

func IncGeocode(result string) { geocodeTotal.WithLabelValues(result).Inc() }

func IncStreamConnections(event string) { streamConnectionsTotal.WithLabelValues(event).Inc() }
func IncStreamsActive()                 { streamsActive.Inc() }
func DecStreamsActive()                 { streamsActive.Dec() }
func IncStreamMessages()                { streamMessagesTotal.Inc() }
func AddStreamBytes(n int64)            { streamBytesTotal.Add(float64(n)) }
func IncStreamErrors(reason string)     { streamErrorsTotal.WithLabelValues(reason).Inc() }

// knownRoutes are the fixed paths served by the API.
var knownRoutes = map[string]bool{
	"/":                          true,
	"/healthz":                   true,
	"/readyz":                    true,
	"/metrics":                   true,
	"/api/v1/globe.svg":          true,
	"/api/v1/globe/state":        true,
	"/api/v1/satellite":          true,
	"/api/v1/satellite/location": true,
	"/api/v1/stream/frames":      true,
}

// normalizeRoute maps a request path to a bounded label set so that scanners
// and typos cannot grow the label space.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	if rest, ok := strings.CutPrefix(path, "/api/v1/input/"); ok && rest != "" && !strings.Contains(rest, "/") {
		return "/api/v1/input/{event}"
	}
	if strings.HasPrefix(path, "/static/") {
		return "/static/*"
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

// Flush and Unwrap pass through so SSE handlers behind the middleware can stream.
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
