package metrics

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/echoflaresat/orbitview/loop"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector bundles the Prometheus metrics of the render loop and the
// preview server.
type Collector struct {
	gatherer prometheus.Gatherer

	Frames        *prometheus.CounterVec
	FrameDuration prometheus.Histogram
	Elapsed       prometheus.Gauge
	Running       prometheus.Gauge

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector registers all metrics against reg, or the default registry
// when reg is nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{gatherer: gatherer}
	var err error

	if c.Frames, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitview_frames_total",
		Help: "Frames rendered, by output surface.",
	}, []string{"surface"}), "orbitview_frames_total"); err != nil {
		return nil, err
	}
	if c.FrameDuration, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orbitview_frame_duration_seconds",
		Help:    "Time to update the scene and render both surfaces.",
		Buckets: []float64{0.005, 0.01, 0.0167, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}), "orbitview_frame_duration_seconds"); err != nil {
		return nil, err
	}
	if c.Elapsed, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitview_elapsed_seconds",
		Help: "Animation time of the latest frame.",
	}), "orbitview_elapsed_seconds"); err != nil {
		return nil, err
	}
	if c.Running, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "orbitview_loop_running",
		Help: "1 while the animation runs, 0 while paused.",
	}), "orbitview_loop_running"); err != nil {
		return nil, err
	}
	if c.HTTPRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orbitview_http_requests_total",
		Help: "Total number of HTTP requests.",
	}, []string{"path", "method", "code"}), "orbitview_http_requests_total"); err != nil {
		return nil, err
	}
	if c.HTTPDuration, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "orbitview_http_duration_seconds",
		Help:    "HTTP request duration in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"path", "method"}), "orbitview_http_duration_seconds"); err != nil {
		return nil, err
	}
	return c, nil
}

func register[T prometheus.Collector](reg prometheus.Registerer, col T, name string) (T, error) {
	if err := reg.Register(col); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(T); ok {
				return existing, nil
			}
			return col, fmt.Errorf("collector %s already registered with incompatible type", name)
		}
		return col, err
	}
	return col, nil
}

// ObserveFrame records one loop frame, which renders every named surface once.
func (c *Collector) ObserveFrame(info loop.FrameInfo, surfaces ...string) {
	if c == nil {
		return
	}
	for _, s := range surfaces {
		c.Frames.WithLabelValues(s).Inc()
	}
	c.FrameDuration.Observe(info.Duration.Seconds())
	c.Elapsed.Set(info.Elapsed.Seconds())
}

func (c *Collector) SetState(s loop.State) {
	if c == nil {
		return
	}
	if s == loop.Running {
		c.Running.Set(1)
	} else {
		c.Running.Set(0)
	}
}

// Handler exposes the gathered metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
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

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack passes websocket upgrades through to the underlying connection.
func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rw.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request count and duration for each request.
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		route := normalizeRoute(r.URL.Path)
		c.HTTPRequests.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
		c.HTTPDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}

var knownRoutes = map[string]bool{
	"/":                     true,
	"/healthz":              true,
	"/metrics":              true,
	"/ws":                   true,
	"/frames/primary.png":   true,
	"/frames/satellite.png": true,
	"/api/v1/toggle":        true,
	"/api/v1/resize":        true,
	"/api/v1/state":         true,
}

// normalizeRoute keeps label cardinality bounded.
func normalizeRoute(path string) string {
	if knownRoutes[path] {
		return path
	}
	return "other"
}
