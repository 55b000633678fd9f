package prometheus

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jwalitptl/roshita-planner/internal/middleware"
)

// Handler measures the HTTP surface of the planner and serves the registry
// it was built on.
type Handler struct {
	registry        *prometheus.Registry
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	errorTotal      *prometheus.CounterVec
	inFlight        *prometheus.GaugeVec
}

// New registers the HTTP metrics on registry. A nil registry gets a fresh
// one.
func New(registry *prometheus.Registry) *Handler {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	h := &Handler{
		registry: registry,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds, event streams excluded",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"method", "route", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		errorTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_errors_total",
			Help: "HTTP requests answered with an error envelope, by error kind",
		}, []string{"route", "kind"}),
		inFlight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "http_requests_in_flight",
			Help: "Requests currently being served; open board streams show up here",
		}, []string{"route"}),
	}

	registry.MustRegister(h.requestDuration, h.requestTotal, h.errorTotal, h.inFlight)
	return h
}

// Middleware labels requests with their route template so ids in paths do
// not explode the label set. Routes whose template ends in one of streams
// are long lived and left out of the latency histogram.
func (h *Handler) Middleware(streams ...string) gin.HandlerFunc {
	isStream := func(route string) bool {
		for _, s := range streams {
			if strings.HasSuffix(route, s) {
				return true
			}
		}
		return false
	}

	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()
		gauge := h.inFlight.WithLabelValues(route)
		gauge.Inc()
		defer gauge.Dec()

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		h.requestTotal.WithLabelValues(c.Request.Method, route, status).Inc()
		if !isStream(route) {
			h.requestDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
		}
		if kind := c.GetString(middleware.ContextErrorKind); kind != "" {
			h.errorTotal.WithLabelValues(route, kind).Inc()
		}
	}
}

func (h *Handler) Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.HandlerFor(h.registry, promhttp.HandlerOpts{Registry: h.registry}))
}
