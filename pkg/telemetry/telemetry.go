// Package telemetry exposes the Prometheus metrics for the chat core and
// the HTTP middleware that feeds the request histogram.
package telemetry

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "ticketchat",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency by method and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "status"})

	MessagesSent = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketchat",
		Name:      "messages_sent_total",
		Help:      "Messages accepted by the orchestrator.",
	})

	NotifyFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "ticketchat",
		Name:      "notify_failures_total",
		Help:      "Notification dispatches that failed (swallowed, logged).",
	})

	StoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketchat",
		Name:      "store_ops_total",
		Help:      "Store operations by kind.",
	}, []string{"op"})

	StoreDiskUsage = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketchat",
		Name:      "store_disk_usage_bytes",
		Help:      "On-disk size of the Pebble store.",
	})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "ticketchat",
		Name:      "ws_connections",
		Help:      "Currently connected websocket clients.",
	})

	WSEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "ticketchat",
		Name:      "ws_events_total",
		Help:      "Inbound websocket events by type.",
	}, []string{"type"})
)

// Handler serves the default registry at /metrics.
func Handler() http.Handler { return promhttp.Handler() }

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack forwards to the underlying writer so websocket upgrades keep
// working through the middleware.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

// Middleware records request duration and status for every handled request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		srw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(srw, r)
		HTTPDuration.WithLabelValues(r.Method, strconv.Itoa(srw.status)).
			Observe(time.Since(start).Seconds())
	})
}
