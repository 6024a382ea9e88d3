// Package metrics exposes Prometheus instrumentation for the connectivity
// core on a private registry.
//
// Key metrics:
//   - reconnect counts per transport
//   - inbound frame and drop counts
//   - heartbeat sends
//   - in-flight post requests and post timeouts
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "venuelink"

var registry = prometheus.NewRegistry()

// Core collectors. Labelled by transport ("tcp" or "ws") where it applies.
var (
	Reconnects = newCounterVec("reconnects_total",
		"Successful reconnections per transport.", []string{"transport"})

	ReconnectFailures = newCounterVec("reconnect_failures_total",
		"Failed reconnection attempts per transport.", []string{"transport"})

	FramesReceived = newCounterVec("frames_received_total",
		"Inbound frames delivered to handlers or streams.", []string{"transport"})

	FramesDropped = newCounterVec("frames_dropped_total",
		"Inbound frames dropped because a stream buffer was full.", []string{"transport"})

	HeartbeatsSent = newCounterVec("heartbeats_sent_total",
		"Heartbeat payloads written per transport.", []string{"transport"})

	PostsInflight = newGauge("posts_inflight",
		"Request/response pairs currently awaiting a reply.")

	PostTimeouts = newCounter("post_timeouts_total",
		"Post requests that timed out before a reply arrived.")
)

func newCounterVec(name, help string, labels []string) *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	}, labels)
	registry.MustRegister(c)
	return c
}

func newCounter(name, help string) prometheus.Counter {
	c := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(c)
	return c
}

func newGauge(name, help string) prometheus.Gauge {
	g := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      name,
		Help:      help,
	})
	registry.MustRegister(g)
	return g
}

// Handler returns an HTTP handler serving the private registry.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(registry,
		promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
}
