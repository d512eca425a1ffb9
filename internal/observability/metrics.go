package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total admin HTTP requests.",
		},
		[]string{"node", "method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirerpc",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Admin HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "path", "status"},
	)
	rpcFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "frames_total",
			Help:      "Frames written or read on rpc streams.",
		},
		[]string{"node", "direction"},
	)
	rpcFrameBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "frame_bytes_total",
			Help:      "Frame body bytes written or read on rpc streams.",
		},
		[]string{"node", "direction"},
	)
	rpcCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "calls_total",
			Help:      "Request/response calls by outcome.",
		},
		[]string{"node", "method", "outcome"},
	)
	rpcCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "call_duration_seconds",
			Help:      "Request/response call latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"node", "method", "outcome"},
	)
	rpcInbound = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "inbound_envelopes_total",
			Help:      "Decoded inbound envelopes by variant.",
		},
		[]string{"node", "kind"},
	)
	rpcUnmatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "unmatched_responses_total",
			Help:      "Responses dropped because no caller was waiting on their token.",
		},
		[]string{"node"},
	)
	rpcPending = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "pending_mailboxes",
			Help:      "Calls awaiting a response.",
		},
		[]string{"node"},
	)
	rpcDispatchStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "rpc",
			Name:      "dispatch_stops_total",
			Help:      "Dispatch loop terminations by reason.",
		},
		[]string{"node", "reason"},
	)
	peerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wirerpc",
			Subsystem: "peer",
			Name:      "requests_total",
			Help:      "Requests served by the peer endpoint.",
		},
		[]string{"node", "method", "success"},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			httpRequests, httpDuration,
			rpcFrames, rpcFrameBytes, rpcCalls, rpcCallDuration,
			rpcInbound, rpcUnmatched, rpcPending, rpcDispatchStops,
			peerRequests,
		)
	})
}

func RecordHTTPRequest(node, method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(node, method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(node, method, path, statusLabel).Observe(duration.Seconds())
}

func RecordFrame(node, direction string, bodyLen int) {
	RegisterMetrics()
	rpcFrames.WithLabelValues(node, direction).Inc()
	rpcFrameBytes.WithLabelValues(node, direction).Add(float64(bodyLen))
}

func RecordCall(node, method, outcome string, duration time.Duration) {
	RegisterMetrics()
	rpcCalls.WithLabelValues(node, method, outcome).Inc()
	rpcCallDuration.WithLabelValues(node, method, outcome).Observe(duration.Seconds())
}

func RecordInbound(node, kind string) {
	RegisterMetrics()
	rpcInbound.WithLabelValues(node, kind).Inc()
}

func RecordUnmatched(node string) {
	RegisterMetrics()
	rpcUnmatched.WithLabelValues(node).Inc()
}

// AddPending moves the pending gauge by delta. Conns sharing a name add into one series.
func AddPending(node string, delta int) {
	RegisterMetrics()
	rpcPending.WithLabelValues(node).Add(float64(delta))
}

func RecordDispatchStop(node, reason string) {
	RegisterMetrics()
	rpcDispatchStops.WithLabelValues(node, reason).Inc()
}

func RecordPeerRequest(node, method string, success bool) {
	RegisterMetrics()
	peerRequests.WithLabelValues(node, method, strconv.FormatBool(success)).Inc()
}
