package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "voicedesk_sessions_active",
		Help: "Currently open relay sessions",
	})

	SessionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicedesk_sessions_total",
		Help: "Relay sessions accepted, by downstream transport",
	}, []string{"transport"})

	FramesForwarded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicedesk_frames_forwarded_total",
		Help: "Frames relayed between client and provider",
	}, []string{"direction", "kind"})

	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicedesk_tool_calls_total",
		Help: "Tool executions by tool and outcome (ok, error, timeout, unknown)",
	}, []string{"tool", "outcome"})

	ToolDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "voicedesk_tool_duration_seconds",
		Help:    "Tool execution latency as seen by the caller",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 9},
	}, []string{"tool"})

	ProtocolErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicedesk_protocol_errors_total",
		Help: "Malformed or unexpected frames dropped, by source",
	}, []string{"source"})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicedesk_notifications_total",
		Help: "Post-booking confirmation emails by outcome",
	}, []string{"outcome"})

	WebhookRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "voicedesk_webhook_requests_total",
		Help: "Webhook requests by message type",
	}, []string{"type"})
)

// Frame directions.
const (
	Upstream   = "upstream"
	Downstream = "downstream"
)
