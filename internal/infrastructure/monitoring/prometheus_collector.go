package monitoring

import (
	"time"

	"bidcast/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsCollector for the hub.
type PrometheusCollector struct {
	sessionsTotal   *prometheus.CounterVec
	sessionDuration *prometheus.HistogramVec
	viewerCount     prometheus.Gauge

	messagesTotal      *prometheus.CounterVec
	malformedTotal     prometheus.Counter
	framesBytesTotal   prometheus.Counter
	framesTotal        prometheus.Counter
	droppedFramesTotal prometheus.Counter
}

func NewPrometheusCollector() *PrometheusCollector {
	return &PrometheusCollector{
		sessionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bidcast_sessions_total",
			Help: "Total number of sessions opened, by role",
		}, []string{"role"}),

		sessionDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "bidcast_session_duration_seconds",
			Help:    "Duration of closed sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}, []string{"role"}),

		viewerCount: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bidcast_viewer_count",
			Help: "Current number of connected participants",
		}),

		messagesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "bidcast_messages_total",
			Help: "Total inbound messages handled, by kind",
		}, []string{"kind"}),

		malformedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bidcast_malformed_messages_total",
			Help: "Total inbound messages dropped as malformed",
		}),

		framesBytesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bidcast_frame_bytes_total",
			Help: "Total encoded frame bytes broadcast to viewers",
		}),

		framesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bidcast_frames_broadcast_total",
			Help: "Total frames broadcast to viewers",
		}),

		droppedFramesTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "bidcast_frames_dropped_total",
			Help: "Total frames dropped because a viewer send queue was full",
		}),
	}
}

func (p *PrometheusCollector) RecordSessionOpened(role domain.Role) {
	p.sessionsTotal.WithLabelValues(string(role)).Inc()
}

func (p *PrometheusCollector) RecordSessionClosed(role domain.Role, duration time.Duration) {
	p.sessionDuration.WithLabelValues(string(role)).Observe(duration.Seconds())
}

func (p *PrometheusCollector) SetViewerCount(count int) {
	p.viewerCount.Set(float64(count))
}

func (p *PrometheusCollector) RecordMessage(kind string) {
	p.messagesTotal.WithLabelValues(kind).Inc()
}

func (p *PrometheusCollector) RecordFrameBroadcast(bytes int) {
	p.framesTotal.Inc()
	p.framesBytesTotal.Add(float64(bytes))
}

func (p *PrometheusCollector) RecordFrameDropped() {
	p.droppedFramesTotal.Inc()
}

func (p *PrometheusCollector) RecordMalformedMessage() {
	p.malformedTotal.Inc()
}
