// Package prometheus exports live-session metrics in Prometheus format.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "livecoach"

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

var (
	sessionsActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active provider sessions",
		},
		[]string{"provider"},
	)

	sessionStartsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_starts_total",
			Help:      "Total number of session start attempts",
		},
		[]string{"provider", "status"},
	)

	providerRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_request_duration_seconds",
			Help:      "Duration of provider requests in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"provider", "model"},
	)

	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_requests_total",
			Help:      "Total number of provider requests",
		},
		[]string{"provider", "model", "status"},
	)

	sendErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "send_errors_total",
			Help:      "Failed session operations by operation and error kind",
		},
		[]string{"op", "kind"},
	)

	audioFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_total",
			Help:      "Audio frames sent to providers",
		},
		[]string{"provider"},
	)

	audioBytesDroppedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_dropped_total",
			Help:      "Captured audio bytes discarded by overflow trimming",
		},
	)

	imagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "images_total",
			Help:      "Screenshots handled by providers",
		},
		[]string{"provider", "action"}, // action: sent, queued, attached
	)

	conversationTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "conversation_turns_total",
			Help:      "Completed conversation turns",
		},
		[]string{"provider"},
	)

	allMetrics = []prometheus.Collector{
		sessionsActive,
		sessionStartsTotal,
		providerRequestDuration,
		providerRequestsTotal,
		sendErrorsTotal,
		audioFramesTotal,
		audioBytesDroppedTotal,
		imagesTotal,
		conversationTurnsTotal,
	}
)

// Collectors returns every livecoach collector for custom registries.
func Collectors() []prometheus.Collector {
	out := make([]prometheus.Collector, len(allMetrics))
	copy(out, allMetrics)
	return out
}

// RecordSessionStart records a start attempt. Successful starts raise the
// active gauge.
func RecordSessionStart(provider, status string) {
	sessionStartsTotal.WithLabelValues(provider, status).Inc()
	if status == StatusSuccess {
		sessionsActive.WithLabelValues(provider).Inc()
	}
}

// RecordSessionEnd lowers the active gauge.
func RecordSessionEnd(provider string) {
	sessionsActive.WithLabelValues(provider).Dec()
}

// RecordProviderRequest records one provider round trip.
func RecordProviderRequest(provider, model, status string, durationSeconds float64) {
	providerRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	providerRequestsTotal.WithLabelValues(provider, model, status).Inc()
}

// RecordSendError records a failed session operation.
func RecordSendError(op, kind string) {
	sendErrorsTotal.WithLabelValues(op, kind).Inc()
}

// RecordAudioFrame records a frame sent to provider.
func RecordAudioFrame(provider string) {
	audioFramesTotal.WithLabelValues(provider).Inc()
}

// RecordAudioDropped records bytes discarded by the frame buffer.
func RecordAudioDropped(bytes int64) {
	if bytes > 0 {
		audioBytesDroppedTotal.Add(float64(bytes))
	}
}

// RecordImage records a screenshot action.
func RecordImage(provider, action string, n int) {
	if n > 0 {
		imagesTotal.WithLabelValues(provider, action).Add(float64(n))
	}
}

// RecordConversationTurn records a completed turn.
func RecordConversationTurn(provider string) {
	conversationTurnsTotal.WithLabelValues(provider).Inc()
}
