// Package metrics holds the prometheus collectors shared by the engines
// and the development relay.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	envelopes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcsign",
			Name:      "envelopes_total",
			Help:      "Envelopes encoded or decoded, by direction, transport and envelope type.",
		},
		[]string{"direction", "transport", "type"},
	)
	decryptFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "wcsign",
			Name:      "decrypt_failures_total",
			Help:      "Inbound envelopes that failed to decrypt.",
		},
	)
	inflight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wcsign",
			Name:      "requests_inflight",
			Help:      "Outbound requests awaiting a response.",
		},
	)
	requestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wcsign",
			Name:      "request_duration_seconds",
			Help:      "Time from publishing a request to its resolution.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "outcome"},
	)
	cacaoVerifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcsign",
			Name:      "cacao_verifications_total",
			Help:      "CACAO signature checks, by signature type and result.",
		},
		[]string{"type", "result"},
	)
	relayMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wcsign",
			Name:      "relay_messages_total",
			Help:      "Relay server events.",
		},
		[]string{"event"},
	)
)

// Register adds every collector to the default registry once.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(envelopes, decryptFailures, inflight, requestDuration, cacaoVerifications, relayMessages)
	})
}

func RecordEnvelope(direction, transport string, envelopeType byte) {
	envelopes.WithLabelValues(direction, transport, typeLabel(envelopeType)).Inc()
}

func RecordDecryptFailure() { decryptFailures.Inc() }

// TrackRequest marks a request in flight; the returned func records its
// outcome and duration.
func TrackRequest(method string) func(outcome string) {
	inflight.Inc()
	start := time.Now()
	var once sync.Once
	return func(outcome string) {
		once.Do(func() {
			inflight.Dec()
			requestDuration.WithLabelValues(method, outcome).Observe(time.Since(start).Seconds())
		})
	}
}

func RecordVerification(sigType string, ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	cacaoVerifications.WithLabelValues(sigType, result).Inc()
}

func RecordRelayEvent(event string) { relayMessages.WithLabelValues(event).Inc() }

func typeLabel(t byte) string {
	switch t {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "other"
	}
}
