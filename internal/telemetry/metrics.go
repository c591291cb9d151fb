// metrics.go: Prometheus metrics for the capture session
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "livecaption"

// Metrics holds the session collectors on a private registry. All methods
// are safe on a nil receiver so callers can run without telemetry.
type Metrics struct {
	registry *prometheus.Registry

	unitsRecognized     prometheus.Counter
	recognitionErrors   prometheus.Counter
	recognitionDuration prometheus.Histogram
	unitSamples         prometheus.Histogram

	utterancesFinalized prometheus.Counter
	translationFailures prometheus.Counter
	translationDuration prometheus.Histogram

	bufferPending prometheus.Gauge
	archiveBytes  prometheus.Gauge

	mqttConnected    prometheus.Gauge
	mqttErrors       prometheus.Counter
	mqttPublish      prometheus.Histogram
	mqttMessageBytes prometheus.Counter
}

// NewMetrics creates the collectors and registers them together with the Go
// and process collectors.
func NewMetrics() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		unitsRecognized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "units_recognized_total",
			Help: "Recognition units processed successfully.",
		}),
		recognitionErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "recognition_errors_total",
			Help: "Recognition units that failed.",
		}),
		recognitionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "recognition_duration_seconds",
			Help:    "Time spent recognizing one unit.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		unitSamples: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "unit_samples",
			Help:    "Samples per recognition unit.",
			Buckets: prometheus.ExponentialBuckets(1600, 2, 10),
		}),
		utterancesFinalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "utterances_finalized_total",
			Help: "Utterances committed to the transcript.",
		}),
		translationFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "translation_failures_total",
			Help: "Translations that failed.",
		}),
		translationDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "translation_duration_seconds",
			Help:    "Time spent translating one utterance.",
			Buckets: prometheus.DefBuckets,
		}),
		bufferPending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "buffer_pending_samples",
			Help: "Samples captured since the last reset.",
		}),
		archiveBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "archive_data_bytes",
			Help: "Bytes of sample data in the session archive.",
		}),
		mqttConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "connected",
			Help: "1 when connected to the MQTT broker.",
		}),
		mqttErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "errors_total",
			Help: "MQTT publish and connection errors.",
		}),
		mqttPublish: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "publish_duration_seconds",
			Help:    "Time to publish one message.",
			Buckets: prometheus.DefBuckets,
		}),
		mqttMessageBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "mqtt", Name: "message_bytes_total",
			Help: "Payload bytes delivered to the broker.",
		}),
	}

	for _, c := range []prometheus.Collector{
		m.unitsRecognized, m.recognitionErrors, m.recognitionDuration, m.unitSamples,
		m.utterancesFinalized, m.translationFailures, m.translationDuration,
		m.bufferPending, m.archiveBytes,
		m.mqttConnected, m.mqttErrors, m.mqttPublish, m.mqttMessageBytes,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := m.registry.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// ObserveRecognition records one recognition attempt
func (m *Metrics) ObserveRecognition(d time.Duration, samples int, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.recognitionErrors.Inc()
		return
	}
	m.unitsRecognized.Inc()
	m.recognitionDuration.Observe(d.Seconds())
	m.unitSamples.Observe(float64(samples))
}

// ObserveTranslation records one translation attempt
func (m *Metrics) ObserveTranslation(d time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.translationFailures.Inc()
		return
	}
	m.translationDuration.Observe(d.Seconds())
}

// IncUtterances counts a finalized utterance
func (m *Metrics) IncUtterances() {
	if m == nil {
		return
	}
	m.utterancesFinalized.Inc()
}

// SetBufferPending sets the pending sample gauge
func (m *Metrics) SetBufferPending(n int) {
	if m == nil {
		return
	}
	m.bufferPending.Set(float64(n))
}

// SetArchiveBytes sets the archive size gauge
func (m *Metrics) SetArchiveBytes(n uint32) {
	if m == nil {
		return
	}
	m.archiveBytes.Set(float64(n))
}

// SetMQTTConnected sets the broker connection gauge
func (m *Metrics) SetMQTTConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.mqttConnected.Set(1)
	} else {
		m.mqttConnected.Set(0)
	}
}

// IncMQTTErrors counts an MQTT failure
func (m *Metrics) IncMQTTErrors() {
	if m == nil {
		return
	}
	m.mqttErrors.Inc()
}

// ObserveMQTTPublish records a delivered message
func (m *Metrics) ObserveMQTTPublish(d time.Duration, size int) {
	if m == nil {
		return
	}
	m.mqttPublish.Observe(d.Seconds())
	m.mqttMessageBytes.Add(float64(size))
}
