package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	PhaseStream = "stream"
	PhaseResend = "resend"
)

// Metrics holds per-run protocol counters. A nil *Metrics records nothing.
type Metrics struct {
	gatherer prometheus.Gatherer

	framesReceived *prometheus.CounterVec
	duplicates     prometheus.Counter
	gapsDetected   prometheus.Counter
	resends        *prometheus.CounterVec
	runDuration    *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg *prometheus.Registry) *Metrics {
	m := &Metrics{
		gatherer: reg,
		framesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "abx",
				Subsystem: "feed",
				Name:      "frames_received_total",
				Help:      "Record frames decoded, by exchange phase.",
			},
			[]string{"phase"},
		),
		duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abx",
			Subsystem: "feed",
			Name:      "duplicate_sequences_total",
			Help:      "Stream frames that overwrote an already stored sequence.",
		}),
		gapsDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "abx",
			Subsystem: "feed",
			Name:      "gaps_detected_total",
			Help:      "Missing sequences found after the bulk stream.",
		}),
		resends: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "abx",
				Subsystem: "feed",
				Name:      "resend_requests_total",
				Help:      "Resend exchanges, by outcome.",
			},
			[]string{"success"},
		),
		runDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "abx",
				Subsystem: "feed",
				Name:      "run_duration_seconds",
				Help:      "Wall time of one fetch run.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"success"},
		),
	}
	reg.MustRegister(m.framesReceived, m.duplicates, m.gapsDetected, m.resends, m.runDuration)
	return m
}

func (m *Metrics) RecordFrame(phase string) {
	if m == nil {
		return
	}
	m.framesReceived.WithLabelValues(phase).Inc()
}

func (m *Metrics) RecordDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) RecordGaps(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.gapsDetected.Add(float64(n))
}

func (m *Metrics) RecordResend(success bool) {
	if m == nil {
		return
	}
	m.resends.WithLabelValues(strconv.FormatBool(success)).Inc()
}

func (m *Metrics) ObserveRun(d time.Duration, success bool) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(strconv.FormatBool(success)).Observe(d.Seconds())
}

// WriteTextfile dumps the registry in text exposition format for a node_exporter
// textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.gatherer)
}
