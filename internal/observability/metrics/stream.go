// Package metrics provides Prometheus collectors for the audio device layer.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audiohal/pkg/stream"
)

var _ stream.Recorder = (*StreamMetrics)(nil)

// StreamMetrics contains Prometheus metrics for stream lifecycle and
// real-time callback activity. It implements stream.Recorder.
type StreamMetrics struct {
	registry *prometheus.Registry

	// Lifecycle metrics
	startTotal     *prometheus.CounterVec
	stopTotal      *prometheus.CounterVec
	activeStreams  *prometheus.GaugeVec
	converterBuild *prometheus.HistogramVec

	// Real-time metrics
	cycles             *prometheus.CounterVec
	skippedCycles      *prometheus.CounterVec
	conversionFailures *prometheus.CounterVec
	appBytes           *prometheus.CounterVec

	// collectors is a slice of all collectors for easier iteration
	collectors []prometheus.Collector
}

// NewStreamMetrics creates and registers new stream metrics
func NewStreamMetrics(registry *prometheus.Registry) (*StreamMetrics, error) {
	m := &StreamMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *StreamMetrics) initMetrics() {
	m.startTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_stream_start_total",
			Help: "Total number of stream start attempts",
		},
		[]string{"direction", "status", "stage"},
	)

	m.stopTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_stream_stop_total",
			Help: "Total number of stream stops",
		},
		[]string{"direction", "result"},
	)

	m.activeStreams = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiohal_active_streams",
			Help: "Number of running streams",
		},
		[]string{"direction"},
	)

	m.converterBuild = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "audiohal_converter_build_duration_seconds",
			Help:    "Time taken to create a format converter",
			Buckets: prometheus.ExponentialBuckets(BucketStart10us, BucketFactor2, BucketCount12),
		},
		[]string{"direction"},
	)

	m.cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_callback_cycles_total",
			Help: "Total number of real-time callback cycles that moved data",
		},
		[]string{"device_uid", "direction"},
	)

	m.skippedCycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_callback_skipped_total",
			Help: "Total number of real-time callback cycles that produced no data",
		},
		[]string{"device_uid", "direction", "reason"},
	)

	m.conversionFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_conversion_failures_total",
			Help: "Total number of failed format conversions on the real-time path",
		},
		[]string{"device_uid", "direction"},
	)

	m.appBytes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_app_bytes_total",
			Help: "Total bytes exchanged with the application data callback",
		},
		[]string{"device_uid", "direction"},
	)

	m.collectors = []prometheus.Collector{
		m.startTotal,
		m.stopTotal,
		m.activeStreams,
		m.converterBuild,
		m.cycles,
		m.skippedCycles,
		m.conversionFailures,
		m.appBytes,
	}
}

// Describe implements the Collector interface
func (m *StreamMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *StreamMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordStart records a start attempt. An empty stage means the stream started.
func (m *StreamMetrics) RecordStart(direction, stage string) {
	if stage == "" {
		m.startTotal.WithLabelValues(direction, LabelSuccess, "").Inc()
		m.activeStreams.WithLabelValues(direction).Inc()
		return
	}
	m.startTotal.WithLabelValues(direction, LabelError, stage).Inc()
}

// RecordStop records a completed teardown.
func (m *StreamMetrics) RecordStop(direction string, clean bool) {
	result := LabelClean
	if !clean {
		result = LabelDirty
	}
	m.stopTotal.WithLabelValues(direction, result).Inc()
	m.activeStreams.WithLabelValues(direction).Dec()
}

// RecordConverterBuild records the time taken to create a converter.
func (m *StreamMetrics) RecordConverterBuild(direction string, d time.Duration) {
	m.converterBuild.WithLabelValues(direction).Observe(d.Seconds())
}

// Observer returns real-time counters bound to one stream's labels. Label
// lookup happens here, so the hardware thread only increments.
func (m *StreamMetrics) Observer(uid, direction string) stream.Observer {
	return &streamObserver{
		cycles:     m.cycles.WithLabelValues(uid, direction),
		contention: m.skippedCycles.WithLabelValues(uid, direction, ReasonContention),
		stopped:    m.skippedCycles.WithLabelValues(uid, direction, ReasonStopped),
		failures:   m.conversionFailures.WithLabelValues(uid, direction),
		bytes:      m.appBytes.WithLabelValues(uid, direction),
	}
}

type streamObserver struct {
	cycles     prometheus.Counter
	contention prometheus.Counter
	stopped    prometheus.Counter
	failures   prometheus.Counter
	bytes      prometheus.Counter
}

func (o *streamObserver) ObserveCycle()             { o.cycles.Inc() }
func (o *streamObserver) ObserveContention()        { o.contention.Inc() }
func (o *streamObserver) ObserveStopped()           { o.stopped.Inc() }
func (o *streamObserver) ObserveConversionFailure() { o.failures.Inc() }
func (o *streamObserver) ObserveBytes(n int)        { o.bytes.Add(float64(n)) }
