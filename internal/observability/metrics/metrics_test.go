package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiohal/pkg/device"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/hal/virtual"
	"github.com/tphakala/audiohal/pkg/pcm"
	"github.com/tphakala/audiohal/pkg/stream"
)

func TestRecordStartAndStop(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewStreamMetrics(registry)
	require.NoError(t, err)

	m.RecordStart("output", "")
	m.RecordStart("output", "")
	m.RecordStart("output", "hardware_start")
	m.RecordStop("output", true)

	assert.InDelta(t, 2, testutil.ToFloat64(m.startTotal.WithLabelValues("output", LabelSuccess, "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.startTotal.WithLabelValues("output", LabelError, "hardware_start")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.stopTotal.WithLabelValues("output", LabelClean)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.activeStreams.WithLabelValues("output")), 0)
}

func TestObserverIncrementsBoundCounters(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewStreamMetrics(registry)
	require.NoError(t, err)

	obs := m.Observer("mic", "input")
	obs.ObserveCycle()
	obs.ObserveCycle()
	obs.ObserveContention()
	obs.ObserveStopped()
	obs.ObserveConversionFailure()
	obs.ObserveBytes(440)

	assert.InDelta(t, 2, testutil.ToFloat64(m.cycles.WithLabelValues("mic", "input")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.skippedCycles.WithLabelValues("mic", "input", ReasonContention)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.skippedCycles.WithLabelValues("mic", "input", ReasonStopped)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.conversionFailures.WithLabelValues("mic", "input")), 0)
	assert.InDelta(t, 440, testutil.ToFloat64(m.appBytes.WithLabelValues("mic", "input")), 0)
}

func TestConverterBuildHistogram(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewStreamMetrics(registry)
	require.NoError(t, err)

	m.RecordConverterBuild("output", 50*time.Microsecond)

	families, err := registry.Gather()
	require.NoError(t, err)
	h := findFamily(t, families, "audiohal_converter_build_duration_seconds")
	require.Len(t, h.GetMetric(), 1)
	assert.Equal(t, uint64(1), h.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestDuplicateRegistrationFails(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	_, err := NewStreamMetrics(registry)
	require.NoError(t, err)
	_, err = NewStreamMetrics(registry)
	require.Error(t, err)
}

func TestStreamMetricsRecordControllerActivity(t *testing.T) {
	t.Parallel()

	f := pcm.Build(48000, 2, 32, 32, true, false, false)
	h := virtual.New(virtual.DeviceSpec{
		UID:            "speakers",
		OutputChannels: []uint32{2},
		OutputFormat:   &f,
	})

	registry := prometheus.NewRegistry()
	m, err := NewStreamMetrics(registry)
	require.NoError(t, err)

	ctrl, err := stream.NewController(hal.HAL{Registry: h, IO: h}, nil, stream.WithRecorder(m))
	require.NoError(t, err)

	s, err := ctrl.StartOutput("speakers", func([]byte) {}, 44100, 2, 16, 16, false, false, false)
	require.NoError(t, err)

	id, err := h.DeviceForUID("speakers")
	require.NoError(t, err)
	procs := h.Procs(id)
	require.Len(t, procs, 1)
	require.True(t, h.Invoke(procs[0], nil, virtual.Buffers(2, 960)))

	_, err = ctrl.StartOutput("missing", func([]byte) {}, 44100, 2, 16, 16, false, false, false)
	require.Error(t, err)
	require.NoError(t, s.Stop())

	assert.InDelta(t, 1, testutil.ToFloat64(m.cycles.WithLabelValues("speakers", "output")), 0)
	assert.InDelta(t, 440, testutil.ToFloat64(m.appBytes.WithLabelValues("speakers", "output")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.startTotal.WithLabelValues("output", LabelError, "resolve")), 0)
	assert.InDelta(t, 0, testutil.ToFloat64(m.activeStreams.WithLabelValues("output")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.converterBuild))
}

func TestDeviceMetrics(t *testing.T) {
	t.Parallel()

	registry := prometheus.NewRegistry()
	m, err := NewDeviceMetrics(registry)
	require.NoError(t, err)

	m.SetDevices([]device.Info{
		{UID: "a", Name: "A", Transport: "USB", InputChannels: 2, NominalRate: 48000},
		{UID: "b", Name: "B", Transport: "Built-in", InputChannels: 2, OutputChannels: 2, NominalRate: 44100},
	})
	assert.InDelta(t, 2, testutil.ToFloat64(m.devicesPresent.WithLabelValues(LabelInput)), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.devicesPresent.WithLabelValues(LabelOutput)), 0)
	assert.InDelta(t, 48000, testutil.ToFloat64(m.deviceInfo.WithLabelValues("a", "A", "USB")), 0)

	m.SetDevices([]device.Info{{UID: "b", Name: "B", Transport: "Built-in", OutputChannels: 2}})
	assert.Equal(t, 1, testutil.CollectAndCount(m.deviceInfo))

	m.RecordChange(device.Change{Removed: []device.Info{{UID: "a"}}})
	m.RecordChange(device.Change{Added: []device.Info{{UID: "c"}, {UID: "d"}}})
	assert.InDelta(t, 1, testutil.ToFloat64(m.hotplugEvents.WithLabelValues(LabelRemoved)), 0)
	assert.InDelta(t, 2, testutil.ToFloat64(m.hotplugEvents.WithLabelValues(LabelAdded)), 0)
}

func findFamily(t *testing.T, families []*dto.MetricFamily, name string) *dto.MetricFamily {
	t.Helper()
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	require.Failf(t, "metric family not found", "%s", name)
	return nil
}
