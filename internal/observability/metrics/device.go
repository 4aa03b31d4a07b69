package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tphakala/audiohal/pkg/device"
)

// DeviceMetrics contains Prometheus metrics for the device list.
type DeviceMetrics struct {
	registry *prometheus.Registry

	devicesPresent *prometheus.GaugeVec
	hotplugEvents  *prometheus.CounterVec
	deviceInfo     *prometheus.GaugeVec

	collectors []prometheus.Collector
}

// NewDeviceMetrics creates and registers new device metrics
func NewDeviceMetrics(registry *prometheus.Registry) (*DeviceMetrics, error) {
	m := &DeviceMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *DeviceMetrics) initMetrics() {
	m.devicesPresent = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiohal_devices",
			Help: "Number of present devices with channels in a scope",
		},
		[]string{"scope"},
	)

	m.hotplugEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audiohal_hotplug_events_total",
			Help: "Total number of devices added or removed",
		},
		[]string{"change"},
	)

	m.deviceInfo = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "audiohal_device_info",
			Help: "Present devices, value is the nominal sample rate",
		},
		[]string{"device_uid", "name", "transport"},
	)

	m.collectors = []prometheus.Collector{
		m.devicesPresent,
		m.hotplugEvents,
		m.deviceInfo,
	}
}

// Describe implements the Collector interface
func (m *DeviceMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *DeviceMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// SetDevices replaces the device gauges with the given list.
func (m *DeviceMetrics) SetDevices(infos []device.Info) {
	var inputs, outputs int
	m.deviceInfo.Reset()
	for _, info := range infos {
		if info.IsInput() {
			inputs++
		}
		if info.IsOutput() {
			outputs++
		}
		m.deviceInfo.WithLabelValues(info.UID, info.Name, info.Transport).Set(info.NominalRate)
	}
	m.devicesPresent.WithLabelValues(LabelInput).Set(float64(inputs))
	m.devicesPresent.WithLabelValues(LabelOutput).Set(float64(outputs))
}

// RecordChange counts the devices of a settled hot-plug change.
func (m *DeviceMetrics) RecordChange(c device.Change) {
	if n := len(c.Added); n > 0 {
		m.hotplugEvents.WithLabelValues(LabelAdded).Add(float64(n))
	}
	if n := len(c.Removed); n > 0 {
		m.hotplugEvents.WithLabelValues(LabelRemoved).Add(float64(n))
	}
}
