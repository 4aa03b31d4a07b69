package hal

import "strings"

// TransportType is the physical or logical connection of a device.
type TransportType uint32

const (
	TransportUnknown TransportType = iota
	TransportAggregate
	TransportAirPlay
	TransportAutoAggregate
	TransportAVB
	TransportBluetooth
	TransportBuiltIn
	TransportDisplayPort
	TransportFireWire
	TransportHDMI
	TransportPCI
	TransportThunderbolt
	TransportUSB
	TransportVirtual
)

var transportLabels = map[TransportType]string{
	TransportUnknown:       "Unknown",
	TransportAggregate:     "Aggregate",
	TransportAirPlay:       "AirPlay",
	TransportAutoAggregate: "Auto aggregate",
	TransportAVB:           "AVB",
	TransportBluetooth:     "Bluetooth",
	TransportBuiltIn:       "Built-in",
	TransportDisplayPort:   "DisplayPort",
	TransportFireWire:      "FireWire",
	TransportHDMI:          "HDMI",
	TransportPCI:           "PCI",
	TransportThunderbolt:   "Thunderbolt",
	TransportUSB:           "USB",
	TransportVirtual:       "Virtual",
}

// Label returns the display label and whether t is a known transport.
func (t TransportType) Label() (string, bool) {
	label, ok := transportLabels[t]
	return label, ok
}

// String returns the display label, "Unknown" for unmapped values.
func (t TransportType) String() string {
	if label, ok := t.Label(); ok {
		return label
	}
	return transportLabels[TransportUnknown]
}

// TransportFromName guesses the connection type from a device name for
// backends that expose no transport property.
func TransportFromName(name string) TransportType {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "usb"):
		return TransportUSB
	case strings.Contains(n, "bluetooth"), strings.Contains(n, "bluez"), strings.Contains(n, "airpods"):
		return TransportBluetooth
	case strings.Contains(n, "hdmi"):
		return TransportHDMI
	case strings.Contains(n, "displayport"):
		return TransportDisplayPort
	case strings.Contains(n, "airplay"):
		return TransportAirPlay
	case strings.Contains(n, "null"), strings.Contains(n, "loopback"), strings.Contains(n, "monitor of"):
		return TransportVirtual
	case strings.Contains(n, "built-in"), strings.Contains(n, "internal"), strings.Contains(n, "macbook"):
		return TransportBuiltIn
	default:
		return TransportUnknown
	}
}
