package hal

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransportLabels(t *testing.T) {
	t.Parallel()

	tests := map[TransportType]string{
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
		TransportUnknown:       "Unknown",
		TransportUSB:           "USB",
		TransportVirtual:       "Virtual",
	}
	for tt, want := range tests {
		label, ok := tt.Label()
		assert.True(t, ok)
		assert.Equal(t, want, label)
		assert.Equal(t, want, tt.String())
	}

	_, ok := TransportType(999).Label()
	assert.False(t, ok)
	assert.Equal(t, "Unknown", TransportType(999).String())
}

func TestStatusErrorMatching(t *testing.T) {
	t.Parallel()

	cause := errors.New("device gone")
	err := fmt.Errorf("stopping: %w", NewStatusError("stop", StatusBadDevice, cause))

	assert.ErrorIs(t, err, &StatusError{Status: StatusBadDevice})
	assert.ErrorIs(t, err, &StatusError{Op: "stop", Status: StatusBadDevice})
	assert.NotErrorIs(t, err, &StatusError{Op: "start", Status: StatusBadDevice})
	assert.NotErrorIs(t, err, &StatusError{Status: StatusNotRunning})
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "stopping: hal: stop: bad device: device gone", err.Error())
}

func TestScopeAndSelectorStrings(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "input", ScopeInput.String())
	assert.Equal(t, "output", ScopeOutput.String())
	assert.Equal(t, "global", ScopeGlobal.String())
	assert.Equal(t, "model_uid", PropertyModelUID.String())
}

func TestTransportFromName(t *testing.T) {
	t.Parallel()

	tests := map[string]TransportType{
		"USB Audio CODEC":                TransportUSB,
		"WH-1000XM4 (Bluetooth)":         TransportBluetooth,
		"HDA Intel PCH, HDMI 0":          TransportHDMI,
		"NULL Playback Device":           TransportVirtual,
		"Monitor of Built-in Audio":      TransportVirtual,
		"MacBook Pro Speakers":           TransportBuiltIn,
		"Scarlett 2i2 Studio Microphone": TransportUnknown,
	}
	for name, want := range tests {
		assert.Equal(t, want, TransportFromName(name), name)
	}
}
