package app

import (
	"github.com/tphakala/audiohal/pkg/pcm"
)

// DeviceUID returns uid, or the system default device of the direction when
// uid is empty.
func (e *Env) DeviceUID(uid string, output bool) (string, error) {
	if uid != "" {
		return uid, nil
	}
	if output {
		return e.Directory.DefaultOutputUID()
	}
	return e.Directory.DefaultInputUID()
}

// AppFormat is the configured application format. A positive rate or
// channel count overrides the configured value.
func (e *Env) AppFormat(rate float64, channels uint32) pcm.Format {
	s := e.Settings.Stream
	if rate <= 0 {
		rate = s.SampleRate
	}
	if channels == 0 {
		channels = s.Channels
	}
	return pcm.Build(rate, channels, s.Bits, s.Bits, s.Float, false, false)
}
