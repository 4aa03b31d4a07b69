package app

import (
	"io"

	"github.com/tphakala/audiohal/internal/conf"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/hal/malgo"
	"github.com/tphakala/audiohal/pkg/hal/virtual"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// openBackend builds the HAL selected by settings.Backend. Converters are
// left nil so the controller uses the software converter.
func openBackend(settings *conf.Settings, log logger.Logger) (hal.HAL, io.Closer, error) {
	switch settings.Backend {
	case conf.BackendMalgo, "":
		b, err := malgo.New(malgo.Options{
			Backends:     settings.Malgo.Backends,
			PollInterval: settings.Malgo.PollInterval,
			Logger:       log,
		})
		if err != nil {
			return hal.HAL{}, nil, err
		}
		return hal.HAL{Registry: b, IO: b}, b, nil

	case conf.BackendPortAudio:
		return openPortAudio(log)

	case conf.BackendVirtual:
		v := virtual.New(virtual.DemoDevices()...)
		v.SetDefault(hal.ScopeOutput, virtual.DemoSpeakersUID)
		v.SetDefault(hal.ScopeInput, virtual.DemoMicrophoneUID)
		return hal.HAL{Registry: v, IO: v}, nopCloser{}, nil
	}

	return hal.HAL{}, nil, errors.Newf("unknown backend %q", settings.Backend).
		Component("app").
		Category(errors.CategoryConfiguration).
		Context("backend", settings.Backend).
		Build()
}
