//go:build !portaudio

package app

import (
	"io"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

func openPortAudio(logger.Logger) (hal.HAL, io.Closer, error) {
	return hal.HAL{}, nil, errors.Newf("portaudio backend not compiled in, rebuild with -tags portaudio").
		Component("app").
		Category(errors.CategoryConfiguration).
		Context("backend", "portaudio").
		Build()
}
