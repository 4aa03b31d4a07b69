//go:build portaudio

package app

import (
	"io"

	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/hal/portaudio"
)

func openPortAudio(log logger.Logger) (hal.HAL, io.Closer, error) {
	b, err := portaudio.New(log)
	if err != nil {
		return hal.HAL{}, nil, err
	}
	return hal.HAL{Registry: b, IO: b}, b, nil
}
