package tone

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiohal/internal/app"
	"github.com/tphakala/audiohal/internal/conf"
	"github.com/tphakala/audiohal/pkg/hal/virtual"
	"github.com/tphakala/audiohal/pkg/stream"
)

func newEnv(t *testing.T) *app.Env {
	t.Helper()

	s := conf.Defaults()
	s.Backend = conf.BackendVirtual
	s.Logging.Console.Enabled = false
	s.Logging.FileOutput.Enabled = true
	s.Logging.FileOutput.Path = filepath.Join(t.TempDir(), "audiohal.log")

	env, err := app.New(s, "test")
	require.NoError(t, err)
	t.Cleanup(func() { _ = env.Close() })
	return env
}

func TestToneAnalyzesCapture(t *testing.T) {
	env := newEnv(t)

	r, err := Tone(t.Context(), env, virtual.DemoSpeakersUID, Options{
		Frequency: 440,
		Amplitude: 0.5,
		Duration:  300 * time.Millisecond,
		Channels:  2,
		Verify:    virtual.DemoMicrophoneUID,
	})
	require.NoError(t, err)
	assert.Positive(t, r.Frames)
	assert.Empty(t, env.Controller.Active())
}

func TestToneReportsCaptureTeardownFailure(t *testing.T) {
	env := newEnv(t)
	h, ok := env.HAL.Registry.(*virtual.HAL)
	require.True(t, ok)

	// Pull the microphone once both streams run, so only the capture
	// stream fails to stop cleanly.
	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for len(env.Controller.Active()) < 2 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		h.Unplug(virtual.DemoMicrophoneUID)
	}()

	_, err := Tone(t.Context(), env, virtual.DemoSpeakersUID, Options{
		Frequency: 440,
		Amplitude: 0.5,
		Duration:  300 * time.Millisecond,
		Channels:  2,
		Verify:    virtual.DemoMicrophoneUID,
	})
	require.ErrorIs(t, err, stream.ErrDeviceNotFound)
	assert.Empty(t, env.Controller.Active())
}
