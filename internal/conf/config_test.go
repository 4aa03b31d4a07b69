package conf

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsAreValid(t *testing.T) {
	t.Parallel()

	s := Defaults()
	require.NoError(t, ValidateSettings(s))

	assert.Equal(t, BackendMalgo, s.Backend)
	assert.Equal(t, DefaultPollInterval, s.Malgo.PollInterval)
	assert.InDelta(t, 44100, s.Stream.SampleRate, 0)
	assert.Equal(t, uint32(2), s.Stream.Channels)
	assert.Equal(t, uint32(16), s.Stream.Bits)
	assert.Equal(t, time.Second, s.Stream.LogInterval)
	assert.Equal(t, 250*time.Millisecond, s.Hotplug.Debounce)
	assert.Equal(t, "info", s.Logging.DefaultLevel)
	require.NotNil(t, s.Logging.Console)
	assert.True(t, s.Logging.Console.Enabled)
	assert.False(t, s.Metrics.Enabled)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
backend: Virtual
malgo:
  backends: [" ALSA ", pulseaudio]
  pollinterval: 500ms
metrics:
  enabled: true
  listen: 127.0.0.1:9000
stream:
  samplerate: 48000
  channels: 1
  bits: 32
  float: true
hotplug:
  debounce: 1s
logging:
  default_level: debug
  module_levels:
    stream: warn
`)

	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, BackendVirtual, s.Backend)
	assert.Equal(t, []string{"alsa", "pulseaudio"}, s.Malgo.Backends)
	assert.Equal(t, 500*time.Millisecond, s.Malgo.PollInterval)
	assert.True(t, s.Metrics.Enabled)
	assert.Equal(t, "127.0.0.1:9000", s.Metrics.Listen)
	assert.InDelta(t, 48000, s.Stream.SampleRate, 0)
	assert.Equal(t, uint32(1), s.Stream.Channels)
	assert.True(t, s.Stream.Float)
	assert.Equal(t, time.Second, s.Hotplug.Debounce)
	assert.Equal(t, "debug", s.Logging.DefaultLevel)
	assert.Equal(t, "warn", s.Logging.ModuleLevels["stream"])

	// Untouched keys keep their defaults.
	assert.Equal(t, time.Second, s.Stream.LogInterval)
	assert.Same(t, s, GetSettings())
}

func TestLoadMissingExplicitFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, "backend: malgo\n")
	t.Setenv("AUDIOHAL_BACKEND", "portaudio")
	t.Setenv("AUDIOHAL_STREAM_SAMPLERATE", "96000")
	t.Setenv("AUDIOHAL_METRICS_ENABLED", "true")
	t.Setenv("AUDIOHAL_METRICS_LISTEN", ":9100")
	t.Setenv("SENTRY_DSN", "https://key@example.invalid/1")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, BackendPortAudio, s.Backend)
	assert.InDelta(t, 96000, s.Stream.SampleRate, 0)
	assert.True(t, s.Metrics.Enabled)
	assert.Equal(t, ":9100", s.Metrics.Listen)
	assert.Equal(t, "https://key@example.invalid/1", s.Telemetry.DSN)
}

func TestInvalidEnvironmentValueIsReported(t *testing.T) {
	path := writeConfig(t, "")
	t.Setenv("AUDIOHAL_HOTPLUG_DEBOUNCE", "soon")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AUDIOHAL_HOTPLUG_DEBOUNCE")
}

func TestDotEnvNextToConfig(t *testing.T) {
	path := writeConfig(t, "")
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(path), ".env"),
		[]byte("AUDIOHAL_TELEMETRY_ENVIRONMENT=staging\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("AUDIOHAL_TELEMETRY_ENVIRONMENT") })

	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "staging", s.Telemetry.Environment)
}

func TestValidationCollectsEveryError(t *testing.T) {
	t.Parallel()

	s := Defaults()
	s.Backend = "coreaudio-direct"
	s.Telemetry.Enabled = true
	s.Stream.Bits = 48
	s.Stream.Channels = 0
	s.Logging.ModuleLevels = map[string]string{"device": "loud"}

	err := ValidateSettings(s)
	require.Error(t, err)

	var ve ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Len(t, ve.Errors, 4)
	assert.Contains(t, err.Error(), "coreaudio-direct")
	assert.Contains(t, err.Error(), "DSN")
	assert.Contains(t, err.Error(), "channel count")
	assert.Contains(t, err.Error(), "loud")
}

func TestUnknownMalgoBackend(t *testing.T) {
	t.Parallel()

	s := Defaults()
	s.Malgo.Backends = []string{"alsa", "beos"}
	err := ValidateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "beos")
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false))
	require.NoError(t, WriteDefault(path, true))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "backend: malgo")
	assert.Contains(t, string(data), "debounce: 250ms")

	v, err := newViper(path)
	require.NoError(t, err)
	loaded := &Settings{}
	require.NoError(t, v.Unmarshal(loaded))

	want := Defaults()
	assert.Equal(t, want.Backend, loaded.Backend)
	assert.Equal(t, want.Stream, loaded.Stream)
	assert.Equal(t, want.Hotplug, loaded.Hotplug)
	assert.Equal(t, want.Metrics, loaded.Metrics)
	assert.Equal(t, want.Malgo.PollInterval, loaded.Malgo.PollInterval)
	assert.Equal(t, *want.Logging.Console, *loaded.Logging.Console)
	assert.Equal(t, *want.Logging.FileOutput, *loaded.Logging.FileOutput)
}

func TestLoadChangedFlagsOverrideFile(t *testing.T) {
	path := writeConfig(t, `
backend: malgo
metrics:
  listen: 127.0.0.1:9000
`)

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("backend", "", "")
	fs.String("metrics-listen", "", "")
	fs.Bool("debug", false, "")
	require.NoError(t, fs.Parse([]string{"--backend", "virtual", "--debug"}))

	s, err := Load(path, fs)
	require.NoError(t, err)
	assert.Equal(t, BackendVirtual, s.Backend)
	assert.True(t, s.Debug)
	// An unchanged flag does not mask the file value.
	assert.Equal(t, "127.0.0.1:9000", s.Metrics.Listen)
}
