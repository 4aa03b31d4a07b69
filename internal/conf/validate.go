package conf

import (
	"fmt"
	"net"
	"slices"
	"strings"
	"time"
)

var (
	supportedBackends = []string{BackendMalgo, BackendPortAudio, BackendVirtual}
	logLevels         = []string{"trace", "debug", "info", "warn", "error"}
	malgoBackends     = []string{"wasapi", "dsound", "winmm", "coreaudio", "sndio", "audio4", "oss", "pulseaudio", "alsa", "jack", "aaudio", "opensl", "webaudio", "null"}
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct and normalizes names
// that are matched case-insensitively.
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	if err := validateBackendSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateLoggingSettings(settings); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateMetricsSettings(&settings.Metrics); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateTelemetrySettings(&settings.Telemetry); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if err := validateStreamSettings(&settings.Stream); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}
	if settings.Hotplug.Debounce < 0 {
		ve.Errors = append(ve.Errors, "hotplug debounce must not be negative")
	}

	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

func validateBackendSettings(settings *Settings) error {
	settings.Backend = normalizeBackend(settings.Backend)
	if !slices.Contains(supportedBackends, settings.Backend) {
		return fmt.Errorf("backend %q is not one of %s", settings.Backend, strings.Join(supportedBackends, ", "))
	}

	var unknown []string
	for i, name := range settings.Malgo.Backends {
		name = normalizeBackend(name)
		settings.Malgo.Backends[i] = name
		if !slices.Contains(malgoBackends, name) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		return fmt.Errorf("unknown malgo backends: %s", strings.Join(unknown, ", "))
	}
	if settings.Malgo.PollInterval < 10*time.Millisecond {
		return fmt.Errorf("malgo poll interval %s is below 10ms", settings.Malgo.PollInterval)
	}
	return nil
}

func validateLoggingSettings(settings *Settings) error {
	cfg := &settings.Logging
	levels := []string{cfg.DefaultLevel}
	if cfg.Console != nil {
		levels = append(levels, cfg.Console.Level)
	}
	if cfg.FileOutput != nil {
		levels = append(levels, cfg.FileOutput.Level)
		if cfg.FileOutput.Enabled && cfg.FileOutput.Path == "" {
			return fmt.Errorf("file logging is enabled but no path is set")
		}
	}
	for _, level := range cfg.ModuleLevels {
		levels = append(levels, level)
	}
	for _, level := range levels {
		if level != "" && !slices.Contains(logLevels, strings.ToLower(level)) {
			return fmt.Errorf("invalid log level %q", level)
		}
	}
	return nil
}

func validateMetricsSettings(settings *MetricsSettings) error {
	if !settings.Enabled {
		return nil
	}
	if _, _, err := net.SplitHostPort(settings.Listen); err != nil {
		return fmt.Errorf("invalid metrics listen address %q: %w", settings.Listen, err)
	}
	return nil
}

func validateTelemetrySettings(settings *TelemetrySettings) error {
	if settings.Enabled && settings.DSN == "" {
		return fmt.Errorf("telemetry is enabled but no DSN is set")
	}
	return nil
}

func validateStreamSettings(settings *StreamSettings) error {
	var errs []string
	if settings.SampleRate <= 0 {
		errs = append(errs, fmt.Sprintf("sample rate %v must be positive", settings.SampleRate))
	}
	if settings.Channels == 0 {
		errs = append(errs, "channel count must be positive")
	}
	switch {
	case settings.Float && settings.Bits != 32 && settings.Bits != 64:
		errs = append(errs, fmt.Sprintf("float samples must be 32 or 64 bits, got %d", settings.Bits))
	case !settings.Float && (settings.Bits == 0 || settings.Bits > 32):
		errs = append(errs, fmt.Sprintf("integer samples must be 1 to 32 bits, got %d", settings.Bits))
	}
	if settings.LogInterval < 0 {
		errs = append(errs, "real-time log interval must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("stream settings: %s", strings.Join(errs, "; "))
	}
	return nil
}
