// Package conf loads and saves audiohal settings.
package conf

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tphakala/audiohal/internal/logger"
)

// Supported HAL backends.
const (
	BackendMalgo     = "malgo"
	BackendPortAudio = "portaudio"
	BackendVirtual   = "virtual"
)

// MalgoSettings configures the miniaudio backend.
type MalgoSettings struct {
	Backends     []string      // preferred miniaudio backends in order, empty for the platform default
	PollInterval time.Duration // device list polling interval for hot-plug detection
}

// MetricsSettings configures the Prometheus endpoint.
type MetricsSettings struct {
	Enabled bool   // true to serve /metrics
	Listen  string // listen address, host:port
}

// TelemetrySettings configures error reporting.
type TelemetrySettings struct {
	Enabled     bool   // true to report errors to Sentry
	DSN         string // Sentry DSN
	Environment string // environment tag attached to events
}

// StreamSettings holds the default application format and real-time log limits.
type StreamSettings struct {
	SampleRate  float64       // application sample rate in Hz
	Channels    uint32        // application channel count
	Bits        uint32        // application bits per sample
	Float       bool          // true for IEEE float samples
	LogInterval time.Duration // minimum interval between real-time log messages
	LogBurst    int           // real-time log messages allowed in a burst
}

// HotplugSettings configures device-list change reporting.
type HotplugSettings struct {
	Debounce time.Duration // quiet period before a change is reported
}

// Settings is the complete audiohal configuration.
type Settings struct {
	Debug     bool                 // true to enable debug logging
	Backend   string               // HAL backend: malgo, portaudio or virtual
	Malgo     MalgoSettings        // miniaudio backend settings
	Logging   logger.LoggingConfig // logging configuration
	Metrics   MetricsSettings      // Prometheus metrics endpoint
	Telemetry TelemetrySettings    // Sentry error reporting
	Stream    StreamSettings       // stream defaults
	Hotplug   HotplugSettings      // hot-plug reporting
}

var (
	settingsInstance *Settings
	settingsMutex    sync.RWMutex
)

// Load reads settings from configFile, or from config.yaml in the default
// config paths when configFile is empty. A missing default config file is not
// an error: defaults and environment overrides apply. .env files in the
// working directory and the config directory are loaded first. Flags named in
// FlagKeys that were set on flags take precedence over every other source.
func Load(configFile string, flags ...*pflag.FlagSet) (*Settings, error) {
	v, err := newViper(configFile)
	if err != nil {
		return nil, err
	}
	for _, fs := range flags {
		if err := bindFlags(v, fs); err != nil {
			return nil, err
		}
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, fmt.Errorf("error validating settings: %w", err)
	}

	settingsMutex.Lock()
	settingsInstance = settings
	settingsMutex.Unlock()
	return settings, nil
}

// GetSettings returns the most recently loaded settings, or nil.
func GetSettings() *Settings {
	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// newViper builds a viper instance with defaults, environment bindings and
// the config file applied.
func newViper(configFile string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaultConfig(v)

	var dirs []string
	if configFile != "" {
		v.SetConfigFile(configFile)
		dirs = []string{filepath.Dir(configFile)}
	} else {
		paths, err := GetDefaultConfigPaths()
		if err != nil {
			return nil, fmt.Errorf("error getting default config paths: %w", err)
		}
		v.SetConfigName("config")
		for _, path := range paths {
			v.AddConfigPath(path)
		}
		dirs = paths
	}

	if err := loadDotEnv(dirs...); err != nil {
		return nil, err
	}
	if err := configureEnvironmentVariables(v); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile == "" && errors.As(err, &notFound) {
			return v, nil
		}
		return nil, fmt.Errorf("fatal error reading config file: %w", err)
	}
	return v, nil
}

// FlagKeys maps command-line flag names to settings keys.
var FlagKeys = map[string]string{
	"backend":        "backend",
	"debug":          "debug",
	"malgo-backends": "malgo.backends",
	"metrics":        "metrics.enabled",
	"metrics-listen": "metrics.listen",
	"telemetry":      "telemetry.enabled",
}

// bindFlags binds the FlagKeys flags present in fs.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	if fs == nil {
		return nil
	}
	for name, key := range FlagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("error binding flag %s: %w", name, err)
		}
	}
	return nil
}

// Defaults returns the settings produced by the built-in defaults alone.
func Defaults() *Settings {
	v := viper.New()
	setDefaultConfig(v)
	settings := &Settings{}
	// Defaults always decode.
	_ = v.Unmarshal(settings)
	return settings
}

// WriteDefault writes the default settings to path. It refuses to replace an
// existing file unless overwrite is set.
func WriteDefault(path string, overwrite bool) error {
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}
	return SaveYAMLConfig(path, Defaults())
}

// SaveYAMLConfig writes settings to configPath as YAML, replacing the file
// atomically. Comments and ordering of an existing file are not preserved.
func SaveYAMLConfig(configPath string, settings *Settings) error {
	yamlData, err := yaml.Marshal(settings)
	if err != nil {
		return fmt.Errorf("error marshaling settings to YAML: %w", err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(configPath), "config-*.yaml")
	if err != nil {
		return fmt.Errorf("error creating temporary file: %w", err)
	}
	tempFileName := tempFile.Name()
	defer os.Remove(tempFileName)

	if _, err := tempFile.Write(yamlData); err != nil {
		tempFile.Close()
		return fmt.Errorf("error writing to temporary file: %w", err)
	}
	if err := tempFile.Close(); err != nil {
		return fmt.Errorf("error closing temporary file: %w", err)
	}

	if err := os.Rename(tempFileName, configPath); err != nil {
		return fmt.Errorf("error replacing config file: %w", err)
	}
	return nil
}

// normalizeBackend lower-cases and trims a backend name.
func normalizeBackend(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
