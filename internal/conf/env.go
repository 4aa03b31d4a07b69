package conf

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. AUDIOHAL_BACKEND.
const EnvPrefix = "AUDIOHAL"

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns the explicitly bound environment variables. Other
// keys are still reachable through AUDIOHAL_<SECTION>_<KEY>.
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "AUDIOHAL_DEBUG", validateEnvBool},
		{"backend", "AUDIOHAL_BACKEND", validateEnvBackend},
		{"malgo.pollinterval", "AUDIOHAL_MALGO_POLLINTERVAL", validateEnvDuration},

		{"logging.default_level", "AUDIOHAL_LOG_LEVEL", validateEnvLevel},

		{"metrics.enabled", "AUDIOHAL_METRICS_ENABLED", validateEnvBool},
		{"metrics.listen", "AUDIOHAL_METRICS_LISTEN", validateEnvListen},

		{"telemetry.enabled", "AUDIOHAL_TELEMETRY_ENABLED", validateEnvBool},
		{"telemetry.dsn", "AUDIOHAL_TELEMETRY_DSN", nil},
		{"telemetry.dsn", "SENTRY_DSN", nil},

		{"hotplug.debounce", "AUDIOHAL_HOTPLUG_DEBOUNCE", validateEnvDuration},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	var warnings []string

	// Bindings sharing a key are bound together; the first listed variable wins.
	byKey := make(map[string][]string)
	var keys []string
	for _, binding := range getEnvBindings() {
		if _, ok := byKey[binding.ConfigKey]; !ok {
			keys = append(keys, binding.ConfigKey)
		}
		byKey[binding.ConfigKey] = append(byKey[binding.ConfigKey], binding.EnvVar)

		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	for _, key := range keys {
		if err := v.BindEnv(append([]string{key}, byKey[key]...)...); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", key, err))
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return bindEnvVars(v)
}

// loadDotEnv loads .env from the working directory and each of dirs.
// Variables already present in the environment are not overridden.
func loadDotEnv(dirs ...string) error {
	candidates := []string{".env"}
	for _, dir := range dirs {
		candidates = append(candidates, filepath.Join(dir, ".env"))
	}

	var loaded []string
	for _, path := range candidates {
		abs, err := filepath.Abs(path)
		if err != nil || slices.Contains(loaded, abs) {
			continue
		}
		if _, err := os.Stat(abs); err != nil {
			continue
		}
		if err := godotenv.Load(abs); err != nil {
			return fmt.Errorf("error loading %s: %w", abs, err)
		}
		loaded = append(loaded, abs)
	}
	return nil
}

// Environment variable validation functions

func validateEnvBool(value string) error {
	if _, err := strconv.ParseBool(value); err != nil {
		return fmt.Errorf("must be true or false")
	}
	return nil
}

func validateEnvBackend(value string) error {
	if !slices.Contains(supportedBackends, normalizeBackend(value)) {
		return fmt.Errorf("must be one of %s", strings.Join(supportedBackends, ", "))
	}
	return nil
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return err
	}
	if d < 0 {
		return fmt.Errorf("must not be negative")
	}
	return nil
}

func validateEnvLevel(value string) error {
	if !slices.Contains(logLevels, strings.ToLower(value)) {
		return fmt.Errorf("must be one of %s", strings.Join(logLevels, ", "))
	}
	return nil
}

func validateEnvListen(value string) error {
	_, _, err := net.SplitHostPort(value)
	return err
}
