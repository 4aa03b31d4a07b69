package conf

import (
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/device"
	"github.com/tphakala/audiohal/pkg/pcm"
	"github.com/tphakala/audiohal/pkg/stream"
)

// Default values that are not owned by another package.
const (
	DefaultBackend       = BackendMalgo
	DefaultMetricsListen = "localhost:9464"
	DefaultPollInterval  = 2 * time.Second
	DefaultAppBits       = 16
)

// setDefaultConfig sets default values for every setting.
func setDefaultConfig(v *viper.Viper) {
	v.SetDefault("debug", false)
	v.SetDefault("backend", DefaultBackend)

	v.SetDefault("malgo.backends", []string{})
	v.SetDefault("malgo.pollinterval", DefaultPollInterval)

	v.SetDefault("logging.default_level", logger.DefaultLogLevel)
	v.SetDefault("logging.timezone", "Local")
	v.SetDefault("logging.console.enabled", logger.DefaultConsoleEnabled)
	v.SetDefault("logging.console.level", logger.DefaultLogLevel)
	v.SetDefault("logging.console.stderr", true)
	v.SetDefault("logging.file_output.enabled", logger.DefaultFileEnabled)
	v.SetDefault("logging.file_output.path", logger.DefaultLogPath)
	v.SetDefault("logging.file_output.max_size", logger.DefaultMaxSize)
	v.SetDefault("logging.file_output.max_age", logger.DefaultMaxAge)
	v.SetDefault("logging.file_output.max_rotated_files", logger.DefaultMaxRotatedFiles)
	v.SetDefault("logging.file_output.compress", false)
	v.SetDefault("logging.file_output.level", logger.DefaultLogLevel)
	v.SetDefault("logging.module_levels", map[string]string{})

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.listen", DefaultMetricsListen)

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.dsn", "")
	v.SetDefault("telemetry.environment", "production")

	v.SetDefault("stream.samplerate", pcm.DefaultSampleRate)
	v.SetDefault("stream.channels", pcm.DefaultChannels)
	v.SetDefault("stream.bits", DefaultAppBits)
	v.SetDefault("stream.float", false)
	v.SetDefault("stream.loginterval", stream.DefaultLogInterval)
	v.SetDefault("stream.logburst", stream.DefaultLogBurst)

	v.SetDefault("hotplug.debounce", device.DefaultDebounce)
}
