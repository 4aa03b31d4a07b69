// Package app assembles the process runtime shared by the CLI commands:
// logging, telemetry, metrics, the HAL backend, the device directory and the
// stream controller.
package app

import (
	"io"
	"sync"

	"github.com/tphakala/audiohal/internal/conf"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/internal/observability"
	"github.com/tphakala/audiohal/internal/telemetry"
	"github.com/tphakala/audiohal/pkg/device"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/stream"
)

// Env is the initialized runtime. Close releases it in reverse order.
type Env struct {
	Settings   *conf.Settings
	Logger     *logger.CentralLogger
	Log        logger.Logger
	HAL        hal.HAL
	Directory  *device.Directory
	Controller *stream.Controller
	Metrics    *observability.Metrics
	Endpoint   *observability.Endpoint

	backend  io.Closer
	shutdown telemetry.Shutdown
	quit     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
}

// New initializes every subsystem from settings.
func New(settings *conf.Settings, version string) (*Env, error) {
	e := &Env{}
	if err := e.Init(settings, version); err != nil {
		return nil, err
	}
	return e, nil
}

// Init initializes a zero Env in place, so commands can be built before
// configuration is loaded. On failure whatever was already started is
// released.
func (e *Env) Init(settings *conf.Settings, version string) (err error) {
	if settings.Debug {
		settings.Logging.DefaultLevel = "debug"
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = "debug"
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return errors.New(err).
			Component("app").
			Category(errors.CategoryConfiguration).
			Context("operation", "logger_init").
			Build()
	}

	// Subsystems name their own modules below the unnamed root.
	root := central.Module("")
	e.Settings = settings
	e.Logger = central
	e.Log = root.Module("app")
	e.quit = make(chan struct{})
	defer func() {
		if err != nil {
			e.Close()
		}
	}()

	opts := telemetry.Options{Version: version}
	if settings.Telemetry.Enabled {
		opts.SystemID = systemID(e.Log)
	}
	e.shutdown, err = telemetry.InitSentry(&settings.Telemetry, opts, root)
	if err != nil {
		return err
	}

	if e.Metrics, err = observability.NewMetrics(); err != nil {
		return err
	}
	if settings.Metrics.Enabled {
		if e.Endpoint, err = observability.NewEndpoint(&settings.Metrics, e.Metrics, root); err != nil {
			return err
		}
		if err = e.Endpoint.Start(&e.wg, e.quit); err != nil {
			return err
		}
	}

	e.HAL, e.backend, err = openBackend(settings, root)
	if err != nil {
		return err
	}

	e.Directory = device.NewDirectory(e.HAL.Registry, root, device.WithDebounce(settings.Hotplug.Debounce))
	e.Controller, err = stream.NewController(e.HAL, root,
		stream.WithDirectory(e.Directory),
		stream.WithRecorder(e.Metrics.Stream),
		stream.WithRealtimeLogLimit(settings.Stream.LogInterval, settings.Stream.LogBurst),
	)
	if err != nil {
		return err
	}

	e.Log.Debug("runtime initialized",
		logger.String("backend", settings.Backend),
		logger.Bool("metrics", settings.Metrics.Enabled),
		logger.Bool("telemetry", settings.Telemetry.Enabled))
	return nil
}

// Close stops active streams, closes the backend, stops the metrics endpoint,
// flushes telemetry and closes the logger. It is safe to call more than once.
func (e *Env) Close() error {
	var errs []error
	e.once.Do(func() {
		if e.quit == nil {
			return
		}
		if e.Controller != nil {
			if err := e.Controller.StopAll(); err != nil {
				errs = append(errs, err)
			}
		}
		if e.backend != nil {
			if err := e.backend.Close(); err != nil {
				errs = append(errs, err)
			}
		}
		close(e.quit)
		e.wg.Wait()
		if e.shutdown != nil {
			e.shutdown()
		}
		if e.Logger != nil {
			if err := e.Logger.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

// systemID loads the anonymous telemetry ID from the config directory.
func systemID(log logger.Logger) string {
	paths, err := conf.GetDefaultConfigPaths()
	if err != nil || len(paths) == 0 {
		return ""
	}
	id, err := telemetry.LoadOrCreateSystemID(paths[0])
	if err != nil {
		log.Debug("system ID unavailable", logger.Error(err))
		return ""
	}
	return id
}
