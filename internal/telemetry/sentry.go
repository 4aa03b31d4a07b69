// Package telemetry wires opt-in Sentry error reporting. Events carry the
// enhanced error context built by internal/errors and are stripped of host
// and user identifying data before they leave the process.
package telemetry

import (
	"fmt"
	"runtime"
	"time"

	"github.com/getsentry/sentry-go"

	"github.com/tphakala/audiohal/internal/conf"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
)

// flushTimeout bounds how long shutdown waits for queued events.
const flushTimeout = 2 * time.Second

// Shutdown flushes pending events and uninstalls the reporter.
type Shutdown func()

// Options tune Init. Transport is only set by tests.
type Options struct {
	Version   string
	SystemID  string
	Transport sentry.Transport
}

// InitSentry initializes Sentry when telemetry is enabled and installs the
// error reporter. It is a no-op returning a no-op Shutdown otherwise.
func InitSentry(settings *conf.TelemetrySettings, opts Options, log logger.Logger) (Shutdown, error) {
	log = logger.OrNop(log).Module("telemetry")
	if settings == nil || !settings.Enabled {
		log.Debug("Sentry telemetry is disabled (opt-in required)")
		return func() {}, nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              settings.DSN,
		SampleRate:       1.0,
		AttachStacktrace: false,
		Environment:      settings.Environment,
		ServerName:       "",
		Release:          fmt.Sprintf("audiohal@%s", opts.Version),
		Transport:        opts.Transport,
		BeforeSend: func(event *sentry.Event, _ *sentry.EventHint) *sentry.Event {
			return applyPrivacyFilters(event, opts.SystemID)
		},
	})
	if err != nil {
		return nil, errors.New(err).
			Component("telemetry").
			Category(errors.CategoryConfiguration).
			Context("operation", "sentry_init").
			Build()
	}

	sentry.ConfigureScope(func(scope *sentry.Scope) {
		scope.SetTag("os", runtime.GOOS)
		scope.SetTag("arch", runtime.GOARCH)
		scope.SetTag("go_version", runtime.Version())
		scope.SetTag("num_cpu", fmt.Sprint(runtime.NumCPU()))
	})

	errors.SetTelemetryReporter(errors.NewSentryReporter(true))
	log.Info("Sentry telemetry initialized",
		logger.String("environment", settings.Environment),
		logger.String("release", opts.Version))

	return func() {
		errors.SetTelemetryReporter(nil)
		if !sentry.Flush(flushTimeout) {
			log.Warn("Sentry flush timed out", logger.Duration("timeout", flushTimeout))
		}
	}, nil
}

// applyPrivacyFilters clears user and host data. Only the anonymous system ID
// is kept so repeated reports from one installation can be grouped.
func applyPrivacyFilters(event *sentry.Event, systemID string) *sentry.Event {
	event.User = sentry.User{ID: systemID}
	event.ServerName = ""
	event.Request = nil
	event.Modules = nil

	if event.Contexts != nil {
		delete(event.Contexts, "device")
		delete(event.Contexts, "os")
		delete(event.Contexts, "runtime")
	}
	if event.Tags != nil {
		delete(event.Tags, "server_name")
		delete(event.Tags, "hostname")
	}
	return event
}
