// Package errors - telemetry integration (optional)
package errors

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"

	"github.com/getsentry/sentry-go"
)

// TelemetryReporter is an interface for reporting errors to telemetry systems
type TelemetryReporter interface {
	ReportError(err *EnhancedError)
	IsEnabled() bool
}

// SentryReporter implements TelemetryReporter for Sentry
type SentryReporter struct {
	enabled bool
	capture func(event *sentry.Event)
}

// NewSentryReporter creates a new Sentry telemetry reporter. sentry.Init must
// have been called by the caller before errors are reported.
func NewSentryReporter(enabled bool) *SentryReporter {
	return &SentryReporter{
		enabled: enabled,
		capture: func(event *sentry.Event) {
			sentry.CaptureEvent(event)
		},
	}
}

// IsEnabled returns whether Sentry telemetry is enabled
func (sr *SentryReporter) IsEnabled() bool {
	return sr != nil && sr.enabled
}

// ReportError reports an enhanced error to Sentry with privacy protection
func (sr *SentryReporter) ReportError(ee *EnhancedError) {
	if !sr.IsEnabled() || ee.IsReported() {
		return
	}

	event := buildEvent(ee)

	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("component", ee.GetComponent())
		scope.SetTag("category", string(ee.Category))
		scope.SetFingerprint([]string{event.Exception[0].Type, ee.GetComponent(), string(ee.Category)})
		sr.capture(event)
	})

	ee.MarkReported()
}

// buildEvent converts an enhanced error into a scrubbed Sentry event
func buildEvent(ee *EnhancedError) *sentry.Event {
	message := scrubMessage(fmt.Sprintf("[%s] %s", ee.Category, ee.Err.Error()))

	event := sentry.NewEvent()
	event.Message = message
	event.Level = levelFor(ee.Category)
	event.Tags = map[string]string{
		"error_type": fmt.Sprintf("%T", ee.Err),
	}
	if ee.Priority != "" {
		event.Tags["priority"] = ee.Priority
	}

	ctx := ee.GetContext()
	if len(ctx) > 0 {
		scrubbed := make(map[string]any, len(ctx))
		for k, v := range ctx {
			if s, ok := v.(string); ok {
				v = scrubMessage(s)
			}
			scrubbed[k] = v
		}
		event.Contexts = map[string]sentry.Context{"audiohal": scrubbed}
	}

	event.Exception = []sentry.Exception{{
		Type:  errorTitle(ee),
		Value: message,
	}}
	return event
}

// errorTitle creates a grouping title such as "Stream Hardware I/O Error Start Output"
func errorTitle(ee *EnhancedError) string {
	var parts []string

	if c := ee.GetComponent(); c != "" && c != ComponentUnknown {
		parts = append(parts, titleCase(c))
	}
	parts = append(parts, categoryTitle(ee.Category))

	if op, ok := ee.GetContext()["operation"].(string); ok && op != "" {
		words := strings.Fields(strings.ReplaceAll(op, "_", " "))
		for i, w := range words {
			words[i] = titleCase(w)
		}
		parts = append(parts, strings.Join(words, " "))
	}

	return strings.Join(parts, " ")
}

func categoryTitle(category ErrorCategory) string {
	switch category {
	case CategoryDevice:
		return "Device Error"
	case CategoryProperty:
		return "Property Query Error"
	case CategoryFormat:
		return "Format Error"
	case CategoryConverter:
		return "Converter Error"
	case CategoryStream:
		return "Stream Error"
	case CategoryHardware:
		return "Hardware I/O Error"
	case CategoryRealtime:
		return "Realtime Error"
	case CategoryConfiguration:
		return "Configuration Error"
	case CategoryValidation:
		return "Validation Error"
	default:
		return string(category)
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// levelFor maps categories to Sentry levels
func levelFor(category ErrorCategory) sentry.Level {
	switch category {
	case CategoryRealtime, CategoryHotplug, CategoryNotFound:
		return sentry.LevelWarning
	default:
		return sentry.LevelError
	}
}

var (
	telemetryMu     sync.RWMutex
	globalTelemetry TelemetryReporter
)

// SetTelemetryReporter installs the global telemetry reporter; nil disables reporting
func SetTelemetryReporter(reporter TelemetryReporter) {
	telemetryMu.Lock()
	defer telemetryMu.Unlock()
	globalTelemetry = reporter
	hasActiveReporting.Store(reporter != nil && reporter.IsEnabled())
}

// GetTelemetryReporter returns the current telemetry reporter
func GetTelemetryReporter() TelemetryReporter {
	telemetryMu.RLock()
	defer telemetryMu.RUnlock()
	return globalTelemetry
}

func reportToTelemetry(ee *EnhancedError) {
	reporter := GetTelemetryReporter()
	if reporter != nil && reporter.IsEnabled() {
		reporter.ReportError(ee)
	}
}

var (
	queryRegex  = regexp.MustCompile(`(https?://[^?\s]+)\?\S*`)
	serialRegex = regexp.MustCompile(`(?i)(serial|sn)[=:]\S+`)
	hexIDRegex  = regexp.MustCompile(`\b[0-9a-fA-F]{16,}\b`)
	homeRegex   = regexp.MustCompile(`(/home/|/Users/|\\Users\\)[^/\\\s]+`)
)

// scrubMessage removes URL queries, serial numbers, long hex identifiers and user names
// embedded in paths. Device UIDs on some backends embed USB serials.
func scrubMessage(message string) string {
	s := queryRegex.ReplaceAllString(message, "$1?[REDACTED]")
	s = serialRegex.ReplaceAllString(s, "${1}=[REDACTED]")
	s = hexIDRegex.ReplaceAllString(s, "[ID_REDACTED]")
	s = homeRegex.ReplaceAllString(s, "${1}[USER]")
	return s
}
