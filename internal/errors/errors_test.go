package errors

import (
	"fmt"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFastPathDefaults(t *testing.T) {
	SetTelemetryReporter(nil)

	ee := New(fmt.Errorf("test error")).Build()

	assert.Equal(t, "test error", ee.Error())
	assert.Equal(t, ComponentUnknown, ee.GetComponent())
	assert.Equal(t, CategoryGeneric, ee.Category)
	assert.False(t, ee.Timestamp.IsZero())
}

func TestBuildNilErrorDoesNotPanic(t *testing.T) {
	ee := New(nil).Category(CategoryState).Build()
	assert.NotPanics(t, func() { _ = ee.Error() })
}

func TestBuilderContext(t *testing.T) {
	ee := New(NewStd("start failed")).
		Component("stream").
		Category(CategoryHardware).
		Priority(PriorityHigh).
		DeviceContext("BuiltInSpeakerDevice", "output").
		Context("operation", "start_output").
		Build()

	ctx := ee.GetContext()
	assert.Equal(t, "BuiltInSpeakerDevice", ctx["device_uid"])
	assert.Equal(t, "output", ctx["scope"])
	assert.Equal(t, "start_output", ctx["operation"])
	assert.Equal(t, PriorityHigh, ee.GetPriority())
	assert.Equal(t, "stream", ee.GetComponent())

	// The returned map is a copy.
	ctx["device_uid"] = "mutated"
	assert.Equal(t, "BuiltInSpeakerDevice", ee.GetContext()["device_uid"])
}

func TestInvalidPriorityFallsBackToMedium(t *testing.T) {
	ee := New(NewStd("x")).Priority("urgent").Build()
	assert.Equal(t, PriorityMedium, ee.Priority)
}

func TestSentinelMatching(t *testing.T) {
	sentinel := New(NewStd("device not found")).Category(CategoryNotFound).Build()
	other := New(NewStd("stream not found")).Category(CategoryNotFound).Build()

	wrapped := New(fmt.Errorf("%w: uid %q", sentinel, "usb-1")).
		Category(CategoryDevice).
		Build()

	assert.ErrorIs(t, wrapped, sentinel)
	assert.NotErrorIs(t, wrapped, other)
	assert.NotErrorIs(t, other, sentinel)
	assert.True(t, IsNotFound(sentinel))
	assert.False(t, IsNotFound(wrapped))
	assert.True(t, IsCategory(wrapped, CategoryDevice))
}

func TestScrubMessage(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		contains string
		absent   string
	}{
		{"url query", "fetch https://dsn.example.com/api?key=secret", "https://dsn.example.com/api?[REDACTED]", "secret"},
		{"serial", "usb device serial=AB12CD34 vanished", "serial=[REDACTED]", "AB12CD34"},
		{"hex uid", "uid 0a1b2c3d4e5f60718293 not found", "[ID_REDACTED]", "0a1b2c3d4e5f60718293"},
		{"home path", "cannot open /home/alice/rec.wav", "/home/[USER]", "alice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scrubMessage(tt.in)
			assert.Contains(t, got, tt.contains)
			assert.NotContains(t, got, tt.absent)
		})
	}
}

func TestSentryReporterCapturesScrubbedEvent(t *testing.T) {
	var events []*sentry.Event
	reporter := NewSentryReporter(true)
	reporter.capture = func(event *sentry.Event) { events = append(events, event) }

	SetTelemetryReporter(reporter)
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	ee := New(NewStd("hardware start failed serial=XYZ123")).
		Component("stream").
		Category(CategoryHardware).
		Context("operation", "start_output").
		Build()

	require.Len(t, events, 1)
	assert.True(t, ee.IsReported())

	event := events[0]
	assert.Equal(t, "Stream Hardware I/O Error Start Output", event.Exception[0].Type)
	assert.Equal(t, sentry.LevelError, event.Level)
	assert.NotContains(t, event.Message, "XYZ123")
	assert.True(t, strings.HasPrefix(event.Message, "[hardware-io]"))

	// Reporting twice is suppressed.
	reporter.ReportError(ee)
	assert.Len(t, events, 1)
}

func TestDisabledReporterKeepsFastPath(t *testing.T) {
	SetTelemetryReporter(NewSentryReporter(false))
	t.Cleanup(func() { SetTelemetryReporter(nil) })

	assert.False(t, hasActiveReporting.Load())
	ee := New(NewStd("x")).Build()
	assert.False(t, ee.IsReported())
}

func TestDetectCategory(t *testing.T) {
	assert.Equal(t, CategoryNotFound, detectCategory(NewStd("device not found"), ""))
	assert.Equal(t, CategoryConverter, detectCategory(NewStd("cannot convert buffer"), ""))
	assert.Equal(t, CategoryStream, detectCategory(NewStd("boom"), "stream"))
	assert.Equal(t, CategoryGeneric, detectCategory(NewStd("boom"), "elsewhere"))
}
