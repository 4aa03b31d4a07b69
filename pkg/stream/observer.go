package stream

import "time"

// Recorder receives stream lifecycle events. Implementations must be safe for
// concurrent use. The metrics package provides a Prometheus implementation.
type Recorder interface {
	// RecordStart is called once per Start with the failing stage, or "" on success.
	RecordStart(direction, stage string)
	// RecordStop is called once per effective Stop.
	RecordStop(direction string, clean bool)
	RecordConverterBuild(direction string, d time.Duration)
	// Observer returns the per-stream observer for the hardware thread.
	Observer(uid, direction string) Observer
}

// Observer counts real-time events of one stream. Methods are called on the
// hardware thread and must not block or allocate.
type Observer interface {
	ObserveCycle()
	ObserveContention()
	ObserveStopped()
	ObserveConversionFailure()
	ObserveBytes(n int)
}

type nopRecorder struct{}

func (nopRecorder) RecordStart(string, string)                 {}
func (nopRecorder) RecordStop(string, bool)                    {}
func (nopRecorder) RecordConverterBuild(string, time.Duration) {}
func (nopRecorder) Observer(string, string) Observer           { return nopObserver{} }

type nopObserver struct{}

func (nopObserver) ObserveCycle()             {}
func (nopObserver) ObserveContention()        {}
func (nopObserver) ObserveStopped()           {}
func (nopObserver) ObserveConversionFailure() {}
func (nopObserver) ObserveBytes(int)          {}
