// Package metrics provides constants used across metric definitions.
package metrics

import "time"

// Label value constants used for metric labels.
const (
	// LabelSuccess marks an operation that completed.
	LabelSuccess = "success"
	// LabelError marks an operation that failed.
	LabelError = "error"
	// LabelClean is the stop result of a teardown without errors.
	LabelClean = "clean"
	// LabelDirty is the stop result of a teardown that reported errors.
	LabelDirty = "dirty"
	// LabelAdded is the change label for devices that appeared.
	LabelAdded = "added"
	// LabelRemoved is the change label for devices that disappeared.
	LabelRemoved = "removed"
	// LabelInput is the input scope label.
	LabelInput = "input"
	// LabelOutput is the output scope label.
	LabelOutput = "output"
)

// Skip reasons of real-time cycles that produced no data.
const (
	ReasonContention = "contention"
	ReasonStopped    = "stopped"
)

// Histogram bucket configuration constants.
const (
	// BucketStart10us is the starting bucket for 10us histograms (10us to ~40ms range).
	BucketStart10us = 0.00001
	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)

// ShutdownTimeout is the timeout for graceful shutdown of the metrics server.
const ShutdownTimeout = 5 * time.Second
