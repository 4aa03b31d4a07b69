package stream

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Direction is the data direction of a stream.
type Direction int

const (
	// Input streams capture from the device and deliver to the application.
	Input Direction = iota
	// Output streams pull from the application and play on the device.
	Output
)

func (d Direction) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

func (d Direction) scope() hal.Scope {
	if d == Output {
		return hal.ScopeOutput
	}
	return hal.ScopeInput
}

// State is the lifecycle state of a Stream.
type State int32

const (
	StateUninitialized State = iota
	StateStarting
	StateRunning
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "uninitialized"
	}
}

// registration is a live IO callback registration.
type registration struct {
	device hal.DeviceID
	proc   hal.IOProcID
}

// Stream is one running device stream. It is created by Controller.Start and
// owned by the caller until Stop returns. All methods are safe for concurrent
// use.
type Stream struct {
	id        uuid.UUID
	uid       string
	direction Direction
	app       pcm.Format
	device    pcm.Format
	ratio     float64
	state     atomic.Int32

	ctrl    *Controller
	fn      DataFunc
	scratch *scratchPool
	obs     Observer
	rt      *rtLogger

	// mu guards reg and converter. The hardware thread only ever TryLocks it;
	// Stop is the only blocking acquirer. A nil reg tells the handler the
	// stream is stopped.
	mu        sync.Mutex
	reg       *registration
	converter hal.Converter
}

// ID returns the stream's unique identifier.
func (s *Stream) ID() uuid.UUID { return s.id }

// UID returns the device UID the stream was started on.
func (s *Stream) UID() string { return s.uid }

// Direction returns the stream direction.
func (s *Stream) Direction() Direction { return s.direction }

// State returns the current lifecycle state.
func (s *Stream) State() State { return State(s.state.Load()) }

// AppFormat returns the application-side format.
func (s *Stream) AppFormat() pcm.Format { return s.app }

// DeviceFormat returns the negotiated device format.
func (s *Stream) DeviceFormat() pcm.Format { return s.device }

// Ratio returns the app-over-device byte-rate ratio used to size scratch
// buffers.
func (s *Stream) Ratio() float64 { return s.ratio }

// Stop stops the stream on the device it was started on. See Controller.Stop.
func (s *Stream) Stop() error { return s.ctrl.Stop(s.uid, s) }

func (s *Stream) setState(st State) { s.state.Store(int32(st)) }
