// Package stream runs real-time audio streams between an application-side
// PCM format and a device's native format.
//
// A Controller starts a Stream by resolving the device, negotiating its
// format, building a converter and registering an IO callback with the HAL.
// The callback runs on the hardware thread and never blocks: it only
// TryLocks the stream guard and degrades to silence or a skipped cycle on
// contention. Stop is the only blocking acquirer of that guard, so once Stop
// returns no callback converts data or calls the application again.
//
//	ctrl, err := stream.NewController(h, log)
//	if err != nil {
//	    return err
//	}
//	s, err := ctrl.StartOutput(uid, fill, 44100, 2, 16, 16, false, false, false)
//	if err != nil {
//	    return err
//	}
//	defer s.Stop()
package stream

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/device"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/hal/softconv"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// Default real-time log throttle: one message per second with a burst of five.
const (
	DefaultLogInterval = time.Second
	DefaultLogBurst    = 5
)

// Controller starts and stops streams against one HAL.
type Controller struct {
	dir        *device.Directory
	negotiator *Negotiator
	io         hal.IOService
	converters hal.ConverterService
	log        logger.Logger
	recorder   Recorder

	logEvery time.Duration
	logBurst int

	mu     sync.Mutex
	active map[uuid.UUID]*Stream
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder installs a lifecycle and real-time event recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) {
		if r != nil {
			c.recorder = r
		}
	}
}

// WithRealtimeLogLimit throttles hardware-thread log messages to one per
// every interval with the given burst. A zero interval disables throttling.
func WithRealtimeLogLimit(every time.Duration, burst int) Option {
	return func(c *Controller) {
		c.logEvery = every
		c.logBurst = burst
	}
}

// WithDirectory shares an existing device directory.
func WithDirectory(d *device.Directory) Option {
	return func(c *Controller) {
		if d != nil {
			c.dir = d
		}
	}
}

// NewController returns a Controller for h. h.Registry and h.IO are
// required; a nil h.Converters selects the software converter.
func NewController(h hal.HAL, log logger.Logger, opts ...Option) (*Controller, error) {
	if h.Registry == nil || h.IO == nil {
		return nil, errors.New(fmt.Errorf("%w: hal registry and io service are required", ErrResourceInitFailed)).
			Component(componentStream).
			Category(errors.CategoryConfiguration).
			Build()
	}

	log = logger.OrNop(log)
	c := &Controller{
		io:         h.IO,
		converters: h.Converters,
		log:        log.Module("stream"),
		recorder:   nopRecorder{},
		logEvery:   DefaultLogInterval,
		logBurst:   DefaultLogBurst,
		active:     make(map[uuid.UUID]*Stream),
	}
	if c.converters == nil {
		c.converters = softconv.NewService()
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.dir == nil {
		c.dir = device.NewDirectory(h.Registry, log)
	}
	c.negotiator = NewNegotiator(c.dir, log)
	return c, nil
}

// Directory returns the device directory the controller resolves UIDs with.
func (c *Controller) Directory() *device.Directory { return c.dir }

// Negotiator returns the controller's format negotiator.
func (c *Controller) Negotiator() *Negotiator { return c.negotiator }

// StartInput starts a capture stream delivering the described application
// format to fn.
func (c *Controller) StartInput(uid string, fn DataFunc, sampleRate float64, channels, validBits, totalBits uint32, isFloat, isBigEndian, isNonInterleaved bool) (*Stream, error) {
	app := pcm.Build(sampleRate, channels, validBits, totalBits, isFloat, isBigEndian, isNonInterleaved)
	return c.Start(uid, fn, app, Input)
}

// StartOutput starts a playback stream pulling the described application
// format from fn.
func (c *Controller) StartOutput(uid string, fn DataFunc, sampleRate float64, channels, validBits, totalBits uint32, isFloat, isBigEndian, isNonInterleaved bool) (*Stream, error) {
	app := pcm.Build(sampleRate, channels, validBits, totalBits, isFloat, isBigEndian, isNonInterleaved)
	return c.Start(uid, fn, app, Output)
}

// Start opens a stream on uid. On success the IO callback is live and fn may
// be called at any time from the hardware thread. On failure every resource
// acquired so far is released in reverse order and no Stream is returned.
func (c *Controller) Start(uid string, fn DataFunc, app pcm.Format, dir Direction) (*Stream, error) {
	s, stage, err := c.start(uid, fn, app, dir)
	c.recorder.RecordStart(dir.String(), stage)
	if err != nil {
		c.log.Error("stream start failed",
			logger.String("device_uid", uid),
			logger.String("direction", dir.String()),
			logger.String("stage", stage),
			logger.Error(err))
		return nil, err
	}

	c.mu.Lock()
	c.active[s.id] = s
	c.mu.Unlock()

	c.log.Info("stream started",
		logger.String("stream_id", s.id.String()),
		logger.String("device_uid", uid),
		logger.String("direction", dir.String()),
		logger.String("app_format", app.String()),
		logger.String("device_format", s.device.String()),
		logger.Float64("ratio", s.ratio))
	return s, nil
}

func (c *Controller) start(uid string, fn DataFunc, app pcm.Format, dir Direction) (*Stream, string, error) {
	op := "start_" + dir.String()

	id, err := c.dir.Resolve(uid, dir.scope())
	if err != nil {
		return nil, stageResolve, err
	}

	if fn == nil {
		return nil, stageAllocate, streamError(ErrResourceInitFailed, uid, dir, op, fmt.Errorf("nil data callback"))
	}
	if err := app.Validate(); err != nil {
		return nil, stageAllocate, streamError(ErrInvalidFormat, uid, dir, op, err)
	}
	streamID, err := uuid.NewRandom()
	if err != nil {
		return nil, stageAllocate, streamError(ErrAllocationFailed, uid, dir, op, err)
	}

	s := &Stream{
		id:        streamID,
		uid:       uid,
		direction: dir,
		app:       app,
		ctrl:      c,
		fn:        fn,
		scratch:   newScratchPool(),
		obs:       c.recorder.Observer(uid, dir.String()),
	}
	s.rt = newRTLogger(c.log.With(
		logger.String("stream_id", streamID.String()),
		logger.String("device_uid", uid),
		logger.String("direction", dir.String())), c.logEvery, c.logBurst)
	s.setState(StateStarting)

	// undo releases acquired resources in reverse order of acquisition.
	var undo []func()
	rollback := func() {
		for i := len(undo) - 1; i >= 0; i-- {
			undo[i]()
		}
		s.setState(StateUninitialized)
	}

	conv, err := c.buildConverter(uid, app, dir)
	if err != nil {
		return nil, stageConverter, err
	}
	s.device, s.ratio = conv.device, conv.ratio
	s.mu.Lock()
	s.converter = conv.converter
	s.mu.Unlock()
	undo = append(undo, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.converter.Dispose(); err != nil {
			c.log.Warn("converter dispose failed during rollback", logger.Error(err))
		}
		s.converter = nil
	})

	var proc hal.IOProc = s.handleInput
	if dir == Output {
		proc = s.handleOutput
	}
	var procID hal.IOProcID
	if sio, ok := c.io.(hal.ScopedIOService); ok {
		procID, err = sio.CreateScopedIOProc(id, dir.scope(), proc)
	} else {
		procID, err = c.io.CreateIOProc(id, proc)
	}
	if err != nil {
		rollback()
		return nil, stageRegister, streamError(ErrCallbackRegistrationFailed, uid, dir, op, err)
	}
	s.mu.Lock()
	s.reg = &registration{device: id, proc: procID}
	s.mu.Unlock()
	undo = append(undo, func() {
		s.mu.Lock()
		s.reg = nil
		s.mu.Unlock()
		if err := c.io.DestroyIOProc(id, procID); err != nil {
			c.log.Warn("io proc destroy failed during rollback", logger.Error(err))
		}
	})

	if err := c.io.Start(id, procID); err != nil {
		rollback()
		return nil, stageHardware, streamError(ErrHardwareStartFailed, uid, dir, op, err)
	}

	s.setState(StateRunning)
	return s, "", nil
}

// Stop stops s and releases its resources. It blocks until any in-flight
// callback has released the stream guard. The device is resolved again from
// uid; if it is gone the hardware calls are skipped and the converter is still
// released. Teardown always completes: the returned error only describes
// steps that failed along the way. Stopping a stopped stream is a no-op.
func (c *Controller) Stop(uid string, s *Stream) error {
	if s == nil {
		return nil
	}
	if uid == "" {
		uid = s.uid
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reg == nil && s.converter == nil {
		return nil
	}
	s.setState(StateStopping)

	dir := s.direction
	op := "stop_" + dir.String()
	log := c.log.With(
		logger.String("stream_id", s.id.String()),
		logger.String("device_uid", uid),
		logger.String("direction", dir.String()))

	var errs []error
	id, err := c.dir.Resolve(uid, dir.scope())
	switch {
	case err != nil:
		log.Warn("device not found on stop, releasing stream resources", logger.Error(err))
		errs = append(errs, err)
	case s.reg != nil:
		if err := c.io.Stop(id, s.reg.proc); err != nil {
			log.Warn("hardware stop failed", logger.Error(err))
			errs = append(errs, streamError(ErrHardwareStopFailed, uid, dir, op, err))
		}
		if err := c.io.DestroyIOProc(id, s.reg.proc); err != nil {
			log.Warn("io proc destroy failed", logger.Error(err))
			errs = append(errs, streamError(ErrHardwareStopFailed, uid, dir, op, err))
		}
	}

	if s.converter != nil {
		if err := s.converter.Dispose(); err != nil {
			log.Warn("converter dispose failed", logger.Error(err))
			errs = append(errs, streamError(ErrHardwareStopFailed, uid, dir, op, err))
		}
		s.converter = nil
	}
	s.reg = nil
	s.setState(StateStopped)

	c.mu.Lock()
	delete(c.active, s.id)
	c.mu.Unlock()

	c.recorder.RecordStop(dir.String(), len(errs) == 0)
	log.Info("stream stopped", logger.Bool("clean", len(errs) == 0))
	return errors.Join(errs...)
}

// Active returns the streams started by this controller that have not been
// stopped.
func (c *Controller) Active() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Stream, 0, len(c.active))
	for _, s := range c.active {
		out = append(out, s)
	}
	return out
}

// StopAll stops every active stream, collecting teardown errors.
func (c *Controller) StopAll() error {
	var errs []error
	for _, s := range c.Active() {
		if err := c.Stop(s.uid, s); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
