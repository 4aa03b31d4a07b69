package malgo

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

type ioProc struct {
	id     hal.IOProcID
	device hal.DeviceID
	// scope is ScopeGlobal when every scope of the device is opened.
	scope hal.Scope
	proc  hal.IOProc
	log   logger.Logger
	lost  func()

	mu       sync.Mutex
	dev      *malgo.Device
	stopping atomic.Bool

	// Reused every cycle; only touched on the miniaudio device thread.
	in       hal.BufferList
	out      hal.BufferList
	capture  bool
	playback bool
}

// CreateIOProc registers proc for every scope the device has.
func (b *Backend) CreateIOProc(id hal.DeviceID, proc hal.IOProc) (hal.IOProcID, error) {
	return b.CreateScopedIOProc(id, hal.ScopeGlobal, proc)
}

// CreateScopedIOProc registers proc for one scope. Start then opens only the
// capture or playback side of the device.
func (b *Backend) CreateScopedIOProc(id hal.DeviceID, scope hal.Scope, proc hal.IOProc) (hal.IOProcID, error) {
	if proc == nil {
		return 0, statusError(string(opCreateIOProc), hal.StatusIllegalOperation, fmt.Errorf("nil proc"))
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, statusError(string(opCreateIOProc), hal.StatusIllegalOperation, fmt.Errorf("backend closed"))
	}
	e, err := b.lookupLocked(opCreateIOProc, id)
	if err != nil {
		return 0, err
	}
	if scope != hal.ScopeGlobal && e.side(scope) == nil {
		return 0, statusError(string(opCreateIOProc), hal.StatusBadStream, fmt.Errorf("no %s stream", scope))
	}

	b.nextProc++
	p := &ioProc{
		id:     b.nextProc,
		device: id,
		scope:  scope,
		proc:   proc,
		log:    b.log.With(logger.Uint64("io_proc", uint64(b.nextProc)), logger.String("device_uid", e.uid)),
		lost:   b.kick,
	}
	b.procs[p.id] = p
	return p.id, nil
}

func (b *Backend) DestroyIOProc(id hal.DeviceID, procID hal.IOProcID) error {
	b.mu.Lock()
	p, err := b.liveProcLocked(opDestroyIOProc, id, procID)
	if err == nil {
		delete(b.procs, procID)
	}
	b.mu.Unlock()
	if err != nil {
		return err
	}
	p.teardown()
	return nil
}

// Start opens the device in miniaudio and starts its thread. Starting a
// running proc is a no-op.
func (b *Backend) Start(id hal.DeviceID, procID hal.IOProcID) error {
	b.mu.Lock()
	p, err := b.liveProcLocked(opStart, id, procID)
	if err != nil {
		b.mu.Unlock()
		return err
	}
	e := b.byID[id]
	cfg, err := deviceConfig(e, p.scope)
	b.mu.Unlock()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev != nil {
		return nil
	}

	p.capture = cfg.DeviceType == malgo.Capture || cfg.DeviceType == malgo.Duplex
	p.playback = cfg.DeviceType == malgo.Playback || cfg.DeviceType == malgo.Duplex
	p.in = hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: cfg.Capture.Channels}}}
	p.out = hal.BufferList{Buffers: []hal.Buffer{{NumberChannels: cfg.Playback.Channels}}}
	p.stopping.Store(false)

	dev, err := malgo.InitDevice(b.ctx.Context, cfg, malgo.DeviceCallbacks{
		Data: p.cycle,
		Stop: p.onStop,
	})
	if err != nil {
		return statusError(string(opStart), hal.StatusUnspecified, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryHardware).
			Context("operation", "init_device").
			Build())
	}

	if err := dev.Start(); err != nil {
		dev.Uninit()
		return statusError(string(opStart), hal.StatusUnspecified, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryHardware).
			Context("operation", "start_device").
			Build())
	}
	p.dev = dev
	p.log.Debug("device started",
		logger.Int("sample_rate", int(dev.SampleRate())),
		logger.Bool("capture", p.capture),
		logger.Bool("playback", p.playback))
	return nil
}

// Stop stops the miniaudio device and waits for its thread to leave the
// data callback. The proc stays registered and can be started again.
func (b *Backend) Stop(id hal.DeviceID, procID hal.IOProcID) error {
	b.mu.Lock()
	p, err := b.liveProcLocked(opStop, id, procID)
	b.mu.Unlock()
	if err != nil {
		return err
	}
	return p.stop()
}

// liveProcLocked returns a registered proc of a present device. b.mu must be held.
func (b *Backend) liveProcLocked(op operation, id hal.DeviceID, procID hal.IOProcID) (*ioProc, error) {
	if _, err := b.lookupLocked(op, id); err != nil {
		return nil, err
	}
	p, ok := b.procs[procID]
	if !ok || p.device != id {
		return nil, statusError(string(op), hal.StatusIllegalOperation, fmt.Errorf("io proc %d", procID))
	}
	return p, nil
}

// deviceConfig builds the miniaudio configuration for the requested scope
// using the native layout of every opened side. b.mu must be held.
func deviceConfig(e *entry, scope hal.Scope) (malgo.DeviceConfig, error) {
	capture, playback := e.capture, e.playback
	switch scope {
	case hal.ScopeInput:
		playback = nil
	case hal.ScopeOutput:
		capture = nil
	}

	var kind malgo.DeviceType
	switch {
	case capture != nil && playback != nil:
		kind = malgo.Duplex
	case capture != nil:
		kind = malgo.Capture
	case playback != nil:
		kind = malgo.Playback
	default:
		return malgo.DeviceConfig{}, statusError(string(opStart), hal.StatusBadStream, fmt.Errorf("no %s stream", scope))
	}

	cfg := malgo.DefaultDeviceConfig(kind)
	cfg.Alsa.NoMMap = 1
	if capture != nil {
		cfg.Capture.Format = capture.native.format
		cfg.Capture.Channels = capture.native.channels
		cfg.Capture.DeviceID = capture.info.ID.Pointer()
		cfg.SampleRate = capture.native.rate
	}
	if playback != nil {
		cfg.Playback.Format = playback.native.format
		cfg.Playback.Channels = playback.native.channels
		cfg.Playback.DeviceID = playback.info.ID.Pointer()
		cfg.SampleRate = playback.native.rate
	}
	return cfg, nil
}

// cycle runs on the miniaudio device thread.
func (p *ioProc) cycle(pOutput, pInput []byte, _ uint32) {
	var in, out *hal.BufferList
	if p.capture {
		p.in.Buffers[0].Data = pInput
		in = &p.in
	}
	if p.playback {
		p.out.Buffers[0].Data = pOutput
		out = &p.out
	}

	p.proc(in, out)

	if out != nil {
		// Silence whatever the handler did not produce.
		n := min(len(p.out.Buffers[0].Data), len(pOutput))
		clear(pOutput[n:])
		p.out.Buffers[0].Data = nil
	}
	if in != nil {
		p.in.Buffers[0].Data = nil
	}
}

// onStop is called by miniaudio on every device stop. An unexpected stop
// usually means the device was unplugged.
func (p *ioProc) onStop() {
	if p.stopping.Load() {
		return
	}
	p.log.Warn("device stopped unexpectedly")
	if p.lost != nil {
		p.lost()
	}
}

// stop stops and releases the miniaudio device. Start opens it again.
func (p *ioProc) stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.dev == nil {
		return nil
	}
	p.stopping.Store(true)
	err := p.dev.Stop()
	p.dev.Uninit()
	p.dev = nil
	if err != nil {
		return statusError(string(opStop), hal.StatusUnspecified, err)
	}
	return nil
}

// teardown is stop for paths that cannot report errors.
func (p *ioProc) teardown() {
	if err := p.stop(); err != nil {
		p.log.Warn("device stop failed during teardown", logger.Error(err))
	}
}
