package virtual

import (
	"context"
	"fmt"
	"time"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

func (h *HAL) CreateIOProc(id hal.DeviceID, proc hal.IOProc) (hal.IOProcID, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpCreateIOProc); err != nil {
		return 0, err
	}
	if _, err := h.lookup(OpCreateIOProc, id); err != nil {
		return 0, err
	}
	if proc == nil {
		return 0, hal.NewStatusError(string(OpCreateIOProc), hal.StatusIllegalOperation, fmt.Errorf("nil proc"))
	}
	h.nextProc++
	h.procs[h.nextProc] = &ioProc{id: h.nextProc, device: id, proc: proc}
	return h.nextProc, nil
}

func (h *HAL) DestroyIOProc(id hal.DeviceID, procID hal.IOProcID) error {
	h.mu.Lock()
	if err := h.begin(OpDestroyIOProc); err != nil {
		h.mu.Unlock()
		return err
	}
	p, err := h.liveProc(OpDestroyIOProc, id, procID)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	wait := p.detach()
	p.destroyed = true
	h.mu.Unlock()

	wait()
	return nil
}

func (h *HAL) Start(id hal.DeviceID, procID hal.IOProcID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.begin(OpStart); err != nil {
		return err
	}
	p, err := h.liveProc(OpStart, id, procID)
	if err != nil {
		return err
	}
	if p.running {
		return nil
	}
	p.running = true

	d := h.devices[id]
	if d.spec.Period > 0 && d.spec.FramesPerCycle > 0 {
		ctx, cancel := context.WithCancel(context.Background())
		p.cancel = cancel
		p.done = make(chan struct{})
		go runClock(ctx, p.done, p.proc, d.spec)
	}
	return nil
}

func (h *HAL) Stop(id hal.DeviceID, procID hal.IOProcID) error {
	h.mu.Lock()
	if err := h.begin(OpStop); err != nil {
		h.mu.Unlock()
		return err
	}
	p, err := h.liveProc(OpStop, id, procID)
	if err != nil {
		h.mu.Unlock()
		return err
	}
	wait := p.detach()
	h.mu.Unlock()

	wait()
	return nil
}

// liveProc returns a registered, not yet destroyed proc of a present device.
// h.mu must be held.
func (h *HAL) liveProc(op Op, id hal.DeviceID, procID hal.IOProcID) (*ioProc, error) {
	if _, err := h.lookup(op, id); err != nil {
		return nil, err
	}
	p, ok := h.procs[procID]
	if !ok || p.destroyed || p.device != id {
		return nil, hal.NewStatusError(string(op), hal.StatusIllegalOperation, fmt.Errorf("io proc %d", procID))
	}
	return p, nil
}

// detach marks the proc stopped and returns a func that waits for its clock
// goroutine to exit. The returned func must be called without h.mu held.
func (p *ioProc) detach() func() {
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.running = false
	return func() {
		if cancel == nil {
			return
		}
		cancel()
		<-done
	}
}

// Invoke runs a registered proc once on the calling goroutine, as the
// hardware thread would. It reports false when the proc was destroyed.
func (h *HAL) Invoke(procID hal.IOProcID, input, output *hal.BufferList) bool {
	h.mu.Lock()
	p, ok := h.procs[procID]
	if !ok || p.destroyed {
		h.mu.Unlock()
		return false
	}
	proc := p.proc
	h.mu.Unlock()

	proc(input, output)
	return true
}

// Proc returns the callback registered under procID even after it has been
// destroyed, so tests can model a late invocation racing unregistration.
func (h *HAL) Proc(procID hal.IOProcID) (hal.IOProc, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.procs[procID]
	if !ok {
		return nil, false
	}
	return p.proc, true
}

// Procs lists the live procs registered on a device.
func (h *HAL) Procs(id hal.DeviceID) []hal.IOProcID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []hal.IOProcID
	for pid, p := range h.procs {
		if p.device == id && !p.destroyed {
			ids = append(ids, pid)
		}
	}
	return ids
}

// Running reports whether hardware IO is started for procID.
func (h *HAL) Running(procID hal.IOProcID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.procs[procID]
	return ok && p.running
}

// Buffers returns a buffer list with one zeroed buffer per size.
func Buffers(channels uint32, sizes ...int) *hal.BufferList {
	list := &hal.BufferList{Buffers: make([]hal.Buffer, len(sizes))}
	for i, n := range sizes {
		list.Buffers[i] = hal.Buffer{NumberChannels: channels, Data: make([]byte, n)}
	}
	return list
}

// clockFormat is the format the virtual hardware runs at for a direction.
func clockFormat(virtual, legacy *pcm.Format) pcm.Format {
	switch {
	case virtual != nil:
		return *virtual
	case legacy != nil:
		return *legacy
	default:
		return pcm.DefaultFormat()
	}
}

func clockBuffers(channels []uint32, f pcm.Format, frames int) *hal.BufferList {
	if len(channels) == 0 {
		return nil
	}
	list := &hal.BufferList{Buffers: make([]hal.Buffer, len(channels))}
	for i, ch := range channels {
		list.Buffers[i] = hal.Buffer{NumberChannels: ch, Data: make([]byte, frames*int(f.BytesPerFrame))}
	}
	return list
}

// runClock invokes proc every spec.Period until ctx is cancelled. Buffers are
// allocated once and restored to full length before each cycle.
func runClock(ctx context.Context, done chan<- struct{}, proc hal.IOProc, spec DeviceSpec) {
	defer close(done)

	in := clockBuffers(spec.InputChannels, clockFormat(spec.InputFormat, spec.LegacyInputFormat), spec.FramesPerCycle)
	out := clockBuffers(spec.OutputChannels, clockFormat(spec.OutputFormat, spec.LegacyOutputFormat), spec.FramesPerCycle)

	ticker := time.NewTicker(spec.Period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if in != nil {
			for i := range in.Buffers {
				b := &in.Buffers[i]
				b.Data = b.Data[:cap(b.Data)]
				if spec.InputSource != nil {
					spec.InputSource(b.Data)
				} else {
					clear(b.Data)
				}
			}
		}
		if out != nil {
			for i := range out.Buffers {
				b := &out.Buffers[i]
				b.Data = b.Data[:cap(b.Data)]
			}
		}

		proc(in, out)

		if out != nil && spec.OutputSink != nil {
			spec.OutputSink(out)
		}
	}
}
