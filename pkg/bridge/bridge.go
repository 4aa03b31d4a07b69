// Package bridge connects stream data callbacks to io.Reader and io.Writer
// consumers through lock-protected ring buffers.
//
// The callback side never blocks: Capture.Push and Playback.Fill use try-lock
// ring operations and drop or zero-fill when the ring is contended, full or
// empty. The io side blocks until data or space is available.
package bridge

import (
	"context"
	"io"
	"sync"
	"sync/atomic"

	"github.com/smallnest/ringbuffer"

	"github.com/tphakala/audiohal/internal/errors"
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.NewStd("bridge: closed")

// Capture buffers captured audio for a reader.
type Capture struct {
	rb      *ringbuffer.RingBuffer
	ready   chan struct{}
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

// NewCapture returns a Capture holding up to capacity bytes.
func NewCapture(capacity int) *Capture {
	return &Capture{
		rb:    ringbuffer.New(capacity),
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
}

// Push is an input stream DataFunc. Bytes that do not fit are dropped.
func (c *Capture) Push(buf []byte) {
	if len(buf) == 0 {
		return
	}
	n, err := c.rb.TryWrite(buf)
	if err != nil && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
		n = 0
	}
	if n < len(buf) {
		c.dropped.Add(uint64(len(buf) - n))
	}
	if n > 0 {
		signal(c.ready)
	}
}

// Read reads captured bytes, blocking until some are available. It returns
// io.EOF once the capture is closed and drained.
func (c *Capture) Read(p []byte) (int, error) {
	return c.ReadContext(context.Background(), p)
}

// ReadContext is Read bounded by ctx.
func (c *Capture) ReadContext(ctx context.Context, p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := c.rb.Read(p)
		if n > 0 {
			return n, nil
		}
		if err != nil && !errors.Is(err, ringbuffer.ErrIsEmpty) {
			return 0, err
		}
		select {
		case <-c.ready:
		case <-c.done:
			if c.rb.IsEmpty() {
				return 0, io.EOF
			}
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// Close stops accepting data. Buffered bytes can still be read.
func (c *Capture) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

// Buffered returns the number of unread bytes.
func (c *Capture) Buffered() int { return c.rb.Length() }

// Dropped returns the number of bytes lost to a full or contended ring.
func (c *Capture) Dropped() uint64 { return c.dropped.Load() }

// Playback buffers audio from a writer for an output stream.
type Playback struct {
	rb        *ringbuffer.RingBuffer
	space     chan struct{}
	closed    chan struct{}
	drained   chan struct{}
	closeOnce sync.Once
	drainOnce sync.Once
	underruns atomic.Uint64
}

// NewPlayback returns a Playback holding up to capacity bytes.
func NewPlayback(capacity int) *Playback {
	return &Playback{
		rb:      ringbuffer.New(capacity),
		space:   make(chan struct{}, 1),
		closed:  make(chan struct{}),
		drained: make(chan struct{}),
	}
}

// Fill is an output stream DataFunc. Missing bytes are zero-filled and
// counted as an underrun until the writer has been closed.
func (p *Playback) Fill(buf []byte) {
	n, err := p.rb.TryRead(buf)
	if err != nil {
		n = 0
	}
	clear(buf[n:])
	if n > 0 {
		signal(p.space)
	}
	if n == len(buf) {
		return
	}
	select {
	case <-p.closed:
		if p.rb.IsEmpty() {
			p.drainOnce.Do(func() { close(p.drained) })
		}
	default:
		p.underruns.Add(1)
	}
}

// Write copies b into the ring, blocking while it is full.
func (p *Playback) Write(b []byte) (int, error) {
	return p.WriteContext(context.Background(), b)
}

// WriteContext is Write bounded by ctx.
func (p *Playback) WriteContext(ctx context.Context, b []byte) (int, error) {
	written := 0
	for written < len(b) {
		select {
		case <-p.closed:
			return written, ErrClosed
		default:
		}
		n, err := p.rb.Write(b[written:])
		written += n
		if err != nil && !errors.Is(err, ringbuffer.ErrIsFull) && !errors.Is(err, ringbuffer.ErrTooMuchDataToWrite) {
			return written, err
		}
		if written == len(b) {
			break
		}
		select {
		case <-p.space:
		case <-ctx.Done():
			return written, ctx.Err()
		}
	}
	return written, nil
}

// Close marks the end of the data. Fill keeps playing what is buffered and
// then closes Drained.
func (p *Playback) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

// Drained is closed once the writer is closed and every byte was played.
func (p *Playback) Drained() <-chan struct{} { return p.drained }

// Buffered returns the number of bytes waiting to be played.
func (p *Playback) Buffered() int { return p.rb.Length() }

// Underruns counts callbacks that found less data than they needed.
func (p *Playback) Underruns() uint64 { return p.underruns.Load() }

func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
