package malgo

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

type listener struct {
	id uint64
	fn func()
}

// pollState is guarded by Backend.mu except for kick.
type pollState struct {
	nextID    uint64
	listeners []listener
	cancel    context.CancelFunc
	done      chan struct{}
	// kick requests an early poll; buffered so senders never block.
	kick chan struct{}
}

// AddDeviceListListener calls fn whenever a re-enumeration finds devices
// added or removed, until ctx is done. miniaudio has no change
// notification, so the device list is polled while listeners exist.
func (b *Backend) AddDeviceListListener(ctx context.Context, fn func()) error {
	if fn == nil {
		return statusError("add_device_list_listener", hal.StatusIllegalOperation, fmt.Errorf("nil listener"))
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return statusError("add_device_list_listener", hal.StatusIllegalOperation, fmt.Errorf("backend closed"))
	}
	b.poll.nextID++
	id := b.poll.nextID
	b.poll.listeners = append(b.poll.listeners, listener{id: id, fn: fn})
	if b.poll.cancel == nil {
		pctx, cancel := context.WithCancel(context.Background())
		b.poll.cancel = cancel
		b.poll.done = make(chan struct{})
		go b.pollLoop(pctx, b.poll.done)
	}
	b.mu.Unlock()

	context.AfterFunc(ctx, func() {
		b.mu.Lock()
		b.poll.listeners = slices.DeleteFunc(b.poll.listeners, func(l listener) bool { return l.id == id })
		idle := len(b.poll.listeners) == 0
		b.mu.Unlock()
		if idle {
			b.stopPolling()
		}
	})
	return nil
}

func (b *Backend) pollLoop(ctx context.Context, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(b.pollInterval)
	defer ticker.Stop()

	b.log.Debug("device list polling started", logger.Duration("interval", b.pollInterval))
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-b.poll.kick:
		}
		if _, err := b.refresh(); err != nil {
			b.log.Warn("device enumeration failed", logger.Error(err))
		}
	}
}

// stopPolling ends the poll goroutine when no listener is left and waits
// for it to exit.
func (b *Backend) stopPolling() {
	b.mu.Lock()
	if b.poll.cancel == nil || (len(b.poll.listeners) > 0 && !b.closed) {
		b.mu.Unlock()
		return
	}
	cancel, done := b.poll.cancel, b.poll.done
	b.poll.cancel, b.poll.done = nil, nil
	b.mu.Unlock()

	cancel()
	<-done
}

// kick asks the poller to re-enumerate now. It never blocks.
func (b *Backend) kick() {
	select {
	case b.poll.kick <- struct{}{}:
	default:
	}
}

// notify calls every listener. It must be called without b.mu held.
func (b *Backend) notify() {
	b.mu.Lock()
	fns := make([]func(), 0, len(b.poll.listeners))
	for _, l := range b.poll.listeners {
		fns = append(fns, l.fn)
	}
	b.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}

// Listeners reports how many device-list listeners are registered.
func (b *Backend) Listeners() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.poll.listeners)
}
