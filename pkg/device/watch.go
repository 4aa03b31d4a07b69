package device

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

// Change is one settled device-list change.
type Change struct {
	Added   []Info
	Removed []Info
}

// Empty reports whether nothing was added or removed.
func (c Change) Empty() bool { return len(c.Added) == 0 && len(c.Removed) == 0 }

// Watch reports device arrivals and removals to fn until ctx is done. Bursts
// of notifications are collapsed into one Change after the debounce window.
// Removed devices are described from the last snapshot taken while they were
// present. Watch blocks and returns nil once ctx is cancelled.
func (d *Directory) Watch(ctx context.Context, fn func(Change)) error {
	notifier, ok := d.reg.(hal.DeviceListNotifier)
	if !ok {
		return errors.New(ErrHotplugUnsupported).
			Component(componentDevice).
			Category(errors.CategoryHotplug).
			Build()
	}

	// Last known description of every present device. No janitor goroutine:
	// entries do not expire and are removed when the device goes away.
	known := cache.New(cache.NoExpiration, 0)
	if err := d.snapshot(known); err != nil {
		return err
	}

	signal := make(chan struct{}, 1)
	err := notifier.AddDeviceListListener(ctx, func() {
		select {
		case signal <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return errors.New(err).
			Component(componentDevice).
			Category(errors.CategoryHotplug).
			Context("operation", "add_device_list_listener").
			Build()
	}

	d.log.Info("watching device list", logger.Duration("debounce", d.debounce))

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-signal:
		}

		if !d.settle(ctx, signal) {
			return nil
		}

		change, err := d.diff(known)
		if err != nil {
			d.log.Warn("device list refresh failed", logger.Error(err))
			continue
		}
		if change.Empty() {
			continue
		}
		d.log.Info("device list changed",
			logger.Int("added", len(change.Added)),
			logger.Int("removed", len(change.Removed)))
		fn(change)
	}
}

// settle waits until no notification arrived for the debounce window.
// It reports false when ctx ended first.
func (d *Directory) settle(ctx context.Context, signal <-chan struct{}) bool {
	if d.debounce <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d.debounce)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case <-signal:
			timer.Reset(d.debounce)
		case <-timer.C:
			return true
		}
	}
}

func (d *Directory) snapshot(known *cache.Cache) error {
	infos, err := d.List()
	if err != nil {
		return err
	}
	for _, info := range infos {
		known.Set(info.UID, info, cache.NoExpiration)
	}
	return nil
}

// diff compares the present UIDs with known and updates known in place.
func (d *Directory) diff(known *cache.Cache) (Change, error) {
	uids, err := d.UIDs()
	if err != nil {
		return Change{}, err
	}

	var change Change
	for _, uid := range uids {
		if _, ok := known.Get(uid); ok {
			continue
		}
		info, err := d.Describe(uid)
		if err != nil {
			// gone again before it could be described
			continue
		}
		known.Set(uid, info, cache.NoExpiration)
		change.Added = append(change.Added, info)
	}

	for uid, item := range known.Items() {
		if slices.Contains(uids, uid) {
			continue
		}
		known.Delete(uid)
		if info, ok := item.Object.(Info); ok {
			change.Removed = append(change.Removed, info)
		}
	}

	byUID := func(a, b Info) int { return cmp.Compare(a.UID, b.UID) }
	slices.SortFunc(change.Added, byUID)
	slices.SortFunc(change.Removed, byUID)
	return change, nil
}
