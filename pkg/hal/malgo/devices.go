package malgo

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"unicode"

	"github.com/gen2brain/malgo"
	"github.com/google/uuid"

	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/pcm"
)

// miniaudio accepts any rate in this range when a native format reports 0.
const (
	minSampleRate = 8000
	maxSampleRate = 384000

	fallbackSampleRate = 48000
	fallbackChannels   = 2
)

// uidNamespace seeds UIDs for devices whose miniaudio ID is not printable.
var uidNamespace = uuid.MustParse("5b0c5d0e-4f7a-4c1e-9a55-7d1f2b3c6a10")

// nativeFormat is the layout requested from miniaudio for one side of a device.
type nativeFormat struct {
	format   malgo.FormatType
	channels uint32
	rate     uint32
}

// side is the capture or playback half of a device.
type side struct {
	info      malgo.DeviceInfo
	native    nativeFormat
	rates     []hal.SampleRateRange
	isDefault bool
}

type entry struct {
	id       hal.DeviceID
	uid      string
	name     string
	present  bool
	capture  *side
	playback *side
}

func (e *entry) side(scope hal.Scope) *side {
	switch scope {
	case hal.ScopeInput:
		return e.capture
	case hal.ScopeOutput:
		return e.playback
	default:
		if e.playback != nil {
			return e.playback
		}
		return e.capture
	}
}

// deviceUID derives a stable UID from a miniaudio device ID. Printable IDs
// such as ALSA "hw:1,0" or CoreAudio UIDs are used as is.
func deviceUID(info *malgo.DeviceInfo, kind malgo.DeviceType) string {
	raw := info.ID.String()
	if decoded, err := hexToASCII(raw); err == nil {
		decoded = strings.TrimRight(decoded, "\x00")
		if decoded != "" && strings.IndexFunc(decoded, func(r rune) bool { return !unicode.IsPrint(r) }) < 0 {
			return decoded
		}
	}
	seed := fmt.Sprintf("%d\x00%s\x00%s", kind, info.Name(), raw)
	return uuid.NewSHA1(uidNamespace, []byte(seed)).String()
}

// resolveNative picks the first usable native format and fills what
// miniaudio left open.
func resolveNative(info *malgo.DeviceInfo) nativeFormat {
	n := nativeFormat{format: malgo.FormatUnknown}
	count := min(int(info.FormatCount), len(info.Formats))
	for i := range count {
		f := info.Formats[i]
		if f.Format == malgo.FormatUnknown && f.Channels == 0 && f.SampleRate == 0 {
			continue
		}
		n = nativeFormat{format: f.Format, channels: f.Channels, rate: f.SampleRate}
		break
	}
	switch n.format {
	case malgo.FormatS16, malgo.FormatS24, malgo.FormatS32, malgo.FormatF32:
	case malgo.FormatU8:
		// No unsigned PCM layout; miniaudio widens to S16.
		n.format = malgo.FormatS16
	default:
		n.format = malgo.FormatF32
	}
	if n.channels == 0 {
		n.channels = fallbackChannels
	}
	if n.rate == 0 {
		n.rate = fallbackSampleRate
	}
	return n
}

// pcmFormat describes the interleaved little-endian layout miniaudio
// delivers for n.
func (n nativeFormat) pcmFormat() pcm.Format {
	rate := float64(n.rate)
	switch n.format {
	case malgo.FormatS16:
		return pcm.Build(rate, n.channels, 16, 16, false, false, false)
	case malgo.FormatS24:
		return pcm.Build(rate, n.channels, 24, 24, false, false, false)
	case malgo.FormatS32:
		return pcm.Build(rate, n.channels, 32, 32, false, false, false)
	default:
		return pcm.Build(rate, n.channels, 32, 32, true, false, false)
	}
}

// rateRanges lists the nominal rates a device side reports. A zero rate in a
// native format means miniaudio resamples from any standard rate.
func rateRanges(info *malgo.DeviceInfo) []hal.SampleRateRange {
	var ranges []hal.SampleRateRange
	count := min(int(info.FormatCount), len(info.Formats))
	for i := range count {
		r := float64(info.Formats[i].SampleRate)
		if r == 0 {
			ranges = append(ranges, hal.SampleRateRange{Minimum: minSampleRate, Maximum: maxSampleRate})
			continue
		}
		ranges = append(ranges, hal.SampleRateRange{Minimum: r, Maximum: r})
	}
	if len(ranges) == 0 {
		ranges = append(ranges, hal.SampleRateRange{Minimum: minSampleRate, Maximum: maxSampleRate})
	}
	return mergeRanges(ranges)
}

func mergeRanges(ranges []hal.SampleRateRange) []hal.SampleRateRange {
	slices.SortFunc(ranges, func(a, b hal.SampleRateRange) int {
		return cmp.Or(cmp.Compare(a.Minimum, b.Minimum), cmp.Compare(a.Maximum, b.Maximum))
	})
	return slices.Compact(ranges)
}

// enumerated is one side found during a refresh.
type enumerated struct {
	uid  string
	kind malgo.DeviceType
	info malgo.DeviceInfo
}

func (b *Backend) enumerate() ([]enumerated, error) {
	var found []enumerated
	for _, kind := range []malgo.DeviceType{malgo.Capture, malgo.Playback} {
		infos, err := b.ctx.Devices(kind)
		if err != nil {
			return nil, statusError(string(opDevices), hal.StatusUnspecified, err)
		}
		for i := range infos {
			// ALSA "null" plugin
			if strings.Contains(infos[i].Name(), "Discard all samples") {
				continue
			}
			found = append(found, enumerated{uid: deviceUID(&infos[i], kind), kind: kind, info: infos[i]})
		}
	}
	return found, nil
}

// newSide probes a newly seen device side for its native formats. Probing
// may open the device, so it only happens when a side first appears.
func (b *Backend) newSide(e enumerated) *side {
	info := e.info
	if detailed, err := b.ctx.DeviceInfo(e.kind, info.ID, malgo.Shared); err == nil {
		detailed.IsDefault = info.IsDefault
		info = detailed
	} else {
		b.log.Debug("device info probe failed, using defaults",
			logger.String("device_uid", e.uid),
			logger.Error(err))
	}
	return &side{
		info:      info,
		native:    resolveNative(&info),
		rates:     rateRanges(&info),
		isDefault: info.IsDefault == 1,
	}
}

// refreshLocked re-enumerates devices. It reports whether the set of
// present UIDs changed and returns the procs of devices that went away;
// the caller tears those down after releasing b.mu.
func (b *Backend) refreshLocked() ([]*ioProc, bool, error) {
	if b.closed {
		return nil, false, statusError(string(opDevices), hal.StatusIllegalOperation, fmt.Errorf("backend closed"))
	}
	found, err := b.enumerate()
	if err != nil {
		return nil, false, err
	}

	seen := make(map[string]struct {
		capture  bool
		playback bool
	})
	changed := false
	for _, f := range found {
		e, ok := b.byUID[f.uid]
		if !ok {
			b.nextDev++
			e = &entry{id: b.nextDev, uid: f.uid, name: f.info.Name()}
			b.byUID[f.uid] = e
			b.byID[e.id] = e
		}
		if !e.present {
			e.present = true
			changed = true
		}

		s := seen[f.uid]
		switch f.kind {
		case malgo.Capture:
			s.capture = true
			if e.capture == nil {
				e.capture = b.newSide(f)
			} else {
				e.capture.isDefault = f.info.IsDefault == 1
			}
		case malgo.Playback:
			s.playback = true
			if e.playback == nil {
				e.playback = b.newSide(f)
			} else {
				e.playback.isDefault = f.info.IsDefault == 1
			}
		}
		seen[f.uid] = s
	}

	var lost []*ioProc
	for uid, e := range b.byUID {
		s, ok := seen[uid]
		if !s.capture {
			e.capture = nil
		}
		if !s.playback {
			e.playback = nil
		}
		if ok || !e.present {
			continue
		}
		e.present = false
		changed = true
		for id, p := range b.procs {
			if p.device == e.id {
				lost = append(lost, p)
				delete(b.procs, id)
			}
		}
	}
	return lost, changed, nil
}

// refresh re-enumerates, releases the hardware of vanished devices and
// notifies listeners when the device list changed. Any caller may observe
// a change first.
func (b *Backend) refresh() (bool, error) {
	b.mu.Lock()
	lost, changed, err := b.refreshLocked()
	b.mu.Unlock()

	for _, p := range lost {
		p.log.Warn("device removed while streaming, releasing io proc")
		p.teardown()
	}
	if changed {
		b.notify()
	}
	return changed, err
}

// presentUIDs returns the sorted UIDs of present devices. b.mu must be held.
func (b *Backend) presentUIDs() []string {
	uids := make([]string, 0, len(b.byUID))
	for uid, e := range b.byUID {
		if e.present {
			uids = append(uids, uid)
		}
	}
	slices.Sort(uids)
	return uids
}

// lookupLocked returns the present device for id. b.mu must be held.
func (b *Backend) lookupLocked(op operation, id hal.DeviceID) (*entry, error) {
	e, ok := b.byID[id]
	if !ok || !e.present {
		return nil, statusError(string(op), hal.StatusBadDevice, fmt.Errorf("device %d", id))
	}
	return e, nil
}
