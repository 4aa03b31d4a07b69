// Package malgo implements the HAL on top of miniaudio through
// github.com/gen2brain/malgo.
//
// miniaudio lists capture and playback devices separately. Entries that
// decode to the same device ID are merged into one device carrying both
// scopes. Device IDs handed out by the backend stay stable for a UID while
// the process runs, so a device that is unplugged and plugged back in
// resolves to the same handle.
package malgo

import (
	"encoding/hex"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/gen2brain/malgo"

	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/internal/logger"
	"github.com/tphakala/audiohal/pkg/hal"
)

const componentMalgo = "malgo"

// DefaultPollInterval is how often the device list is re-enumerated for
// listeners when Options.PollInterval is zero.
const DefaultPollInterval = 2 * time.Second

// Options configure a Backend.
type Options struct {
	// Backends are miniaudio backend names in priority order, for example
	// "alsa" or "pulseaudio". Empty selects the platform default.
	Backends []string
	// PollInterval is the device-list polling period for listeners.
	PollInterval time.Duration
	Logger       logger.Logger
}

// Backend is a hal.Registry, hal.IOService and hal.DeviceListNotifier over
// one miniaudio context. It is safe for concurrent use.
type Backend struct {
	ctx          *malgo.AllocatedContext
	log          logger.Logger
	pollInterval time.Duration

	mu       sync.Mutex
	nextDev  hal.DeviceID
	nextProc hal.IOProcID
	byUID    map[string]*entry
	byID     map[hal.DeviceID]*entry
	procs    map[hal.IOProcID]*ioProc
	closed   bool

	poll pollState
}

var (
	_ hal.Registry           = (*Backend)(nil)
	_ hal.ScopedIOService    = (*Backend)(nil)
	_ hal.DeviceListNotifier = (*Backend)(nil)
)

// New initializes a miniaudio context and takes the first device snapshot.
func New(opts Options) (*Backend, error) {
	backends, err := parseBackends(opts.Backends)
	if err != nil {
		return nil, err
	}

	log := logger.OrNop(opts.Logger).Module(componentMalgo)
	ctx, err := malgo.InitContext(backends, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", logger.String("message", strings.TrimSpace(message)))
	})
	if err != nil {
		return nil, errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryDevice).
			Context("operation", "init_context").
			Context("backends", backendNames(backends)).
			Build()
	}

	interval := opts.PollInterval
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	b := &Backend{
		ctx:          ctx,
		log:          log,
		pollInterval: interval,
		byUID:        make(map[string]*entry),
		byID:         make(map[hal.DeviceID]*entry),
		procs:        make(map[hal.IOProcID]*ioProc),
		poll:         pollState{kick: make(chan struct{}, 1)},
	}

	b.mu.Lock()
	_, _, err = b.refreshLocked()
	b.mu.Unlock()
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return nil, err
	}
	return b, nil
}

// Close stops every running device, ends polling and releases the context.
func (b *Backend) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	procs := make([]*ioProc, 0, len(b.procs))
	for _, p := range b.procs {
		procs = append(procs, p)
	}
	clear(b.procs)
	b.mu.Unlock()

	for _, p := range procs {
		p.teardown()
	}
	b.stopPolling()

	err := b.ctx.Uninit()
	b.ctx.Free()
	if err != nil {
		return errors.New(err).
			Component(componentMalgo).
			Category(errors.CategoryDevice).
			Context("operation", "uninit_context").
			Build()
	}
	return nil
}

var backendsByName = map[string]malgo.Backend{
	"wasapi":     malgo.BackendWasapi,
	"dsound":     malgo.BackendDsound,
	"winmm":      malgo.BackendWinmm,
	"coreaudio":  malgo.BackendCoreaudio,
	"sndio":      malgo.BackendSndio,
	"audio4":     malgo.BackendAudio4,
	"oss":        malgo.BackendOss,
	"pulseaudio": malgo.BackendPulseaudio,
	"alsa":       malgo.BackendAlsa,
	"jack":       malgo.BackendJack,
	"aaudio":     malgo.BackendAaudio,
	"opensl":     malgo.BackendOpensl,
	"webaudio":   malgo.BackendWebaudio,
	"null":       malgo.BackendNull,
}

// ParseBackend maps a miniaudio backend name to its constant.
func ParseBackend(name string) (malgo.Backend, error) {
	b, ok := backendsByName[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return malgo.BackendNull, errors.Newf("unknown miniaudio backend %q", name).
			Component(componentMalgo).
			Category(errors.CategoryConfiguration).
			Context("backend", name).
			Build()
	}
	return b, nil
}

func parseBackends(names []string) ([]malgo.Backend, error) {
	if len(names) == 0 {
		b, err := getBackendForPlatform()
		if err != nil {
			return nil, err
		}
		return []malgo.Backend{b}, nil
	}
	backends := make([]malgo.Backend, 0, len(names))
	for _, name := range names {
		b, err := ParseBackend(name)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return backends, nil
}

func backendNames(backends []malgo.Backend) string {
	names := make([]string, 0, len(backends))
	for _, b := range backends {
		for name, v := range backendsByName {
			if v == b {
				names = append(names, name)
				break
			}
		}
	}
	return strings.Join(names, ",")
}

// getBackendForPlatform returns the appropriate malgo backend for the current platform
func getBackendForPlatform() (malgo.Backend, error) {
	switch runtime.GOOS {
	case "linux":
		return malgo.BackendAlsa, nil
	case "windows":
		return malgo.BackendWasapi, nil
	case "darwin":
		return malgo.BackendCoreaudio, nil
	default:
		return malgo.BackendNull, errors.Newf("unsupported operating system").
			Component(componentMalgo).
			Category(errors.CategoryDevice).
			Context("os", runtime.GOOS).
			Build()
	}
}

// hexToASCII converts a hexadecimal string to an ASCII string
func hexToASCII(hexStr string) (string, error) {
	bytes, err := hex.DecodeString(hexStr)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

// statusError wraps err for op with a HAL status.
func statusError(op string, status hal.Status, err error) *hal.StatusError {
	return hal.NewStatusError(op, status, err)
}
