package stream

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/tphakala/audiohal/pkg/hal"
	"github.com/tphakala/audiohal/pkg/hal/softconv"
	"github.com/tphakala/audiohal/pkg/hal/virtual"
	"github.com/tphakala/audiohal/pkg/pcm"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	float32Stereo48 = pcm.Build(48000, 2, 32, 32, true, false, false)
	int16Stereo44   = pcm.Build(44100, 2, 16, 16, false, false, false)
	int16Stereo48   = pcm.Build(48000, 2, 16, 16, false, false, false)
)

func formatPtr(f pcm.Format) *pcm.Format { return &f }

// outputDevice is a 48 kHz float32 stereo output with the given buffers.
func outputDevice(uid string, buffers ...uint32) virtual.DeviceSpec {
	if len(buffers) == 0 {
		buffers = []uint32{2}
	}
	return virtual.DeviceSpec{
		UID:            uid,
		Name:           "out " + uid,
		Transport:      hal.TransportBuiltIn,
		OutputChannels: buffers,
		OutputFormat:   formatPtr(float32Stereo48),
		NominalRate:    48000,
	}
}

func inputDevice(uid string, buffers ...uint32) virtual.DeviceSpec {
	if len(buffers) == 0 {
		buffers = []uint32{2}
	}
	return virtual.DeviceSpec{
		UID:           uid,
		Name:          "in " + uid,
		Transport:     hal.TransportUSB,
		InputChannels: buffers,
		InputFormat:   formatPtr(float32Stereo48),
		NominalRate:   48000,
	}
}

// checkedConverter wraps a converter and records use after dispose.
type checkedConverter struct {
	inner     hal.Converter
	svc       *checkedService
	disposed  atomic.Bool
	converts  atomic.Int64
	failAfter int64 // fail conversions after this many successes; <0 never

	mu      sync.Mutex
	indices []int
}

func (c *checkedConverter) Convert(in, out []byte) (int, error) {
	return c.ConvertBuffer(0, in, out)
}

func (c *checkedConverter) ConvertBuffer(index int, in, out []byte) (int, error) {
	c.mu.Lock()
	c.indices = append(c.indices, index)
	c.mu.Unlock()
	if c.disposed.Load() {
		c.svc.useAfterDispose.Add(1)
		return 0, errors.New("convert after dispose")
	}
	n := c.converts.Add(1)
	if c.failAfter >= 0 && n > c.failAfter {
		return 0, hal.NewStatusError("convert", hal.StatusUnspecified, nil)
	}
	if bc, ok := c.inner.(hal.BufferConverter); ok {
		return bc.ConvertBuffer(index, in, out)
	}
	return c.inner.Convert(in, out)
}

func (c *checkedConverter) bufferIndices() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.indices...)
}

func (c *checkedConverter) Dispose() error {
	if c.disposed.Swap(true) {
		c.svc.doubleDispose.Add(1)
	}
	return c.inner.Dispose()
}

// checkedService hands out checkedConverters over the software converter.
type checkedService struct {
	mu              sync.Mutex
	created         []*checkedConverter
	reject          error
	failAfter       int64
	useAfterDispose atomic.Int64
	doubleDispose   atomic.Int64
	lastSrc         pcm.Format
	lastDst         pcm.Format
}

func newCheckedService() *checkedService { return &checkedService{failAfter: -1} }

func (s *checkedService) NewConverter(src, dst pcm.Format) (hal.Converter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastSrc, s.lastDst = src, dst
	if s.reject != nil {
		return nil, s.reject
	}
	inner, err := softconv.NewService().NewConverter(src, dst)
	if err != nil {
		return nil, err
	}
	c := &checkedConverter{inner: inner, svc: s, failAfter: s.failAfter}
	s.created = append(s.created, c)
	return c, nil
}

func (s *checkedService) converters() []*checkedConverter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*checkedConverter(nil), s.created...)
}

func (s *checkedService) allDisposed() bool {
	for _, c := range s.converters() {
		if !c.disposed.Load() {
			return false
		}
	}
	return true
}

type harness struct {
	hal  *virtual.HAL
	conv *checkedService
	ctrl *Controller
	rec  *fakeRecorder
}

func newHarness(t *testing.T, specs ...virtual.DeviceSpec) *harness {
	t.Helper()
	h := virtual.New(specs...)
	conv := newCheckedService()
	rec := newFakeRecorder()
	ctrl, err := NewController(hal.HAL{Registry: h, IO: h, Converters: conv}, nil,
		WithRecorder(rec),
		WithRealtimeLogLimit(time.Millisecond, 1))
	require.NoError(t, err)
	return &harness{hal: h, conv: conv, ctrl: ctrl, rec: rec}
}

// proc returns the single IO proc registered on uid.
func (hs *harness) proc(t *testing.T, uid string) hal.IOProcID {
	t.Helper()
	id, err := hs.hal.DeviceForUID(uid)
	require.NoError(t, err)
	procs := hs.hal.Procs(id)
	require.Len(t, procs, 1)
	return procs[0]
}

// counter is a DataFunc recording every buffer length it was called with.
type counter struct {
	mu    sync.Mutex
	sizes []int
	fill  byte
}

func (c *counter) fn(buf []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sizes = append(c.sizes, len(buf))
	if c.fill != 0 {
		for i := range buf {
			buf[i] = c.fill
		}
	}
}

func (c *counter) calls() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.sizes...)
}

type fakeObserver struct {
	cycles, contention, stopped, failures, bytes atomic.Int64
}

func (o *fakeObserver) ObserveCycle()             { o.cycles.Add(1) }
func (o *fakeObserver) ObserveContention()        { o.contention.Add(1) }
func (o *fakeObserver) ObserveStopped()           { o.stopped.Add(1) }
func (o *fakeObserver) ObserveConversionFailure() { o.failures.Add(1) }
func (o *fakeObserver) ObserveBytes(n int)        { o.bytes.Add(int64(n)) }

type fakeRecorder struct {
	mu        sync.Mutex
	starts    []string
	stops     []bool
	builds    int
	observers map[string]*fakeObserver
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{observers: make(map[string]*fakeObserver)}
}

func (r *fakeRecorder) RecordStart(direction, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts = append(r.starts, direction+":"+stage)
}

func (r *fakeRecorder) RecordStop(_ string, clean bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops = append(r.stops, clean)
}

func (r *fakeRecorder) RecordConverterBuild(string, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builds++
}

func (r *fakeRecorder) Observer(uid, direction string) Observer {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := uid + "/" + direction
	if o, ok := r.observers[key]; ok {
		return o
	}
	o := &fakeObserver{}
	r.observers[key] = o
	return o
}

func (r *fakeRecorder) observer(uid, direction string) *fakeObserver {
	return r.Observer(uid, direction).(*fakeObserver)
}
