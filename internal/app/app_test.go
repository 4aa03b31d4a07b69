package app

import (
	"io"
	"net/http"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiohal/internal/conf"
	"github.com/tphakala/audiohal/internal/errors"
	"github.com/tphakala/audiohal/pkg/hal/virtual"
	"github.com/tphakala/audiohal/pkg/pcm"
	"github.com/tphakala/audiohal/pkg/stream"
)

func testSettings(t *testing.T) *conf.Settings {
	t.Helper()

	s := conf.Defaults()
	s.Backend = conf.BackendVirtual
	s.Logging.Console.Enabled = false
	s.Logging.FileOutput.Enabled = true
	s.Logging.FileOutput.Path = filepath.Join(t.TempDir(), "audiohal.log")
	return s
}

func TestNewVirtualRuntimeStreams(t *testing.T) {
	settings := testSettings(t)
	settings.Metrics.Enabled = true
	settings.Metrics.Listen = "127.0.0.1:0"

	env, err := New(settings, "test")
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, env.Close()) })

	infos, err := env.Directory.List()
	require.NoError(t, err)
	assert.Len(t, infos, 2)

	var filled atomic.Int64
	s, err := env.Controller.Start(virtual.DemoSpeakersUID, func(buf []byte) {
		filled.Add(int64(len(buf)))
	}, pcm.Build(44100, 2, 16, 16, false, false, false), stream.Output)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return filled.Load() > 0 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, s.Stop())

	resp, err := http.Get("http://" + env.Endpoint.Addr() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "audiohal_stream_start_total")
}

func TestCloseIsIdempotent(t *testing.T) {
	env, err := New(testSettings(t), "test")
	require.NoError(t, err)
	require.NoError(t, env.Close())
	require.NoError(t, env.Close())
}

func TestUnknownBackend(t *testing.T) {
	settings := testSettings(t)
	settings.Backend = "jack"

	_, err := New(settings, "test")
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}
