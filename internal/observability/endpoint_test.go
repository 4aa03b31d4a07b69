package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/audiohal/internal/conf"
)

func TestMetricsHandlerServesCollectors(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	m.Stream.RecordStart("output", "")

	mux := http.NewServeMux()
	m.RegisterHandlers(mux)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, `audiohal_active_streams{direction="output"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestNewMetricsIsIndependent(t *testing.T) {
	t.Parallel()

	var wg sync.WaitGroup
	for range 10 {
		wg.Go(func() {
			m, err := NewMetrics()
			assert.NoError(t, err)
			assert.NotNil(t, m.Registry())
		})
	}
	wg.Wait()
}

func TestEndpointRequiresEnabledMetrics(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	_, err = NewEndpoint(&conf.MetricsSettings{Enabled: false}, m, nil)
	require.Error(t, err)
}

func TestEndpointServesAndShutsDown(t *testing.T) {
	t.Parallel()

	m, err := NewMetrics()
	require.NoError(t, err)
	e, err := NewEndpoint(&conf.MetricsSettings{Enabled: true, Listen: "127.0.0.1:0"}, m, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	quit := make(chan struct{})
	require.NoError(t, e.Start(&wg, quit))
	require.NotEmpty(t, e.Addr())

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + e.Addr() + "/metrics")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "process_")

	close(quit)
	wg.Wait()
	assert.Same(t, m, e.GetMetrics())
}
