package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("nil config", func(t *testing.T) {
		t.Parallel()
		client := New(nil)
		assert.Equal(t, DefaultTimeout, client.Timeout)
	})

	t.Run("custom timeout", func(t *testing.T) {
		t.Parallel()
		client := New(&Config{Timeout: 5 * time.Second})
		assert.Equal(t, 5*time.Second, client.Timeout)
	})

	t.Run("zero values use defaults", func(t *testing.T) {
		t.Parallel()
		cfg := Config{}
		client := New(&cfg)
		assert.Equal(t, DefaultTimeout, client.Timeout)
		assert.Equal(t, Config{}, cfg, "caller config is not mutated")
	})
}

func TestUserAgent(t *testing.T) {
	t.Parallel()

	var received atomic.Value
	server := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		received.Store(r.Header.Get("User-Agent"))
		w.WriteHeader(http.StatusOK)
	})

	t.Run("default injected", func(t *testing.T) {
		resp, err := New(nil).Get(server.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, DefaultUserAgent, received.Load())
	})

	t.Run("request value kept", func(t *testing.T) {
		req, err := http.NewRequestWithContext(t.Context(), http.MethodGet, server.URL, http.NoBody)
		require.NoError(t, err)
		req.Header.Set("User-Agent", "CustomAgent/2.0")

		resp, err := New(&Config{UserAgent: "ignored"}).Do(req)
		require.NoError(t, err)
		_ = resp.Body.Close()
		assert.Equal(t, "CustomAgent/2.0", received.Load())
	})
}

func TestAfterResponseHook(t *testing.T) {
	t.Parallel()

	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	var status atomic.Int64
	client := New(&Config{AfterResponse: func(_ *http.Request, resp *http.Response, err error) {
		if err == nil {
			status.Store(int64(resp.StatusCode))
		}
	}})

	resp, err := client.Get(server.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, int64(http.StatusTeapot), status.Load())
}

func TestTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := newTestServer(t, func(w http.ResponseWriter, _ *http.Request) {
		<-release
		w.WriteHeader(http.StatusOK)
	})
	defer close(release)

	_, err := New(&Config{Timeout: 50 * time.Millisecond}).Get(server.URL)
	require.Error(t, err)
}
