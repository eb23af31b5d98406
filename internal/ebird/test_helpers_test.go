package ebird

import (
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tphakala/birdnotifier/internal/logger"
)

// mockResponse represents a mocked HTTP response
type mockResponse struct {
	status      int
	body        string
	contentType string
}

// mockServer counts the requests it served
type mockServer struct {
	*httptest.Server
	requests atomic.Int64
	lastKey  atomic.Value // last API token seen
}

// testLogger discards all output
func testLogger() logger.Logger {
	return logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC)
}

// setupTestClient creates a test client with the given server
func setupTestClient(tb testing.TB, server *mockServer) *Client {
	tb.Helper()

	config := Config{
		APIKey:   "test-key",
		BaseURL:  server.URL,
		Timeout:  5 * time.Second,
		CacheTTL: 1 * time.Hour,
	}

	client, err := NewClient(config, testLogger())
	require.NoError(tb, err)

	return client
}

// setupMockServer creates a mock server with predefined responses keyed by path and query
func setupMockServer(tb testing.TB, responses map[string]mockResponse) *mockServer {
	tb.Helper()

	ms := &mockServer{}
	ms.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ms.requests.Add(1)

		// Check API key
		apiKey := r.Header.Get("X-eBirdApiToken")
		ms.lastKey.Store(apiKey)
		if apiKey == "" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"errors":[{"code":"missing.api.key","status":"401","title":"Missing API key"}]}`))
			return
		}

		// Find matching response
		key := r.URL.Path
		if r.URL.RawQuery != "" {
			key += "?" + r.URL.RawQuery
		}

		if response, ok := responses[key]; ok {
			if response.contentType != "" {
				w.Header().Set("Content-Type", response.contentType)
			} else {
				w.Header().Set("Content-Type", "application/json;charset=UTF-8")
			}
			w.WriteHeader(response.status)
			_, _ = w.Write([]byte(response.body))
			return
		}

		// Default 404
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"title": "Not Found", "status": 404, "detail": "Endpoint not found"}`))
	}))
	tb.Cleanup(ms.Close)

	return ms
}

// loadTestData loads test data from testdata directory
func loadTestData(tb testing.TB, filename string) string {
	tb.Helper()

	data, err := os.ReadFile(filepath.Join("testdata", filename)) //nolint:gosec // G304: test fixture path
	require.NoError(tb, err)

	return string(data)
}
