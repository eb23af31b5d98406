// Package httpclient builds the HTTP clients used for outbound calls to eBird and the
// Pushgateway, with tuned timeouts, connection pooling and a User-Agent on every request.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests if not specified.
	DefaultTimeout = 30 * time.Second

	// Default connection pool settings, a run talks to one or two hosts
	defaultMaxIdleConns        = 4
	defaultMaxIdleConnsPerHost = 2
	defaultIdleConnTimeout     = 30 * time.Second

	// Default timeouts for various HTTP operations
	defaultTLSHandshakeTimeout   = 10 * time.Second
	defaultResponseHeaderTimeout = 20 * time.Second
	defaultDialTimeout           = 10 * time.Second
	defaultDialKeepAlive         = 30 * time.Second

	// DefaultUserAgent identifies birdnotifier to remote APIs
	DefaultUserAgent = "birdnotifier"
)

// Config holds configuration for creating an HTTP client.
type Config struct {
	// Timeout bounds a whole request including reading the body
	Timeout time.Duration

	// UserAgent is added to requests that do not set one
	UserAgent string

	// ResponseHeaderTimeout is timeout waiting for response headers (default: 20s)
	ResponseHeaderTimeout time.Duration

	// AfterResponse is called after every round trip, resp is nil when err is set
	AfterResponse func(req *http.Request, resp *http.Response, err error)
}

// DefaultConfig returns a Config with production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:               DefaultTimeout,
		UserAgent:             DefaultUserAgent,
		ResponseHeaderTimeout: defaultResponseHeaderTimeout,
	}
}

// New creates an HTTP client with the given configuration.
// Accepts nil cfg (falls back to DefaultConfig) and does not mutate the caller's config.
func New(cfg *Config) *http.Client {
	c := DefaultConfig()
	if cfg != nil {
		c.AfterResponse = cfg.AfterResponse
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		if cfg.UserAgent != "" {
			c.UserAgent = cfg.UserAgent
		}
		if cfg.ResponseHeaderTimeout > 0 {
			c.ResponseHeaderTimeout = cfg.ResponseHeaderTimeout
		}
	}

	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   defaultDialTimeout,
			KeepAlive: defaultDialKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          defaultMaxIdleConns,
		MaxIdleConnsPerHost:   defaultMaxIdleConnsPerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   defaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: c.ResponseHeaderTimeout,
	}

	return &http.Client{
		Timeout: c.Timeout,
		Transport: &roundTripper{
			base:          transport,
			userAgent:     c.UserAgent,
			afterResponse: c.AfterResponse,
		},
	}
}

// roundTripper injects the User-Agent and reports each round trip
type roundTripper struct {
	base          http.RoundTripper
	userAgent     string
	afterResponse func(*http.Request, *http.Response, error)
}

func (t *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("User-Agent") == "" {
		// RoundTrippers must not modify the caller's request
		req = req.Clone(req.Context())
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := t.base.RoundTrip(req)
	if t.afterResponse != nil {
		t.afterResponse(req, resp, err)
	}
	return resp, err
}
