package ebird

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/observation"
)

// maxPreview bounds response bodies copied into logs and errors
const maxPreview = 500

// Client provides methods for interacting with the eBird API
type Client struct {
	config     Config
	httpClient *http.Client
	cache      *cache.Cache
	log        logger.Logger

	// Metrics
	metrics struct {
		apiCalls      int64
		cacheHits     int64
		cacheMisses   int64
		apiErrors     int64
		totalDuration time.Duration
		mu            sync.RWMutex
	}
}

// NewClient creates a new eBird API client
func NewClient(config Config, log logger.Logger) (*Client, error) {
	if config.APIKey == "" {
		return nil, errors.Newf("eBird API key is required").
			Category(errors.CategoryConfiguration).
			Component("ebird").
			Build()
	}

	// Use defaults for missing config values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.CacheTTL == 0 {
		config.CacheTTL = defaults.CacheTTL
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	if log == nil {
		log = logger.Global()
	}

	client := &Client{
		config:     config,
		httpClient: httpClient,
		cache:      cache.New(config.CacheTTL, config.CacheTTL*2),
		log:        log.Module("ebird"),
	}

	client.log.Debug("eBird client initialized",
		logger.String("base_url", config.BaseURL),
		logger.Duration("timeout", config.Timeout),
		logger.Duration("cache_ttl", config.CacheTTL),
		logger.Bool("api_key_configured", config.APIKey != ""))

	return client, nil
}

// RecentNotable fetches the notable observations of a region reported in the last
// daysBack days. Records sharing an ID appear once, in first-seen order.
// Every failure is a CategoryFetch error, nothing is retried.
func (c *Client) RecentNotable(ctx context.Context, region string, daysBack int) ([]observation.Observation, error) {
	if region == "" {
		return nil, errors.Newf("region code is required").
			Category(errors.CategoryFetch).
			Component("ebird").
			Build()
	}

	reqCtx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/data/obs/%s/recent/notable?back=%d&detail=full",
		c.config.BaseURL, url.PathEscape(region), daysBack)

	body, err := c.doRequest(reqCtx, endpoint, errors.CategoryFetch)
	if err != nil {
		return nil, err
	}

	obs, err := decodeObservations(body)
	if err != nil {
		return nil, errors.New(err).
			Category(errors.CategoryFetch).
			Component("ebird").
			Context("region", region).
			Context("response_size", len(body)).
			Build()
	}

	unique := observation.Unique(obs)
	c.log.Info("Fetched notable observations",
		logger.String("region", region),
		logger.Int("days_back", daysBack),
		logger.Int("records", len(obs)),
		logger.Int("unique", len(unique)))

	return unique, nil
}

// doRequest performs one authenticated GET and returns the body of a 2xx JSON response.
// Failures are categorized with category.
func (c *Client) doRequest(ctx context.Context, endpoint string, category errors.ErrorCategory) ([]byte, error) {
	start := time.Now()

	c.metrics.mu.Lock()
	c.metrics.apiCalls++
	c.metrics.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		c.countError()
		return nil, errors.Newf("failed to create HTTP request: %w", err).
			Category(category).
			Context("url", endpoint).
			Component("ebird").
			Build()
	}

	// Add authentication header
	req.Header.Set("X-eBirdApiToken", c.config.APIKey)
	req.Header.Set("Accept", "application/json")

	c.log.Debug("eBird API request", logger.String("url", endpoint))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.countError()
		c.log.Debug("eBird API request failed",
			logger.Error(err),
			logger.String("url", endpoint))
		return nil, errors.Newf("HTTP request failed: %w", err).
			Category(category).
			Context("url", endpoint).
			Component("ebird").
			Build()
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		c.countError()
		return nil, errors.Newf("failed to read response body: %w", err).
			Category(category).
			Context("url", endpoint).
			Context("status_code", resp.StatusCode).
			Component("ebird").
			Build()
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.countError()
		return nil, c.statusError(resp.StatusCode, bodyBytes, endpoint, category)
	}

	// Check content type when the server sets one
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(strings.ToLower(contentType), "json") {
		c.countError()
		c.log.Debug("eBird API returned non-JSON response",
			logger.Int("status_code", resp.StatusCode),
			logger.String("content_type", contentType),
			logger.String("response_preview", preview(bodyBytes)))
		return nil, errors.Newf("eBird API returned non-JSON response (Content-Type: %s)", contentType).
			Category(category).
			Context("status_code", resp.StatusCode).
			Context("content_type", contentType).
			Context("url", endpoint).
			Component("ebird").
			Build()
	}

	// A JSON object where an array is expected carries an error payload
	if trimmed := bytes.TrimSpace(bodyBytes); len(trimmed) > 0 && trimmed[0] == '{' {
		var payload errorPayload
		if err := json.Unmarshal(trimmed, &payload); err == nil && payload.message() != "" {
			c.countError()
			return nil, errors.Newf("eBird API error: %s", payload.message()).
				Category(category).
				Context("status_code", resp.StatusCode).
				Context("url", endpoint).
				Component("ebird").
				Build()
		}
	}

	duration := time.Since(start)
	c.metrics.mu.Lock()
	c.metrics.totalDuration += duration
	c.metrics.mu.Unlock()

	c.log.Debug("eBird API response",
		logger.Int("status_code", resp.StatusCode),
		logger.Int64("duration_ms", duration.Milliseconds()),
		logger.Int("response_size", len(bodyBytes)))

	return bodyBytes, nil
}

// statusError converts a non-2xx response into an enhanced error, using the eBird
// error payload when the body carries one
func (c *Client) statusError(status int, body []byte, endpoint string, category errors.ErrorCategory) error {
	var payload errorPayload
	msg := ""
	if err := json.Unmarshal(body, &payload); err == nil {
		msg = payload.message()
	}
	if msg == "" {
		msg = strings.TrimSpace(preview(body))
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	// The caller reports the failure, only trace it here
	c.log.Debug("eBird API error response",
		logger.Int("status_code", status),
		logger.String("error_title", msg))
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		msg += ", check the eBird API key in the configuration"
	}

	return errors.Newf("eBird API error (status %d): %s", status, msg).
		Category(category).
		Context("status_code", status).
		Context("url", endpoint).
		Component("ebird").
		Build()
}

func (c *Client) countError() {
	c.metrics.mu.Lock()
	c.metrics.apiErrors++
	c.metrics.mu.Unlock()
}

// GetMetrics returns current client metrics
func (c *Client) GetMetrics() Metrics {
	c.metrics.mu.RLock()
	defer c.metrics.mu.RUnlock()

	metrics := Metrics{
		APICalls:      c.metrics.apiCalls,
		CacheHits:     c.metrics.cacheHits,
		CacheMisses:   c.metrics.cacheMisses,
		APIErrors:     c.metrics.apiErrors,
		TotalDuration: c.metrics.totalDuration,
	}

	if metrics.APICalls > 0 {
		metrics.AvgDuration = time.Duration(int64(metrics.TotalDuration) / metrics.APICalls)
	}

	return metrics
}

// preview returns the first maxPreview bytes of body
func preview(body []byte) string {
	if len(body) > maxPreview {
		return string(body[:maxPreview]) + "..."
	}
	return string(body)
}
