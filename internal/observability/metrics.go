// Package observability owns the Prometheus registry of a birdnotifier process and exports it.
// A run is a short batch job, so metrics are pushed to a Pushgateway and/or written to a
// node-exporter textfile instead of being scraped from an HTTP endpoint.
package observability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/observability/metrics"
)

// DefaultJob is the Pushgateway job label used when none is configured.
const DefaultJob = "birdnotifier"

// Metrics holds all the metric collectors for the application.
type Metrics struct {
	registry *prometheus.Registry
	Run      *metrics.RunMetrics
}

// NewMetrics creates a new instance of Metrics on a private registry.
func NewMetrics() (*Metrics, error) {
	registry := prometheus.NewRegistry()

	runMetrics, err := metrics.NewRunMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create run metrics: %w", err)
	}

	return &Metrics{
		registry: registry,
		Run:      runMetrics,
	}, nil
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ExportConfig selects the export targets, both are optional.
type ExportConfig struct {
	Pushgateway string // base URL of a Pushgateway
	Job         string
	Textfile    string // node-exporter textfile collector path, must end in .prom
	HTTPClient  *http.Client
}

// Enabled reports whether any export target is configured.
func (c ExportConfig) Enabled() bool {
	return c.Pushgateway != "" || c.Textfile != ""
}

// Export writes the registry to every configured target. All targets are attempted,
// failures are joined.
func (m *Metrics) Export(ctx context.Context, cfg ExportConfig, log logger.Logger) error {
	if log == nil {
		log = logger.Global()
	}
	log = log.Module("metrics")

	var errs []error

	if cfg.Pushgateway != "" {
		job := cfg.Job
		if job == "" {
			job = DefaultJob
		}
		pusher := push.New(cfg.Pushgateway, job).Gatherer(m.registry)
		if cfg.HTTPClient != nil {
			pusher = pusher.Client(cfg.HTTPClient)
		}
		if err := pusher.PushContext(ctx); err != nil {
			errs = append(errs, errors.New(fmt.Errorf("failed to push metrics: %w", err)).
				Component("metrics").
				Category(errors.CategoryNetwork).
				Context("job", job).
				Build())
		} else {
			log.Debug("Metrics pushed", logger.String("job", job))
		}
	}

	if cfg.Textfile != "" {
		if err := prometheus.WriteToTextfile(cfg.Textfile, m.registry); err != nil {
			errs = append(errs, errors.New(fmt.Errorf("failed to write metrics textfile: %w", err)).
				Component("metrics").
				Category(errors.CategoryFileIO).
				FileContext(cfg.Textfile, 0).
				Build())
		} else {
			log.Debug("Metrics textfile written", logger.String("path", cfg.Textfile))
		}
	}

	return errors.Join(errs...)
}
