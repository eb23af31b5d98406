// Package app builds the runtime components of birdnotifier from settings. The core
// packages never read configuration themselves, every value reaches them through here.
package app

import (
	"time"

	"github.com/spf13/afero"

	"github.com/tphakala/birdnotifier/internal/conf"
	"github.com/tphakala/birdnotifier/internal/ebird"
	"github.com/tphakala/birdnotifier/internal/httpclient"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/notification"
	"github.com/tphakala/birdnotifier/internal/notifier"
	"github.com/tphakala/birdnotifier/internal/observability"
)

// taxonomyCacheTTL bounds how long one process reuses a downloaded taxonomy
const taxonomyCacheTTL = 24 * time.Hour

// LoggingConfig maps log settings onto the central logger configuration.
// Debug raises the default level to debug.
func LoggingConfig(settings *conf.Settings, console *logger.ConsoleOutput) *logger.LoggingConfig {
	level := settings.Logging.Level
	if level == "" {
		level = string(logger.LogLevelInfo)
	}
	if settings.Debug {
		level = string(logger.LogLevelDebug)
	}
	return &logger.LoggingConfig{
		DefaultLevel: level,
		Console:      console,
		FileOutput: &logger.FileOutput{
			Enabled: settings.Logging.File != "",
			Path:    settings.Logging.File,
		},
	}
}

// NewEBirdClient creates the eBird client for the configured account.
func NewEBirdClient(settings *conf.Settings, log logger.Logger) (*ebird.Client, error) {
	return ebird.NewClient(ebird.Config{
		APIKey:     settings.EBird.APIKey,
		BaseURL:    settings.EBird.BaseURL,
		Timeout:    settings.EBird.Timeout,
		CacheTTL:   taxonomyCacheTTL,
		HTTPClient: httpclient.New(&httpclient.Config{Timeout: settings.EBird.Timeout}),
	}, log)
}

// NewTokenManager creates the OAuth2 token manager. Relative token file paths resolve
// against the working directory of fsys.
func NewTokenManager(fsys afero.Fs, settings *conf.Settings, log logger.Logger) *notification.TokenManager {
	o := &settings.Email.OAuth2
	return notification.NewTokenManager(fsys, notification.OAuth2Config{
		ClientID:     o.ClientID,
		ClientSecret: o.ClientSecret,
		AuthURL:      o.AuthURL,
		TokenURL:     o.TokenURL,
		RedirectURL:  o.RedirectURL,
		Scopes:       o.Scopes,
		TokenFile:    o.TokenFile,
	}, log)
}

// NewEmailNotifier creates the mail notifier, with a token manager when OAuth2 is used.
func NewEmailNotifier(fsys afero.Fs, settings *conf.Settings, log logger.Logger, opts ...notification.Option) (*notification.EmailNotifier, error) {
	e := &settings.Email

	var tokens notification.TokenSource
	if e.Auth == conf.AuthOAuth2 {
		tokens = NewTokenManager(fsys, settings, log)
	}

	return notification.NewEmailNotifier(notification.EmailConfig{
		Host:       e.SMTPHost,
		Port:       e.SMTPPort,
		Username:   e.SMTPUsername(),
		Password:   e.Password,
		Auth:       e.Auth,
		From:       e.Sender,
		Recipients: e.Recipients,
		Subject:    e.Subject,
	}, tokens, log, opts...)
}

// PipelineConfig extracts the per-run pipeline settings.
func PipelineConfig(settings *conf.Settings) notifier.Config {
	return notifier.Config{
		Region:     settings.EBird.Region,
		DaysBack:   settings.EBird.DaysBack,
		Exclude:    settings.Exclude,
		LedgerPath: settings.Ledger.Path,
	}
}

// ExportConfig extracts the metrics export targets.
func ExportConfig(settings *conf.Settings) observability.ExportConfig {
	return observability.ExportConfig{
		Pushgateway: settings.Metrics.Pushgateway,
		Job:         settings.Metrics.Job,
		Textfile:    settings.Metrics.Textfile,
		HTTPClient:  httpclient.New(nil),
	}
}

// Run holds everything one "run" invocation needs.
type Run struct {
	Pipeline *notifier.Pipeline
	Metrics  *observability.Metrics
	Export   observability.ExportConfig
}

// NewRun wires the eBird client, mail notifier, pipeline and metrics.
// source and mailer options exist for tests, nil source means the eBird client.
func NewRun(fsys afero.Fs, settings *conf.Settings, log logger.Logger, source notifier.Source, mailOpts ...notification.Option) (*Run, error) {
	if source == nil {
		client, err := NewEBirdClient(settings, log)
		if err != nil {
			return nil, err
		}
		source = client
	}

	mailer, err := NewEmailNotifier(fsys, settings, log, mailOpts...)
	if err != nil {
		return nil, err
	}

	m, err := observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	pipeline, err := notifier.New(PipelineConfig(settings), fsys, source, mailer, log,
		notifier.WithRecorder(m.Run))
	if err != nil {
		return nil, err
	}

	return &Run{
		Pipeline: pipeline,
		Metrics:  m,
		Export:   ExportConfig(settings),
	}, nil
}
