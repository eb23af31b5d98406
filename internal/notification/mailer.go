package notification

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
	"github.com/tphakala/birdnotifier/internal/observation"
	"github.com/tphakala/birdnotifier/internal/privacy"
)

// SMTP authentication modes
const (
	AuthOAuth2 = "oauth2"
	AuthPlain  = "plain"
)

const defaultSendTimeout = 30 * time.Second

// TokenSource provides OAuth2 access tokens for SMTP XOAUTH2
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// SendFunc delivers one message to a shoutrrr service URL
type SendFunc func(ctx context.Context, serviceURL, subject, body string) error

// EmailConfig describes the SMTP account and the message envelope
type EmailConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string // plain auth only
	Auth       string // AuthOAuth2 or AuthPlain
	From       string
	Recipients []string
	Subject    string
	Timeout    time.Duration
}

// EmailNotifier sends observation batches as a single HTML e-mail
type EmailNotifier struct {
	config EmailConfig
	tokens TokenSource
	send   SendFunc
	log    logger.Logger
}

// Option configures an EmailNotifier
type Option func(*EmailNotifier)

// WithSendFunc replaces shoutrrr delivery, used by tests
func WithSendFunc(send SendFunc) Option {
	return func(n *EmailNotifier) { n.send = send }
}

// NewEmailNotifier creates a notifier. OAuth2 auth requires tokens.
func NewEmailNotifier(config EmailConfig, tokens TokenSource, log logger.Logger, opts ...Option) (*EmailNotifier, error) {
	if config.Host == "" || config.Port <= 0 {
		return nil, errors.ValidationError("SMTP host and port are required")
	}
	if config.From == "" || len(config.Recipients) == 0 {
		return nil, errors.ValidationError("sender and at least one recipient are required")
	}
	switch config.Auth {
	case AuthOAuth2:
		if tokens == nil {
			return nil, errors.ValidationError("oauth2 auth requires a token source")
		}
	case AuthPlain:
	default:
		return nil, errors.ValidationError(fmt.Sprintf("unsupported SMTP auth %q", config.Auth))
	}
	if config.Username == "" {
		config.Username = config.From
	}
	if config.Timeout <= 0 {
		config.Timeout = defaultSendTimeout
	}
	if log == nil {
		log = logger.Global()
	}

	n := &EmailNotifier{
		config: config,
		tokens: tokens,
		send:   shoutrrrSend(config.Timeout),
		log:    log.Module("notification"),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify sends one e-mail listing obs. An empty batch sends nothing.
// Failures are CategorySend errors with credentials scrubbed from the message.
func (n *EmailNotifier) Notify(ctx context.Context, obs []observation.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	body, err := RenderBody(obs)
	if err != nil {
		return n.sendError(err)
	}

	secret := n.config.Password
	if n.config.Auth == AuthOAuth2 {
		secret, err = n.tokens.AccessToken(ctx)
		if err != nil {
			return n.sendError(fmt.Errorf("failed to obtain SMTP credentials: %w", err))
		}
	}

	serviceURL, err := BuildSMTPURL(&n.config, secret)
	if err != nil {
		return n.sendError(err)
	}

	start := time.Now()
	if err := n.send(ctx, serviceURL, n.config.Subject, body); err != nil {
		n.log.Debug("Notification delivery failed",
			logger.Error(err),
			logger.Int("observations", len(obs)))
		return n.sendError(err)
	}

	n.log.Info("Notification sent",
		logger.Int("observations", len(obs)),
		logger.Int("recipients", len(n.config.Recipients)),
		logger.Duration("elapsed", time.Since(start)))
	return nil
}

func (n *EmailNotifier) sendError(err error) error {
	return errors.New(privacy.WrapError(err)).
		Component("notification").
		Category(errors.CategorySend).
		Context("smtp_host", n.config.Host).
		Build()
}

// BuildSMTPURL assembles the shoutrrr smtp:// service URL, secret is the password or
// the OAuth2 access token.
func BuildSMTPURL(config *EmailConfig, secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("SMTP credentials are empty")
	}

	auth := "Plain"
	if config.Auth == AuthOAuth2 {
		auth = "OAuth2"
	}

	query := url.Values{}
	query.Set("fromaddress", config.From)
	query.Set("toaddresses", strings.Join(config.Recipients, ","))
	query.Set("usehtml", "Yes")
	query.Set("auth", auth)
	query.Set("encryption", "Auto")
	if config.Subject != "" {
		query.Set("subject", config.Subject)
	}

	u := url.URL{
		Scheme:   "smtp",
		User:     url.UserPassword(config.Username, secret),
		Host:     net.JoinHostPort(config.Host, strconv.Itoa(config.Port)),
		Path:     "/",
		RawQuery: query.Encode(),
	}
	return u.String(), nil
}

// shoutrrrSend delivers through a shoutrrr router created per message
func shoutrrrSend(timeout time.Duration) SendFunc {
	return func(ctx context.Context, serviceURL, subject, body string) error {
		// The router has no context support, its Timeout bounds the delivery
		if err := ctx.Err(); err != nil {
			return err
		}

		sender, err := shoutrrr.CreateSender(serviceURL)
		if err != nil {
			// Wrap error to sanitize any URLs that may contain tokens/credentials
			return privacy.WrapError(err)
		}
		sender.Timeout = timeout
		sender.SetLogger(log.New(io.Discard, "", 0))

		params := stypes.Params{}
		if subject != "" {
			params.SetTitle(subject)
		}
		for _, e := range sender.Send(body, &params) {
			if e != nil {
				return privacy.WrapError(e)
			}
		}
		return nil
	}
}
