package notification

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"github.com/spf13/afero"
	"golang.org/x/oauth2"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/logger"
)

// OAuth2Config describes the OAuth2 client used to mint SMTP access tokens
type OAuth2Config struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	Scopes       []string
	TokenFile    string // refresh token storage
}

// TokenManager exchanges a stored refresh token for access tokens and keeps the token
// file current when the provider rotates the refresh token.
type TokenManager struct {
	fs        afero.Fs
	tokenFile string
	config    *oauth2.Config
	log       logger.Logger
}

// NewTokenManager creates a token manager storing its refresh token on fsys
func NewTokenManager(fsys afero.Fs, cfg OAuth2Config, log logger.Logger) *TokenManager {
	if log == nil {
		log = logger.Global()
	}
	return &TokenManager{
		fs:        fsys,
		tokenFile: cfg.TokenFile,
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		log: log.Module("oauth2"),
	}
}

// AuthCodeURL returns the consent page URL requesting offline access
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// Exchange trades an authorization code for tokens and stores the refresh token
func (m *TokenManager) Exchange(ctx context.Context, code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.ValidationError("authorization code is empty")
	}

	tok, err := m.config.Exchange(ctx, code)
	if err != nil {
		return authError(fmt.Errorf("authorization code exchange failed: %w", err))
	}
	if tok.RefreshToken == "" {
		return authError(fmt.Errorf("provider returned no refresh token, revoke the app grant and authorize again"))
	}

	if err := m.saveRefreshToken(tok.RefreshToken); err != nil {
		return err
	}
	m.log.Info("Refresh token stored", logger.String("token_file", m.tokenFile))
	return nil
}

// AccessToken returns a fresh access token minted from the stored refresh token
func (m *TokenManager) AccessToken(ctx context.Context) (string, error) {
	refresh, err := m.loadRefreshToken()
	if err != nil {
		return "", err
	}

	tok, err := m.config.TokenSource(ctx, &oauth2.Token{RefreshToken: refresh}).Token()
	if err != nil {
		return "", authError(fmt.Errorf("token refresh failed: %w", err))
	}

	if tok.RefreshToken != "" && tok.RefreshToken != refresh {
		if err := m.saveRefreshToken(tok.RefreshToken); err != nil {
			return "", err
		}
		m.log.Info("Stored rotated refresh token", logger.String("token_file", m.tokenFile))
	}

	m.log.Debug("Access token refreshed", logger.Time("expiry", tok.Expiry))
	return tok.AccessToken, nil
}

func (m *TokenManager) loadRefreshToken() (string, error) {
	data, err := afero.ReadFile(m.fs, m.tokenFile)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", errors.Newf("no refresh token at %s, run \"birdnotifier authorize\" first", m.tokenFile).
				Component("oauth2").
				Category(errors.CategoryAuth).
				FileContext(m.tokenFile, 0).
				Build()
		}
		return "", authError(fmt.Errorf("failed to read token file: %w", err))
	}

	refresh := strings.TrimSpace(string(data))
	if refresh == "" {
		return "", errors.Newf("token file %s is empty", m.tokenFile).
			Component("oauth2").
			Category(errors.CategoryAuth).
			FileContext(m.tokenFile, 0).
			Build()
	}
	return refresh, nil
}

func (m *TokenManager) saveRefreshToken(refresh string) error {
	if err := afero.WriteFile(m.fs, m.tokenFile, []byte(refresh+"\n"), 0o600); err != nil {
		return errors.New(fmt.Errorf("failed to write token file: %w", err)).
			Component("oauth2").
			Category(errors.CategoryFileIO).
			FileContext(m.tokenFile, 0).
			Build()
	}
	return nil
}

func authError(err error) error {
	return errors.New(err).
		Component("oauth2").
		Category(errors.CategoryAuth).
		Build()
}
