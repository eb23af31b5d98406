// config.go: settings struct for birdnotifier and the functions that load it
package conf

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/spf13/viper"

	"github.com/tphakala/birdnotifier/internal/errors"
	"github.com/tphakala/birdnotifier/internal/privacy"
)

//go:embed config.yaml
var configFiles embed.FS

// EBirdSettings contains settings for the eBird API.
type EBirdSettings struct {
	APIKey   string        `yaml:"apikey"`   // eBird API token
	Region   string        `yaml:"region"`   // region code, e.g. US-NY
	DaysBack int           `yaml:"daysback"` // lookback window in days
	BaseURL  string        `yaml:"baseurl"`  // API base URL
	Timeout  time.Duration `yaml:"timeout"`  // HTTP request timeout
}

// LedgerSettings contains settings for the already-notified ledger.
type LedgerSettings struct {
	Path string `yaml:"path"` // ledger file, empty disables persistence
}

// OAuth2Settings contains the OAuth2 client used for SMTP XOAUTH2.
type OAuth2Settings struct {
	ClientID     string   `yaml:"clientid"`
	ClientSecret string   `yaml:"clientsecret"`
	TokenFile    string   `yaml:"tokenfile"` // refresh token storage
	AuthURL      string   `yaml:"authurl"`
	TokenURL     string   `yaml:"tokenurl"`
	RedirectURL  string   `yaml:"redirecturl"`
	Scopes       []string `yaml:"scopes"`
}

// EmailSettings contains settings for mail delivery.
type EmailSettings struct {
	Sender     string         `yaml:"sender"`
	Recipients []string       `yaml:"recipients"`
	Subject    string         `yaml:"subject"`
	SMTPHost   string         `yaml:"smtphost"`
	SMTPPort   int            `yaml:"smtpport"`
	Auth       string         `yaml:"auth"`     // "oauth2" or "plain"
	Username   string         `yaml:"username"` // defaults to sender
	Password   string         `yaml:"password"` // plain auth only
	OAuth2     OAuth2Settings `yaml:"oauth2"`
}

// LoggingSettings contains log output settings.
type LoggingSettings struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"` // empty disables the log file
}

// MetricsSettings contains run metrics export settings.
type MetricsSettings struct {
	Pushgateway string `yaml:"pushgateway"` // empty disables push
	Job         string `yaml:"job"`
	Textfile    string `yaml:"textfile"` // empty disables textfile output
}

// Settings contains all configuration options for birdnotifier.
type Settings struct {
	Debug   bool            `yaml:"debug"`
	EBird   EBirdSettings   `yaml:"ebird"`
	Exclude []string        `yaml:"exclude"` // common names never notified
	Ledger  LedgerSettings  `yaml:"ledger"`
	Email   EmailSettings   `yaml:"email"`
	Logging LoggingSettings `yaml:"logging"`
	Metrics MetricsSettings `yaml:"metrics"`

	// ConfigFile is the file the settings were read from, empty when only defaults apply
	ConfigFile string `yaml:"-"`
}

// SMTPUsername returns the SMTP login, which falls back to the sender address.
func (e *EmailSettings) SMTPUsername() string {
	if e.Username != "" {
		return e.Username
	}
	return e.Sender
}

// Redacted returns a copy of the settings with secret values masked, for display.
func (s *Settings) Redacted() *Settings {
	c := *s
	c.Exclude = slices.Clone(s.Exclude)
	c.Email.Recipients = slices.Clone(s.Email.Recipients)
	c.Email.OAuth2.Scopes = slices.Clone(s.Email.OAuth2.Scopes)
	c.EBird.APIKey = privacy.MaskSecret(s.EBird.APIKey)
	c.Email.Password = privacy.MaskSecret(s.Email.Password)
	c.Email.OAuth2.ClientSecret = privacy.MaskSecret(s.Email.OAuth2.ClientSecret)
	return &c
}

// Load reads and validates the configuration.
// An empty configFile searches the default config paths, a missing file means defaults only.
func Load(configFile string) (*Settings, error) {
	settings, err := Read(configFile)
	if err != nil {
		return nil, err
	}

	if err := ValidateSettings(settings); err != nil {
		return nil, errors.New(fmt.Errorf("error validating settings: %w", err)).
			Component("conf").
			Category(errors.CategoryValidation).
			Build()
	}

	return settings, nil
}

// Read reads the configuration file and environment variables into a new Settings
// without validating it, for commands that need only part of the settings.
func Read(configFile string) (*Settings, error) {
	v := viper.New()

	if err := initViper(v, configFile); err != nil {
		return nil, err
	}

	settings := &Settings{}
	if err := v.Unmarshal(settings); err != nil {
		return nil, errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "unmarshal").
			Build()
	}
	settings.ConfigFile = v.ConfigFileUsed()

	return settings, nil
}

// initViper sets defaults, environment bindings and reads the configuration file.
func initViper(v *viper.Viper, configFile string) error {
	v.SetConfigType("yaml")

	// Set default values for each configuration parameter
	// function defined in defaults.go
	setDefaultConfig(v)

	if err := configureEnvironmentVariables(v); err != nil {
		return errors.New(err).
			Component("conf").
			Category(errors.CategoryConfiguration).
			Context("operation", "bind-env").
			Build()
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		for _, path := range GetDefaultConfigPaths() {
			v.AddConfigPath(path)
		}
	}

	err := v.ReadInConfig()
	if err == nil {
		return nil
	}

	var notFound viper.ConfigFileNotFoundError
	if configFile == "" && errors.As(err, &notFound) {
		// No config file anywhere, defaults and environment only
		return nil
	}
	return errors.New(fmt.Errorf("fatal error reading config file: %w", err)).
		Component("conf").
		Category(errors.CategoryConfiguration).
		FileContext(configFile, 0).
		Build()
}

// GetDefaultConfigPaths returns the directories searched for config.yaml, most specific first.
func GetDefaultConfigPaths() []string {
	paths := []string{"."}
	if homeDir, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(homeDir, ".config", "birdnotifier"))
	}
	return append(paths, "/etc/birdnotifier")
}

// DefaultConfig returns the embedded default configuration file.
func DefaultConfig() (string, error) {
	data, err := fs.ReadFile(configFiles, "config.yaml")
	if err != nil {
		return "", fmt.Errorf("error reading embedded config: %w", err)
	}
	return string(data), nil
}

// WriteDefaultConfig writes the embedded default configuration to path without
// replacing an existing file.
func WriteDefaultConfig(path string) error {
	data, err := DefaultConfig()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("error creating directories for config file: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("error creating config file: %w", err)
	}
	if _, err := f.WriteString(data); err != nil {
		f.Close()
		return fmt.Errorf("error writing config file: %w", err)
	}
	return f.Close()
}
