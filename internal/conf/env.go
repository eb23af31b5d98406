// env.go - Environment variable configuration and validation for birdnotifier
package conf

import (
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// envBinding holds metadata for environment variable bindings (internal use)
type envBinding struct {
	ConfigKey string             // Viper config key
	EnvVar    string             // Environment variable name
	Validate  func(string) error // Optional validation function
}

// getEnvBindings returns all environment variable bindings with validation
func getEnvBindings() []envBinding {
	return []envBinding{
		{"debug", "BIRDNOTIFIER_DEBUG", validateEnvBool},

		// eBird
		{"ebird.apikey", "BIRDNOTIFIER_EBIRD_APIKEY", nil},
		{"ebird.region", "BIRDNOTIFIER_EBIRD_REGION", validateEnvRegion},
		{"ebird.daysback", "BIRDNOTIFIER_EBIRD_DAYSBACK", validateEnvDaysBack},
		{"ebird.baseurl", "BIRDNOTIFIER_EBIRD_BASEURL", validateEnvURL},
		{"ebird.timeout", "BIRDNOTIFIER_EBIRD_TIMEOUT", validateEnvDuration},

		// Ledger
		{"ledger.path", "BIRDNOTIFIER_LEDGER_PATH", nil},

		// Email
		{"email.sender", "BIRDNOTIFIER_EMAIL_SENDER", nil},
		{"email.recipients", "BIRDNOTIFIER_EMAIL_RECIPIENTS", nil},
		{"email.smtphost", "BIRDNOTIFIER_EMAIL_SMTPHOST", nil},
		{"email.smtpport", "BIRDNOTIFIER_EMAIL_SMTPPORT", validateEnvPort},
		{"email.auth", "BIRDNOTIFIER_EMAIL_AUTH", validateEnvAuth},
		{"email.username", "BIRDNOTIFIER_EMAIL_USERNAME", nil},
		{"email.password", "BIRDNOTIFIER_EMAIL_PASSWORD", nil},
		{"email.oauth2.clientid", "BIRDNOTIFIER_EMAIL_OAUTH2_CLIENTID", nil},
		{"email.oauth2.clientsecret", "BIRDNOTIFIER_EMAIL_OAUTH2_CLIENTSECRET", nil},
		{"email.oauth2.tokenfile", "BIRDNOTIFIER_EMAIL_OAUTH2_TOKENFILE", nil},

		// Logging and metrics
		{"logging.level", "BIRDNOTIFIER_LOGGING_LEVEL", validateEnvLogLevel},
		{"logging.file", "BIRDNOTIFIER_LOGGING_FILE", nil},
		{"metrics.pushgateway", "BIRDNOTIFIER_METRICS_PUSHGATEWAY", validateEnvURL},
		{"metrics.textfile", "BIRDNOTIFIER_METRICS_TEXTFILE", nil},
	}
}

// bindEnvVars sets up environment variable bindings with validation (internal)
func bindEnvVars(v *viper.Viper) error {
	bindings := getEnvBindings()
	var warnings []string

	for _, binding := range bindings {
		// Bind the environment variable to the config key
		if err := v.BindEnv(binding.ConfigKey, binding.EnvVar); err != nil {
			warnings = append(warnings, fmt.Sprintf("Failed to bind %s: %v", binding.EnvVar, err))
			continue
		}

		// Validate the value if it's set and validation function is provided
		if binding.Validate != nil {
			if envValue := os.Getenv(binding.EnvVar); envValue != "" {
				if err := binding.Validate(envValue); err != nil {
					warnings = append(warnings, fmt.Sprintf("Invalid %s value '%s': %v", binding.EnvVar, envValue, err))
				}
			}
		}
	}

	if len(warnings) > 0 {
		return fmt.Errorf("environment variable issues:\n  - %s", strings.Join(warnings, "\n  - "))
	}

	return nil
}

// Environment variable validation functions

// validateEnvBool validates boolean environment variables
func validateEnvBool(value string) error {
	_, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("invalid boolean value '%s': must be true/false, 1/0, t/f, TRUE/FALSE, T/F", value)
	}
	return nil
}

// regionPattern matches country, subnational1 and subnational2 codes such as US, US-NY, US-NY-109
var regionPattern = regexp.MustCompile(`^[A-Z]{2}(-[A-Z0-9]{1,3}(-[A-Z0-9]{1,3})?)?$|^L[0-9]+$`)

func validateEnvRegion(value string) error {
	if !regionPattern.MatchString(value) {
		return fmt.Errorf("region must look like 'US', 'US-NY', 'US-NY-109' or a location id 'L123', got: '%s'", value)
	}
	return nil
}

func validateEnvDaysBack(value string) error {
	days, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid days back: %w", err)
	}
	if days < MinDaysBack || days > MaxDaysBack {
		return fmt.Errorf("days back must be between %d and %d, got %d", MinDaysBack, MaxDaysBack, days)
	}
	return nil
}

func validateEnvPort(value string) error {
	port, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("invalid port: %w", err)
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}

func validateEnvAuth(value string) error {
	if value != AuthOAuth2 && value != AuthPlain {
		return fmt.Errorf("must be one of: %s, %s", AuthOAuth2, AuthPlain)
	}
	return nil
}

func validateEnvLogLevel(value string) error {
	switch strings.ToLower(value) {
	case "trace", "debug", "info", "warn", "warning", "error":
		return nil
	}
	return fmt.Errorf("must be one of: trace, debug, info, warn, error")
}

func validateEnvDuration(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("invalid duration: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("duration must be positive, got %s", d)
	}
	return nil
}

func validateEnvURL(value string) error {
	u, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("URL must use http or https, got: '%s'", value)
	}
	return nil
}

// configureEnvironmentVariables sets up environment variable support for Viper
func configureEnvironmentVariables(v *viper.Viper) error {
	// Set up key replacer for nested config keys
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Bind specific environment variables with validation
	// Return any errors to the caller for centralized handling
	return bindEnvVars(v)
}
