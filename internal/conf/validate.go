// conf/validate.go

package conf

import (
	"fmt"
	"net/mail"
	"strings"
)

// eBird accepts a lookback window of 1 to 30 days
const (
	MinDaysBack = 1
	MaxDaysBack = 30
)

// ValidationError represents a collection of validation errors
type ValidationError struct {
	Errors []string
}

// Error returns a string representation of the validation errors
func (ve ValidationError) Error() string {
	return fmt.Sprintf("Validation errors: %v", ve.Errors)
}

// ValidateSettings validates the entire Settings struct
func ValidateSettings(settings *Settings) error {
	ve := ValidationError{}

	// Validate eBird settings
	if err := validateEBirdSettings(&settings.EBird); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate exclusion list
	if err := validateExclude(settings.Exclude); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate Email settings
	if err := validateEmailSettings(&settings.Email); err != nil {
		ve.Errors = append(ve.Errors, err.Error())
	}

	// Validate Logging settings
	if err := validateEnvLogLevel(settings.Logging.Level); err != nil {
		ve.Errors = append(ve.Errors, fmt.Sprintf("logging: level %q: %v", settings.Logging.Level, err))
	}

	// Validate Metrics settings
	if settings.Metrics.Pushgateway != "" {
		if err := validateEnvURL(settings.Metrics.Pushgateway); err != nil {
			ve.Errors = append(ve.Errors, fmt.Sprintf("metrics: pushgateway: %v", err))
		}
		if settings.Metrics.Job == "" {
			ve.Errors = append(ve.Errors, "metrics: job name is required when pushgateway is set")
		}
	}

	// If there are any errors, return the ValidationError
	if len(ve.Errors) > 0 {
		return ve
	}
	return nil
}

// validateEBirdSettings validates the eBird API settings
func validateEBirdSettings(settings *EBirdSettings) error {
	var errs []string

	if settings.APIKey == "" {
		errs = append(errs, "apikey is required")
	}

	if settings.Region == "" {
		errs = append(errs, "region is required")
	} else if err := validateEnvRegion(settings.Region); err != nil {
		errs = append(errs, err.Error())
	}

	if settings.DaysBack < MinDaysBack || settings.DaysBack > MaxDaysBack {
		errs = append(errs, fmt.Sprintf("daysback must be between %d and %d, got %d", MinDaysBack, MaxDaysBack, settings.DaysBack))
	}

	if err := validateEnvURL(settings.BaseURL); err != nil {
		errs = append(errs, fmt.Sprintf("baseurl: %v", err))
	}

	if settings.Timeout <= 0 {
		errs = append(errs, "timeout must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("ebird settings errors: %v", errs)
	}
	return nil
}

// validateExclude rejects blank entries, matching is exact so they could never match
func validateExclude(exclude []string) error {
	for i, name := range exclude {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("exclude: entry %d is empty", i)
		}
	}
	return nil
}

// validateEmailSettings validates sender, recipients and SMTP authentication
func validateEmailSettings(settings *EmailSettings) error {
	var errs []string

	if settings.Sender == "" {
		errs = append(errs, "sender is required")
	} else if _, err := mail.ParseAddress(settings.Sender); err != nil {
		errs = append(errs, fmt.Sprintf("invalid sender address %q", settings.Sender))
	}

	if len(settings.Recipients) == 0 {
		errs = append(errs, "at least one recipient is required")
	}
	for _, r := range settings.Recipients {
		if _, err := mail.ParseAddress(r); err != nil {
			errs = append(errs, fmt.Sprintf("invalid recipient address %q", r))
		}
	}

	if settings.SMTPHost == "" {
		errs = append(errs, "smtphost is required")
	}
	if settings.SMTPPort < 1 || settings.SMTPPort > 65535 {
		errs = append(errs, fmt.Sprintf("smtpport must be between 1 and 65535, got %d", settings.SMTPPort))
	}

	switch settings.Auth {
	case AuthOAuth2:
		if settings.OAuth2.ClientID == "" || settings.OAuth2.ClientSecret == "" {
			errs = append(errs, "oauth2 auth requires clientid and clientsecret")
		}
		if settings.OAuth2.TokenFile == "" {
			errs = append(errs, "oauth2 auth requires a tokenfile")
		}
		if settings.OAuth2.TokenURL == "" || settings.OAuth2.AuthURL == "" {
			errs = append(errs, "oauth2 auth requires authurl and tokenurl")
		}
		if len(settings.OAuth2.Scopes) == 0 {
			errs = append(errs, "oauth2 auth requires at least one scope")
		}
	case AuthPlain:
		if settings.Password == "" {
			errs = append(errs, "plain auth requires a password")
		}
	default:
		errs = append(errs, fmt.Sprintf("auth must be %q or %q, got %q", AuthOAuth2, AuthPlain, settings.Auth))
	}

	if len(errs) > 0 {
		return fmt.Errorf("email settings errors: %v", errs)
	}
	return nil
}
