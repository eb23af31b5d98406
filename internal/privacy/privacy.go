// Package privacy provides privacy-focused utility functions for handling sensitive data
// such as credential-bearing URLs, API tokens and secret configuration values.
package privacy

import (
	"net/url"
	"regexp"
	"strings"
)

// Redacted replaces every secret value removed from logs, errors and printed settings.
const Redacted = "[REDACTED]"

// Pre-compiled patterns, compiled once at package init
var (
	// URL pattern for finding URLs in text, smtp:// covers shoutrrr service URLs
	urlPattern = regexp.MustCompile(`\b(?:https?|smtps?)://\S+`)

	// key=value and key: value pairs whose key names a secret
	secretPairPattern = regexp.MustCompile(`(?i)\b(x-ebirdapitoken|access_token|refresh_token|client_secret|api[_-]?key|password|token)(["']?\s*[:=]\s*["']?)([^\s"'&,;]+)`)

	// Authorization header values
	bearerPattern = regexp.MustCompile(`(?i)\b(bearer)\s+[A-Za-z0-9._~+/=-]+`)
)

// sensitiveKeys are matched as lowercase substrings of a field or query parameter name
var sensitiveKeys = []string{
	"password",
	"secret",
	"token",
	"apikey",
	"api_key",
	"authorization",
	"credential",
}

// IsSensitiveKey reports whether a field, setting or parameter name refers to a secret.
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// ScrubMessage removes secrets from free text such as error messages.
// URLs keep their scheme, host and path but lose credentials and secret query values.
func ScrubMessage(message string) string {
	message = urlPattern.ReplaceAllStringFunc(message, RedactURL)
	message = bearerPattern.ReplaceAllString(message, "$1 "+Redacted)
	return secretPairPattern.ReplaceAllString(message, "${1}${2}"+Redacted)
}

// RedactURL strips user info and masks secret query parameters of a URL.
// Unparseable input is replaced entirely.
func RedactURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Scheme == "" {
		return Redacted
	}

	if parsed.User != nil {
		parsed.User = url.User(Redacted)
	}

	if parsed.RawQuery != "" {
		query := parsed.Query()
		for key := range query {
			if IsSensitiveKey(key) {
				query.Set(key, Redacted)
			}
		}
		parsed.RawQuery = query.Encode()
	}

	// url.URL escapes the brackets of the placeholder, undo it for readability
	out := parsed.String()
	escaped := url.QueryEscape(Redacted)
	return strings.ReplaceAll(out, escaped, Redacted)
}

// MaskSecret hides all but the last four characters of a secret value.
// Values of eight characters or fewer are hidden completely.
func MaskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 8 {
		return Redacted
	}
	return strings.Repeat("*", 4) + value[len(value)-4:]
}
