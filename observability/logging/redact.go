package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder written in place of credential material.
const RedactedValue = "[REDACTED]"

var sensitiveMarkers = []string{
	"token",
	"secret",
	"passphrase",
	"password",
	"authorization",
}

// IsSensitive reports whether the provided key names credential material that
// must never reach a log line.
func IsSensitive(key string) bool {
	normalized := strings.ToLower(strings.TrimSpace(key))
	for _, marker := range sensitiveMarkers {
		if strings.Contains(normalized, marker) {
			return true
		}
	}
	return false
}

// Redact returns the value unchanged for harmless keys and the redaction
// placeholder for sensitive ones. Empty values pass through so logs can show
// that a credential was left unconfigured.
func Redact(key, value string) string {
	if value == "" {
		return value
	}
	if IsSensitive(key) {
		return RedactedValue
	}
	return value
}

// MaskField returns a slog.Attr whose value has passed through Redact. The
// original key casing is preserved for readability.
func MaskField(key, value string) slog.Attr {
	return slog.String(key, Redact(key, value))
}
