package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue is the placeholder used for sensitive fields in logs.
// Seed material and API keys must never reach log output.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = map[string]struct{}{
	"mnemonic":   {},
	"seed":       {},
	"passphrase": {},
	"api_key":    {},
	"apikey":     {},
	"bolt11":     {},
	"preimage":   {},
}

// IsSensitive reports whether a log key carries secret or payment-proof
// material that must be masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[strings.ToLower(strings.TrimSpace(key))]
	return ok
}

// MaskField returns a slog.Attr with the value replaced by the redaction
// placeholder when the key is sensitive and the value is non-empty.
func MaskField(key, value string) slog.Attr {
	if strings.TrimSpace(value) == "" || !IsSensitive(key) {
		return slog.String(key, value)
	}
	return slog.String(key, RedactedValue)
}
