package logging

import (
	"log/slog"
	"strings"
)

// RedactedValue replaces secrets in log output.
const RedactedValue = "[REDACTED]"

// sensitiveKeys are masked by every logger built by Setup regardless of the
// call site.
var sensitiveKeys = map[string]struct{}{
	"token":         {},
	"authorization": {},
	"hmac_secret":   {},
	"secret":        {},
	"passphrase":    {},
	"dsn":           {},
	"private_key":   {},
}

// safeKeys are never masked by MaskField.
var safeKeys = map[string]struct{}{
	"operation": {},
	"asset":     {},
	"account":   {},
	"feed":      {},
	"route":     {},
	"method":    {},
	"status":    {},
	"error":     {},
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// IsSensitive reports whether values logged under key are always masked.
func IsSensitive(key string) bool {
	_, ok := sensitiveKeys[normalizeKey(key)]
	return ok
}

// MaskValue returns RedactedValue for non-blank input.
func MaskValue(value string) string {
	if strings.TrimSpace(value) == "" {
		return value
	}
	return RedactedValue
}

// MaskField masks value unless key is one of the position or request
// attributes that are safe to log.
func MaskField(key, value string) slog.Attr {
	if _, ok := safeKeys[normalizeKey(key)]; ok {
		return slog.String(key, value)
	}
	return slog.String(key, MaskValue(value))
}

func redactAttr(attr slog.Attr) slog.Attr {
	if !IsSensitive(attr.Key) {
		return attr
	}
	if attr.Value.Kind() == slog.KindString {
		return slog.String(attr.Key, MaskValue(attr.Value.String()))
	}
	return slog.String(attr.Key, RedactedValue)
}
