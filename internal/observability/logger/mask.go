package logger

import (
	"net/http"
	"strings"
)

const redacted = "****"

// Substrings that mark a JSON field as a credential.
var sensitiveFields = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"service_role",
	"master_key",
}

// Request headers that carry credentials, keyed by lowercase name.
var headerMaskers = map[string]func(string) string{
	"authorization":    MaskAuthorization,
	"x-nati-api-key":   MaskAPIKey,
	"apikey":           MaskAPIKey,
	"stripe-signature": MaskAPIKey,
	"cookie":           func(string) string { return redacted },
}

// MaskAuthorization keeps the Bearer scheme and the token's last 4 characters.
func MaskAuthorization(value string) string {
	value = strings.TrimSpace(value)
	scheme, token, ok := strings.Cut(value, " ")
	if ok && strings.EqualFold(scheme, "Bearer") {
		return "Bearer " + maskLast4(token)
	}
	return maskLast4(value)
}

// MaskAPIKey keeps the key's last 4 characters.
func MaskAPIKey(value string) string {
	return maskLast4(value)
}

// MaskHeaders flattens headers into a loggable map with credentials masked.
func MaskHeaders(headers http.Header) map[string]string {
	masked := make(map[string]string, len(headers))
	for key, values := range headers {
		joined := strings.Join(values, ",")
		if mask, ok := headerMaskers[strings.ToLower(key)]; ok {
			joined = mask(joined)
		}
		masked[key] = joined
	}
	return masked
}

// MaskJSON deep-copies input, masking values under credential-like keys.
func MaskJSON(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	out := make(map[string]any, len(input))
	for key, value := range input {
		if sensitiveField(key) {
			out[key] = maskScalar(value)
			continue
		}
		out[key] = maskNested(value)
	}
	return out
}

func maskNested(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		return MaskJSON(typed)
	case []any:
		items := make([]any, len(typed))
		for i, entry := range typed {
			items[i] = maskNested(entry)
		}
		return items
	default:
		return value
	}
}

func maskScalar(value any) any {
	if s, ok := value.(string); ok {
		return maskLast4(s)
	}
	return redacted
}

func sensitiveField(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveFields {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}

func maskLast4(value string) string {
	value = strings.TrimSpace(value)
	switch {
	case value == "":
		return ""
	case len(value) <= 4:
		return redacted
	default:
		return redacted + value[len(value)-4:]
	}
}
