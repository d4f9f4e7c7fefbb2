package tracing

import (
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"
)

// Substrings that mark an attribute key as carrying a credential.
var sensitiveKeyParts = []string{
	"password",
	"secret",
	"token",
	"api_key",
	"authorization",
	"nati-api-key",
	"master_key",
}

// SafeAttributes drops attributes whose key names a credential.
func SafeAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	kept := attrs[:0:0]
	for _, attr := range attrs {
		if sensitiveKey(string(attr.Key)) {
			continue
		}
		kept = append(kept, attr)
	}
	return kept
}

// SafeError keeps only the error's type.
func SafeError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%T", err)
}

// SafeURL renders scheme, host and path. The query is dropped.
func SafeURL(u *url.URL) string {
	if u == nil {
		return ""
	}
	return (&url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}).String()
}

func sensitiveKey(key string) bool {
	key = strings.ToLower(strings.TrimSpace(key))
	for _, part := range sensitiveKeyParts {
		if strings.Contains(key, part) {
			return true
		}
	}
	return false
}
