package logger

import "strings"

// sensitiveKeys are substrings of field names whose values must never be
// logged. Superset of the normalizer's form-field heuristic: credentials
// used by the pipeline itself (API keys, vendor tokens) are covered too.
var sensitiveKeys = []string{"password", "credit", "card", "cvv", "ssn", "api_key", "apikey", "token", "secret"}

// IsSensitiveKey reports whether a key name matches the sensitive-field
// heuristic (case-insensitive substring match).
func IsSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// redactValue masks the value of any sensitive key. Non-sensitive values
// pass through unchanged.
func redactValue(key, val string) string {
	if IsSensitiveKey(key) {
		return "***"
	}
	return val
}
