package diagnostics

import (
	"fmt"
	"sort"
	"strings"
)

// RedactedValue replaces every secret-bearing value.
const RedactedValue = "[REDACTED]"

var sensitiveKeys = []string{
	"password",
	"passwd",
	"tokensecret",
	"token",
	"secret",
	"apikey",
	"api_key",
	"authorization",
	"cookie",
	"privatekey",
	"private_key",
}

// ContainsSensitiveKey reports whether the key should be redacted.
func ContainsSensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, needle := range sensitiveKeys {
		if strings.Contains(lower, needle) {
			return true
		}
	}
	return false
}

// RedactValue masks the value if the key is sensitive.
func RedactValue(key, value string) string {
	if ContainsSensitiveKey(key) {
		return RedactedValue
	}
	return value
}

// RedactMap redacts values for sensitive keys.
func RedactMap(input map[string]string) map[string]string {
	if len(input) == 0 {
		return nil
	}
	out := make(map[string]string, len(input))
	for key, value := range input {
		out[key] = RedactValue(key, value)
	}
	return out
}

// RedactConfig returns a deep copy of a decoded configuration document with
// every sensitive key masked, at any nesting depth.
func RedactConfig(input map[string]any) map[string]any {
	if input == nil {
		return nil
	}
	redacted, _ := redactAny(input).(map[string]any)
	return redacted
}

func redactAny(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			if ContainsSensitiveKey(key) {
				out[key] = RedactedValue
				continue
			}
			out[key] = redactAny(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(typed))
		for key, item := range typed {
			out[key] = RedactValue(key, item)
		}
		return out
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			out[i] = redactAny(item)
		}
		return out
	default:
		return value
	}
}

// SecretValues collects the literal values stored under sensitive keys so
// they can be scrubbed from free text.
func SecretValues(input map[string]any) []string {
	seen := make(map[string]struct{})
	collectSecrets(input, false, seen)
	out := make([]string, 0, len(seen))
	for value := range seen {
		out = append(out, value)
	}
	// Longest first so a secret that contains another is replaced whole.
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) == len(out[j]) {
			return out[i] < out[j]
		}
		return len(out[i]) > len(out[j])
	})
	return out
}

func collectSecrets(value any, sensitive bool, seen map[string]struct{}) {
	switch typed := value.(type) {
	case map[string]any:
		for key, item := range typed {
			collectSecrets(item, sensitive || ContainsSensitiveKey(key), seen)
		}
	case map[string]string:
		for key, item := range typed {
			collectSecrets(item, sensitive || ContainsSensitiveKey(key), seen)
		}
	case []any:
		for _, item := range typed {
			collectSecrets(item, sensitive, seen)
		}
	case []string:
		for _, item := range typed {
			collectSecrets(item, sensitive, seen)
		}
	case nil:
	default:
		if !sensitive {
			return
		}
		text := fmt.Sprint(typed)
		if strings.TrimSpace(text) != "" {
			seen[text] = struct{}{}
		}
	}
}

// ScrubText replaces every occurrence of the given secrets in text.
func ScrubText(text string, secrets []string) string {
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		text = strings.ReplaceAll(text, secret, RedactedValue)
	}
	return text
}

// TruncateString truncates the value to limit bytes and appends a suffix when needed.
func TruncateString(value string, limit int) string {
	if limit <= 0 || len(value) <= limit {
		return value
	}
	if limit <= 3 {
		return value[:limit]
	}
	return value[:limit-3] + "..."
}
