package utils

import (
	"encoding/json"
	"regexp"
	"strings"
)

const Redacted = "[REDACTED]"

var (
	sensitiveKeyPattern = regexp.MustCompile(`(?i)(authorization|cookie|api[-_]?key|apikey|x-bc|access[-_]?token|refresh[-_]?token|^token$|secret|password)`)
	bearerPattern       = regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9\-._~+/]+=*`)
	secretKeyPattern    = regexp.MustCompile(`\bsk-[A-Za-z0-9\-_]{8,}`)
)

// Sanitize returns a copy of value with credential-like fields and token-shaped
// strings replaced. Maps and slices are walked recursively; structs are walked
// through their JSON form.
func Sanitize(value any) any {
	switch v := value.(type) {
	case nil:
		return nil
	case string:
		return SanitizeString(v)
	case []byte:
		return SanitizeString(string(v))
	case error:
		return SanitizeString(v.Error())
	case map[string]any:
		out := make(map[string]any, len(v))
		for key, item := range v {
			if IsSensitiveKey(key) {
				out[key] = Redacted
				continue
			}
			out[key] = Sanitize(item)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(v))
		for key, item := range v {
			if IsSensitiveKey(key) {
				out[key] = Redacted
				continue
			}
			out[key] = SanitizeString(item)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Sanitize(item)
		}
		return out
	case []string:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = SanitizeString(item)
		}
		return out
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return v
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return Redacted
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Redacted
	}
	return Sanitize(generic)
}

// SanitizeMeta is Sanitize narrowed to log metadata maps.
func SanitizeMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	return Sanitize(meta).(map[string]any)
}

func SanitizeString(s string) string {
	s = bearerPattern.ReplaceAllString(s, "Bearer "+Redacted)
	return secretKeyPattern.ReplaceAllString(s, Redacted)
}

func IsSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(strings.TrimSpace(key))
}

// MaskID keeps the first and last four characters of a correlation id.
func MaskID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return ""
	}
	if len(id) <= 8 {
		return strings.Repeat("*", len(id))
	}
	return id[:4] + strings.Repeat("*", len(id)-8) + id[len(id)-4:]
}
