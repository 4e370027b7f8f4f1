package utils

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeRemovesCredentialsRecursively(t *testing.T) {
	payload := map[string]any{
		"Authorization": "Bearer abc.def.ghi",
		"headers": map[string]any{
			"Cookie":    "sess=123",
			"x-api-key": "k-999",
			"accept":    "application/json",
		},
		"attempts": []any{
			map[string]any{"apiKey": "another"},
			"called with Bearer zzz-token-123",
		},
		"note": "openai said sk-abcdefghijklmnop is invalid",
	}

	out := Sanitize(payload)
	raw, err := json.Marshal(out)
	require.NoError(t, err)
	serialized := string(raw)

	for _, secret := range []string{"abc.def.ghi", "sess=123", "k-999", "another", "zzz-token-123", "sk-abcdefghijklmnop"} {
		assert.NotContains(t, serialized, secret)
	}
	assert.Contains(t, serialized, "application/json")
	assert.Contains(t, serialized, Redacted)
}

func TestSanitizeStructsThroughJSON(t *testing.T) {
	type request struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers"`
	}
	out := Sanitize(request{
		URL:     "https://api.example.com/v1",
		Headers: map[string]string{"authorization": "Bearer secret-value"},
	})

	raw, err := json.Marshal(out)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-value")
	assert.Contains(t, string(raw), "https://api.example.com/v1")
}

func TestSanitizeErrors(t *testing.T) {
	out := Sanitize(errors.New("401 for Bearer leaked-token"))
	assert.Equal(t, "401 for Bearer [REDACTED]", out)
}

func TestMaskID(t *testing.T) {
	assert.Equal(t, "", MaskID(""))
	assert.Equal(t, "****", MaskID("abcd"))
	assert.Equal(t, "7f3a********9b2c", MaskID("7f3a12345678"+"9b2c"))
}
