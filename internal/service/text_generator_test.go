package service

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/internal/transfer"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const completionBody = `{"id":"chatcmpl-1","object":"chat.completion","created":1700000000,"model":"gpt-4o-mini",
"choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"1. Sunset glow\n2. \"Golden hour\"\n\n- Late night vibes\n4. Extra"}}]}`

func TestTextGeneratorComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test-key-000000", r.Header.Get("Authorization"))

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "gpt-4o-mini", body["model"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, completionBody)
	}))
	defer srv.Close()

	gen := NewTextGenerator(config.OpenAIConfig{APIKey: "sk-test-key-000000", BaseURL: srv.URL + "/", Model: "gpt-4o-mini"},
		option.WithHTTPClient(srv.Client()))
	out, err := gen.Complete(context.Background(), "captions please")
	require.NoError(t, err)
	assert.Contains(t, out, "Sunset glow")

	captions, err := NewCaptionService(gen).Generate(context.Background(), transfer.CaptionRequest{Topic: "beach", Count: 3})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sunset glow", "Golden hour", "Late night vibes"}, captions)
}

func TestTextGeneratorClassifiesErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit"}}`)
	}))
	defer srv.Close()

	gen := NewTextGenerator(config.OpenAIConfig{APIKey: "sk-test-key-000000", BaseURL: srv.URL + "/"}, option.WithHTTPClient(srv.Client()))
	_, err := gen.Complete(context.Background(), "hi")
	assert.True(t, apperror.IsKind(err, apperror.KindRateLimited))
}

func TestTextGeneratorRequiresKey(t *testing.T) {
	gen := NewTextGenerator(config.OpenAIConfig{})
	_, err := gen.Complete(context.Background(), "hi")
	assert.True(t, apperror.IsKind(err, apperror.KindConfig))
}

func TestCaptionServiceRejectsEmptyTopic(t *testing.T) {
	_, err := NewCaptionService(NewTextGenerator(config.OpenAIConfig{})).Generate(context.Background(), transfer.CaptionRequest{})
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}
