package service

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	config "github.com/maheshrc27/fanflow/configs"
	"github.com/maheshrc27/fanflow/pkg/apperror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cloudflareSettings(baseURL string) config.ImageStoreConfig {
	return config.ImageStoreConfig{
		Provider: ProviderCloudflare,
		Cloudflare: config.CloudflareConfig{
			BaseURL:     baseURL,
			AccountID:   "acc-1",
			APIToken:    "cf-token-secret",
			AccountHash: "hash",
			Variant:     "public",
		},
	}
}

func TestBuildDeliveryURL(t *testing.T) {
	assert.Equal(t, "https://imagedelivery.net/hash/img-1/public", BuildDeliveryURL("hash", "public", "img-1"))
	assert.Equal(t, BuildDeliveryURL("h", "", "i"), BuildDeliveryURL("h", "public", "i"))
}

func TestCloudflareGetConfigListsEveryMissingSetting(t *testing.T) {
	store := NewCloudflareImageStore(config.ImageStoreConfig{Provider: ProviderCloudflare}, nil)
	_, err := store.GetConfig()
	require.Error(t, err)

	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.KindConfig, appErr.Kind)
	assert.Equal(t, []string{"CLOUDFLARE_ACCOUNT_ID", "CLOUDFLARE_API_TOKEN", "CLOUDFLARE_ACCOUNT_HASH"}, appErr.Missing)
}

func TestR2GetConfigListsEveryMissingSetting(t *testing.T) {
	store := NewImageStore(config.ImageStoreConfig{Provider: ProviderR2, R2: config.R2Config{BucketName: "b"}}, nil)
	_, err := store.GetConfig()
	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, []string{"R2_ACCOUNT_ID", "R2_ACCESS_KEY", "R2_SECRET_KEY", "R2_PUBLIC_URL"}, appErr.Missing)
}

func TestCloudflareVerifyToken(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		kind   apperror.Kind
	}{
		{name: "active", status: http.StatusOK, body: `{"success":true,"result":{"status":"active"}}`},
		{name: "inactive", status: http.StatusOK, body: `{"success":true,"result":{"status":"disabled"}}`, kind: apperror.KindAuth},
		{name: "unauthorized", status: http.StatusUnauthorized, body: `{"success":false}`, kind: apperror.KindAuth},
		{name: "upstream down", status: http.StatusServiceUnavailable, body: ``, kind: apperror.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/client/v4/user/tokens/verify", r.URL.Path)
				assert.Equal(t, "Bearer cf-token-secret", r.Header.Get("Authorization"))
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			store := NewCloudflareImageStore(cloudflareSettings(srv.URL), srv.Client())
			cfg, err := store.GetConfig()
			require.NoError(t, err)

			err = store.VerifyToken(context.Background(), cfg)
			if tt.kind == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.kind, apperror.KindOf(err))
			assert.Equal(t, tt.kind == apperror.KindUpstream, apperror.IsRetryable(err))
		})
	}
}

func TestCloudflareUploadSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/client/v4/accounts/acc-1/images/v1", r.URL.Path)
		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "a.jpg", header.Filename)
		assert.Equal(t, []byte("jpeg-bytes"), data)

		_, _ = io.WriteString(w, `{"success":true,"result":{"id":"img-42"}}`)
	}))
	defer srv.Close()

	store := NewCloudflareImageStore(cloudflareSettings(srv.URL), srv.Client())
	cfg, err := store.GetConfig()
	require.NoError(t, err)

	img, err := store.Upload(context.Background(), []byte("jpeg-bytes"), "a.jpg", "image/jpeg", cfg)
	require.NoError(t, err)
	assert.Equal(t, "img-42", img.ImageID)
	assert.Equal(t, "https://imagedelivery.net/hash/img-42/public", img.URL)
}

func TestCloudflareUploadFailureIsClassifiedAndRedacted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("cf-ray", "8a1b2c3d4e5f6789-IAD")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `{"success":false,"errors":[{"code":10000,"message":"Authentication error token=cf-token-secret"}]}`)
	}))
	defer srv.Close()

	store := NewCloudflareImageStore(cloudflareSettings(srv.URL), srv.Client())
	cfg, err := store.GetConfig()
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), []byte("x"), "a.png", "image/png", cfg)
	require.Error(t, err)

	appErr := apperror.As(err)
	require.NotNil(t, appErr)
	assert.Equal(t, apperror.KindAuth, appErr.Kind)
	assert.Equal(t, http.StatusForbidden, appErr.UpstreamStatus)
	assert.Equal(t, "8a1b************-IAD", appErr.RequestID)
	assert.NotContains(t, err.Error(), "cf-token-secret")
	assert.NotContains(t, err.Error(), "Authentication error")
}

func TestCloudflareUploadRejectsEmptyPayload(t *testing.T) {
	store := NewCloudflareImageStore(cloudflareSettings("http://127.0.0.1:0"), nil)
	cfg, err := store.GetConfig()
	require.NoError(t, err)

	_, err = store.Upload(context.Background(), nil, "a.png", "image/png", cfg)
	assert.True(t, apperror.IsKind(err, apperror.KindValidation))
}
