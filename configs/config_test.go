package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaultsAndOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/fanflow.db")
	t.Setenv("PLATFORM_MEDIA_MODE", "scrape")
	t.Setenv("CLOUDFLARE_ACCOUNT_HASH", "hash123")
	t.Setenv("R2_BUCKET_NAME", "media")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "scrape", cfg.Platform.MediaMode)
	assert.Equal(t, "default", cfg.Platform.UploadEndpoint)
	assert.Equal(t, 5000, cfg.Platform.MaxRecipients)
	assert.Equal(t, 3, cfg.Platform.SendConcurrency)
	assert.Equal(t, "hash123", cfg.ImageStore.Cloudflare.AccountHash)
	assert.Equal(t, "public", cfg.ImageStore.Cloudflare.Variant)
	assert.Equal(t, "media", cfg.ImageStore.R2.BucketName)
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.RetryCacheTTL)
	assert.Equal(t, ":3000", cfg.App.Address())
	assert.Contains(t, cfg.Database.DSN(), "file:/tmp/fanflow.db?")
}
