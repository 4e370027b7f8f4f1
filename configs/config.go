package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

func init() {
	// .env is optional
	_ = godotenv.Load()
}

type Config struct {
	App        AppConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Platform   PlatformConfig
	ImageStore ImageStoreConfig
	OpenAI     OpenAIConfig
	Scheduler  SchedulerConfig
	Auth       AuthConfig
}

type AppConfig struct {
	Name        string `envconfig:"APP_NAME" default:"fanflow"`
	Port        int    `envconfig:"APP_PORT" default:"3000"`
	Environment string `envconfig:"APP_ENV" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"json"`
	FrontendURL string `envconfig:"FRONTEND_URL" default:"http://localhost:5173"`
}

type DatabaseConfig struct {
	Driver      string `envconfig:"DB_DRIVER" default:"postgres"` // postgres or sqlite
	PostgresURI string `envconfig:"POSTGRES_URI" default:""`
	SQLitePath  string `envconfig:"SQLITE_PATH" default:"./data/fanflow.db"`
}

type RedisConfig struct {
	URI      string `envconfig:"REDIS_URI" default:"localhost:6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

type PlatformConfig struct {
	BaseURL         string        `envconfig:"PLATFORM_API_BASE_URL" default:"https://app.onlyfansapi.com/api"`
	APIKey          string        `envconfig:"PLATFORM_API_KEY" default:""`
	AccountID       string        `envconfig:"PLATFORM_ACCOUNT_ID" default:""`
	UploadEndpoint  string        `envconfig:"PLATFORM_UPLOAD_ENDPOINT" default:"default"` // default or v1
	MediaMode       string        `envconfig:"PLATFORM_MEDIA_MODE" default:"upload"`       // upload or scrape
	MaxRecipients   int           `envconfig:"PLATFORM_MAX_RECIPIENTS" default:"5000"`
	MaxQueueEntries int           `envconfig:"PLATFORM_MAX_QUEUE_ENTRIES" default:"2000"`
	Timeout         time.Duration `envconfig:"PLATFORM_TIMEOUT" default:"60s"`
	SendConcurrency int           `envconfig:"PLATFORM_SEND_CONCURRENCY" default:"3"`
}

type ImageStoreConfig struct {
	Provider   string `envconfig:"IMAGE_STORE_PROVIDER" default:"cloudflare"` // cloudflare or r2
	Cloudflare CloudflareConfig
	R2         R2Config
}

type CloudflareConfig struct {
	BaseURL     string `envconfig:"CLOUDFLARE_API_BASE_URL" default:"https://api.cloudflare.com"`
	AccountID   string `envconfig:"CLOUDFLARE_ACCOUNT_ID" default:""`
	APIToken    string `envconfig:"CLOUDFLARE_API_TOKEN" default:""`
	AccountHash string `envconfig:"CLOUDFLARE_ACCOUNT_HASH" default:""`
	Variant     string `envconfig:"CLOUDFLARE_IMAGE_VARIANT" default:"public"`
}

type R2Config struct {
	AccountID  string `envconfig:"R2_ACCOUNT_ID" default:""`
	AccessKey  string `envconfig:"R2_ACCESS_KEY" default:""`
	SecretKey  string `envconfig:"R2_SECRET_KEY" default:""`
	BucketName string `envconfig:"R2_BUCKET_NAME" default:""`
	PublicURL  string `envconfig:"R2_PUBLIC_URL" default:""`
	Endpoint   string `envconfig:"R2_ENDPOINT" default:""` // overrides https://<account>.r2.cloudflarestorage.com
}

type OpenAIConfig struct {
	APIKey  string `envconfig:"OPENAI_API_KEY" default:""`
	BaseURL string `envconfig:"OPENAI_BASE_URL" default:""`
	Model   string `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
}

type SchedulerConfig struct {
	DispatchLead         time.Duration `envconfig:"SCHEDULER_DISPATCH_LEAD" default:"1m"`
	ClaimStaleAfter      time.Duration `envconfig:"SCHEDULER_CLAIM_STALE_AFTER" default:"15m"`
	LockTTL              time.Duration `envconfig:"SCHEDULER_LOCK_TTL" default:"55s"`
	RosterRefresh        string        `envconfig:"SCHEDULER_ROSTER_REFRESH" default:"@every 00h30m00s"`
	RetryCacheTTL        time.Duration `envconfig:"RETRY_CACHE_TTL" default:"30m"`
	RetryCacheMaxBatches int           `envconfig:"RETRY_CACHE_MAX_BATCHES" default:"50"`
}

type AuthConfig struct {
	SecretKey string `envconfig:"SECRET_KEY" default:""`
	APIKey    string `envconfig:"API_KEY" default:""`
}

func (a AppConfig) Address() string {
	return fmt.Sprintf(":%d", a.Port)
}

func (d DatabaseConfig) DSN() string {
	if d.Driver == "sqlite" {
		return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", d.SQLitePath)
	}
	return d.PostgresURI
}

func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
