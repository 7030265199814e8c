package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
)

// Module provides the application configuration.
var Module = fx.Provide(Load)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	DBType            string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int

	RedisAddr     string
	RedisPassword string

	Storage  StorageConfig
	Compute  ComputeConfig
	Identity IdentityConfig
	Stripe   StripeConfig
	WeChat   WeChatConfig

	InitialCredits float64
}

type StorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	UseSSL    bool
	PublicURL string
}

type ComputeConfig struct {
	BaseURL      string
	APIKey       string
	PollInterval time.Duration
	MaxWait      time.Duration
}

type IdentityConfig struct {
	BaseURL    string
	ServiceKey string
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
}

type WeChatConfig struct {
	AppID     string
	MchID     string
	APIKey    string
	NotifyURL string
	BaseURL   string
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		AppName:     getenv("APP_SERVICE", "stemforge"),
		AppVersion:  getenv("APP_VERSION", "0.1.0"),
		Environment: getenv("ENVIRONMENT", "development"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),

		DBType:            getenv("DATABASE_TYPE", "postgres"),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "stemforge"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", "postgres"),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     int(getenvInt64("DATABASE_MAX_IDLE_CONN", 5)),
		DBMaxOpenConn:     int(getenvInt64("DATABASE_MAX_OPEN_CONN", 25)),
		DBConnMaxLifetime: int(getenvInt64("DATABASE_CONN_MAX_LIFETIME", 3600)),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		Storage: StorageConfig{
			Endpoint:  getenv("STORAGE_ENDPOINT", "s3.amazonaws.com"),
			AccessKey: strings.TrimSpace(getenv("STORAGE_ACCESS_KEY", "")),
			SecretKey: strings.TrimSpace(getenv("STORAGE_SECRET_KEY", "")),
			Bucket:    getenv("STORAGE_BUCKET", "stemforge-audio"),
			Region:    getenv("STORAGE_REGION", "us-east-1"),
			UseSSL:    getenvBool("STORAGE_USE_SSL", true),
			PublicURL: strings.TrimRight(getenv("STORAGE_PUBLIC_URL", ""), "/"),
		},
		Compute: ComputeConfig{
			BaseURL:      strings.TrimRight(getenv("COMPUTE_BASE_URL", ""), "/"),
			APIKey:       strings.TrimSpace(getenv("COMPUTE_API_KEY", "")),
			PollInterval: getenvDuration("COMPUTE_POLL_INTERVAL", 10*time.Second),
			MaxWait:      getenvDuration("COMPUTE_MAX_WAIT", 300*time.Second),
		},
		Identity: IdentityConfig{
			BaseURL:    strings.TrimRight(getenv("IDENTITY_BASE_URL", ""), "/"),
			ServiceKey: strings.TrimSpace(getenv("IDENTITY_SERVICE_KEY", "")),
		},
		Stripe: StripeConfig{
			SecretKey:     strings.TrimSpace(getenv("STRIPE_SECRET_KEY", "")),
			WebhookSecret: strings.TrimSpace(getenv("STRIPE_WEBHOOK_SECRET", "")),
			SuccessURL:    getenv("STRIPE_SUCCESS_URL", "https://app.stemforge.io/recharge/success"),
			CancelURL:     getenv("STRIPE_CANCEL_URL", "https://app.stemforge.io/recharge/cancel"),
		},
		WeChat: WeChatConfig{
			AppID:     strings.TrimSpace(getenv("WECHAT_APP_ID", "")),
			MchID:     strings.TrimSpace(getenv("WECHAT_MCH_ID", "")),
			APIKey:    strings.TrimSpace(getenv("WECHAT_API_KEY", "")),
			NotifyURL: getenv("WECHAT_NOTIFY_URL", ""),
			BaseURL:   strings.TrimRight(getenv("WECHAT_BASE_URL", "https://api.mch.weixin.qq.com"), "/"),
		},

		InitialCredits: getenvFloat("INITIAL_CREDITS", 10.0),
	}
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt64(key string, def int64) int64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return def
	}
	return parsed
}
