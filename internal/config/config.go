// Package config は環境変数ベースのアプリケーション設定を提供する。
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Composer（外部のメール生成API）
	ComposerEndpoint string
	ComposerAPIKey   string
	ComposerTimeout  time.Duration

	// Outreach
	DefaultBatchSize int           // min_contacts_required未設定ユーザーのバッチサイズ
	BatchTTL         time.Duration // batch_dateからの失効までの期間
	LookbackDays     int           // 再コンタクト除外のルックバック日数

	// Worker
	GenerateInterval      time.Duration
	GenerateMaxConcurrent int
	ExpireInterval        time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitTrigger int

	// Server
	ServerPort  string
	MetricsPort string
	BaseURL     string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.ComposerEndpoint = os.Getenv("COMPOSER_ENDPOINT")
	if cfg.ComposerEndpoint == "" {
		missing = append(missing, "COMPOSER_ENDPOINT")
	}

	cfg.ComposerAPIKey = os.Getenv("COMPOSER_API_KEY")
	if cfg.ComposerAPIKey == "" {
		missing = append(missing, "COMPOSER_API_KEY")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.ComposerTimeout = getEnvDuration("COMPOSER_TIMEOUT", 30*time.Second)
	cfg.DefaultBatchSize = getEnvInt("OUTREACH_BATCH_SIZE", 5)
	cfg.BatchTTL = getEnvDuration("OUTREACH_BATCH_TTL", 48*time.Hour)
	cfg.LookbackDays = getEnvInt("OUTREACH_LOOKBACK_DAYS", 30)
	cfg.GenerateInterval = getEnvDuration("GENERATE_INTERVAL", time.Minute)
	cfg.GenerateMaxConcurrent = getEnvInt("GENERATE_MAX_CONCURRENT", 10)
	cfg.ExpireInterval = getEnvDuration("EXPIRE_INTERVAL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitTrigger = getEnvInt("RATE_LIMIT_TRIGGER", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.MetricsPort = getEnvString("METRICS_PORT", "9090")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
