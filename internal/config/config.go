package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/ideafeed/internal/source"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL       string
	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration

	// Source
	SourceKind    source.Kind
	SourceURL     string
	SourceTimeout time.Duration
	SourceMaxSize int64

	// Feed session
	RetryBaseDelay     time.Duration
	RetryMaxAttempts   int
	PageSize           int
	PinDuration        time.Duration
	SessionIdleTimeout time.Duration

	// Channel
	ReconcileTimeout time.Duration
	MaxMessageLength int

	// Rate Limit
	RateLimitGeneral int

	// Server
	ServerPort string

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

	kind, err := source.ParseKind(strings.TrimSpace(os.Getenv("SOURCE_KIND")))
	if err != nil {
		return nil, fmt.Errorf("invalid SOURCE_KIND: %w", err)
	}
	cfg.SourceKind = kind

	// リモートの取得元はURLが必須
	cfg.SourceURL = os.Getenv("SOURCE_URL")
	if cfg.SourceKind != source.KindPostgres && cfg.SourceURL == "" {
		missing = append(missing, "SOURCE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.DBMaxOpenConns = getEnvInt("DB_MAX_OPEN_CONNS", 20)
	cfg.DBMaxIdleConns = getEnvInt("DB_MAX_IDLE_CONNS", 5)
	cfg.DBConnMaxLifetime = getEnvDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute)
	cfg.SourceTimeout = getEnvDuration("SOURCE_TIMEOUT", 10*time.Second)
	cfg.SourceMaxSize = getEnvInt64("SOURCE_MAX_SIZE", 5242880)
	cfg.RetryBaseDelay = getEnvDuration("RETRY_BASE_DELAY", 1200*time.Millisecond)
	cfg.RetryMaxAttempts = getEnvInt("RETRY_MAX_ATTEMPTS", 4)
	cfg.PageSize = getEnvInt("PAGE_SIZE", 15)
	cfg.PinDuration = getEnvDuration("PIN_DURATION", 10*time.Second)
	cfg.SessionIdleTimeout = getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute)
	cfg.ReconcileTimeout = getEnvDuration("RECONCILE_TIMEOUT", 10*time.Second)
	cfg.MaxMessageLength = getEnvInt("MAX_MESSAGE_LENGTH", 2000)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
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

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
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
