// Package config はアプリケーション設定の読み込みを提供する。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DataBackend はレコード操作の接続先を表す。
type DataBackend string

const (
	// DataBackendREST はホスト型サービスのREST API経由でレコードを操作する。
	DataBackendREST DataBackend = "rest"
	// DataBackendPostgres は同じデータベースへ直接接続してレコードを操作する。
	DataBackendPostgres DataBackend = "postgres"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Remote service
	SupabaseURL       string
	SupabaseAnonKey   string
	SupabaseJWTSecret string
	RemoteTimeout     time.Duration

	// Session
	SessionFile          string
	TokenRefreshInterval time.Duration
	TokenRefreshMargin   time.Duration

	// Records
	DataBackend DataBackend
	DatabaseURL string

	// Server
	ServerPort        string
	CORSAllowedOrigin string

	// Logging
	LogLevel string
}

// LoadDotEnv はpathの.envファイルを環境変数に読み込む。
// ファイルが存在しない場合は何もしない。既に設定済みの環境変数は上書きしない。
func LoadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.SupabaseURL = strings.TrimRight(os.Getenv("SUPABASE_URL"), "/")
	if cfg.SupabaseURL == "" {
		missing = append(missing, "SUPABASE_URL")
	}

	cfg.SupabaseAnonKey = os.Getenv("SUPABASE_ANON_KEY")
	if cfg.SupabaseAnonKey == "" {
		missing = append(missing, "SUPABASE_ANON_KEY")
	}

	cfg.DataBackend = DataBackend(strings.ToLower(getEnvString("DATA_BACKEND", string(DataBackendREST))))
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DataBackend == DataBackendPostgres && cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	if cfg.DataBackend != DataBackendREST && cfg.DataBackend != DataBackendPostgres {
		return nil, fmt.Errorf("unsupported DATA_BACKEND: %q", cfg.DataBackend)
	}

	// Optional fields with defaults
	cfg.SupabaseJWTSecret = os.Getenv("SUPABASE_JWT_SECRET")
	cfg.RemoteTimeout = getEnvDuration("REMOTE_TIMEOUT", 10*time.Second)
	cfg.SessionFile = getEnvString("SESSION_FILE", "")
	cfg.TokenRefreshInterval = getEnvDuration("TOKEN_REFRESH_INTERVAL", 30*time.Second)
	cfg.TokenRefreshMargin = getEnvDuration("TOKEN_REFRESH_MARGIN", 60*time.Second)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:5173")
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
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
