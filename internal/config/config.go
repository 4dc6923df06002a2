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

	// Progress
	ProgressEvery int

	// Extract
	ExtractRecursive bool

	// Ingest
	IngestBatchSize     int
	IngestMaxConcurrent int

	// Threads
	ThreadsMaxConcurrent int
	ThreadsMinComments   int
	ThreadsMinSelfText   int
	ThreadsMaxReplies    int
	ThreadsPageSize      int
	ThreadsSanitizeHTML  bool
	ThreadsSkipBodies    []string
	ThreadsTimeout       time.Duration
	ThreadsPruneStale    bool

	// Metrics
	MetricsAddr string

	// Server
	ServerPort         string
	RateLimitPerMinute int
}

// Load は環境変数からConfigを読み込む。
// 値の形式が不正な場合はまとめてエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.DatabaseURL = getEnvString("DATABASE_URL", "sqlite3://threadflat.db")
	cfg.ProgressEvery = getEnvInt("PROGRESS_EVERY", 10000)
	cfg.ExtractRecursive = getEnvBool("EXTRACT_RECURSIVE", false)
	cfg.IngestBatchSize = getEnvInt("INGEST_BATCH_SIZE", 1000)
	cfg.IngestMaxConcurrent = getEnvInt("INGEST_MAX_CONCURRENT", 2)
	cfg.ThreadsMaxConcurrent = getEnvInt("THREADS_MAX_CONCURRENT", 8)
	cfg.ThreadsMinComments = getEnvInt("THREADS_MIN_COMMENTS", 2)
	cfg.ThreadsMinSelfText = getEnvInt("THREADS_MIN_SELFTEXT", 150)
	cfg.ThreadsMaxReplies = getEnvInt("THREADS_MAX_REPLIES", 500000)
	cfg.ThreadsPageSize = getEnvInt("THREADS_PAGE_SIZE", 500)
	cfg.ThreadsSanitizeHTML = getEnvBool("THREADS_SANITIZE_HTML", false)
	cfg.ThreadsSkipBodies = getEnvList("THREADS_SKIP_BODIES", nil)
	cfg.ThreadsTimeout = getEnvDuration("THREADS_TIMEOUT", 0)
	cfg.ThreadsPruneStale = getEnvBool("THREADS_PRUNE_STALE", false)
	cfg.MetricsAddr = getEnvString("METRICS_ADDR", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.RateLimitPerMinute = getEnvInt("RATE_LIMIT_PER_MINUTE", 120)

	// Validation
	var invalid []string

	if !supportedDatabaseURL(cfg.DatabaseURL) {
		invalid = append(invalid, "DATABASE_URL")
	}
	if cfg.IngestBatchSize <= 0 {
		invalid = append(invalid, "INGEST_BATCH_SIZE")
	}
	if cfg.ThreadsPageSize <= 0 {
		invalid = append(invalid, "THREADS_PAGE_SIZE")
	}
	if cfg.ThreadsMaxReplies < 0 {
		invalid = append(invalid, "THREADS_MAX_REPLIES")
	}

	if len(invalid) > 0 {
		return nil, fmt.Errorf("invalid environment variables: %v", invalid)
	}

	return cfg, nil
}

func supportedDatabaseURL(url string) bool {
	for _, prefix := range []string{"postgres://", "postgresql://", "sqlite3://"} {
		if strings.HasPrefix(url, prefix) {
			return true
		}
	}
	return false
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
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

// getEnvList はカンマ区切りの値をトリムしたスライスとして返す。空要素は除く。
func getEnvList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
