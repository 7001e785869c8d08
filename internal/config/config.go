package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr    string
	Port          string
	DatabasePath  string
	SessionSecret string
	GinMode       string
	UploadDir     string
	UploadURLPath string

	// RedisAddr 为空时禁用热门信息流的响应缓存
	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	PopularCacheTTL time.Duration

	// FlushInterval 控制浏览记录刷盘周期；FlushRetryCap 是刷盘失败重试缓冲的容量上限
	FlushInterval time.Duration
	FlushRetryCap int

	// FeedWindowDays 限定信息流候选集的时间窗口，0 表示不限
	FeedWindowDays int
	// FeedRanking 为 unseen_first 或 recency
	FeedRanking string
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
func Load() AppConfig {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	listenAddr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if listenAddr == "" {
		listenAddr = fmt.Sprintf(":%s", port)
	}

	databasePath := strings.TrimSpace(os.Getenv("DATABASE_PATH"))
	if databasePath == "" {
		databasePath = "switter.db"
	}

	sessionSecret := strings.TrimSpace(os.Getenv("SESSION_SECRET"))
	if sessionSecret == "" {
		sessionSecret = "switter-dev-secret"
	}

	ginMode := strings.TrimSpace(os.Getenv("GIN_MODE"))
	if ginMode == "" {
		ginMode = "release"
	}

	uploadDir := strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	if uploadDir == "" {
		uploadDir = "web/static/uploads"
	}

	uploadURLPath := strings.TrimSpace(os.Getenv("UPLOAD_URL_PATH"))
	if uploadURLPath == "" {
		uploadURLPath = "/static/uploads"
	}

	ranking := strings.TrimSpace(os.Getenv("FEED_RANKING"))
	if ranking != "recency" {
		ranking = "unseen_first"
	}

	return AppConfig{
		ListenAddr:      listenAddr,
		Port:            port,
		DatabasePath:    databasePath,
		SessionSecret:   sessionSecret,
		GinMode:         ginMode,
		UploadDir:       uploadDir,
		UploadURLPath:   uploadURLPath,
		RedisAddr:       strings.TrimSpace(os.Getenv("REDIS_ADDR")),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         envInt("REDIS_DB", 0),
		PopularCacheTTL: envDuration("POPULAR_CACHE_TTL", time.Minute),
		FlushInterval:   envDuration("FLUSH_INTERVAL", 5*time.Minute),
		FlushRetryCap:   envInt("FLUSH_RETRY_CAP", 8),
		FeedWindowDays:  envInt("FEED_WINDOW_DAYS", 30),
		FeedRanking:     ranking,
	}
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func envDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
