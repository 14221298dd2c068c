package bootstrap

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"collaborative-canvas/internal/infra/setup"
	"collaborative-canvas/internal/service"
)

// 支持的 BLOB_STORAGE 取值
const (
	BlobFilesystem = "filesystem"
	BlobS3         = "s3"
)

// Config 结构体用于存储从环境变量或文件加载的配置
type Config struct {
	ServerPort        string
	LogLevel          string
	AppEnv            string // development / production
	DefaultRoom       string
	RedisAddr         string // 为空时不启用限流和任务队列
	RedisPassword     string
	RedisDB           int
	KeyPrefix         string // Redis Key 前缀
	RateLimitMax      int
	RateLimitWindow   time.Duration
	DBDriver          string
	DBDSN             string
	BlobStorage       string
	BlobPath          string
	S3BucketName      string
	CORSAllowedOrigin string
	MDNSEnabled       bool
	AutosaveSchedule  string
}

// LoadConfig 从环境变量加载配置
func LoadConfig() (*Config, error) {
	// 优先加载 .env 文件 (如果存在)
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:        getEnv("SERVER_PORT", "3000"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		AppEnv:            getEnv("APP_ENV", "development"),
		DefaultRoom:       getEnv("DEFAULT_ROOM", "main"),
		RedisAddr:         os.Getenv("REDIS_ADDR"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KeyPrefix:         getEnv("REDIS_KEY_PREFIX", "cv:"),
		RateLimitMax:      100,
		RateLimitWindow:   time.Second,
		DBDriver:          strings.ToLower(getEnv("DB_DRIVER", setup.DriverSQLite)),
		DBDSN:             getEnv("DB_DSN", "canvas.db"),
		BlobStorage:       strings.ToLower(getEnv("BLOB_STORAGE", BlobFilesystem)),
		BlobPath:          getEnv("BLOB_PATH", "./data"),
		S3BucketName:      os.Getenv("S3_BUCKET_NAME"),
		CORSAllowedOrigin: os.Getenv("CORS_ALLOWED_ORIGIN"),
		AutosaveSchedule:  getEnv("AUTOSAVE_SCHEDULE", "@every 5m"),
	}

	if v := os.Getenv("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REDIS_DB %q: %w", v, err)
		}
		cfg.RedisDB = db
	}
	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_MAX %q", v)
		}
		cfg.RateLimitMax = n
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return nil, fmt.Errorf("invalid RATE_LIMIT_WINDOW %q", v)
		}
		cfg.RateLimitWindow = d
	}
	if v := os.Getenv("MDNS_ENABLED"); v != "" {
		enabled, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid MDNS_ENABLED %q: %w", v, err)
		}
		cfg.MDNSEnabled = enabled
	}

	if err := service.ValidateRoomID(cfg.DefaultRoom); err != nil {
		return nil, fmt.Errorf("invalid DEFAULT_ROOM %q: %w", cfg.DefaultRoom, err)
	}
	switch cfg.DBDriver {
	case setup.DriverSQLite, setup.DriverMySQL:
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	switch cfg.BlobStorage {
	case BlobFilesystem:
	case BlobS3:
		if cfg.S3BucketName == "" {
			return nil, fmt.Errorf("environment variable S3_BUCKET_NAME must be set when BLOB_STORAGE=s3")
		}
	default:
		return nil, fmt.Errorf("unsupported BLOB_STORAGE %q", cfg.BlobStorage)
	}

	// 验证日志级别
	if _, err := logrus.ParseLevel(cfg.LogLevel); err != nil {
		logrus.Warnf("Invalid LOG_LEVEL '%s', using default 'info'", cfg.LogLevel)
		cfg.LogLevel = "info"
	}

	return cfg, nil
}

// RedisEnabled 报告是否配置了 Redis
func (c *Config) RedisEnabled() bool { return c.RedisAddr != "" }

// AutosaveInterval 解析 "@every <duration>" 形式的计划，供没有 Redis 时的本地定时器使用
func (c *Config) AutosaveInterval() (time.Duration, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(c.AutosaveSchedule), "@every ")
	if !ok {
		return 0, false
	}
	d, err := time.ParseDuration(strings.TrimSpace(rest))
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
