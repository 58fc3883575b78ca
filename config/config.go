package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Most values have sensible defaults and can be overridden via .env.
type Config struct {
	ServerAddr string

	// 转录引擎配置
	EnginePath    string // 外部转录引擎可执行文件路径
	EngineTier    string // 质量档位，作为引擎的第三个参数（如 "small"）
	UploadDir     string // 上传文件存储目录
	TranscriptDir string // 引擎输出目录（描述文件与分段文本）

	// 进度估算参数：按文件大小估算总耗时
	SecondsPerMB   int // 每 MB 估算的转录秒数
	MinEstimateSec int // 估算总时长下限（秒）

	// LLM 出题服务
	LLMBaseURL string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO 归档配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool

	LogPath string
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	return &Config{
		ServerAddr: getEnv("SERVER_ADDR", ":5000"),

		EnginePath:    getEnv("ENGINE_PATH", "transcribe"),
		EngineTier:    getEnv("ENGINE_TIER", "small"),
		UploadDir:     getEnv("UPLOAD_DIR", "uploads"),
		TranscriptDir: getEnv("TRANSCRIPT_DIR", "transcripts"),

		SecondsPerMB:   getEnvInt("ESTIMATE_SECONDS_PER_MB", 4),
		MinEstimateSec: getEnvInt("ESTIMATE_MIN_SECONDS", 30),

		LLMBaseURL: getEnv("LLM_BASE_URL", "http://localhost:5001"),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // 密码不设默认值
		DBName:     getEnv("DB_NAME", "echoquiz"),

		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "echoquiz"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),

		LogPath: getEnv("LOG_PATH", filepath.Join("logs", "echoquiz.log")),
	}
}
