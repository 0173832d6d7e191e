package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 凭证存储后端
const (
	CredentialBackendFile   = "file"   // JSON 文件（pkg/persistence）
	CredentialBackendBadger = "badger" // Badger KV（pkg/secretstore，可加密）
	CredentialBackendMemory = "memory" // 仅内存，进程退出即丢失
)

// APIConfig 后端 REST 接口配置
type APIConfig struct {
	BaseURL string        `yaml:"base_url" json:"base_url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout" validate:"gte=0"`
}

// StreamConfig 行情推送通道配置
type StreamConfig struct {
	URL            string        `yaml:"url" json:"url" validate:"required,url"`
	PingInterval   time.Duration `yaml:"ping_interval" json:"ping_interval" validate:"gte=0"`
	Reconnect      bool          `yaml:"reconnect" json:"reconnect"`             // 意外断开后是否自动重连（默认关闭）
	ReconnectDelay time.Duration `yaml:"reconnect_delay" json:"reconnect_delay"` // 重连延迟
}

// CredentialConfig 会话凭证持久化配置
type CredentialConfig struct {
	Backend       string `yaml:"backend" json:"backend" validate:"oneof=file badger memory"`
	Path          string `yaml:"path" json:"path" validate:"required_unless=Backend memory"`
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"` // badger 加密密钥（32 字节，hex 或 base64）
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level" json:"level" validate:"oneof=trace debug info warn warning error fatal panic"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups" validate:"gte=0"`
	MaxAge     int    `yaml:"max_age" json:"max_age" validate:"gte=0"`
}

// Config 应用配置
type Config struct {
	API           APIConfig        `yaml:"api" json:"api"`
	Stream        StreamConfig     `yaml:"stream" json:"stream"`
	Credentials   CredentialConfig `yaml:"credentials" json:"credentials"`
	Log           LogConfig        `yaml:"log" json:"log"`
	MetricsListen string           `yaml:"metrics_listen" json:"metrics_listen"` // 为空则不启动 metrics/debug 服务
}

var validate = validator.New()

// Default 返回默认配置
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:8080",
			Timeout: 30 * time.Second,
		},
		Stream: StreamConfig{
			URL:            "ws://localhost:8080/ws",
			PingInterval:   30 * time.Second,
			Reconnect:      false,
			ReconnectDelay: 5 * time.Second,
		},
		Credentials: CredentialConfig{
			Backend: CredentialBackendFile,
			Path:    "data/credentials",
		},
		Log: LogConfig{
			Level:      "info",
			File:       "logs/dashboard.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
		},
	}
}

// Load 加载配置（优先级：环境变量 > 配置文件 > 默认值）
// filePath 为空时只使用环境变量和默认值；.env 文件存在时先载入环境
func Load(filePath string) (*Config, error) {
	// .env 不存在不是错误
	_ = godotenv.Load()

	cfg := Default()
	if filePath != "" {
		if err := loadConfigFile(filePath, cfg); err != nil {
			return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}
	return cfg, nil
}

// loadConfigFile 加载配置文件（支持 YAML 和 JSON），文件中的值覆盖默认值
func loadConfigFile(filePath string, cfg *Config) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("读取配置文件失败: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 YAML 配置文件失败: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("解析 JSON 配置文件失败: %w", err)
		}
	default:
		return fmt.Errorf("不支持的配置文件格式: %s (支持 .yaml, .yml, .json)", ext)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.API.BaseURL = getEnv("TRADEDASH_API_URL", cfg.API.BaseURL)
	cfg.API.Timeout = parseDurationEnv("TRADEDASH_API_TIMEOUT", cfg.API.Timeout)
	cfg.Stream.URL = getEnv("TRADEDASH_WS_URL", cfg.Stream.URL)
	cfg.Stream.Reconnect = parseBoolEnv("TRADEDASH_STREAM_RECONNECT", cfg.Stream.Reconnect)
	cfg.Stream.ReconnectDelay = parseDurationEnv("TRADEDASH_STREAM_RECONNECT_DELAY", cfg.Stream.ReconnectDelay)
	cfg.Credentials.Backend = getEnv("TRADEDASH_CREDENTIAL_BACKEND", cfg.Credentials.Backend)
	cfg.Credentials.Path = getEnv("TRADEDASH_CREDENTIAL_PATH", cfg.Credentials.Path)
	cfg.Credentials.EncryptionKey = getEnv("TRADEDASH_CREDENTIAL_KEY", cfg.Credentials.EncryptionKey)
	cfg.Log.Level = getEnv("TRADEDASH_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.File = getEnv("TRADEDASH_LOG_FILE", cfg.Log.File)
	cfg.MetricsListen = getEnv("TRADEDASH_METRICS_LISTEN", cfg.MetricsListen)
}

// Validate 验证配置
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}
	if c.Stream.Reconnect && c.Stream.ReconnectDelay <= 0 {
		return fmt.Errorf("TRADEDASH_STREAM_RECONNECT_DELAY 必须大于 0")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
