package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 统一配置结构
// 在 main 中构造一次，通过构造函数传递给各组件
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Database DatabaseConfig `yaml:"database"`
	LLM      LLMConfig      `yaml:"llm"`
	Auth     AuthConfig     `yaml:"auth"`
	Security SecurityConfig `yaml:"security"`
	Audit    AuditConfig    `yaml:"audit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Env  string `yaml:"env"` // dev, staging, production
	Port string `yaml:"port"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // console, json
	File   string `yaml:"file"`   // 为空时只输出到 stdout
}

// DatabaseConfig 关系存储配置
type DatabaseConfig struct {
	Driver       string `yaml:"driver"` // postgres, sqlite
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// LLMConfig Gemini 配置
type LLMConfig struct {
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	BaseURL       string        `yaml:"base_url"`
	Temperature   float64       `yaml:"temperature"`
	Timeout       time.Duration `yaml:"timeout"`
	StreamTimeout time.Duration `yaml:"stream_timeout"`
	MaxConcurrent int           `yaml:"max_concurrent"`
}

// AuthConfig token 校验配置
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"` // HS256 共享密钥
	JWKSURL   string `yaml:"jwks_url"`   // RS256/ES256 公钥集
	Audience  string `yaml:"audience"`
}

// SecurityConfig 安全配置
type SecurityConfig struct {
	CORSAllowedOrigins []string `yaml:"cors_allowed_origins"`
}

// AuditConfig 审计日志配置
type AuditConfig struct {
	File string `yaml:"file"` // 为空时不记录
}

// Default 返回默认配置
func Default() *Config {
	return &Config{
		Server: ServerConfig{Env: "dev", Port: "8000"},
		Log:    LogConfig{Level: "info", Format: "console"},
		Database: DatabaseConfig{
			Driver:       "sqlite",
			DSN:          "spm-agent.db",
			MaxOpenConns: 10,
		},
		LLM: LLMConfig{
			Model:         "gemini-2.0-flash",
			BaseURL:       "https://generativelanguage.googleapis.com/v1beta",
			Temperature:   0.7,
			Timeout:       60 * time.Second,
			StreamTimeout: 180 * time.Second,
			MaxConcurrent: 8,
		},
		Auth: AuthConfig{Audience: "authenticated"},
		Security: SecurityConfig{
			CORSAllowedOrigins: []string{"http://localhost:3000"},
		},
	}
}

// LoadConfig 加载配置：默认值 -> CONFIG_FILE 指定的 YAML 文件 -> 环境变量
func LoadConfig() (*Config, error) {
	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFile 读取 YAML 配置文件覆盖默认值
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

// applyEnv 环境变量覆盖
func applyEnv(cfg *Config) error {
	setString(&cfg.Server.Env, "ENV")
	setString(&cfg.Server.Port, "PORT")

	setString(&cfg.Log.Level, "LOG_LEVEL")
	setString(&cfg.Log.Format, "LOG_FORMAT")
	setString(&cfg.Log.File, "LOG_FILE")

	setString(&cfg.Database.Driver, "DB_DRIVER")
	setString(&cfg.Database.DSN, "DATABASE_URL")

	setString(&cfg.LLM.APIKey, "GEMINI_API_KEY")
	setString(&cfg.LLM.Model, "LLM_MODEL")
	setString(&cfg.LLM.BaseURL, "LLM_BASE_URL")

	setString(&cfg.Auth.JWTSecret, "SUPABASE_JWT_SECRET")
	setString(&cfg.Auth.Audience, "JWT_AUDIENCE")
	if base := os.Getenv("SUPABASE_URL"); base != "" {
		cfg.Auth.JWKSURL = strings.TrimRight(base, "/") + "/auth/v1/.well-known/jwks.json"
	}
	setString(&cfg.Auth.JWKSURL, "JWKS_URL")

	setString(&cfg.Audit.File, "AUDIT_LOG_FILE")

	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.Security.CORSAllowedOrigins = parseStringList(v)
	}
	if v := os.Getenv("FRONTEND_URL"); v != "" {
		cfg.Security.CORSAllowedOrigins = appendUnique(cfg.Security.CORSAllowedOrigins, v)
	}

	var errs []error
	if v := os.Getenv("DB_MAX_OPEN_CONNS"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("DB_MAX_OPEN_CONNS", err))
		cfg.Database.MaxOpenConns = n
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		errs = append(errs, wrapEnv("LLM_TEMPERATURE", err))
		cfg.LLM.Temperature = f
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("LLM_TIMEOUT", err))
		cfg.LLM.Timeout = d
	}
	if v := os.Getenv("LLM_STREAM_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		errs = append(errs, wrapEnv("LLM_STREAM_TIMEOUT", err))
		cfg.LLM.StreamTimeout = d
	}
	if v := os.Getenv("LLM_MAX_CONCURRENT"); v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, wrapEnv("LLM_MAX_CONCURRENT", err))
		cfg.LLM.MaxConcurrent = n
	}
	return errors.Join(errs...)
}

// ValidateConfig 验证配置的有效性，汇总所有问题后一次返回
func ValidateConfig(cfg *Config) error {
	var problems []string

	// 1. 端口验证
	if port, err := strconv.Atoi(cfg.Server.Port); err != nil || port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid PORT value: %s (must be 1-65535)", cfg.Server.Port))
	}

	// 2. 日志级别与格式
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[cfg.Log.Level] {
		problems = append(problems, fmt.Sprintf("invalid LOG_LEVEL: %s (must be: debug, info, warn, error)", cfg.Log.Level))
	}
	validLogFormats := map[string]bool{"console": true, "json": true}
	if !validLogFormats[cfg.Log.Format] {
		problems = append(problems, fmt.Sprintf("invalid LOG_FORMAT: %s (must be: console, json)", cfg.Log.Format))
	}

	// 3. 环境
	validEnvs := map[string]bool{"dev": true, "development": true, "staging": true, "production": true, "prod": true}
	if !validEnvs[cfg.Server.Env] {
		problems = append(problems, fmt.Sprintf("invalid ENV: %s (must be: dev, development, staging, production)", cfg.Server.Env))
	}

	// 4. 数据库
	switch cfg.Database.Driver {
	case "postgres", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("invalid DB_DRIVER: %s (must be: postgres, sqlite)", cfg.Database.Driver))
	}
	if cfg.Database.DSN == "" {
		problems = append(problems, "DATABASE_URL is required")
	}

	// 5. LLM
	if cfg.LLM.Model == "" {
		problems = append(problems, "LLM_MODEL is required")
	}
	if cfg.LLM.Timeout <= 0 || cfg.LLM.StreamTimeout <= 0 {
		problems = append(problems, "LLM_TIMEOUT and LLM_STREAM_TIMEOUT must be positive")
	}
	if cfg.LLM.MaxConcurrent <= 0 {
		problems = append(problems, "LLM_MAX_CONCURRENT must be greater than 0")
	}
	if cfg.IsProduction() && cfg.LLM.APIKey == "" {
		problems = append(problems, "GEMINI_API_KEY is required in production environment")
	}

	// 6. 鉴权：至少一种校验方式
	if cfg.Auth.JWTSecret == "" && cfg.Auth.JWKSURL == "" {
		problems = append(problems, "SUPABASE_JWT_SECRET or SUPABASE_URL/JWKS_URL is required")
	}

	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production" || c.Server.Env == "prod"
}

// IsDevelopment 判断是否为开发环境
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "dev" || c.Server.Env == "development"
}

// GetServerAddr 获取服务器监听地址
func (c *Config) GetServerAddr() string {
	return ":" + c.Server.Port
}

// PrintConfig 打印配置（脱敏）
func (c *Config) PrintConfig() string {
	return fmt.Sprintf(`Configuration Loaded:
  Environment: %s
  Server Port: %s
  Logging:
    - Level: %s
    - Format: %s
    - File: %s
  Database:
    - Driver: %s
    - DSN: %s
  LLM:
    - Model: %s
    - API Key: %s
    - Timeout: %s (stream %s)
    - Max Concurrent: %d
  Auth:
    - JWT Secret: %s
    - JWKS URL: %s
  Security:
    - CORS Origins: %v`,
		c.Server.Env,
		c.Server.Port,
		c.Log.Level,
		c.Log.Format,
		c.Log.File,
		c.Database.Driver,
		maskSecret(c.Database.DSN),
		c.LLM.Model,
		maskSecret(c.LLM.APIKey),
		c.LLM.Timeout,
		c.LLM.StreamTimeout,
		c.LLM.MaxConcurrent,
		maskSecret(c.Auth.JWTSecret),
		c.Auth.JWKSURL,
		c.Security.CORSAllowedOrigins,
	)
}

// 辅助函数

func setString(dst *string, key string) {
	if value := os.Getenv(key); value != "" {
		*dst = value
	}
}

func wrapEnv(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("invalid %s: %w", key, err)
}

// parseStringList 解析逗号分隔的字符串列表
func parseStringList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}

// maskSecret 对敏感信息进行脱敏
func maskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "***" + secret[len(secret)-4:]
}
