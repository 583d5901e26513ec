// Package config 加载服务配置
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Config 服务配置
type Config struct {
	Database struct {
		Path      string `yaml:"path"`
		EnableWAL bool   `yaml:"enable_wal"`
	} `yaml:"database"`
	Http struct {
		Port           int           `yaml:"port"`
		Timeout        time.Duration `yaml:"timeout"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		MaxBodyBytes   int64         `yaml:"max_body_bytes"`
	} `yaml:"http"`
	Log   LogConfig   `yaml:"log"`
	Model ModelConfig `yaml:"model"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// ModelConfig 模型训练配置，可热更新
type ModelConfig struct {
	Type               string  `yaml:"type"`
	MaxDepth           int     `yaml:"max_depth"`
	TestRatio          float64 `yaml:"test_ratio"`
	Seed               int64   `yaml:"seed"`
	RetrainEachRequest bool    `yaml:"retrain_each_request"`
	CacheSize          int     `yaml:"cache_size"`
	SavePath           string  `yaml:"save_path"`
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Path = "data/loanguard.db"
	cfg.Database.EnableWAL = true
	cfg.Http.Port = 8080
	cfg.Http.Timeout = 30 * time.Second
	cfg.Http.AllowedOrigins = []string{"*"}
	cfg.Http.MaxBodyBytes = 1 << 20
	cfg.Log = LogConfig{
		Level:      "info",
		MaxSizeMB:  100,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
	cfg.Model = ModelConfig{
		Type:      "decision_tree",
		TestRatio: 0.2,
		Seed:      42,
		CacheSize: 1024,
	}
	return cfg
}

// Load 读取YAML配置文件，文件不存在时使用默认值；随后应用 .env 与环境变量覆盖
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		switch {
		case err == nil:
			defer file.Close()
			if err := yaml.NewDecoder(file).Decode(cfg); err != nil {
				return nil, fmt.Errorf("decode %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, err
		}
	}

	// .env 可选
	_ = godotenv.Load()

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Http.Port <= 0 || c.Http.Port > 65535 {
		return fmt.Errorf("invalid http port %d", c.Http.Port)
	}
	if c.Http.Timeout <= 0 {
		return errors.New("http timeout must be positive")
	}
	return c.Model.Validate()
}

// Validate 校验模型配置
func (m ModelConfig) Validate() error {
	if m.TestRatio <= 0 || m.TestRatio >= 1 {
		return fmt.Errorf("test_ratio must be in (0,1), got %v", m.TestRatio)
	}
	if m.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative, got %d", m.MaxDepth)
	}
	if m.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative, got %d", m.CacheSize)
	}
	return nil
}

// applyEnv 应用 LOANGUARD_* 环境变量
func applyEnv(cfg *Config) error {
	if v := os.Getenv("LOANGUARD_DB_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("LOANGUARD_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOANGUARD_LOG_FILE"); v != "" {
		cfg.Log.File = v
	}
	if v := os.Getenv("LOANGUARD_HTTP_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOANGUARD_HTTP_PORT: %w", err)
		}
		cfg.Http.Port = port
	}
	if v := os.Getenv("LOANGUARD_MODEL_MAX_DEPTH"); v != "" {
		depth, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LOANGUARD_MODEL_MAX_DEPTH: %w", err)
		}
		cfg.Model.MaxDepth = depth
	}
	if v := os.Getenv("LOANGUARD_RETRAIN_EACH_REQUEST"); v != "" {
		retrain, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LOANGUARD_RETRAIN_EACH_REQUEST: %w", err)
		}
		cfg.Model.RetrainEachRequest = retrain
	}
	return nil
}
