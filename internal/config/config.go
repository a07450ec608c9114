package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"geminichat/internal/models"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"

	DefaultModel = models.DefaultModel
)

// Config represents runtime configuration for the service.
type Config struct {
	BasicConfig BasicConfig               `json:"basic_config"`
	Providers   map[string]ProviderConfig `json:"providers"`
	Session     SessionConfig             `json:"session"`
	Redis       RedisConfig               `json:"redis"`
	Log         LogConfig                 `json:"log"`
}

type ProviderConfig struct {
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
	APIKey       string `json:"api_key"`
	BackupAPIKey string `json:"backup_api_key"`
}

type BasicConfig struct {
	ServerAddress            string `json:"server_address"`
	DefaultModel             string `json:"default_model"`
	UploadDir                string `json:"upload_dir"`
	MaxUploadBytes           int64  `json:"max_upload_bytes"`
	UploadTTLHours           int    `json:"upload_ttl_hours"`
	GenerationTimeoutSeconds int    `json:"generation_timeout_seconds"`
	MinWorkers               int    `json:"min_workers"`
	MaxWorkers               int    `json:"max_workers"`
	QueueSize                int    `json:"queue_size"`
	WorkerIdleTimeoutSeconds int    `json:"worker_idle_timeout_seconds"`
}

// SessionConfig bounds the in-memory session registry. Zero values keep every
// session for the process lifetime.
type SessionConfig struct {
	MaxSessions    int `json:"max_sessions"`
	IdleTTLMinutes int `json:"idle_ttl_minutes"`
}

type RedisConfig struct {
	Enabled           bool   `json:"enabled"`
	Host              string `json:"host"`
	Port              int    `json:"port"`
	Username          string `json:"username"`
	Password          string `json:"password"`
	DB                int    `json:"db"`
	CompareTTLSeconds int    `json:"compare_ttl_seconds"`
}

type LogConfig struct {
	FilePath   string `json:"file_path"`
	Production bool   `json:"production"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		BasicConfig: BasicConfig{
			ServerAddress:            ":8090",
			DefaultModel:             DefaultModel,
			UploadDir:                "./uploads",
			MaxUploadBytes:           10 << 20,
			GenerationTimeoutSeconds: 120,
			MinWorkers:               2,
			MaxWorkers:               16,
			QueueSize:                64,
			WorkerIdleTimeoutSeconds: 60,
		},
		Providers: map[string]ProviderConfig{
			ProviderGemini: {Model: DefaultModel},
		},
		Redis: RedisConfig{
			Host:              "127.0.0.1",
			Port:              6379,
			CompareTTLSeconds: 600,
		},
		Log: LogConfig{
			FilePath: "geminichat.log",
		},
	}
}

// Load reads configuration from the provided path (defaults to config.json).
// A missing default file is not an error; an explicit path must exist.
// Environment variables (optionally from .env) override file values.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	explicit := path != ""
	if path == "" {
		path = "config.json"
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	cfg := Default()
	file, err := os.Open(absPath)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
		if cfg.BasicConfig.UploadDir != "" && !filepath.IsAbs(cfg.BasicConfig.UploadDir) {
			cfg.BasicConfig.UploadDir = filepath.Join(filepath.Dir(absPath), cfg.BasicConfig.UploadDir)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("open config %s: %w", absPath, err)
	}

	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	overrideKey := func(provider, primaryEnv, backupEnv string) {
		p := c.Providers[provider]
		if v := strings.TrimSpace(os.Getenv(primaryEnv)); v != "" {
			p.APIKey = v
		}
		if backupEnv != "" {
			if v := strings.TrimSpace(os.Getenv(backupEnv)); v != "" {
				p.BackupAPIKey = v
			}
		}
		c.Providers[provider] = p
	}
	overrideKey(ProviderGemini, "GEMINI_API_KEY", "GEMINI_BACKUP_API_KEY")
	overrideKey(ProviderOpenAI, "OPENAI_API_KEY", "")
	overrideKey(ProviderClaude, "ANTHROPIC_API_KEY", "")

	if v := strings.TrimSpace(os.Getenv("GEMINICHAT_ADDR")); v != "" {
		c.BasicConfig.ServerAddress = v
	}
	if v := strings.TrimSpace(os.Getenv("REDIS_ADDR")); v != "" {
		host, port, ok := strings.Cut(v, ":")
		c.Redis.Enabled = true
		c.Redis.Host = host
		if ok {
			if n, err := strconv.Atoi(port); err == nil {
				c.Redis.Port = n
			}
		}
	}
}

func (c *Config) validate() error {
	if c.BasicConfig.DefaultModel == "" {
		c.BasicConfig.DefaultModel = DefaultModel
	}
	if c.BasicConfig.MaxUploadBytes <= 0 {
		return fmt.Errorf("max_upload_bytes must be positive")
	}
	if c.BasicConfig.UploadTTLHours < 0 {
		return fmt.Errorf("upload_ttl_hours cannot be negative")
	}
	if c.Session.MaxSessions < 0 || c.Session.IdleTTLMinutes < 0 {
		return fmt.Errorf("session limits cannot be negative")
	}
	if c.BasicConfig.MaxWorkers > 0 && c.BasicConfig.MaxWorkers < c.BasicConfig.MinWorkers {
		return fmt.Errorf("max_workers (%d) is below min_workers (%d)", c.BasicConfig.MaxWorkers, c.BasicConfig.MinWorkers)
	}
	return nil
}

// GenerationTimeout bounds one AI round trip including title generation.
func (c *Config) GenerationTimeout() time.Duration {
	if c.BasicConfig.GenerationTimeoutSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(c.BasicConfig.GenerationTimeoutSeconds) * time.Second
}

// UploadTTL is how long uploaded files are kept; zero keeps them forever.
func (c *Config) UploadTTL() time.Duration {
	return time.Duration(c.BasicConfig.UploadTTLHours) * time.Hour
}

func (c *Config) SessionIdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}

func (c *Config) CompareCacheTTL() time.Duration {
	if c.Redis.CompareTTLSeconds <= 0 {
		return 10 * time.Minute
	}
	return time.Duration(c.Redis.CompareTTLSeconds) * time.Second
}
