package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is used when no config path is supplied.
const DefaultConfigPath = "config.yaml"

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"` // Listen address, e.g. ":8080".
}

// JWTConfig holds token signing settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"` // HMAC signing secret.
	Expiry time.Duration `yaml:"expiry"` // Token lifetime.
}

// RedisConfig holds optional redis settings. An empty Addr disables redis and
// every redis-backed path falls back to the database.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// LLMConfig holds provider credentials and call limits.
type LLMConfig struct {
	OpenAIAPIKey   string        `yaml:"openai-api-key"`
	OpenAIBaseURL  string        `yaml:"openai-base-url"`
	GeminiAPIKey   string        `yaml:"gemini-api-key"`
	VisionModel    string        `yaml:"vision-model"`    // Model used for document/brand extraction.
	DrafterTimeout time.Duration `yaml:"drafter-timeout"` // Per-drafter call budget.
}

// ModerationConfig controls the content moderation gate.
type ModerationConfig struct {
	Model string `yaml:"model"` // Moderation model identifier.
	// FailClosed rejects requests when the moderation capability itself
	// errors. The default is fail-open: availability over strictness.
	FailClosed bool `yaml:"fail-closed"`
}

// SMTPConfig holds transactional email settings.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// LogConfig holds log output settings.
type LogConfig struct {
	Level      string `yaml:"level"`        // logrus level name.
	File       string `yaml:"file"`         // Rotating log file path; empty logs to stderr only.
	MaxSizeMB  int    `yaml:"max-size-mb"`  // Rotation size threshold.
	MaxBackups int    `yaml:"max-backups"`  // Rotated files kept.
	MaxAgeDays int    `yaml:"max-age-days"` // Rotated file retention.
}

// Config is the root application configuration.
type Config struct {
	Server      ServerConfig     `yaml:"server"`
	DatabaseDSN string           `yaml:"database-dsn"`
	JWT         JWTConfig        `yaml:"jwt"`
	Redis       RedisConfig      `yaml:"redis"`
	LLM         LLMConfig        `yaml:"llm"`
	Moderation  ModerationConfig `yaml:"moderation"`
	SMTP        SMTPConfig       `yaml:"smtp"`
	Log         LogConfig        `yaml:"log"`
}

// Load reads the config file at path and applies environment overrides.
func Load(path string) (Config, error) {
	cfg := defaults()

	resolved := ResolveConfigPath(path)
	data, errRead := os.ReadFile(resolved)
	if errRead != nil {
		if !os.IsNotExist(errRead) {
			return cfg, fmt.Errorf("config: read %s: %w", resolved, errRead)
		}
	} else if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", resolved, errUnmarshal)
	}

	applyEnvOverrides(&cfg)

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return cfg, fmt.Errorf("config: missing database-dsn")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return cfg, fmt.Errorf("config: missing jwt secret")
	}
	return cfg, nil
}

// ResolveConfigPath returns the effective config path.
func ResolveConfigPath(path string) string {
	trimmed := strings.TrimSpace(path)
	if trimmed != "" {
		return trimmed
	}
	if env := strings.TrimSpace(os.Getenv("COUNCILAPI_CONFIG")); env != "" {
		return env
	}
	return DefaultConfigPath
}

func defaults() Config {
	return Config{
		Server: ServerConfig{Addr: ":8080"},
		JWT:    JWTConfig{Expiry: 24 * time.Hour},
		LLM: LLMConfig{
			VisionModel:    "gemini-2.0-flash",
			DrafterTimeout: 90 * time.Second,
		},
		Moderation: ModerationConfig{Model: "omni-moderation-latest"},
		Log: LogConfig{
			Level:      "info",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
	}
}

// applyEnvOverrides lets deployment environments override file values for
// secrets without editing the config file.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("COUNCILAPI_DATABASE_DSN")); v != "" {
		cfg.DatabaseDSN = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNCILAPI_JWT_SECRET")); v != "" {
		cfg.JWT.Secret = v
	}
	if v := strings.TrimSpace(os.Getenv("COUNCILAPI_REDIS_ADDR")); v != "" {
		cfg.Redis.Addr = v
	}
	if v := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")); v != "" {
		cfg.LLM.OpenAIAPIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		cfg.LLM.GeminiAPIKey = v
	}
}
