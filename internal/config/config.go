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

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

const (
	defaultPort           = "8080"
	defaultMaxUploadBytes = 300 * 1024 * 1024
	defaultSessionTTL     = "24h"

	// Development-only fallback, same as the reference deployment; override
	// KITABGHAR_SESSION_SECRET in anything public.
	defaultSessionSecret = "default_secret_key_for_development"
)

// FileConfig represents configuration loaded from YAML with env overrides.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	SessionSecret   string `yaml:"sessionSecret"`
	SessionStrategy string `yaml:"sessionStrategy"` // memory | redis | jwt
	SessionTTL      string `yaml:"sessionTTL"`

	SnapshotPath string `yaml:"snapshotPath"`
	DatabaseURL  string `yaml:"databaseURL"` // optional Postgres backend

	UploadDir         string   `yaml:"uploadDir"`
	StorageBackend    string   `yaml:"storageBackend"` // local | s3
	MinioEndpoint     string   `yaml:"minioEndpoint"`
	MinioAccessKey    string   `yaml:"minioAccessKey"`
	MinioSecretKey    string   `yaml:"minioSecretKey"`
	MinioBucket       string   `yaml:"minioBucket"`
	MinioUseSSL       bool     `yaml:"minioUseSSL"`
	MaxUploadBytes    int64    `yaml:"maxUploadBytes"`
	AllowedExtensions []string `yaml:"allowedExtensions"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	LoginRateLimitPerMinute    int `yaml:"loginRateLimitPerMinute"`
	RegisterRateLimitPerMinute int `yaml:"registerRateLimitPerMinute"`
}

// Load reads config from path (defaults to config.yaml). A missing file is
// fine: defaults plus environment overrides make a runnable demo setup.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	if v := os.Getenv("KITABGHAR_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_SESSION_SECRET"); v != "" {
		cfg.SessionSecret = v
	}
	if v := os.Getenv("KITABGHAR_SESSION_STRATEGY"); v != "" {
		cfg.SessionStrategy = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_SNAPSHOT_PATH"); v != "" {
		cfg.SnapshotPath = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_DATABASE_URL"); v != "" {
		cfg.DatabaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_UPLOAD_DIR"); v != "" {
		cfg.UploadDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_STORAGE_BACKEND"); v != "" {
		cfg.StorageBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = strings.TrimSpace(v)
	}
	if v := os.Getenv("KITABGHAR_MINIO_USE_SSL"); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			cfg.MinioUseSSL = b
		}
	}
	if v := os.Getenv("KITABGHAR_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("KITABGHAR_ALLOWED_EXTENSIONS"); v != "" {
		cfg.AllowedExtensions = splitCSV(v)
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("KITABGHAR_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("KITABGHAR_REGISTER_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.RegisterRateLimitPerMinute = n
		}
	}

	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.SessionSecret == "" {
		cfg.SessionSecret = defaultSessionSecret
	}
	if cfg.SessionStrategy == "" {
		cfg.SessionStrategy = "memory"
	}
	if cfg.SessionTTL == "" {
		cfg.SessionTTL = defaultSessionTTL
	}
	if cfg.SnapshotPath == "" {
		cfg.SnapshotPath = "data_store.json"
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "uploads"
	}
	if cfg.StorageBackend == "" {
		cfg.StorageBackend = "local"
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if len(cfg.AllowedExtensions) == 0 {
		cfg.AllowedExtensions = []string{".pdf"}
	}
}

func validateConfig(cfg FileConfig) error {
	switch cfg.SessionStrategy {
	case "memory", "jwt":
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis session strategy")
		}
	default:
		return fmt.Errorf("config: unknown sessionStrategy %q (memory|redis|jwt)", cfg.SessionStrategy)
	}
	switch cfg.StorageBackend {
	case "local":
	case "s3":
		if strings.TrimSpace(cfg.MinioEndpoint) == "" {
			return errors.New("config: minioEndpoint is required for the s3 storage backend")
		}
		if strings.TrimSpace(cfg.MinioAccessKey) == "" {
			return errors.New("config: minioAccessKey is required for the s3 storage backend")
		}
		if strings.TrimSpace(cfg.MinioSecretKey) == "" {
			return errors.New("config: minioSecretKey is required for the s3 storage backend")
		}
		if strings.TrimSpace(cfg.MinioBucket) == "" {
			return errors.New("config: minioBucket is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("config: unknown storageBackend %q (local|s3)", cfg.StorageBackend)
	}
	if cfg.LoginRateLimitPerMinute < 0 || cfg.RegisterRateLimitPerMinute < 0 {
		return errors.New("config: rate limits must be >= 0")
	}
	if (cfg.LoginRateLimitPerMinute > 0 || cfg.RegisterRateLimitPerMinute > 0) && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required when rate limits are set")
	}
	if _, err := ParseSessionTTL(cfg.SessionTTL); err != nil {
		return err
	}
	return nil
}

// ParseSessionTTL parses the session TTL duration string.
func ParseSessionTTL(raw string) (time.Duration, error) {
	if raw == "" {
		raw = defaultSessionTTL
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	if dur <= 0 {
		return 0, errors.New("sessionTTL must be positive")
	}
	return dur, nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
