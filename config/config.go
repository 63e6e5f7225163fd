package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultServerPort       = 8080
	defaultStatementTimeout = 10 * time.Second
	defaultLogLevel         = "info"
)

// Config хранит все конфигурационные параметры приложения.
type Config struct {
	DatabaseURL         string        `yaml:"database_url"`
	OpenHealDatabaseURL string        `yaml:"openheal_database_url"`
	OpenHealTimeout     time.Duration `yaml:"openheal_statement_timeout"`
	JWTSecretKey        string        `yaml:"jwt_secret_key"`
	ServerPort          int           `yaml:"server_port"`
	IngestAPIKey        string        `yaml:"api_ingest_key"`
	CORSAllowedOrigins  []string      `yaml:"cors_allowed_origins"`
	LogLevel            string        `yaml:"log_level"`

	R2AccountID       string `yaml:"r2_account_id"`
	R2AccessKeyID     string `yaml:"r2_access_key_id"`
	R2SecretAccessKey string `yaml:"r2_secret_access_key"`
	R2BucketName      string `yaml:"r2_bucket_name"`
	R2PublicBaseURL   string `yaml:"r2_public_base_url"`
}

// ArchiveEnabled reports whether every R2 setting is present.
func (c *Config) ArchiveEnabled() bool {
	return c.R2AccountID != "" && c.R2AccessKeyID != "" && c.R2SecretAccessKey != "" &&
		c.R2BucketName != "" && c.R2PublicBaseURL != ""
}

// Load загружает конфигурацию. Порядок приоритета (от низкого к высокому):
// значения по умолчанию, YAML файл из OPENHEAL_CONFIG_FILE, .env, переменные окружения.
func Load() (*Config, error) {
	cfg := &Config{
		ServerPort:         defaultServerPort,
		OpenHealTimeout:    defaultStatementTimeout,
		LogLevel:           defaultLogLevel,
		CORSAllowedOrigins: []string{"*"},
	}

	// .env не обязателен
	_ = godotenv.Load()

	if path := os.Getenv("OPENHEAL_CONFIG_FILE"); path != "" {
		if err := loadYAML(path, cfg); err != nil {
			return nil, err
		}
	}

	if v := getEnvOrFile("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := getEnvOrFile("OPENHEAL_DATABASE_URL"); v != "" {
		cfg.OpenHealDatabaseURL = v
	}
	if v := getEnvOrFile("JWT_SECRET_KEY"); v != "" {
		cfg.JWTSecretKey = v
	}
	if v := getEnvOrFile("API_INGEST_KEY"); v != "" {
		cfg.IngestAPIKey = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		cfg.CORSAllowedOrigins = splitList(v)
	}
	if v := os.Getenv("OPENHEAL_STATEMENT_TIMEOUT"); v != "" {
		timeout, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid OPENHEAL_STATEMENT_TIMEOUT environment variable: %w", err)
		}
		cfg.OpenHealTimeout = timeout
	}
	if v := os.Getenv("SERVER_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid SERVER_PORT environment variable: %w", err)
		}
		cfg.ServerPort = port
	}

	if v := os.Getenv("R2_ACCOUNT_ID"); v != "" {
		cfg.R2AccountID = v
	}
	if v := getEnvOrFile("R2_ACCESS_KEY_ID"); v != "" {
		cfg.R2AccessKeyID = v
	}
	if v := getEnvOrFile("R2_SECRET_ACCESS_KEY"); v != "" {
		cfg.R2SecretAccessKey = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		cfg.R2BucketName = v
	}
	if v := os.Getenv("R2_PUBLIC_BASE_URL"); v != "" {
		cfg.R2PublicBaseURL = v
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL environment variable is not set")
	}
	if c.OpenHealDatabaseURL == "" {
		return errors.New("OPENHEAL_DATABASE_URL environment variable is not set")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("SERVER_PORT must be between 1 and 65535, got %d", c.ServerPort)
	}
	if c.OpenHealTimeout <= 0 {
		return fmt.Errorf("OPENHEAL_STATEMENT_TIMEOUT must be positive, got %s", c.OpenHealTimeout)
	}
	return nil
}

func loadYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// getEnvOrFile returns $KEY, or the trimmed contents of the file named by $KEY_FILE.
func getEnvOrFile(key string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return ""
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
