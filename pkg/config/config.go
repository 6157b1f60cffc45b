package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Encryption  EncryptionConfig
	Worker      WorkerConfig
	Scanners    ScannerConfig
	Structuring StructuringConfig
}

type ServerConfig struct {
	Host string
	Port int
	Env  string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
}

type EncryptionConfig struct {
	Key string
}

type WorkerConfig struct {
	// Concurrency bounds the asynq worker pool and the per-scan adapter pool.
	Concurrency int
	// ScanTimeoutMinutes bounds one whole scan; 0 disables the timeout.
	ScanTimeoutMinutes int
	// TickSpec is the cron spec for the scheduler tick task.
	TickSpec string
}

type ScannerConfig struct {
	// ToolTimeoutSeconds bounds each external scanner process.
	ToolTimeoutSeconds int
	// WorkDir is where ephemeral clones and credential files are created.
	WorkDir string
	// Ports is the port spec for the network recon adapter.
	Ports string
}

type StructuringConfig struct {
	BaseURL        string
	APIKey         string
	Model          string
	TimeoutSeconds int
}

func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
	)
}

func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func (s *ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

func (s *ServerConfig) IsDevelopment() bool {
	return s.Env == "development"
}

func (w *WorkerConfig) ScanTimeout() time.Duration {
	return time.Duration(w.ScanTimeoutMinutes) * time.Minute
}

func (s *ScannerConfig) ToolTimeout() time.Duration {
	return time.Duration(s.ToolTimeoutSeconds) * time.Second
}

func (s *StructuringConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8081)
	v.SetDefault("SERVER_ENV", "development")
	v.SetDefault("DATABASE_HOST", "localhost")
	v.SetDefault("DATABASE_PORT", 5432)
	v.SetDefault("DATABASE_USER", "scanforge")
	v.SetDefault("DATABASE_PASSWORD", "scanforge_secret")
	v.SetDefault("DATABASE_NAME", "scanforge")
	v.SetDefault("DATABASE_SSLMODE", "disable")
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("WORKER_CONCURRENCY", 10)
	v.SetDefault("WORKER_SCAN_TIMEOUT_MINUTES", 60)
	v.SetDefault("WORKER_TICK_SPEC", "* * * * *")
	v.SetDefault("SCANNER_TOOL_TIMEOUT_SECONDS", 600)
	v.SetDefault("SCANNER_WORK_DIR", "")
	v.SetDefault("SCANNER_PORTS", "")
	v.SetDefault("STRUCTURING_BASE_URL", "https://api.anthropic.com")
	v.SetDefault("STRUCTURING_MODEL", "claude-sonnet-4-5")
	v.SetDefault("STRUCTURING_TIMEOUT_SECONDS", 120)

	// Load from .env file if present
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AddConfigPath("/app")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	// Override with environment variables
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	cfg := &Config{
		Server: ServerConfig{
			Host: v.GetString("SERVER_HOST"),
			Port: v.GetInt("SERVER_PORT"),
			Env:  v.GetString("SERVER_ENV"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DATABASE_HOST"),
			Port:     v.GetInt("DATABASE_PORT"),
			User:     v.GetString("DATABASE_USER"),
			Password: v.GetString("DATABASE_PASSWORD"),
			Name:     v.GetString("DATABASE_NAME"),
			SSLMode:  v.GetString("DATABASE_SSLMODE"),
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetInt("REDIS_PORT"),
			Password: v.GetString("REDIS_PASSWORD"),
		},
		Encryption: EncryptionConfig{
			Key: v.GetString("ENCRYPTION_KEY"),
		},
		Worker: WorkerConfig{
			Concurrency:        v.GetInt("WORKER_CONCURRENCY"),
			ScanTimeoutMinutes: v.GetInt("WORKER_SCAN_TIMEOUT_MINUTES"),
			TickSpec:           v.GetString("WORKER_TICK_SPEC"),
		},
		Scanners: ScannerConfig{
			ToolTimeoutSeconds: v.GetInt("SCANNER_TOOL_TIMEOUT_SECONDS"),
			WorkDir:            v.GetString("SCANNER_WORK_DIR"),
			Ports:              v.GetString("SCANNER_PORTS"),
		},
		Structuring: StructuringConfig{
			BaseURL:        v.GetString("STRUCTURING_BASE_URL"),
			APIKey:         v.GetString("STRUCTURING_API_KEY"),
			Model:          v.GetString("STRUCTURING_MODEL"),
			TimeoutSeconds: v.GetInt("STRUCTURING_TIMEOUT_SECONDS"),
		},
	}

	return cfg, nil
}
