package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the VidQueue server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Queue    QueueConfig
	Analyzer AnalyzerConfig
	Auth     AuthConfig
	AMQP     AMQPConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// QueueConfig tunes the dispatcher.
//
// MaxRetries counts retries beyond the first attempt: a job is dispatched at
// most MaxRetries+1 times before it is failed terminally.
type QueueConfig struct {
	MaxConcurrent   int
	MaxRetries      int
	DispatchDelay   time.Duration
	StuckJobTimeout time.Duration
}

type AnalyzerConfig struct {
	FunctionURL string
	Timeout     time.Duration
}

type AuthConfig struct {
	JWTSecret  string
	CronSecret string
}

// AMQPConfig configures the optional analyzer completion-event consumer.
// Leaving URL empty disables the consumer; completions then arrive only via
// the HTTP callback endpoint.
type AMQPConfig struct {
	URL       string
	QueueName string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("VIDQUEUE_PORT", 8080),
			Env:  envString("VIDQUEUE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Queue: QueueConfig{
			MaxConcurrent:   envInt("QUEUE_MAX_CONCURRENT", 3),
			MaxRetries:      envInt("QUEUE_MAX_RETRIES", 2),
			DispatchDelay:   envDuration("QUEUE_DISPATCH_DELAY", 500*time.Millisecond),
			StuckJobTimeout: envDuration("QUEUE_STUCK_JOB_TIMEOUT", 30*time.Minute),
		},
		Analyzer: AnalyzerConfig{
			FunctionURL: os.Getenv("ANALYZER_FUNCTION_URL"),
			Timeout:     envDuration("ANALYZER_TIMEOUT", 30*time.Second),
		},
		Auth: AuthConfig{
			JWTSecret:  os.Getenv("JWT_SECRET"),
			CronSecret: os.Getenv("CRON_SECRET"),
		},
		AMQP: AMQPConfig{
			URL:       os.Getenv("AMQP_URL"),
			QueueName: envString("AMQP_COMPLETION_QUEUE", "analysis_completions"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Analyzer.FunctionURL == "" {
		return fmt.Errorf("ANALYZER_FUNCTION_URL is required")
	}
	if !strings.HasPrefix(c.Analyzer.FunctionURL, "http://") && !strings.HasPrefix(c.Analyzer.FunctionURL, "https://") {
		return fmt.Errorf("ANALYZER_FUNCTION_URL must start with http:// or https://, got %q", c.Analyzer.FunctionURL)
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Auth.CronSecret == "" {
		return fmt.Errorf("CRON_SECRET is required")
	}

	if c.Queue.MaxConcurrent < 1 {
		return fmt.Errorf("QUEUE_MAX_CONCURRENT must be at least 1, got %d", c.Queue.MaxConcurrent)
	}
	if c.Queue.MaxRetries < 0 {
		return fmt.Errorf("QUEUE_MAX_RETRIES must not be negative, got %d", c.Queue.MaxRetries)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
