package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Server Server
	Agent  Agent
	Redis  Redis
}

// Server holds HTTP server settings.
type Server struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
}

// Agent holds reasoning-engine and sandbox settings.
type Agent struct {
	APIKey     string //nolint:gosec // G117: provider credential config
	BaseURL    string
	Model      string
	Workdir    string
	TurnBudget int
}

// Redis holds the pub/sub connection settings for the render-event bus.
type Redis struct {
	Addr     string
	Password string //nolint:gosec // G117: Redis connection config
	DB       int
}

// Load reads configuration from environment variables.
// OPENAI_API_KEY has no default: without it the process refuses to start,
// since no session could ever complete a turn.
func Load() (*Config, error) {
	readTimeout, err := getEnvDuration("WORKPEN_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("WORKPEN_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	turnBudget, err := getEnvInt("WORKPEN_TURN_BUDGET", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("WORKPEN_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	cfg := &Config{
		Server: Server{
			Addr:         getEnv("WORKPEN_SERVER_ADDR", ":8080"),
			ReadTimeout:  readTimeout,
			WriteTimeout: writeTimeout,
			CORSOrigins:  getEnvList("WORKPEN_CORS_ORIGINS", []string{"*"}),
		},
		Agent: Agent{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    getEnv("WORKPEN_OPENAI_BASE_URL", ""),
			Model:      getEnv("WORKPEN_MODEL", "o4-mini"),
			Workdir:    getEnv("WORKPEN_WORKDIR", "/workdir"),
			TurnBudget: turnBudget,
		},
		Redis: Redis{
			Addr:     getEnv("WORKPEN_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("WORKPEN_REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	if c.Agent.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required")
	}
	if c.Agent.Model == "" {
		return errors.New("WORKPEN_MODEL must not be empty")
	}
	if !strings.HasPrefix(c.Agent.Workdir, "/") {
		return fmt.Errorf("WORKPEN_WORKDIR must be an absolute path, got %q", c.Agent.Workdir)
	}
	if c.Agent.TurnBudget < 1 {
		return fmt.Errorf("WORKPEN_TURN_BUDGET must be >= 1, got %d", c.Agent.TurnBudget)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("WORKPEN_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("WORKPEN_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
