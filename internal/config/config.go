// Package config loads all runtime tunables for the arena service from the
// environment, applying defaults and returning descriptive errors for
// invalid overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const (
	// DefaultAddr is the default TCP address the API server listens on.
	DefaultAddr = ":8000"
	// DefaultSessionTTL bounds how long a session may live without an
	// explicit stop.
	DefaultSessionTTL = time.Hour
	// DefaultMaxSessionsPerUser caps concurrent sessions per voter.
	DefaultMaxSessionsPerUser = 1
	// DefaultContainerMemoryBytes limits each game sandbox to 256 MiB.
	DefaultContainerMemoryBytes int64 = 256 << 20
	// DefaultContainerCPUNanos grants each sandbox half a CPU.
	DefaultContainerCPUNanos int64 = 500_000_000
	// DefaultReportWindow bounds how frequently a voter may file reports.
	DefaultReportWindow = time.Minute
	// DefaultReportBurst is the number of reports allowed per window.
	DefaultReportBurst = 3
)

// Config captures every runtime tunable for the arena service.
type Config struct {
	Address        string   `env:"ARENA_ADDR"`
	GamesPath      string   `env:"GAMES_PATH"`
	TeamsPath      string   `env:"TEAMS_PATH"`
	TranscriptPath string   `env:"TRANSCRIPT_PATH"`
	AdminEmails    []string `env:"ADMIN_EMAILS" envSeparator:","`

	EnableCompetition bool   `env:"ENABLE_COMPETITION"`
	ReportWebhook     string `env:"REPORT_WEBHOOK"`

	AuthSecret string `env:"AUTH_SECRET"`

	RedisHost     string `env:"REDIS_HOST"`
	RedisPort     int    `env:"REDIS_PORT"`
	RedisDB       int    `env:"REDIS_DB"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	SessionTTL         time.Duration `env:"SESSION_TTL"`
	MaxSessionsPerUser int           `env:"MAX_SESSIONS_PER_USER"`

	ContainerMemoryBytes int64 `env:"CONTAINER_MEMORY_BYTES"`
	ContainerCPUNanos    int64 `env:"CONTAINER_CPU_NANOS"`

	ReportWindow time.Duration `env:"REPORT_WINDOW"`
	ReportBurst  int           `env:"REPORT_BURST"`

	LogLevel  string `env:"ARENA_LOG_LEVEL"`
	LogPretty bool   `env:"ARENA_LOG_PRETTY"`
}

// RedisAddr renders the host:port pair expected by the Redis client.
func (c *Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort)
}

// Load reads the configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{
		Address:              DefaultAddr,
		RedisHost:            "localhost",
		RedisPort:            6379,
		SessionTTL:           DefaultSessionTTL,
		MaxSessionsPerUser:   DefaultMaxSessionsPerUser,
		ContainerMemoryBytes: DefaultContainerMemoryBytes,
		ContainerCPUNanos:    DefaultContainerCPUNanos,
		ReportWindow:         DefaultReportWindow,
		ReportBurst:          DefaultReportBurst,
		LogLevel:             "info",
	}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	var problems []string
	if strings.TrimSpace(cfg.GamesPath) == "" {
		problems = append(problems, "GAMES_PATH must be provided")
	}
	if strings.TrimSpace(cfg.TeamsPath) == "" {
		problems = append(problems, "TEAMS_PATH must be provided")
	}
	if strings.TrimSpace(cfg.AuthSecret) == "" {
		problems = append(problems, "AUTH_SECRET must be provided")
	}
	if cfg.SessionTTL <= 0 {
		problems = append(problems, fmt.Sprintf("SESSION_TTL must be a positive duration, got %q", cfg.SessionTTL))
	}
	if cfg.MaxSessionsPerUser <= 0 {
		problems = append(problems, fmt.Sprintf("MAX_SESSIONS_PER_USER must be a positive integer, got %d", cfg.MaxSessionsPerUser))
	}
	if cfg.ContainerMemoryBytes <= 0 {
		problems = append(problems, fmt.Sprintf("CONTAINER_MEMORY_BYTES must be a positive integer, got %d", cfg.ContainerMemoryBytes))
	}
	if cfg.ContainerCPUNanos <= 0 {
		problems = append(problems, fmt.Sprintf("CONTAINER_CPU_NANOS must be a positive integer, got %d", cfg.ContainerCPUNanos))
	}
	if cfg.ReportWindow <= 0 || cfg.ReportBurst <= 0 {
		problems = append(problems, "REPORT_WINDOW and REPORT_BURST must both be positive")
	}

	normalized := cfg.AdminEmails[:0]
	for _, email := range cfg.AdminEmails {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" {
			normalized = append(normalized, email)
		}
	}
	cfg.AdminEmails = normalized

	if len(problems) > 0 {
		return nil, fmt.Errorf("%s", strings.Join(problems, "; "))
	}
	return cfg, nil
}
