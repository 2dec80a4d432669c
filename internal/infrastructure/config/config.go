package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all kernel configuration.
type Config struct {
	Memory    MemoryConfig
	Profile   ProfileConfig
	Monitor   MonitorConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
	Dump      DumpConfig
}

// MemoryConfig sizes the physical memory arena.
type MemoryConfig struct {
	// TotalMB is the amount of physical memory the allocator manages.
	TotalMB int `envconfig:"MEMORY_MB" default:"64"`
	// UserBase is the lowest virtual address handed out when a mapping
	// request carries no placement hint.
	UserBase uint64 `envconfig:"USER_BASE" default:"1073741824"` // 0x40000000
}

// ProfileConfig points at the machine profile file.
type ProfileConfig struct {
	// Path to a .yaml/.yml/.toml/.json machine profile. Empty means
	// built-in defaults (1024x768x32 framebuffer, no serial pty).
	Path string `envconfig:"PROFILE_PATH" default:""`
}

// MonitorConfig holds the diagnostics HTTP server configuration.
type MonitorConfig struct {
	Port    string `envconfig:"MONITOR_PORT" default:"9600"`
	Host    string `envconfig:"MONITOR_HOST" default:"0.0.0.0"`
	Enabled bool   `envconfig:"MONITOR_ENABLED" default:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds monitor rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// DumpConfig holds state dump configuration.
type DumpConfig struct {
	Dir string `envconfig:"DUMP_DIR" default:"/tmp"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Memory: MemoryConfig{
			TotalMB:  64,
			UserBase: 0x40000000,
		},
		Profile: ProfileConfig{
			Path: "",
		},
		Monitor: MonitorConfig{
			Port:    "9600",
			Host:    "0.0.0.0",
			Enabled: true,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
		Dump: DumpConfig{
			Dir: "/tmp",
		},
	}
}
