// Package config provides 12-factor configuration management for the kernel.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Memory: physical arena size and default user mapping base
//   - Profile: machine profile file location
//   - Monitor: diagnostics HTTP server settings (port, host)
//   - Logging: log level and output format
//   - RateLimit: per-IP rate limiting for the monitor
//   - Dump: state dump output directory
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Monitor on %s:%s\n", cfg.Monitor.Host, cfg.Monitor.Port)
//
// Environment Variables:
//   - MEMORY_MB, USER_BASE, PROFILE_PATH
//   - MONITOR_PORT, MONITOR_HOST, MONITOR_ENABLED
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
//   - DUMP_DIR
package config
