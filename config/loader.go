package config

// loader.go - configuration loading from environment variables.
//
// Precedence order (highest wins):
//   1. CLI flags  (handled by cmd/root.go)
//   2. Environment variables  (this file)
//   3. Defaults   (defaults.go)

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ── Environment variable mapping ─────────────────────────────────────
//
// Every supported env var uses the FLASH_ prefix.  Boolean values
// accept "1", "true", "yes" and "0", "false", "no" (case-insensitive);
// anything else leaves the current value alone.

// LoadFromEnv overlays environment variables onto cfg.  Only set,
// well-formed env vars override the existing value.  Call it BEFORE CLI
// flag parsing so that flags take precedence.
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("FLASH_HOST"); v != "" {
		cfg.Host = v
	}
	if v, ok := envInt("FLASH_PORT"); ok {
		cfg.BasePort = v
	}
	if v, ok := envInt("FLASH_MAX_PORT"); ok {
		cfg.MaxPort = v
	}
	if v, ok := envInt("FLASH_BACKLOG"); ok {
		cfg.Backlog = v
	}

	// Loops
	if v, ok := envInt("FLASH_BOSS_THREADS"); ok {
		cfg.BossThreads = v
	}
	if v, ok := envInt("FLASH_WORKER_THREADS"); ok {
		cfg.WorkerThreads = v
	}
	if v := os.Getenv("FLASH_CHOOSER"); v != "" {
		cfg.Chooser = v
	}

	// Connection options
	if v, ok := envBool("FLASH_KEEPALIVE"); ok {
		cfg.KeepAlive = v
	}
	if v, ok := envBool("FLASH_NODELAY"); ok {
		cfg.NoDelay = v
	}

	// Attributes
	if v := os.Getenv("FLASH_SERVER_NAME"); v != "" {
		cfg.ServerName = v
	}
	if v := os.Getenv("FLASH_CLIENT_VALUE"); v != "" {
		cfg.ClientValue = v
	}

	// Lifecycle
	if v, ok := envInt("FLASH_SHUTDOWN_TIMEOUT"); ok && v > 0 {
		cfg.ShutdownTimeout = secondsDuration(v)
	}

	// Output
	if v, ok := envInt("FLASH_VERBOSE"); ok && v > 0 {
		cfg.Verbose = v
	}
	if v, ok := envBool("FLASH_LOG_JSON"); ok {
		cfg.LogJSON = v
	}
}

// ── helpers ──────────────────────────────────────────────────────────

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func envBool(key string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "yes":
		return true, true
	case "0", "false", "no":
		return false, true
	}
	return false, false
}

func secondsDuration(sec int) time.Duration {
	return time.Duration(sec) * time.Second
}
