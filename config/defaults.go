package config

import "time"

// ── Default values ───────────────────────────────────────────────────
//
// All tuneable defaults live here so they are easy to audit and reuse
// across CLI flags and environment variable loading.

const (
	// DefaultBasePort is where the bind sequence starts.
	DefaultBasePort = 8000

	// DefaultBossThreads is the number of accept loops.
	DefaultBossThreads = 1

	// DefaultBacklog is the listen queue length.
	DefaultBacklog = 1024

	// DefaultServerName is stored on the listener under "serverName".
	DefaultServerName = "nettyServer"

	// DefaultClientValue is stored on every connection under "clientKey".
	DefaultClientValue = "clientValue"

	// DefaultChooser assigns connections to worker loops in turn.
	DefaultChooser = "round-robin"

	// DefaultShutdownTimeout bounds a graceful shutdown.
	DefaultShutdownTimeout = 5 * time.Second

	// WorkersPerCPU sizes the worker group when none is configured.
	WorkersPerCPU = 2
)

// Default returns a Config holding every default.
func Default() Config {
	return Config{
		BasePort:        DefaultBasePort,
		BossThreads:     DefaultBossThreads,
		Backlog:         DefaultBacklog,
		KeepAlive:       true,
		NoDelay:         true,
		ServerName:      DefaultServerName,
		ClientValue:     DefaultClientValue,
		Chooser:         DefaultChooser,
		ShutdownTimeout: DefaultShutdownTimeout,
	}
}
