// Package config defines the startup configuration for flash and
// provides helpers for parsing port specifications.
package config

import (
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	ferrors "github.com/Ahnappi/flash-netty/internal/errors"
	"github.com/Ahnappi/flash-netty/loop"
)

// MaxPort is the highest TCP port.
const MaxPort = 65535

// Config holds every tuneable for one flash listener.
type Config struct {
	// ── Listener ─────────────────────────────────────────────────────
	Host     string // "" binds every interface
	BasePort int    // first port the bind sequence tries
	MaxPort  int    // last port tried; 0 means no ceiling
	Backlog  int

	// ── Loops ────────────────────────────────────────────────────────
	BossThreads   int
	WorkerThreads int    // 0 means WorkersPerCPU × NumCPU
	Chooser       string // "round-robin" or "least-loaded"

	// ── Connection options ───────────────────────────────────────────
	KeepAlive bool
	NoDelay   bool

	// ── Attributes ───────────────────────────────────────────────────
	ServerName  string // listener attribute "serverName"
	ClientValue string // connection attribute "clientKey"

	// ── Lifecycle ────────────────────────────────────────────────────
	ShutdownTimeout time.Duration
	ExitOnExhaust   bool

	// ── Output ───────────────────────────────────────────────────────
	Verbose int // extra verbosity, one per -v
	Quiet   bool
	LogJSON bool
}

// Workers returns the effective worker loop count.
func (c *Config) Workers() int {
	if c.WorkerThreads > 0 {
		return c.WorkerThreads
	}
	return WorkersPerCPU * runtime.NumCPU()
}

// LogLevel maps Quiet and Verbose onto a util.Logger verbosity.
func (c *Config) LogLevel() int {
	if c.Quiet {
		return 0
	}
	return 1 + c.Verbose
}

// ── Port helpers ─────────────────────────────────────────────────────

// PortRange is an inclusive start–end pair.  End is 0 when no ceiling
// was given.
type PortRange struct {
	Start int
	End   int
}

// String renders the range the way ParsePortSpec accepts it.
func (pr PortRange) String() string {
	if pr.End == 0 {
		return strconv.Itoa(pr.Start)
	}
	return fmt.Sprintf("%d-%d", pr.Start, pr.End)
}

// ParsePortSpec accepts "8000" (base port, no ceiling; 0 asks the kernel
// for a free port) or "8000-8100" (base port and ceiling).
func ParsePortSpec(spec string) (PortRange, error) {
	spec = strings.TrimSpace(spec)
	if i := strings.Index(spec, "-"); i > 0 {
		start, err := strconv.Atoi(spec[:i])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range start %q", spec[:i])
		}
		end, err := strconv.Atoi(spec[i+1:])
		if err != nil {
			return PortRange{}, fmt.Errorf("invalid port range end %q", spec[i+1:])
		}
		if start < 1 || end > MaxPort || start > end {
			return PortRange{}, fmt.Errorf("invalid port range %d-%d", start, end)
		}
		return PortRange{Start: start, End: end}, nil
	}

	port, err := strconv.Atoi(spec)
	if err != nil {
		return PortRange{}, fmt.Errorf("invalid port %q", spec)
	}
	if port < 0 || port > MaxPort {
		return PortRange{}, fmt.Errorf("port %d out of range 0-65535", port)
	}
	return PortRange{Start: port}, nil
}

// ── Validation ───────────────────────────────────────────────────────

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.BasePort < 0 || c.BasePort > MaxPort {
		return &ferrors.ConfigError{
			Field:   "port",
			Value:   c.BasePort,
			Message: "must be between 0 and 65535",
		}
	}
	if c.MaxPort < 0 || c.MaxPort > MaxPort {
		return &ferrors.ConfigError{
			Field:   "max-port",
			Value:   c.MaxPort,
			Message: "must be between 1 and 65535",
			Hint:    "use 0 (the default) to scan up to 65535",
		}
	}
	if c.MaxPort > 0 && c.MaxPort < c.BasePort {
		return &ferrors.ConfigError{
			Field:   "max-port",
			Value:   c.MaxPort,
			Message: fmt.Sprintf("below the base port %d", c.BasePort),
			Hint:    fmt.Sprintf("try %d-%d", c.BasePort, c.BasePort+100),
		}
	}
	if c.Backlog <= 0 {
		return &ferrors.ConfigError{
			Field:   "backlog",
			Value:   c.Backlog,
			Message: "must be positive",
			Hint:    fmt.Sprintf("the default is %d", DefaultBacklog),
		}
	}
	if c.BossThreads < 1 {
		return &ferrors.ConfigError{
			Field:   "boss",
			Value:   c.BossThreads,
			Message: "at least one boss loop is required",
		}
	}
	if c.WorkerThreads < 0 {
		return &ferrors.ConfigError{
			Field:   "workers",
			Value:   c.WorkerThreads,
			Message: "must not be negative",
			Hint:    "use 0 for two loops per CPU",
		}
	}
	if _, err := loop.ParseChooser(c.Chooser); err != nil {
		return &ferrors.ConfigError{
			Field:   "chooser",
			Value:   c.Chooser,
			Message: "unknown worker assignment policy",
			Hint:    "use round-robin or least-loaded",
		}
	}
	if c.ShutdownTimeout <= 0 {
		return &ferrors.ConfigError{
			Field:   "shutdown-timeout",
			Value:   c.ShutdownTimeout,
			Message: "must be positive",
		}
	}
	if c.Quiet && c.Verbose > 0 {
		return &ferrors.ConfigError{
			Field:   "quiet",
			Message: "-q and -v are mutually exclusive",
		}
	}
	return nil
}
