// Package cmd wires up the CLI flags and runs a flash listener.
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	flag "github.com/spf13/pflag"

	"github.com/Ahnappi/flash-netty/attr"
	"github.com/Ahnappi/flash-netty/bootstrap"
	"github.com/Ahnappi/flash-netty/config"
	"github.com/Ahnappi/flash-netty/loop"
	"github.com/Ahnappi/flash-netty/util"
)

// version is overridable at link time:
//
//	go build -ldflags "-X github.com/Ahnappi/flash-netty/cmd.version=2.0.0"
var version = "1.0.0" //nolint:gochecknoglobals

var (
	serverNameKey = attr.NewKey[string]("serverName")
	clientKey     = attr.NewKey[string]("clientKey")
)

// Execute parses args and runs a listener until ctx is cancelled.
func Execute(ctx context.Context, args []string) error {
	cfg := config.Default()
	config.LoadFromEnv(&cfg)

	fs := flag.NewFlagSet("flash", flag.ContinueOnError)

	// ── listener ─────────────────────────────────────────────────
	fs.StringVarP(&cfg.Host, "host", "H", cfg.Host, "Interface to bind (default: all)")
	fs.IntVarP(&cfg.BasePort, "port", "p", cfg.BasePort, "First port to try")
	fs.IntVar(&cfg.MaxPort, "max-port", cfg.MaxPort, "Last port to try (0: up to 65535)")
	fs.IntVar(&cfg.Backlog, "backlog", cfg.Backlog, "Listen backlog")

	// ── loops ────────────────────────────────────────────────────
	fs.IntVar(&cfg.BossThreads, "boss", cfg.BossThreads, "Accept loops")
	fs.IntVar(&cfg.WorkerThreads, "workers", cfg.WorkerThreads, "Worker loops (0: two per CPU)")
	fs.StringVar(&cfg.Chooser, "chooser", cfg.Chooser, "Worker assignment: round-robin or least-loaded")

	// ── connections ──────────────────────────────────────────────
	fs.BoolVar(&cfg.KeepAlive, "keepalive", cfg.KeepAlive, "Enable SO_KEEPALIVE on accepted connections")
	fs.BoolVar(&cfg.NoDelay, "nodelay", cfg.NoDelay, "Enable TCP_NODELAY on accepted connections")
	fs.StringVar(&cfg.ServerName, "server-name", cfg.ServerName, "Listener attribute serverName")
	fs.StringVar(&cfg.ClientValue, "client-value", cfg.ClientValue, "Connection attribute clientKey")

	// ── lifecycle ────────────────────────────────────────────────
	fs.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout", cfg.ShutdownTimeout, "Graceful shutdown limit")
	fs.BoolVar(&cfg.ExitOnExhaust, "exit-on-exhaust", cfg.ExitOnExhaust, "Exit with an error when no port could be bound")

	// ── output ───────────────────────────────────────────────────
	fs.CountVarP(&cfg.Verbose, "verbose", "v", "Increase verbosity (repeatable)")
	fs.BoolVarP(&cfg.Quiet, "quiet", "q", cfg.Quiet, "Only print errors")
	fs.BoolVar(&cfg.LogJSON, "json", cfg.LogJSON, "Log JSON lines even on a terminal")

	var dryRun, showVersion, showHelp bool
	fs.BoolVar(&dryRun, "dry-run", false, "Validate and print the configuration, then exit")
	fs.BoolVar(&showVersion, "version", false, "Print version and exit")
	fs.BoolVarP(&showHelp, "help", "h", false, "Show this help")

	fs.Usage = func() { printUsage(fs) }

	// ── parse ────────────────────────────────────────────────────
	envVerbose := cfg.Verbose
	if err := fs.Parse(args); err != nil {
		return err
	}
	if !fs.Changed("verbose") {
		cfg.Verbose = envVerbose
	}

	if showHelp {
		printUsage(fs)
		return nil
	}
	if showVersion {
		fmt.Printf("flash %s\n", version)
		return nil
	}

	// ── positional arguments ─────────────────────────────────────
	if err := parsePositional(&cfg, fs.Args()); err != nil {
		return err
	}

	// ── validate ─────────────────────────────────────────────────
	if err := cfg.Validate(); err != nil {
		return err
	}
	if dryRun {
		return printConfig(&cfg)
	}

	logger := util.NewLogger(cfg.LogLevel())
	if cfg.LogJSON {
		logger.SetJSON(true)
	}
	return run(ctx, &cfg, logger)
}

// run starts the listener and blocks until ctx ends or, with
// ExitOnExhaust, until the bind sequence gives up.
func run(ctx context.Context, cfg *config.Config, logger *util.Logger) error {
	chooser, _ := loop.ParseChooser(cfg.Chooser)

	boss, err := loop.NewGroup(cfg.BossThreads,
		loop.WithName("boss"), loop.WithLogger(logger))
	if err != nil {
		return err
	}
	worker, err := loop.NewGroup(cfg.Workers(),
		loop.WithName("worker"), loop.WithLogger(logger), loop.WithChooser(chooser))
	if err != nil {
		_ = boss.Shutdown(context.Background())
		return err
	}

	listenerAttrs := attr.NewStore()
	attr.Set(listenerAttrs, serverNameKey, cfg.ServerName)
	childAttrs := attr.NewStore()
	attr.Set(childAttrs, clientKey, cfg.ClientValue)

	b, err := bootstrap.New(boss, worker, bootstrap.ListenerConfig{
		Host:       cfg.Host,
		Backlog:    cfg.Backlog,
		KeepAlive:  cfg.KeepAlive,
		NoDelay:    cfg.NoDelay,
		Attrs:      listenerAttrs,
		ChildAttrs: childAttrs,
		AcceptHook: logClientHook(logger),
		MaxPort:    cfg.MaxPort,
	}, bootstrap.WithLogger(logger))
	if err != nil {
		_ = worker.Shutdown(context.Background())
		_ = boss.Shutdown(context.Background())
		return err
	}

	logger.Verbose("boss loops: %d, worker loops: %d (%s)", boss.Len(), worker.Len(), chooser)
	if err := b.Start(cfg.BasePort); err != nil {
		_ = b.Shutdown(context.Background())
		return err
	}

	var runErr error
	select {
	case <-b.Bound():
		if _, err := b.Wait(ctx); err != nil {
			logger.Error("%v", err)
			if cfg.ExitOnExhaust {
				runErr = err
			}
		}
		if runErr == nil {
			<-ctx.Done()
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := b.Shutdown(sctx); err != nil {
		logger.Warn("shutdown: %v", err)
	}
	if data, err := json.Marshal(b.Metrics()); err == nil {
		logger.Verbose("metrics: %s", data)
	}
	return runErr
}

// logClientHook reports each connection with its clientKey attribute and
// leaves it open; Shutdown closes it.
func logClientHook(logger *util.Logger) bootstrap.AcceptHook {
	return func(c *bootstrap.Conn, attrs *attr.Store) {
		v, _ := attr.Get(attrs, clientKey)
		server, _ := attr.Get(c.Parent(), serverNameKey)
		logger.Info("connection from %s on %s: clientKey=%s", c.RemoteAddr(), server, v)
	}
}

// ── helpers ──────────────────────────────────────────────────────────

// parsePositional accepts an optional "port" or "start-end" argument,
// which overrides -p and --max-port.
func parsePositional(cfg *config.Config, remaining []string) error {
	switch len(remaining) {
	case 0:
		return nil
	case 1:
		pr, err := config.ParsePortSpec(remaining[0])
		if err != nil {
			return fmt.Errorf("port: %w", err)
		}
		cfg.BasePort = pr.Start
		if pr.End != 0 {
			cfg.MaxPort = pr.End
		}
		return nil
	default:
		return fmt.Errorf("too many arguments (use --help for usage)")
	}
}

func printConfig(cfg *config.Config) error {
	out := struct {
		*config.Config
		ShutdownTimeout string
		Workers         int
	}{cfg, cfg.ShutdownTimeout.String(), cfg.Workers()}
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func printUsage(fs *flag.FlagSet) {
	fmt.Fprintf(os.Stderr, `flash – self-retrying TCP listener v%s

Binds the first free port at or above the base port, then accepts
connections on a pool of event loops.

Usage:
  flash [options] [port|start-end]

Options:
`, version)
	fs.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Environment:
  FLASH_HOST, FLASH_PORT, FLASH_MAX_PORT, FLASH_BACKLOG,
  FLASH_BOSS_THREADS, FLASH_WORKER_THREADS, FLASH_CHOOSER,
  FLASH_KEEPALIVE, FLASH_NODELAY, FLASH_SERVER_NAME, FLASH_CLIENT_VALUE,
  FLASH_SHUTDOWN_TIMEOUT, FLASH_VERBOSE, FLASH_LOG_JSON

Examples:
  flash                                       Bind 8000, or the next free port
  flash 9000-9010                             Give up after port 9010
  flash -H 127.0.0.1 -v --json 0              Any free loopback port, JSON logs
  flash --exit-on-exhaust 8000-8000           Fail if 8000 is taken
`)
}
