package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/exec"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jasbeersinghchauhan/httpproxy/internal/cache"
	"github.com/jasbeersinghchauhan/httpproxy/internal/cli"
	"github.com/jasbeersinghchauhan/httpproxy/internal/config"
	"github.com/jasbeersinghchauhan/httpproxy/internal/control"
	"github.com/jasbeersinghchauhan/httpproxy/internal/logging"
	"github.com/jasbeersinghchauhan/httpproxy/internal/pidfile"
	"github.com/jasbeersinghchauhan/httpproxy/internal/proxy"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "proxy:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("proxy", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a TOML configuration file")
	daemon := fs.Bool("daemon", false, "run detached from the controlling terminal")
	logLevel := fs.String("log-level", "", "application log level (debug|info|warn|error)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	rest := fs.Args()
	if len(rest) > 0 && isControlSubcommand(rest[0]) {
		return cli.Run(controlPortOrDefault(*configPath), rest)
	}

	if *daemon {
		return reexecDetached(args)
	}

	var portOverride int
	havePortOverride := false
	if len(rest) > 0 {
		if _, err := strconv.Atoi(rest[0]); err != nil {
			return fmt.Errorf("unknown command: %s", rest[0])
		}
		p, ok := parsePort(rest[0])
		if !ok {
			return fmt.Errorf("invalid port %q: must be an integer in [0, 65535]", rest[0])
		}
		portOverride = p
		havePortOverride = true
	}

	return startServer(*configPath, *logLevel, portOverride, havePortOverride)
}

// parsePort reports whether s is a valid decimal port number in
// [0, 65535].
func parsePort(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 || n > 65535 {
		return 0, false
	}
	return n, true
}

// isControlSubcommand reports whether name is one of the control-plane
// subcommands dispatched to cli.Run. Any other first argument is taken as
// a positional port when it is an integer, and as an unknown command
// otherwise.
func isControlSubcommand(name string) bool {
	switch name {
	case "status", "purge-all", "purge-url", "purge-domain", "stop":
		return true
	}
	return false
}

// controlPortOrDefault loads just enough configuration to find the Control
// API port a subcommand should talk to.
func controlPortOrDefault(configPath string) int {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return config.NewDefaultConfig().Server.ControlPort
	}
	return cfg.Server.ControlPort
}

func reexecDetached(args []string) error {
	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("could not locate executable for daemon re-exec: %w", err)
	}

	daemonArgs := make([]string, 0, len(args))
	for _, a := range args {
		if a != "-daemon" && a != "--daemon" {
			daemonArgs = append(daemonArgs, a)
		}
	}

	cmd := exec.Command(exe, daemonArgs...)
	cmd.SysProcAttr = getProcAttr()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	fmt.Printf("proxy started in background, pid %d\n", cmd.Process.Pid)
	return cmd.Process.Release()
}

func startServer(configPath, logLevelOverride string, portOverride int, havePortOverride bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if havePortOverride {
		cfg.Server.ProxyPort = portOverride
	}

	level := cfg.Logging.AppLevel
	if logLevelOverride != "" {
		level = logLevelOverride
	}
	logger := buildLogger(level)

	events, eventsCloser, err := buildEventLog(cfg.Logging.AppLogfile)
	if err != nil {
		return fmt.Errorf("failed to open event log: %w", err)
	}
	defer eventsCloser()

	mode := logging.DetectProcessMode()
	accessToStdout := cfg.Logging.AccessToStdout
	if mode == logging.ProcessModeDaemon {
		accessToStdout = false
	}
	access, err := logging.NewAccessLogger(logging.AccessLoggerConfig{
		Format:        logging.AccessLogFormat(cfg.Logging.ValidateAccessFormat()),
		StdoutEnabled: accessToStdout,
		LogFile:       cfg.Logging.AccessLogfile,
		BufferSize:    1000,
		ErrorHandler:  logging.DefaultErrorHandler,
	})
	if err != nil {
		return fmt.Errorf("failed to start access logger: %w", err)
	}
	defer access.Close()

	if err := pidfile.Write(); err != nil {
		logger.Warn("could not write pidfile", "error", err)
	}
	defer pidfile.Remove()

	c := cache.New(cfg.Cache.MaxBytes())
	server := proxy.NewServer(c, events, access, cfg.Server.MaxConnections,
		time.Duration(cfg.Timeouts.SocketTimeoutSeconds())*time.Second,
		time.Duration(cfg.Timeouts.ConnectIdleTimeoutSeconds())*time.Second)

	shutdownCtx, cancelShutdown := context.WithCancel(context.Background())
	shutdown := func() {
		logger.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
		cancelShutdown()
	}

	controlAPI := control.NewControlAPI(logger, cfg, c, shutdown, func(newCfg *config.Config) {
		cfg = newCfg
	})
	go func() {
		if err := controlAPI.Start(); err != nil {
			logger.Error("control API stopped", "error", err)
		}
	}()

	go handleSignals(logger, shutdown, controlAPI.ReloadConfig)

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.ProxyPort)
	if err := server.Listen(addr); err != nil {
		return fmt.Errorf("failed to start proxy listener: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- server.Serve() }()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-shutdownCtx.Done():
	}
	return nil
}

// buildLogger builds the process's own internal slog diagnostic logger
// (startup, shutdown, control API, config reload messages) — distinct from
// the event log, which records per-connection handler activity and is
// always on regardless of app_level. An empty or invalid level disables
// application logging entirely, per the config validation in
// internal/config.
func buildLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slogLevel}))
}

func buildEventLog(eventLogfile string) (*logging.EventLog, func() error, error) {
	if eventLogfile == "" {
		el := logging.NewEventLogWriter(os.Stdout)
		return el, func() error { return nil }, nil
	}
	el, err := logging.NewEventLog(eventLogfile)
	if err != nil {
		return nil, nil, err
	}
	return el, el.Close, nil
}

func handleSignals(logger *slog.Logger, shutdown func(), reload func() error) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for sig := range sigCh {
		switch sig {
		case syscall.SIGHUP:
			logger.Info("received SIGHUP, reloading configuration")
			if err := reload(); err != nil {
				logger.Error("failed to reload configuration", "error", err)
			}
		default:
			logger.Info("received shutdown signal", "signal", sig.String())
			shutdown()
			return
		}
	}
}
