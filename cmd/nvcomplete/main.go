// Package main is the entry point for the nvcomplete completion engine.
// It speaks JSON-RPC with the editor bridge over stdio: input events
// arrive as notifications, popup commands go back the same way.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/nvcomplete/internal/completion"
	"github.com/dshills/nvcomplete/internal/config"
	"github.com/dshills/nvcomplete/internal/editor"
	"github.com/dshills/nvcomplete/internal/logging"
	"github.com/dshills/nvcomplete/internal/provider"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
)

// options holds parsed command line flags.
type options struct {
	ConfigPath string
	LogLevel   string
	LogFile    string
	Legacy     bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	logger, cleanup, err := buildLogger(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	defer cleanup()

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to load config: %v\n", err)
		return 1
	}
	if opts.LogLevel == "" && cfg.LogLevel != "" {
		logger.SetLevel(logging.ParseLevel(cfg.LogLevel))
	}
	store := config.NewStore(cfg)

	// Built-in sources plus any user-defined Lua sources.
	registry := provider.NewRegistry()
	words := provider.NewWordsSource()
	registry.Register(words)
	registry.Register(provider.NewPathsSource(""))
	for _, path := range cfg.LuaSources {
		src, err := provider.LoadLuaSource(path)
		if err != nil {
			logger.Warn("skipping lua source: %v", err)
			continue
		}
		defer src.Close()
		registry.Register(src)
	}
	logger.Info("sources registered: %v", registry.Names())

	transport := editor.NewTransport(os.Stdin, os.Stdout, nil)
	platform := editor.PlatformNative
	if opts.Legacy {
		platform = editor.PlatformLegacy
	}
	client := editor.NewClient(transport, editor.WithPlatform(platform))

	coordinator := completion.New(client, registry, store,
		completion.WithLogger(logger),
		completion.WithConfigReload(func() {
			cfg, err := config.Load(opts.ConfigPath)
			if err != nil {
				logger.Warn("config reload failed: %v", err)
				return
			}
			store.Set(cfg)
		}),
	)
	defer coordinator.Shutdown()

	editor.BindHandler(transport, coordinator)
	bindBufferSync(transport, words)
	bindTrigger(transport, coordinator)

	// Watch the config file so edits apply without a restart.
	if opts.ConfigPath != "" {
		watcher, err := config.NewWatcher(opts.ConfigPath, store,
			config.WithWatcherLogger(logger))
		if err != nil {
			logger.Warn("config watch unavailable: %v", err)
		} else {
			watcher.Start()
			defer watcher.Close()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	transport.Start(ctx)
	logger.Info("nvcomplete %s ready", version)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	<-signals

	coordinator.Stop()
	if err := transport.Close(); err != nil {
		logger.Warn("transport close: %v", err)
	}
	return 0
}

// bindBufferSync feeds buffer content updates to the words source.
func bindBufferSync(t *editor.Transport, words *provider.WordsSource) {
	t.OnNotification("nvcomplete/bufferSync", func(_ string, params json.RawMessage) {
		var p struct {
			Bufnr int      `json:"bufnr"`
			Lines []string `json:"lines"`
		}
		if json.Unmarshal(params, &p) == nil {
			words.SetLines(p.Bufnr, p.Lines)
		}
	})
	t.OnNotification("nvcomplete/bufferClose", func(_ string, params json.RawMessage) {
		var p struct {
			Bufnr int `json:"bufnr"`
		}
		if json.Unmarshal(params, &p) == nil {
			words.DropBuffer(p.Bufnr)
		}
	})
}

// bindTrigger wires the manual completion request.
func bindTrigger(t *editor.Transport, c *completion.Coordinator) {
	t.OnNotification("nvcomplete/trigger", func(_ string, _ json.RawMessage) {
		c.Trigger()
	})
	t.OnNotification("nvcomplete/stop", func(_ string, _ json.RawMessage) {
		c.Stop()
	})
}

// buildLogger creates the process logger, optionally writing to a file
// so stderr stays quiet for editors that multiplex it.
func buildLogger(opts options) (*logging.Logger, func(), error) {
	cfg := logging.DefaultConfig()
	if opts.LogLevel != "" {
		cfg.Level = logging.ParseLevel(opts.LogLevel)
	}

	cleanup := func() {}
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		cfg.Output = f
		cleanup = func() { _ = f.Close() }
	}

	logger := logging.New(cfg)
	logging.SetDefault(logger)
	return logger, cleanup, nil
}

func parseFlags() options {
	var opts options
	var showVersion bool

	flag.StringVar(&opts.ConfigPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.ConfigPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.StringVar(&opts.LogFile, "log-file", "", "Write logs to a file instead of stderr")
	flag.BoolVar(&opts.Legacy, "legacy", false, "Use legacy editor timings")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "nvcomplete - editor completion engine\n\n")
		fmt.Fprintf(os.Stderr, "Usage: nvcomplete [options]\n\n")
		fmt.Fprintf(os.Stderr, "The editor bridge connects on stdin/stdout.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
	}

	flag.Parse()

	if showVersion {
		fmt.Printf("nvcomplete %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		os.Exit(0)
	}

	if opts.LogLevel != "" {
		switch opts.LogLevel {
		case "debug", "info", "warn", "error":
		default:
			fmt.Fprintf(os.Stderr, "Error: invalid log level %q\n", opts.LogLevel)
			os.Exit(1)
		}
	}

	return opts
}
