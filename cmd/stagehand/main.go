// Package main is the command line front end for the stagehand change
// tracking engine.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/dshills/stagehand/internal/config"
	"github.com/dshills/stagehand/internal/controller"
	"github.com/dshills/stagehand/internal/logging"
	"github.com/dshills/stagehand/internal/watcher"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type globalOptions struct {
	repo       string
	configPath string
	logLevel   string
	noWatch    bool
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("stagehand", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var opts globalOptions
	var showVersion bool
	fs.StringVar(&opts.repo, "C", ".", "Repository path")
	fs.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	fs.StringVar(&opts.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	fs.BoolVar(&opts.noWatch, "no-watch", false, "Do not start file system watchers")
	fs.BoolVar(&showVersion, "version", false, "Show version information")
	fs.Usage = func() { usage(fs, stderr) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if showVersion {
		fmt.Fprintf(stdout, "stagehand %s\n", version)
		fmt.Fprintf(stdout, "Commit: %s\n", commit)
		fmt.Fprintf(stdout, "Built: %s\n", date)
		return 0
	}
	if fs.NArg() == 0 {
		usage(fs, stderr)
		return 2
	}

	name, rest := fs.Arg(0), fs.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "Error: unknown command %q\n", name)
		usage(fs, stderr)
		return 2
	}

	cfgPath := opts.configPath
	if cfgPath == "" {
		cfgPath = config.Discover(opts.repo)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.noWatch || !cmd.watch {
		cfg.Watcher.Enabled = false
	}

	logger, closer, err := logging.NewWithWriter(cfg.Log, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer closer.Close()

	m := controller.NewManager(controllerOptions(cfg, logger)...)
	defer m.Close()

	ctl, err := m.Open(opts.repo)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	e := &env{ctl: ctl, cfg: cfg, out: stdout, logger: logger}
	if err := cmd.run(ctx, e, rest); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "Usage: stagehand %s %s\n", name, cmd.args)
			return 2
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// controllerOptions maps configuration onto controller options.
func controllerOptions(cfg *config.Config, logger zerolog.Logger) []controller.Option {
	return []controller.Option{
		controller.WithLogger(logger),
		controller.WithDiffCacheSize(cfg.Cache.DiffCacheSize),
		controller.WithContextLines(cfg.Status.ContextLines),
		controller.WithQueueBufferSize(cfg.Queue.BufferSize),
		controller.WithWatchers(cfg.Watcher.Enabled),
		controller.WithWatcherOptions(
			watcher.WithDebounce(cfg.Watcher.Debounce()),
			watcher.WithRecreateInterval(cfg.Watcher.RecreateInterval()),
			watcher.WithBufferSize(cfg.Watcher.BufferSize),
			watcher.WithIgnorePatterns(cfg.Watcher.IgnorePatterns),
		),
		controller.WithConfigWatcherOptions(watcher.WithDebounce(cfg.Watcher.ConfigDebounce())),
	}
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "stagehand - repository change tracking and staging\n\n")
	fmt.Fprintf(w, "Usage: stagehand [options] <command> [args]\n\n")
	fmt.Fprintf(w, "Options:\n")
	fs.PrintDefaults()
	fmt.Fprintf(w, "\nCommands:\n")

	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(w, "  %-14s %s\n", name, commands[name].help)
	}
}
