// Command tm_server runs the TissueMAPS development server.
//
// It parses flags, loads the configuration, builds the HTTP application
// and serves it until interrupted. Flags override TM_* environment
// variables, which override the configuration file, which overrides the
// built-in defaults.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/tissuemaps/tmserver/internal/app"
	"github.com/tissuemaps/tmserver/internal/config"
	"github.com/tissuemaps/tmserver/internal/logging"
	"github.com/tissuemaps/tmserver/internal/profile"
	"github.com/tissuemaps/tmserver/internal/store"
	"github.com/tissuemaps/tmserver/internal/version"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// countFlag counts flag occurrences, so -v -v means verbosity 2. An
// explicit value (-v=3) sets the count directly.
type countFlag int

func (c *countFlag) String() string { return strconv.Itoa(int(*c)) }

func (c *countFlag) IsBoolFlag() bool { return true }

func (c *countFlag) Set(s string) error {
	if s == "" || s == "true" {
		*c++
		return nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return fmt.Errorf("invalid verbosity %q", s)
	}
	*c = countFlag(n)
	return nil
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("tm_server", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		host        string
		port        int
		configPath  string
		verbosity   countFlag
		profiling   bool
		inMemory    bool
		showVersion bool
	)
	fs.StringVar(&host, "host", "", "address to bind (default from config)")
	fs.StringVar(&host, "H", "", "shorthand for --host")
	fs.IntVar(&port, "port", 0, "port to listen on (default from config)")
	fs.IntVar(&port, "p", 0, "shorthand for --port")
	fs.Var(&verbosity, "verbosity", "increase logging verbosity (repeatable)")
	fs.Var(&verbosity, "v", "shorthand for --verbosity")
	fs.StringVar(&configPath, "config", "", "path to a YAML configuration file")
	fs.StringVar(&configPath, "config_file", "", "alias for --config")
	fs.BoolVar(&profiling, "profile", false, "profile requests and report the slowest routes on shutdown")
	fs.BoolVar(&inMemory, "in-memory", false, "use an in-memory store instead of PostgreSQL")
	fs.BoolVar(&showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if showVersion {
		fmt.Fprintln(stdout, version.String())
		return 0
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(stderr, "tm_server: %v\n", err)
		return 1
	}

	// Flags beat everything below them in the layering.
	seen := make(map[string]bool)
	fs.Visit(func(f *flag.Flag) { seen[f.Name] = true })
	if seen["host"] || seen["H"] {
		cfg.Server.Host = host
	}
	if seen["port"] || seen["p"] {
		cfg.Server.Port = port
	}
	if seen["verbosity"] || seen["v"] {
		cfg.Logging.Verbosity = int(verbosity)
	}

	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(stderr, "tm_server: invalid configuration: %v\n", err)
		return 1
	}

	logger := logging.New(stderr, cfg.Logging.Verbosity)

	var s store.Store
	if inMemory {
		logger.Warn("using the in-memory store; data is lost on shutdown")
		s = store.NewMemory()
	} else {
		pg, err := store.OpenPostgres(ctx, cfg.Database)
		if err != nil {
			fmt.Fprintf(stderr, "tm_server: cannot connect to database: %v\n", err)
			return 1
		}
		s = pg
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("closing store", slog.Any("error", err))
		}
	}()

	var opts app.Options
	if profiling {
		opts.Profiler = profile.NewCollector()
	}
	handler := app.New(&cfg, s, logger, opts)

	printBanner(stdout, cfg)

	serveErr := app.Serve(ctx, &cfg, handler, logger)
	if opts.Profiler != nil {
		opts.Profiler.Report(logger)
	}
	if serveErr != nil {
		fmt.Fprintf(stderr, "tm_server: %v\n", serveErr)
		return 1
	}
	return 0
}

func printBanner(w io.Writer, cfg config.Config) {
	fmt.Fprintln(w, "TissueMAPS development server")
	fmt.Fprintln(w, version.String())
	fmt.Fprintf(w, "listening on http://%s\n", cfg.Server.Addr())
}
