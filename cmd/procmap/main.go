package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"procmap/internal/app"
	"procmap/internal/config"
	"procmap/internal/shared/observability"
)

var (
	configPath   = flag.String("config", "./procmap.toml", "Path to config file")
	once         = flag.Bool("once", false, "Run single scan and exit")
	ui           = flag.Bool("ui", false, "Enable terminal UI mode")
	crawl        = flag.String("crawl", "", "Crawl dependencies of a procedure and exit")
	impact       = flag.String("impact", "", "Analyze change impact for a procedure and exit")
	fieldSources = flag.String("field-sources", "", "Find where a field is written and exit")
	traceField   = flag.String("trace-field", "", "Trace a field through call chains and exit")
	otlpEndpoint = flag.String("otlp-endpoint", "", "OTLP gRPC endpoint for traces (empty disables tracing)")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	version      = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("procmap v%s\n", VERSION)
		os.Exit(0)
	}

	// Setup logging
	logLevel := slog.LevelInfo
	if *verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stdout
	if *ui {
		// In UI mode, avoid stdout logs corrupting the TUI.
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else {
			f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
			if err == nil {
				output = f
			} else {
				fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
			}
		}
	}

	logger := slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		if os.IsNotExist(err) && *configPath == "./procmap.toml" {
			cfg = config.Default()
		} else {
			slog.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}
	if flag.NArg() > 0 {
		cfg.SourcePaths = []string{flag.Arg(0)}
	}

	ctx := context.Background()

	if *otlpEndpoint != "" {
		shutdown, err := observability.InitTracing(ctx, *otlpEndpoint, VERSION)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer func() { _ = shutdown(ctx) }()
		}
	}

	var metricsServer *observability.Server
	if cfg.MetricsAddr != "" {
		metricsServer = observability.NewServer(cfg.MetricsAddr)
		metricsServer.Start()
		defer func() { _ = metricsServer.Stop(ctx) }()
	}

	a, err := app.New(cfg)
	if err != nil {
		slog.Error("failed to initialize app", "error", err)
		os.Exit(1)
	}
	defer a.Close()

	if err := a.InitialScan(ctx); err != nil {
		slog.Error("initial scan failed", "error", err)
		os.Exit(1)
	}

	switch {
	case *crawl != "":
		result, err := a.Crawler.CrawlProcedure(*crawl, cfg.Crawl.MaxDepth, cfg.Crawl.IncludeTables)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Print(formatCrawlResult(result))
		os.Exit(0)
	case *impact != "":
		report, err := a.Crawler.ProcedureImpact(*impact, cfg.Crawl.MaxDepth)
		if err != nil {
			fmt.Fprintln(os.Stderr, err.Error())
			os.Exit(1)
		}
		fmt.Print(formatImpactReport(report))
		os.Exit(0)
	case *fieldSources != "":
		fmt.Print(formatFieldSources(*fieldSources, a.Crawler.FindFieldSources(*fieldSources, 10)))
		os.Exit(0)
	case *traceField != "":
		fmt.Print(formatTracePath(a.Crawler.TraceFieldFlow(*traceField)))
		os.Exit(0)
	}

	if !*ui {
		printSummary(os.Stdout, a)
	}

	if *once {
		os.Exit(0)
	}

	// Watch mode
	w, err := a.StartWatching(ctx)
	if err != nil {
		slog.Error("failed to start watcher", "error", err)
		os.Exit(1)
	}
	defer w.Close()

	if *ui {
		if err := runUI(a); err != nil {
			slog.Error("failed to run UI", "error", err)
			os.Exit(1)
		}
	} else {
		// Block forever
		select {}
	}
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "procmap", "procmap.log")
	}

	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "procmap", "procmap.log")
	}

	return "procmap.log"
}
