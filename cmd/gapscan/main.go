package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gapscan/internal/config"
	"gapscan/internal/graph"
	"gapscan/internal/history"
	"gapscan/internal/pattern"
	"gapscan/internal/query"
	"gapscan/internal/scan"
	"gapscan/internal/shared/observability"
)

var (
	configPath = flag.String("config", "./gapscan.toml", "Path to config file")
	ticket     = flag.String("ticket", "", "Ticket file driving a full scan")
	source     = flag.String("graph", "", "Symbol table artifact (overrides graph.source)")
	outputDir  = flag.String("output", "", "Output directory (overrides paths.output_dir)")
	impact     = flag.String("impact", "", "One-shot impact analysis for a file path")
	clusters   = flag.Bool("clusters", false, "One-shot clustering over all indexed files")
	uiMode     = flag.Bool("ui", false, "Show pipeline progress in a terminal UI")
	runHist    = flag.Bool("history", false, "Print recent scan runs and exit")
	metrics    = flag.Bool("metrics", false, "Serve the metrics/health endpoint during the run")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	version    = flag.Bool("version", false, "Print version and exit")
)

const VERSION = "1.0.0"

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("gapscan v%s\n", VERSION)
		os.Exit(0)
	}

	setupLogging(*uiMode, *verbose)

	cfg, err := config.Load(*configPath)
	if err != nil {
		if *configPath == "./gapscan.toml" {
			cfg, err = config.Load("./gapscan.example.toml")
		}
		if err != nil {
			slog.Warn("no config file loaded, using defaults", "error", err)
			cfg = config.Default()
		}
	}
	if *source != "" {
		cfg.Graph.Source = *source
	}
	if *outputDir != "" {
		cfg.Paths.OutputDir = *outputDir
	}
	if *runHist {
		exitOn(runHistory(cfg))
		return
	}

	if cfg.Graph.Source == "" {
		fmt.Fprintln(os.Stderr, "a symbol table artifact is required: set graph.source or pass -graph")
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.Observability.OTLPEndpoint != "" {
		shutdown, err := observability.InitTracing(ctx, cfg.Observability.OTLPEndpoint, VERSION)
		if err != nil {
			slog.Warn("tracing disabled", "error", err)
		} else {
			defer func() {
				if err := shutdown(ctx); err != nil {
					slog.Warn("tracer shutdown failed", "error", err)
				}
			}()
		}
	}

	if *metrics || cfg.Observability.MetricsEnabled {
		server := observability.NewServer(cfg.Observability.MetricsAddr, nil)
		if err := server.Start(ctx); err != nil {
			slog.Warn("metrics server failed to start", "error", err)
		} else {
			defer func() { _ = server.Stop(ctx) }()
		}
	}

	bundles := graph.NewBundleCache(nil)

	if cfg.Graph.Watch {
		watcher, err := graph.NewSourceWatcher(bundles, cfg.Graph.WatchDebounce)
		if err != nil {
			slog.Warn("source watching disabled", "error", err)
		} else {
			if err := watcher.Watch(cfg.Graph.Source); err != nil {
				slog.Warn("cannot watch symbol table", "source", cfg.Graph.Source, "error", err)
			}
			defer watcher.Close()
		}
	}

	switch {
	case *impact != "":
		exitOn(runImpact(ctx, cfg, bundles, *impact))
	case *clusters:
		exitOn(runClusters(ctx, cfg, bundles))
	case *ticket != "":
		exitOn(runScan(ctx, cfg, bundles, *ticket, *uiMode))
	default:
		fmt.Fprintln(os.Stderr, "nothing to do: pass -ticket, -impact, or -clusters")
		os.Exit(1)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}

func setupLogging(uiMode, verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}

	output := os.Stdout
	if uiMode {
		// In UI mode, avoid stdout logs corrupting the TUI.
		logPath := resolveLogPath()
		if err := os.MkdirAll(filepath.Dir(logPath), 0o700); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to create log dir for %s: %v\n", logPath, err)
		} else if f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600); err == nil {
			output = f
		} else {
			fmt.Fprintf(os.Stderr, "warning: failed to open log file %s: %v\n", logPath, err)
		}
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(output, &slog.HandlerOptions{
		Level: logLevel,
	})))
}

func resolveLogPath() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "gapscan", "gapscan.log")
	}
	home, err := os.UserHomeDir()
	if err == nil && home != "" {
		return filepath.Join(home, ".local", "state", "gapscan", "gapscan.log")
	}
	return "gapscan.log"
}

func newQueryService(ctx context.Context, cfg *config.Config, bundles *graph.BundleCache) (*query.Service, error) {
	bundle, err := bundles.Get(ctx, cfg.Graph.Source)
	if err != nil {
		return nil, err
	}
	detector, err := pattern.NewDetector(cfg.Patterns.ConfigGlobs)
	if err != nil {
		return nil, err
	}
	return query.NewService(bundle, detector, cfg.Graph.FanoutLimit), nil
}

func runImpact(ctx context.Context, cfg *config.Config, bundles *graph.BundleCache, file string) error {
	service, err := newQueryService(ctx, cfg, bundles)
	if err != nil {
		return err
	}
	report := service.ImpactAnalysis(ctx, []string{file}, query.ChangeContext{})
	fmt.Print(formatImpactReport(report))
	return nil
}

func runClusters(ctx context.Context, cfg *config.Config, bundles *graph.BundleCache) error {
	service, err := newQueryService(ctx, cfg, bundles)
	if err != nil {
		return err
	}
	bundle, err := bundles.Get(ctx, cfg.Graph.Source)
	if err != nil {
		return err
	}
	fmt.Print(formatClusters(service.Clusters(ctx, bundle.Files())))
	return nil
}

func runHistory(cfg *config.Config) error {
	store, err := history.Open(filepath.Join(cfg.Paths.StateDir, "history.db"))
	if err != nil {
		return err
	}
	defer store.Close()

	records, err := store.LoadRuns(time.Time{})
	if err != nil {
		return err
	}
	fmt.Print(formatHistory(records))
	return nil
}

func runScan(ctx context.Context, cfg *config.Config, bundles *graph.BundleCache, ticketPath string, uiMode bool) error {
	runner, err := scan.NewRunner(cfg, bundles)
	if err != nil {
		return err
	}
	defer runner.Close()

	if uiMode {
		return runScanWithUI(ctx, runner, ticketPath)
	}

	outcome, err := runner.Run(ctx, ticketPath)
	if err != nil {
		return err
	}
	fmt.Print(formatOutcome(outcome))
	return nil
}
