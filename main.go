package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/browser"
	"golang.org/x/sync/errgroup"
)

type options struct {
	configPath  string
	simType     string
	navdata     string
	logbook     string
	logLevel    string
	logDir      string
	metricsAddr string

	open        bool
	checkUpdate bool
	applyUpdate bool
	version     bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("sim-logbook", flag.ContinueOnError)
	fs.StringVar(&o.configPath, "config", filepath.Join(DefaultConfigDir(), "config.yaml"), "path to the YAML config file")
	fs.StringVar(&o.simType, "sim", "", "simulator adapter: msfs, xplane or auto")
	fs.StringVar(&o.navdata, "navdata", "", "path to a Little Navmap SQLite database for airport lookup")
	fs.StringVar(&o.logbook, "logbook", "", "path to the CSV logbook")
	fs.StringVar(&o.logLevel, "loglevel", "", "log level: debug, info, warn or error")
	fs.StringVar(&o.logDir, "logdir", "", "directory for the rotating log file")
	fs.StringVar(&o.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	fs.BoolVar(&o.open, "open", false, "open the logbook with the default application and exit")
	fs.BoolVar(&o.checkUpdate, "check-update", false, "check for a newer release and exit")
	fs.BoolVar(&o.applyUpdate, "apply-update", false, "download and install the latest release and exit")
	fs.BoolVar(&o.version, "version", false, "print the version and exit")
	err := fs.Parse(args)
	return o, err
}

// apply overlays the flags that were set on cfg.
func (o options) apply(cfg *Config) {
	if o.simType != "" {
		cfg.SimType = o.simType
	}
	if o.navdata != "" {
		cfg.NavdataPath = o.navdata
	}
	if o.logbook != "" {
		cfg.LogbookPath = o.logbook
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
	if o.logDir != "" {
		cfg.LogDir = o.logDir
	}
	if o.metricsAddr != "" {
		cfg.MetricsAddr = o.metricsAddr
	}
}

func main() {
	o, err := parseFlags(os.Args[1:])
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		os.Exit(2)
	}

	if o.version {
		fmt.Println(Version)
		return
	}

	cfg, err := LoadConfig(o.configPath)
	if err != nil {
		log.Fatal("failed to load config: ", err)
	}
	o.apply(&cfg)
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	closer, err := setupLogging(cfg.LogLevel, cfg.LogDir)
	if err != nil {
		log.Fatal("failed to set up logging: ", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case o.open:
		if err := browser.OpenFile(cfg.LogbookPath); err != nil {
			slog.Error("failed to open logbook", "path", cfg.LogbookPath, "error", err)
			os.Exit(1)
		}
		return
	case o.checkUpdate || o.applyUpdate:
		if err := runUpdate(ctx, o.applyUpdate); err != nil {
			slog.Error("update failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := run(ctx, cfg); err != nil {
		slog.Error("logger stopped", "error", err)
		os.Exit(1)
	}
}

func runUpdate(ctx context.Context, apply bool) error {
	svc, err := NewUpdateService()
	if err != nil {
		return err
	}
	check, err := svc.Check(ctx)
	if err != nil {
		return err
	}
	fmt.Println(check)
	if !apply || !check.Available {
		return nil
	}
	return svc.Apply(ctx)
}

func run(ctx context.Context, cfg Config) error {
	instance, err := NewSingleInstance()
	if err != nil {
		return err
	}
	defer instance.Close()

	book, err := OpenLogbook(cfg.LogbookPath)
	if err != nil {
		return fmt.Errorf("failed to open logbook: %w", err)
	}
	defer book.Close()
	slog.Info("logbook ready", "path", book.Path())

	// A nil *Navdata must not end up inside the interface.
	var resolver AirportResolver
	if cfg.NavdataPath != "" {
		nav, err := OpenNavdata(cfg.NavdataPath)
		if err != nil {
			slog.Warn("navdata unavailable, logging coordinates", "path", cfg.NavdataPath, "error", err)
		} else {
			defer nav.Close()
			resolver = nav
		}
	}

	source, err := NewSampleSource(cfg.SimType, cfg.XPlaneAddr)
	if err != nil {
		return err
	}

	metrics := NewMetrics()
	ingestor := NewIngestor(source, cfg, resolver, book, metrics)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ingestor.Run(ctx)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(ctx, cfg.MetricsAddr)
		})
	}

	slog.Info("waiting for simulator", "adapter", source.Name())
	return g.Wait()
}
