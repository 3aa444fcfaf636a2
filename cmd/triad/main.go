package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/triad/internal/app"
	"github.com/GriffinCanCode/triad/internal/infrastructure/config"
	"github.com/GriffinCanCode/triad/internal/infrastructure/device"
	"github.com/GriffinCanCode/triad/internal/infrastructure/logging"
	"github.com/GriffinCanCode/triad/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/triad/internal/infrastructure/server"
	"github.com/GriffinCanCode/triad/internal/ws"
)

const shutdownTimeout = 5 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "Config file (.yaml, .toml or .json), overrides TRIAD_CONFIG_FILE")
	dev := flag.Bool("dev", false, "Development logging (console, debug level)")
	diagnostics := flag.Bool("diagnostics", false, "Serve the diagnostics HTTP endpoints")
	flag.Parse()

	cfg, err := config.LoadWithFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		return 1
	}
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if *diagnostics {
		cfg.Diagnostics.Enabled = true
	}

	logger, err := logging.New(logging.FromConfig(cfg.Logging))
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer logger.Flush()

	metrics := monitoring.NewMetrics(nil)
	latch := device.NewLatch(logger.Task("device"))

	var hub *ws.Hub
	opts := app.Options{
		Config:    cfg,
		Logger:    logger,
		Metrics:   metrics,
		Restarter: latch,
	}
	if cfg.Diagnostics.Enabled {
		hub = ws.NewHub(logger.Task("stream"), metrics, ws.DefaultBuffer)
		opts.Sink = hub
	}

	sys, err := app.New(opts)
	if err != nil {
		logger.Error("System creation failed", zap.Error(err))
		return cfg.Device.RestartExitCode
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := sys.Start(ctx); err != nil {
		logger.Error("System start failed", zap.Error(err))
		return cfg.Device.RestartExitCode
	}

	serverErr := make(chan error, 1)
	if cfg.Diagnostics.Enabled {
		srv, err := server.New(server.Options{
			Config:      cfg.Diagnostics,
			Development: cfg.Logging.Development,
			BootID:      sys.BootID(),
			Logger:      logger.Logger,
			Metrics:     metrics,
			Status:      sys.Supervisor(),
			Tasks:       sys.Runtime(),
			Hub:         hub,
		})
		if err != nil {
			logger.Error("Diagnostics server setup failed", zap.Error(err))
		} else {
			go func() { serverErr <- srv.Start(ctx) }()
		}
	}

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutting down gracefully")
	case <-latch.Requested():
		logger.Warn("Device restart requested", zap.String("reason", latch.Reason()))
		code = cfg.Device.RestartExitCode
	case err := <-serverErr:
		if err != nil {
			logger.Error("Diagnostics server failed", zap.Error(err))
			code = 1
		}
	}

	stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sys.Stop(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("Tasks did not stop cleanly", zap.Error(err))
	}
	return code
}
