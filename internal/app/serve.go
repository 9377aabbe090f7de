package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ritsuke/hyperion/internal/cli"
	"github.com/ritsuke/hyperion/internal/config"
	"github.com/ritsuke/hyperion/internal/httpapi"
	"github.com/ritsuke/hyperion/internal/logging"
)

func runServe(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		<-sigCh
		cancel()
	}()

	buildCtx, buildCancel := context.WithTimeout(ctx, 10*time.Second)
	defer buildCancel()

	svcs, err := buildServices(buildCtx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("serve failed to connect to stores")
		fmt.Fprintf(os.Stderr, "Failed to connect to stores: %v\n", err)
		return 1
	}
	defer svcs.Close(context.Background())

	srv := httpapi.NewServer(svcs.ingest, svcs.curator, logger, httpapi.Options{
		Host:            cfg.Host,
		Port:            cfg.Port,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
		APIKey:          cfg.IngestAPIKey,
	})

	if err := srv.Start(ctx); err != nil {
		logger.Error().Err(err).Str("host", cfg.Host).Int("port", cfg.Port).Msg("server failed")
		fmt.Fprintf(os.Stderr, "Server failed: %v\n", err)
		return 1
	}

	return 0
}
