package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/ritsuke/hyperion/internal/cli"
	"github.com/ritsuke/hyperion/internal/config"
	"github.com/ritsuke/hyperion/internal/logging"
)

func runHealth(args []string) int {
	fs := flag.NewFlagSet("health", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Second, "Command timeout")

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

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	svcs, err := buildServices(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("store connection failed")
		fmt.Fprintf(os.Stderr, "Failed to connect to stores: %v\n", err)
		return 1
	}
	defer svcs.Close(context.Background())

	if err := svcs.docs.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Redis ping failed: %v\n", err)
		return 1
	}
	if err := svcs.graph.Ping(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Neo4j ping failed: %v\n", err)
		return 1
	}

	fmt.Println("ok")
	return 0
}
