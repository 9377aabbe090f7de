package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ritsuke/hyperion/internal/cli"
	"github.com/ritsuke/hyperion/internal/config"
	"github.com/ritsuke/hyperion/internal/logging"
)

func runGenerate(args []string) int {
	fs := flag.NewFlagSet("generate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 5*time.Minute, "Command timeout")
	dateKey := fs.String("date-key", "", "Collection date key (y:m:d)")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	if strings.TrimSpace(*dateKey) == "" {
		fmt.Fprintln(os.Stderr, "--date-key is required")
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

	result, err := svcs.curator.GenerateCollections(ctx, strings.TrimSpace(*dateKey))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generate failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"exists=%t not_found=%t benchmark_ms=%d\n",
		result.Exists,
		result.NotFound,
		result.Benchmark.Milliseconds(),
	)
	return 0
}
