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
	"github.com/ritsuke/hyperion/internal/ingest"
	"github.com/ritsuke/hyperion/internal/logging"
)

func runRefresh(args []string) int {
	fs := flag.NewFlagSet("refresh", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	timeout := fs.Duration("timeout", 10*time.Minute, "Command timeout")
	start := fs.Int("start", 0, "Window start, hours back from now")
	end := fs.Int("end", 24, "Window end, hours back from now")
	commentWeight := fs.Int("comment-weight", 1, "Comment weight multiplier (1-100)")
	falloff := fs.Int("falloff", 0, "Weight falloff percentage (0-100)")
	minScore := fs.Int("score", 0, "Minimum stored score")
	minCommentTotal := fs.Int("comment-total", 0, "Minimum stored comment total")

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

	result, err := svcs.ingest.ProcessStoryActivity(ctx, ingest.ActivityParams{
		Start:           *start,
		End:             *end,
		MinScore:        *minScore,
		MinCommentTotal: *minCommentTotal,
		CommentWeight:   *commentWeight,
		Falloff:         *falloff,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Refresh failed: %v\n", err)
		return 1
	}

	fmt.Printf(
		"stories_updated_with_latest_score=%d stories_updated_with_latest_comment_total=%d\n",
		result.StoriesUpdatedWithLatestScore,
		result.StoriesUpdatedWithLatestCommentTotal,
	)
	return 0
}
