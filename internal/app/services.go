package app

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/ritsuke/hyperion/internal/activity"
	"github.com/ritsuke/hyperion/internal/config"
	"github.com/ritsuke/hyperion/internal/curate"
	"github.com/ritsuke/hyperion/internal/docstore"
	"github.com/ritsuke/hyperion/internal/enrich"
	"github.com/ritsuke/hyperion/internal/graph"
	"github.com/ritsuke/hyperion/internal/hnclient"
	"github.com/ritsuke/hyperion/internal/ingest"
)

// services wires the store clients and pipelines every command shares.
type services struct {
	rdb     *redis.Client
	graph   *graph.Store
	docs    *docstore.Store
	ingest  *ingest.Service
	curator *curate.Service
	logger  zerolog.Logger
}

func buildServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*services, error) {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	rdb := redis.NewClient(redisOpts)

	graphStore, err := graph.NewStore(cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword, logger)
	if err != nil {
		rdb.Close()
		return nil, err
	}

	docs := docstore.New(rdb, logger)
	if err := docs.EnsureStoryIndex(ctx); err != nil {
		rdb.Close()
		graphStore.Close(ctx)
		return nil, err
	}

	series := activity.NewSeries(rdb, logger)
	source := hnclient.New(hnclient.Options{
		UserAgent: cfg.SourceUserAgent,
		Timeout:   cfg.SourceTimeout,
	}, logger)
	images := enrich.NewUnsplash(cfg.UnsplashAccessKey, cfg.EnrichTimeout, logger)

	// Validated by config.Load.
	startDate, err := cfg.CollectionsStart()
	if err != nil {
		rdb.Close()
		graphStore.Close(ctx)
		return nil, err
	}

	return &services{
		rdb:     rdb,
		graph:   graphStore,
		docs:    docs,
		ingest:  ingest.NewService(source, graphStore, series, docs, logger, cfg.IngestConcurrency),
		curator: curate.NewService(graphStore, series, docs, images, startDate, logger),
		logger:  logger,
	}, nil
}

func (s *services) Close(ctx context.Context) {
	if err := s.rdb.Close(); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close redis client")
	}
	if err := s.graph.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("failed to close graph driver")
	}
}
