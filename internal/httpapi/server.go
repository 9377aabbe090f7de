// Package httpapi exposes the ingestion and curation pipelines over
// HTTP. All pipeline routes require the configured bearer key; only the
// health probe is open.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/ritsuke/hyperion/internal/curate"
	"github.com/ritsuke/hyperion/internal/globaltime"
	"github.com/ritsuke/hyperion/internal/ingest"
)

// Ingestor runs the ingestion pipelines triggered over HTTP.
type Ingestor interface {
	ProcessNewStories(ctx context.Context, limit int) (ingest.NewStoriesResult, error)
	ProcessStoryActivity(ctx context.Context, params ingest.ActivityParams) (ingest.ActivityResult, error)
}

// Curator generates daily collections.
type Curator interface {
	GenerateCollections(ctx context.Context, dateKey string) (curate.Result, error)
}

type Options struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	APIKey          string
}

type Server struct {
	ingestor Ingestor
	curator  Curator
	logger   zerolog.Logger
	opts     Options
}

func NewServer(ingestor Ingestor, curator Curator, logger zerolog.Logger, opts Options) *Server {
	host := strings.TrimSpace(opts.Host)
	if host == "" {
		host = "0.0.0.0"
	}
	port := opts.Port
	if port <= 0 {
		port = 8080
	}
	readTimeout := opts.ReadTimeout
	if readTimeout <= 0 {
		readTimeout = 10 * time.Second
	}
	writeTimeout := opts.WriteTimeout
	if writeTimeout <= 0 {
		// Refresh runs fan out over many source calls.
		writeTimeout = 5 * time.Minute
	}
	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	return &Server{
		ingestor: ingestor,
		curator:  curator,
		logger:   logger,
		opts: Options{
			Host:            host,
			Port:            port,
			ReadTimeout:     readTimeout,
			WriteTimeout:    writeTimeout,
			ShutdownTimeout: shutdownTimeout,
			APIKey:          opts.APIKey,
		},
	}
}

func (s *Server) Start(ctx context.Context) error {
	if s == nil || s.ingestor == nil || s.curator == nil {
		return fmt.Errorf("server is not initialized")
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.httpErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRemoteIP:  true,
		LogRequestID: true,
		LogError:     true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				s.logger.Error().
					Err(v.Error).
					Str("method", v.Method).
					Str("uri", v.URI).
					Int("status", v.Status).
					Dur("latency", v.Latency).
					Str("remote_ip", v.RemoteIP).
					Str("request_id", v.RequestID).
					Msg("http request failed")
				return nil
			}

			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Str("request_id", v.RequestID).
				Msg("http request")
			return nil
		},
	}))

	e.GET("/api/v1/health", s.handleHealth)

	api := e.Group("/v1")
	api.Use(middleware.KeyAuthWithConfig(middleware.KeyAuthConfig{
		KeyLookup:  "header:" + echo.HeaderAuthorization,
		AuthScheme: "Bearer",
		Validator: func(key string, c echo.Context) (bool, error) {
			match := subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.APIKey)) == 1
			return match, nil
		},
	}))
	api.POST("/ingest/new-stories", s.handleNewStories)
	api.POST("/ingest/story-activity", s.handleStoryActivity)
	api.POST("/generate/new-collections", s.handleNewCollections)

	addr := fmt.Sprintf("%s:%d", s.opts.Host, s.opts.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      e,
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		if shutdownErr := e.Shutdown(shutdownCtx); shutdownErr != nil {
			s.logger.Error().Err(shutdownErr).Msg("server shutdown failed")
		}
	}()

	s.logger.Info().Str("addr", addr).Msg("hyperion server started")

	if err := e.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("start server: %w", err)
	}
	s.logger.Info().Msg("hyperion server stopped")
	return nil
}

func (s *Server) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := "Internal server error"
	if he, ok := err.(*echo.HTTPError); ok {
		status = he.Code
		if text, ok := he.Message.(string); ok && strings.TrimSpace(text) != "" {
			message = text
		} else if text := strings.TrimSpace(http.StatusText(status)); text != "" {
			message = text
		}
	} else if err != nil {
		message = err.Error()
	}

	if status >= 500 {
		_ = internalError(c, "Internal server error")
		return
	}
	_ = fail(c, status, message)
}

func (s *Server) handleHealth(c echo.Context) error {
	return success(c, map[string]any{
		"service": "hyperion",
		"time":    globaltime.UTC(),
	})
}

func (s *Server) handleNewStories(c echo.Context) error {
	if msg, ok := supportedDataSource(c.QueryParam("dataSource")); !ok {
		return badRequest(c, msg)
	}

	limit, err := parseIntParam(c.QueryParam("limit"), 0)
	if err != nil {
		return badRequest(c, "limit must be an integer")
	}

	result, err := s.ingestor.ProcessNewStories(c.Request().Context(), limit)
	if err != nil {
		s.logger.Error().Err(err).Msg("new story ingestion failed")
		return internalError(c, "Failed to ingest new stories")
	}

	return success(c, map[string]any{
		"new_stories_saved": result.NewStoriesSaved,
		"new_users_saved":   result.NewUsersSaved,
	})
}

func (s *Server) handleStoryActivity(c echo.Context) error {
	if msg, ok := supportedDataSource(c.QueryParam("dataSource")); !ok {
		return badRequest(c, msg)
	}

	params := ingest.ActivityParams{CommentWeight: 1}
	fields := []struct {
		name string
		dest *int
	}{
		{"start", &params.Start},
		{"end", &params.End},
		{"commentWeight", &params.CommentWeight},
		{"falloff", &params.Falloff},
		{"score", &params.MinScore},
		{"commentTotal", &params.MinCommentTotal},
	}
	for _, field := range fields {
		value, err := parseIntParam(c.QueryParam(field.name), *field.dest)
		if err != nil {
			return badRequest(c, field.name+" must be an integer")
		}
		*field.dest = value
	}

	result, err := s.ingestor.ProcessStoryActivity(c.Request().Context(), params)
	if err != nil {
		s.logger.Error().Err(err).Msg("story activity refresh failed")
		return internalError(c, "Failed to refresh story activity")
	}

	return success(c, map[string]any{
		"stories_updated_with_latest_score":         result.StoriesUpdatedWithLatestScore,
		"stories_updated_with_latest_comment_total": result.StoriesUpdatedWithLatestCommentTotal,
	})
}

func (s *Server) handleNewCollections(c echo.Context) error {
	dateKey := strings.TrimSpace(c.QueryParam("dateKey"))
	if dateKey == "" {
		return badRequest(c, "dateKey is required")
	}

	result, err := s.curator.GenerateCollections(c.Request().Context(), dateKey)
	if err != nil {
		if errors.Is(err, curate.ErrBadDateKey) {
			return badRequest(c, err.Error())
		}
		s.logger.Error().Err(err).Str("date_key", dateKey).Msg("collection generation failed")
		return internalError(c, "Failed to generate collections")
	}

	return success(c, map[string]any{
		"exists":    result.Exists,
		"not_found": result.NotFound,
		"benchmark": result.Benchmark.Milliseconds(),
	})
}

func supportedDataSource(raw string) (string, bool) {
	if strings.TrimSpace(raw) != ingest.DataSourceHN {
		return fmt.Sprintf("Unsupported data source; expected %q", ingest.DataSourceHN), false
	}
	return "", true
}

func parseIntParam(raw string, defaultValue int) (int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return defaultValue, nil
	}
	return strconv.Atoi(trimmed)
}
