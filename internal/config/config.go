package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Host            string        `envconfig:"HTTP_HOST" default:"0.0.0.0"`
	Port            int           `envconfig:"PORT" default:"8080"`
	ReadTimeout     time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"120s"`
	ShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`

	IngestAPIKey string `envconfig:"INGEST_API_KEY" required:"true"`

	RedisURL      string `envconfig:"REDIS_URL" required:"true"`
	Neo4jURI      string `envconfig:"NEO4J_URI" required:"true"`
	Neo4jUser     string `envconfig:"NEO4J_USER" default:"neo4j"`
	Neo4jPassword string `envconfig:"NEO4J_PASSWORD" default:""`

	SourceUserAgent string        `envconfig:"SOURCE_USER_AGENT" required:"true"`
	SourceTimeout   time.Duration `envconfig:"SOURCE_TIMEOUT" default:"20s"`

	UnsplashAccessKey string        `envconfig:"UNSPLASH_ACCESS_KEY" default:""`
	EnrichTimeout     time.Duration `envconfig:"ENRICH_TIMEOUT" default:"10s"`

	// Collections exist only for dates on or after this day (YYYY-MM-DD, UTC).
	CollectionsStartDate string `envconfig:"COLLECTIONS_START_DATE" required:"true"`

	IngestConcurrency int `envconfig:"INGEST_CONCURRENCY" default:"8"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if strings.TrimSpace(c.IngestAPIKey) == "" {
		return fmt.Errorf("INGEST_API_KEY is required")
	}
	if strings.TrimSpace(c.RedisURL) == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if strings.TrimSpace(c.Neo4jURI) == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if strings.TrimSpace(c.SourceUserAgent) == "" {
		return fmt.Errorf("SOURCE_USER_AGENT is required")
	}
	if c.IngestConcurrency < 1 {
		return fmt.Errorf("INGEST_CONCURRENCY must be >= 1")
	}
	if _, err := c.CollectionsStart(); err != nil {
		return err
	}
	return nil
}

// CollectionsStart parses COLLECTIONS_START_DATE into the start of that
// day in UTC.
func (c *Config) CollectionsStart() (time.Time, error) {
	raw := strings.TrimSpace(c.CollectionsStartDate)
	start, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("COLLECTIONS_START_DATE must be YYYY-MM-DD: %w", err)
	}
	return start, nil
}
