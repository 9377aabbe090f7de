package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Environment:          "local",
		LogLevel:             "info",
		Host:                 "0.0.0.0",
		Port:                 8080,
		IngestAPIKey:         "secret",
		RedisURL:             "redis://localhost:6379",
		Neo4jURI:             "neo4j://localhost:7687",
		SourceUserAgent:      "hyperion-test",
		CollectionsStartDate: "2023-06-01",
		IngestConcurrency:    8,
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Port = 0 }, wantErr: "PORT"},
		{name: "missing api key", mutate: func(c *Config) { c.IngestAPIKey = " " }, wantErr: "INGEST_API_KEY"},
		{name: "missing redis url", mutate: func(c *Config) { c.RedisURL = "" }, wantErr: "REDIS_URL"},
		{name: "missing neo4j uri", mutate: func(c *Config) { c.Neo4jURI = "" }, wantErr: "NEO4J_URI"},
		{name: "missing user agent", mutate: func(c *Config) { c.SourceUserAgent = "" }, wantErr: "SOURCE_USER_AGENT"},
		{name: "bad concurrency", mutate: func(c *Config) { c.IngestConcurrency = 0 }, wantErr: "INGEST_CONCURRENCY"},
		{name: "bad start date", mutate: func(c *Config) { c.CollectionsStartDate = "June 1st" }, wantErr: "COLLECTIONS_START_DATE"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want mention of %s", err, tt.wantErr)
			}
		})
	}
}

func TestCollectionsStart(t *testing.T) {
	t.Parallel()

	cfg := validConfig()
	start, err := cfg.CollectionsStart()
	if err != nil {
		t.Fatalf("CollectionsStart: %v", err)
	}

	want := time.Date(2023, time.June, 1, 0, 0, 0, 0, time.UTC)
	if !start.Equal(want) {
		t.Fatalf("start = %v, want %v", start, want)
	}
}
