package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Validate checks Config for production-critical problems.
// It collects all errors into a single joined error.
func (c *Config) Validate() error {
	var errs []string

	// DB password
	if c.DB.Password == "" {
		errs = append(errs, "DB_PASSWORD is required")
	}

	// Port ranges
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("SERVER_PORT must be 1–65535, got %d", c.Server.Port))
	}
	if c.DB.Port < 1 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Sprintf("DB_PORT must be 1–65535, got %d", c.DB.Port))
	}
	if c.Redis.Port < 1 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Sprintf("REDIS_PORT must be 1–65535, got %d", c.Redis.Port))
	}

	// Embedding model
	switch c.Embedding.Provider {
	case "bedrock":
		if c.Embedding.Region == "" {
			errs = append(errs, "AWS_REGION is required for the bedrock embedding provider")
		}
	case "http":
		if c.Embedding.Endpoint == "" {
			errs = append(errs, "EMBEDDING_ENDPOINT is required for the http embedding provider")
		}
		if c.Embedding.ModelID == "" {
			errs = append(errs, "EMBEDDING_MODEL_ID is required for the http embedding provider")
		}
	default:
		errs = append(errs, fmt.Sprintf("EMBEDDING_PROVIDER must be bedrock or http, got %q", c.Embedding.Provider))
	}
	if c.Embedding.Dimension < 1 || c.Embedding.Dimension > 16000 {
		errs = append(errs, fmt.Sprintf("EMBEDDING_DIMENSION must be 1–16000, got %d", c.Embedding.Dimension))
	}
	if c.Embedding.Timeout <= 0 {
		errs = append(errs, "EMBEDDING_TIMEOUT must be positive")
	}

	// Search bounds
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxLimit {
		errs = append(errs, fmt.Sprintf("SEARCH_DEFAULT_LIMIT must be 1–%d, got %d", c.Search.MaxLimit, c.Search.DefaultLimit))
	}
	if c.Search.CandidateCap < c.Search.MaxLimit {
		errs = append(errs, fmt.Sprintf("SEARCH_CANDIDATE_CAP must be at least SEARCH_MAX_LIMIT (%d), got %d", c.Search.MaxLimit, c.Search.CandidateCap))
	}
	if c.Search.QueryTimeout <= 0 {
		errs = append(errs, "SEARCH_QUERY_TIMEOUT must be positive")
	}
	if c.DB.StoreTimeout <= 0 {
		errs = append(errs, "DB_STORE_TIMEOUT must be positive")
	}

	// NATS: warn only
	if c.NATS.URL == "" {
		slog.Warn("NATS_URL is empty, message ingest and session events are disabled")
	}

	if len(errs) > 0 {
		return errors.New("config validation failed:\n  " + strings.Join(errs, "\n  "))
	}
	return nil
}
