package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_PASSWORD", "secret")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Embedding.Provider != "bedrock" || cfg.Embedding.ModelID != "amazon.titan-embed-text-v1" {
		t.Errorf("unexpected embedding defaults: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Dimension != 1536 {
		t.Errorf("expected dimension 1536, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Search.DefaultLimit != 5 || cfg.Search.CandidateCap != 500 {
		t.Errorf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Embedding.Timeout != 10*time.Second {
		t.Errorf("expected 10s embedding timeout, got %s", cfg.Embedding.Timeout)
	}
	if cfg.DB.StoreTimeout != 5*time.Second {
		t.Errorf("expected 5s store timeout, got %s", cfg.DB.StoreTimeout)
	}
	if cfg.History.MaxMessages != 50 {
		t.Errorf("expected 50 history messages, got %d", cfg.History.MaxMessages)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMBEDDING_PROVIDER", "http")
	t.Setenv("EMBEDDING_ENDPOINT", "http://localhost:11434/api/embeddings")
	t.Setenv("EMBEDDING_MODEL_ID", "nomic-embed-text")
	t.Setenv("EMBEDDING_DIMENSION", "768")
	t.Setenv("SEARCH_QUERY_TIMEOUT", "2s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "http://a.test, http://b.test")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Embedding.Provider != "http" || cfg.Embedding.ModelID != "nomic-embed-text" {
		t.Errorf("unexpected embedding config: %+v", cfg.Embedding)
	}
	if cfg.Embedding.Dimension != 768 {
		t.Errorf("expected dimension 768, got %d", cfg.Embedding.Dimension)
	}
	if cfg.Search.QueryTimeout != 2*time.Second {
		t.Errorf("expected 2s query timeout, got %s", cfg.Search.QueryTimeout)
	}
	if len(cfg.CORS.AllowedOrigins) != 2 || cfg.CORS.AllowedOrigins[1] != "http://b.test" {
		t.Errorf("unexpected origins: %v", cfg.CORS.AllowedOrigins)
	}
}

func TestLoad_BadDuration(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("EMBEDDING_TIMEOUT", "soon")

	if _, err := Load(); err == nil {
		t.Fatal("expected duration parse error")
	}
}
