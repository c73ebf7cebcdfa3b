package config

import (
	"strings"
	"testing"
	"time"
)

func validConfig() *Config {
	return &Config{
		Server: ServerConfig{Host: "0.0.0.0", Port: 8000},
		DB: DBConfig{
			Host: "localhost", Port: 5432, User: "postgres",
			Password: "secret", Name: "jiwon", SSLMode: "disable", MaxConns: 25,
			StoreTimeout: 5 * time.Second,
		},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		NATS:  NATSConfig{URL: "nats://localhost:4222"},
		Embedding: EmbeddingConfig{
			Provider:  "bedrock",
			ModelID:   "amazon.titan-embed-text-v1",
			Region:    "us-east-1",
			Dimension: 1536,
			Timeout:   10 * time.Second,
		},
		Search: SearchConfig{DefaultLimit: 5, MaxLimit: 50, CandidateCap: 500, QueryTimeout: 5 * time.Second},
	}
}

func TestValidate_ValidConfig(t *testing.T) {
	cfg := validConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected no error, got: %v", err)
	}
}

func TestValidate_DBPasswordRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.Password = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_PASSWORD") {
		t.Fatalf("expected DB_PASSWORD error, got: %v", err)
	}
}

func TestValidate_InvalidPorts(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Port = 0
	cfg.DB.Port = 99999
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected port validation errors")
	}
	if !strings.Contains(err.Error(), "SERVER_PORT") {
		t.Errorf("expected SERVER_PORT error in: %v", err)
	}
	if !strings.Contains(err.Error(), "DB_PORT") {
		t.Errorf("expected DB_PORT error in: %v", err)
	}
}

func TestValidate_UnknownEmbeddingProvider(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "openai"
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMBEDDING_PROVIDER") {
		t.Fatalf("expected EMBEDDING_PROVIDER error, got: %v", err)
	}
}

func TestValidate_HTTPProviderNeedsEndpoint(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Provider = "http"
	cfg.Embedding.Endpoint = ""
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMBEDDING_ENDPOINT") {
		t.Fatalf("expected EMBEDDING_ENDPOINT error, got: %v", err)
	}
}

func TestValidate_Dimension(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimension = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "EMBEDDING_DIMENSION") {
		t.Fatalf("expected EMBEDDING_DIMENSION error, got: %v", err)
	}
}

func TestValidate_CandidateCapBelowMaxLimit(t *testing.T) {
	cfg := validConfig()
	cfg.Search.CandidateCap = 10
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "SEARCH_CANDIDATE_CAP") {
		t.Fatalf("expected SEARCH_CANDIDATE_CAP error, got: %v", err)
	}
}

func TestValidate_StoreTimeoutRequired(t *testing.T) {
	cfg := validConfig()
	cfg.DB.StoreTimeout = 0
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "DB_STORE_TIMEOUT") {
		t.Fatalf("expected DB_STORE_TIMEOUT error, got: %v", err)
	}
}

func TestValidate_MultipleErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{Port: 0},
		DB:     DBConfig{Port: 5432},
		Redis:  RedisConfig{Port: 6379},
	}
	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected multiple validation errors")
	}
	errStr := err.Error()
	for _, substr := range []string{"DB_PASSWORD", "SERVER_PORT", "EMBEDDING_PROVIDER", "EMBEDDING_DIMENSION", "SEARCH_QUERY_TIMEOUT"} {
		if !strings.Contains(errStr, substr) {
			t.Errorf("expected %q in error: %s", substr, errStr)
		}
	}
}
