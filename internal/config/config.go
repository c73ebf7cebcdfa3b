package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/dotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Server    ServerConfig
	DB        DBConfig
	Redis     RedisConfig
	NATS      NATSConfig
	Embedding EmbeddingConfig
	Search    SearchConfig
	History   HistoryConfig
	CORS      CORSConfig
	Log       LogConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type DBConfig struct {
	Host           string
	Port           int
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxConns       int32
	MigrationsPath string
	ProbeTimeout   time.Duration
	// StoreTimeout bounds each write, history and delete statement.
	StoreTimeout time.Duration
}

func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// NATSConfig is optional; an empty URL disables the JetStream consumers and publisher.
type NATSConfig struct {
	URL string
}

type EmbeddingConfig struct {
	Provider  string // "bedrock" or "http"
	ModelID   string
	Region    string
	Endpoint  string
	Dimension int
	Timeout   time.Duration
}

type SearchConfig struct {
	DefaultLimit int
	MaxLimit     int
	CandidateCap int
	QueryTimeout time.Duration
}

type HistoryConfig struct {
	MaxMessages int
	TTL         time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

func Load() (*Config, error) {
	k := koanf.New(".")

	// Load .env file if it exists (ignore error if missing)
	_ = k.Load(file.Provider(".env"), dotenv.Parser())

	// Load environment variables (override .env)
	err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(strings.ReplaceAll(s, "_", "."))
	}), nil)
	if err != nil {
		return nil, fmt.Errorf("loading env vars: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: k.String("server.host"),
			Port: k.Int("server.port"),
		},
		DB: DBConfig{
			Host:           k.String("db.host"),
			Port:           k.Int("db.port"),
			User:           k.String("db.user"),
			Password:       k.String("db.password"),
			Name:           k.String("db.name"),
			SSLMode:        k.String("db.sslmode"),
			MaxConns:       int32(k.Int("db.max.conns")),
			MigrationsPath: k.String("db.migrations.path"),
		},
		Redis: RedisConfig{
			Host:     k.String("redis.host"),
			Port:     k.Int("redis.port"),
			Password: k.String("redis.password"),
			DB:       k.Int("redis.db"),
		},
		NATS: NATSConfig{
			URL: k.String("nats.url"),
		},
		Embedding: EmbeddingConfig{
			Provider:  k.String("embedding.provider"),
			ModelID:   k.String("embedding.model.id"),
			Region:    k.String("aws.region"),
			Endpoint:  k.String("embedding.endpoint"),
			Dimension: k.Int("embedding.dimension"),
		},
		Search: SearchConfig{
			DefaultLimit: k.Int("search.default.limit"),
			MaxLimit:     k.Int("search.max.limit"),
			CandidateCap: k.Int("search.candidate.cap"),
		},
		History: HistoryConfig{
			MaxMessages: k.Int("history.max.messages"),
		},
		Log: LogConfig{
			Level:  k.String("log.level"),
			Format: k.String("log.format"),
		},
	}

	if origins := k.String("cors.allowed.origins"); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORS.AllowedOrigins = append(cfg.CORS.AllowedOrigins, o)
			}
		}
	}

	// Apply defaults
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8000
	}
	if cfg.DB.Host == "" {
		cfg.DB.Host = "localhost"
	}
	if cfg.DB.Port == 0 {
		cfg.DB.Port = 5432
	}
	if cfg.DB.User == "" {
		cfg.DB.User = "postgres"
	}
	if cfg.DB.Name == "" {
		cfg.DB.Name = "jiwon"
	}
	if cfg.DB.SSLMode == "" {
		cfg.DB.SSLMode = "disable"
	}
	if cfg.DB.MaxConns == 0 {
		cfg.DB.MaxConns = 25
	}
	if cfg.DB.MigrationsPath == "" {
		cfg.DB.MigrationsPath = "migrations"
	}
	if cfg.Redis.Host == "" {
		cfg.Redis.Host = "localhost"
	}
	if cfg.Redis.Port == 0 {
		cfg.Redis.Port = 6379
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "bedrock"
	}
	if cfg.Embedding.ModelID == "" && cfg.Embedding.Provider == "bedrock" {
		cfg.Embedding.ModelID = "amazon.titan-embed-text-v1"
	}
	if cfg.Embedding.Region == "" {
		cfg.Embedding.Region = "us-east-1"
	}
	if cfg.Embedding.Dimension == 0 {
		cfg.Embedding.Dimension = 1536
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 5
	}
	if cfg.Search.MaxLimit == 0 {
		cfg.Search.MaxLimit = 50
	}
	if cfg.Search.CandidateCap == 0 {
		cfg.Search.CandidateCap = 500
	}
	if cfg.History.MaxMessages == 0 {
		cfg.History.MaxMessages = 50
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}

	// Parse durations
	durations := []struct {
		key  string
		def  string
		dest *time.Duration
	}{
		{"embedding.timeout", "10s", &cfg.Embedding.Timeout},
		{"search.query.timeout", "5s", &cfg.Search.QueryTimeout},
		{"db.probe.timeout", "5s", &cfg.DB.ProbeTimeout},
		{"db.store.timeout", "5s", &cfg.DB.StoreTimeout},
		{"history.ttl", "24h", &cfg.History.TTL},
	}
	for _, d := range durations {
		raw := k.String(d.key)
		if raw == "" {
			raw = d.def
		}
		*d.dest, err = time.ParseDuration(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", d.key, err)
		}
	}

	return cfg, nil
}
