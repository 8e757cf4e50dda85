package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-yaml"
)

// Config is the full gateway configuration.
type Config struct {
	LogLevel     string             `yaml:"log_level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR"`
	Server       ServerConfig       `yaml:"server"`
	Cache        CacheConfig        `yaml:"cache"`
	Embedding    EmbeddingConfig    `yaml:"embedding"`
	Completion   CompletionConfig   `yaml:"completion"`
	Qdrant       QdrantConfig       `yaml:"qdrant"`
	Redis        RedisConfig        `yaml:"redis"`
	Bolt         BoltConfig         `yaml:"bolt"`
	Conversation ConversationConfig `yaml:"conversation"`
	Knowledge    KnowledgeConfig    `yaml:"knowledge"`
}

type ServerConfig struct {
	Port                   int  `yaml:"port" validate:"gt=0,lte=65535"`
	DebugMode              bool `yaml:"debug_mode"`
	ShutdownTimeoutSeconds int  `yaml:"shutdown_timeout_seconds" validate:"gte=0"`
	JanitorIntervalSeconds int  `yaml:"janitor_interval_seconds" validate:"gte=0"`
}

// CacheConfig controls the semantic cache. Remote, when set, is the address
// of a cache gRPC service and replaces the in-process engine.
type CacheConfig struct {
	Remote              string  `yaml:"remote"`
	GRPCPort            int     `yaml:"grpc_port" validate:"gt=0,lte=65535"`
	Backend             string  `yaml:"backend" validate:"oneof=qdrant memory"`
	DocStore            string  `yaml:"doc_store" validate:"oneof=redis bolt"`
	SimilarityThreshold float64 `yaml:"similarity_threshold" validate:"gte=0,lte=1"`
	CandidateCount      int     `yaml:"candidate_count" validate:"gte=1"`
	TTLMinutes          int     `yaml:"ttl_minutes" validate:"gte=1"`
}

type EmbeddingConfig struct {
	Remote            string  `yaml:"remote"`
	GRPCPort          int     `yaml:"grpc_port" validate:"gt=0,lte=65535"`
	Endpoint          string  `yaml:"endpoint" validate:"omitempty,url"`
	Model             string  `yaml:"model"`
	APIKeyEnv         string  `yaml:"api_key_env"`
	Dimensions        int     `yaml:"dimensions" validate:"gt=0"`
	TimeoutSeconds    int     `yaml:"timeout_seconds" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" validate:"gte=0"`
	Burst             int     `yaml:"burst" validate:"gte=0"`
	MaxRetries        int     `yaml:"max_retries" validate:"gte=0"`
}

type CompletionConfig struct {
	Remote         string  `yaml:"remote"`
	GRPCPort       int     `yaml:"grpc_port" validate:"gt=0,lte=65535"`
	Endpoint       string  `yaml:"endpoint" validate:"omitempty,url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model" validate:"required"`
	Temperature    float64 `yaml:"temperature" validate:"gte=0,lte=2"`
	MaxTokens      int     `yaml:"max_tokens" validate:"gte=0"`
	SystemPrompt   string  `yaml:"system_prompt"`
	TimeoutSeconds int     `yaml:"timeout_seconds" validate:"gte=0"`
}

type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port" validate:"gt=0,lte=65535"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection" validate:"required"`
}

type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db" validate:"gte=0"`
	PoolSize  int    `yaml:"pool_size" validate:"gte=0"`
	KeyPrefix string `yaml:"key_prefix"`
}

type BoltConfig struct {
	Path   string `yaml:"path"`
	Bucket string `yaml:"bucket"`
}

type ConversationConfig struct {
	Enabled      bool `yaml:"enabled"`
	HistoryLimit int  `yaml:"history_limit" validate:"gte=1"`
	TTLMinutes   int  `yaml:"ttl_minutes" validate:"gte=0"`
}

// KnowledgeConfig controls document retrieval for /api/query. Passages are
// kept in their own Qdrant collection, or in memory with the memory backend.
type KnowledgeConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Collection string   `yaml:"collection" validate:"required"`
	TopK       int      `yaml:"top_k" validate:"gte=1"`
	ChunkRunes int      `yaml:"chunk_runes" validate:"gte=1"`
	Extensions []string `yaml:"extensions" validate:"dive,startswith=."`
}

// Default returns a Config with the gateway's defaults.
func Default() *Config {
	return &Config{
		LogLevel: "ERROR",
		Server: ServerConfig{
			Port:                   8080,
			ShutdownTimeoutSeconds: 5,
			JanitorIntervalSeconds: 600,
		},
		Cache: CacheConfig{
			GRPCPort:            50052,
			Backend:             "qdrant",
			DocStore:            "redis",
			SimilarityThreshold: 0.85,
			CandidateCount:      3,
			TTLMinutes:          1440,
		},
		Embedding: EmbeddingConfig{
			GRPCPort:          50051,
			Endpoint:          "https://api.openai.com/v1/embeddings",
			Model:             "text-embedding-3-small",
			APIKeyEnv:         "OPENAI_API_KEY",
			Dimensions:        1536,
			TimeoutSeconds:    30,
			RequestsPerSecond: 20,
			Burst:             5,
			MaxRetries:        2,
		},
		Completion: CompletionConfig{
			GRPCPort:       50053,
			Endpoint:       "https://api.openai.com/v1/chat/completions",
			APIKeyEnv:      "OPENAI_API_KEY",
			Model:          "gpt-4o-mini",
			Temperature:    0.7,
			MaxTokens:      1024,
			SystemPrompt:   "Return the response in plain text, do not use markdown. Answer in an informal and casual conversational manner.",
			TimeoutSeconds: 120,
		},
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "llm_semantic_cache",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			KeyPrefix: "rag_gateway:",
		},
		Bolt: BoltConfig{
			Path:   "rag_gateway.bbolt",
			Bucket: "semantic_cache",
		},
		Conversation: ConversationConfig{
			Enabled:      true,
			HistoryLimit: 10,
			TTLMinutes:   1440,
		},
		Knowledge: KnowledgeConfig{
			Enabled:    true,
			Collection: "rag_documents",
			TopK:       4,
			ChunkRunes: 2000,
			Extensions: []string{".json", ".md", ".txt"},
		},
	}
}

// Load reads a YAML file (expanding ${ENV} references), applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		expanded := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.LogLevel = strings.ToUpper(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Embedding.Remote == "" && c.Embedding.Endpoint == "" {
		return fmt.Errorf("invalid config: embedding needs either remote or endpoint")
	}
	if c.Completion.Remote == "" && c.Completion.Endpoint == "" {
		return fmt.Errorf("invalid config: completion needs either remote or endpoint")
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv("CACHE_ADDR"); v != "" {
		c.Cache.Remote = v
	}
	if v := os.Getenv("EMBEDDING_ADDR"); v != "" {
		c.Embedding.Remote = v
	}
	if v := os.Getenv("COMPL_ADDR"); v != "" {
		c.Completion.Remote = v
	}
	if v := os.Getenv("COMPL_ENDPOINT"); v != "" {
		c.Completion.Endpoint = v
	}
	if v := os.Getenv("EMBEDDING_ENDPOINT"); v != "" {
		c.Embedding.Endpoint = v
	}
	if v := os.Getenv("QDRANT_HOST"); v != "" {
		c.Qdrant.Host = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if os.Getenv("DEBUG_MODE") == "true" {
		c.Server.DebugMode = true
	}
	if v := os.Getenv("SERVE_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid SERVE_PORT %q: %w", v, err)
		}
		c.Server.Port = port
	}
	return nil
}

// ShutdownTimeout is the grace period for in-flight requests.
func (c ServerConfig) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSeconds) * time.Second
}

// JanitorInterval is how often expired cache points are pruned. Zero disables it.
func (c ServerConfig) JanitorInterval() time.Duration {
	return time.Duration(c.JanitorIntervalSeconds) * time.Second
}

func (c EmbeddingConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c CompletionConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ConversationConfig) TTL() time.Duration {
	return time.Duration(c.TTLMinutes) * time.Minute
}
