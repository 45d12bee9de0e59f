// Package config loads the application configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Conf holds the configuration loaded by Init.
var Conf Config

// Config mirrors configs/config.yaml.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Log           LogConfig           `mapstructure:"log"`
	Retrieval     RetrievalConfig     `mapstructure:"retrieval"`
	Embedding     EmbeddingConfig     `mapstructure:"embedding"`
	LLM           LLMConfig           `mapstructure:"llm"`
	Screening     ScreeningConfig     `mapstructure:"screening"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Tika          TikaConfig          `mapstructure:"tika"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	MinIO         MinIOConfig         `mapstructure:"minio"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Ingest        IngestConfig        `mapstructure:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig groups every database connection.
type DatabaseConfig struct {
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type MySQLConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// PostgresConfig is only read when retrieval.backend is "pgvector".
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
}

// RetrievalConfig selects the vector backend and its accuracy knobs.
type RetrievalConfig struct {
	// Backend is one of "mysql" (MySQL rows + in-process index), "memory",
	// "pgvector", "elasticsearch".
	Backend           string  `mapstructure:"backend"`
	DefaultDocumentID int64   `mapstructure:"default_document_id"`
	DefaultSource     string  `mapstructure:"default_source"`
	DefaultTopK       int     `mapstructure:"default_top_k"`
	MinScore          float64 `mapstructure:"min_score"`
	// Index is "flat" or "ivf" for the mysql backend.
	Index string `mapstructure:"index"`
	// Lists is the number of IVF cells; 0 derives it from the corpus size.
	Lists int `mapstructure:"lists"`
	// Probes is the number of cells (IVF / ivfflat) scanned per query.
	Probes int `mapstructure:"probes"`
	// CandidateFactor multiplies top_k into Elasticsearch num_candidates.
	CandidateFactor int `mapstructure:"candidate_factor"`
	// EmbedConcurrency bounds parallel embedding requests during indexing.
	EmbedConcurrency int `mapstructure:"embed_concurrency"`
}

// EmbeddingConfig describes the OpenAI-compatible embeddings endpoint.
type EmbeddingConfig struct {
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	Dimensions int           `mapstructure:"dimensions"`
	BatchSize  int           `mapstructure:"batch_size"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RateLimit  float64       `mapstructure:"rate_limit"`
	CacheTTL   time.Duration `mapstructure:"cache_ttl"`
}

// LLMConfig describes the chat completion endpoint.
type LLMConfig struct {
	APIKey       string              `mapstructure:"api_key"`
	BaseURL      string              `mapstructure:"base_url"`
	Model        string              `mapstructure:"model"`
	Timeout      time.Duration       `mapstructure:"timeout"`
	Generation   LLMGenerationConfig `mapstructure:"generation"`
	SystemPrompt string              `mapstructure:"system_prompt"`
}

type LLMGenerationConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`
	MaxTokens   int     `mapstructure:"max_tokens"`
}

// ScreeningConfig points at an optional reviewed rule file.
type ScreeningConfig struct {
	RulesPath   string `mapstructure:"rules_path"`
	AlertsTopic string `mapstructure:"alerts_topic"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
	GroupID string `mapstructure:"group_id"`
}

type TikaConfig struct {
	ServerURL string `mapstructure:"server_url"`
}

type ElasticsearchConfig struct {
	Addresses string `mapstructure:"addresses"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	IndexName string `mapstructure:"index_name"`
}

type MinIOConfig struct {
	Endpoint        string `mapstructure:"endpoint"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
	BucketName      string `mapstructure:"bucket_name"`
}

// AuthConfig guards the write routes.
type AuthConfig struct {
	Enabled                bool          `mapstructure:"enabled"`
	Secret                 string        `mapstructure:"secret"`
	AccessTokenExpireHours int           `mapstructure:"access_token_expire_hours"`
	RefreshTokenExpireDays int           `mapstructure:"refresh_token_expire_days"`
	Admins                 []AdminConfig `mapstructure:"admins"`
}

// AdminConfig is one admin account; PasswordHash is a bcrypt hash.
type AdminConfig struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
}

// IngestConfig controls document splitting and startup seeding.
type IngestConfig struct {
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	SeedDir      string `mapstructure:"seed_dir"`
	MaxAttempts  int    `mapstructure:"max_attempts"`
	// MaxUploadBytes caps a single uploaded file; 0 means unlimited.
	MaxUploadBytes int64 `mapstructure:"max_upload_bytes"`
}

// Init reads the YAML file at configPath into Conf. Environment variables
// prefixed with BARIA_ override file values (retrieval.backend -> BARIA_RETRIEVAL_BACKEND).
func Init(configPath string) {
	cfg, err := Load(configPath)
	if err != nil {
		panic(err)
	}
	Conf = cfg
}

// Load is Init without the global, used by the CLI and tests.
func Load(configPath string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("BARIA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if configPath != "" {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, fmt.Errorf("read config file: %w", err)
		}
	}
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 60*time.Second)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("database.redis.addr", "localhost:6379")
	v.SetDefault("database.postgres.max_open_conns", 10)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", time.Hour)

	v.SetDefault("retrieval.backend", "mysql")
	v.SetDefault("retrieval.default_document_id", 1)
	v.SetDefault("retrieval.default_source", "unknown")
	v.SetDefault("retrieval.default_top_k", 5)
	v.SetDefault("retrieval.index", "ivf")
	v.SetDefault("retrieval.probes", 10)
	v.SetDefault("retrieval.candidate_factor", 10)
	v.SetDefault("retrieval.embed_concurrency", 4)

	v.SetDefault("embedding.model", "sentence-transformers/paraphrase-multilingual-MiniLM-L12-v2")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.batch_size", 32)
	v.SetDefault("embedding.timeout", 30*time.Second)
	v.SetDefault("embedding.rate_limit", 20.0)
	v.SetDefault("embedding.cache_ttl", 24*time.Hour)

	v.SetDefault("llm.base_url", "http://ollama:11434/v1")
	v.SetDefault("llm.api_key", "ollama")
	v.SetDefault("llm.model", "llama3.1:8b")
	v.SetDefault("llm.timeout", 30*time.Second)
	v.SetDefault("llm.generation.temperature", 0.2)

	v.SetDefault("screening.alerts_topic", "baria-red-flags")

	v.SetDefault("kafka.topic", "baria-document-processing")
	v.SetDefault("kafka.group_id", "baria-go-consumer")

	v.SetDefault("elasticsearch.index_name", "baria_chunks")
	v.SetDefault("minio.bucket_name", "baria-documents")

	v.SetDefault("auth.access_token_expire_hours", 2)
	v.SetDefault("auth.refresh_token_expire_days", 7)

	v.SetDefault("ingest.chunk_size", 1000)
	v.SetDefault("ingest.chunk_overlap", 100)
	v.SetDefault("ingest.max_attempts", 3)
	v.SetDefault("ingest.max_upload_bytes", 20<<20)
}
