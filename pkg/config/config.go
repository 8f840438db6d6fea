package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	SQLite     SQLiteConfig
	Redis      RedisConfig
	LLM        LLMConfig
	Retrieval  RetrievalConfig
	Escalation EscalationConfig
	Cache      CacheConfig
	Timeouts   TimeoutConfig
	Documents  DocumentsConfig
	Logging    LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  int
	WriteTimeout int
	BodyLimit    int
}

type SQLiteConfig struct {
	Path string
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LLMConfig struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	Temperature    float32
	MaxTokens      int
}

type RetrievalConfig struct {
	TopK int
	// RelevanceFloor is the minimum passage score counted as evidence at all;
	// below it the query is INSUFFICIENT. SufficiencyFloor is the top-score
	// threshold separating AMBIGUOUS from SUFFICIENT.
	RelevanceFloor   float64
	SufficiencyFloor float64
}

type EscalationConfig struct {
	ConfidenceThreshold float64
	HighRiskIntents     []string
}

type CacheConfig struct {
	// Backend selects the response cache implementation: "memory" or "redis".
	Backend    string
	TTLSeconds int
}

type TimeoutConfig struct {
	ClassifySec int
	RetrieveSec int
	GenerateSec int
	CacheSec    int
}

type DocumentsConfig struct {
	// Dir holds one subdirectory per client with that client's source documents.
	Dir          string
	ChunkSize    int
	ChunkOverlap int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.AddConfigPath("/etc/supportdesk")

	viper.SetEnvPrefix("SUPPORT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.readTimeout", 30)
	viper.SetDefault("server.writeTimeout", 30)
	viper.SetDefault("server.bodyLimit", 1048576)

	viper.SetDefault("sqlite.path", "./data/supportdesk.db")

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("llm.model", "gpt-4")
	viper.SetDefault("llm.embeddingModel", "text-embedding-3-small")
	viper.SetDefault("llm.temperature", 0.1)
	viper.SetDefault("llm.maxTokens", 512)

	viper.SetDefault("retrieval.topK", 5)
	viper.SetDefault("retrieval.relevanceFloor", 0.25)
	viper.SetDefault("retrieval.sufficiencyFloor", 0.5)

	viper.SetDefault("escalation.confidenceThreshold", 0.75)
	viper.SetDefault("escalation.highRiskIntents", []string{
		"account_deletion",
		"billing_refund",
		"chargeback",
		"data_export",
	})

	viper.SetDefault("cache.backend", "memory")
	viper.SetDefault("cache.ttlSeconds", 3600)

	viper.SetDefault("timeouts.classifySec", 5)
	viper.SetDefault("timeouts.retrieveSec", 15)
	viper.SetDefault("timeouts.generateSec", 30)
	viper.SetDefault("timeouts.cacheSec", 2)

	viper.SetDefault("documents.dir", "./data/documents")
	viper.SetDefault("documents.chunkSize", 500)
	viper.SetDefault("documents.chunkOverlap", 50)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.outputPath", "stdout")
}
