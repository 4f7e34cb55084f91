// Package config loads and validates search pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/hybrid-search/internal/logging"
)

// Config captures all pipeline and service knobs loaded via Viper.
type Config struct {
	Logging    logging.Config   `mapstructure:"logging"`
	Crawler    CrawlerConfig    `mapstructure:"crawler"`
	Politeness PolitenessConfig `mapstructure:"politeness"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Dedup      DedupConfig      `mapstructure:"dedup"`
	Index      IndexConfig      `mapstructure:"index"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Ranking    RankingConfig    `mapstructure:"ranking"`
	Server     ServerConfig     `mapstructure:"server"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Redis      RedisConfig      `mapstructure:"redis"`
}

// CrawlerConfig governs the crawl worker pool and fetcher.
type CrawlerConfig struct {
	Seeds          []string `mapstructure:"seeds"`
	Limit          int      `mapstructure:"limit"`
	MaxConcurrency int      `mapstructure:"max_concurrency"`
	UserAgent      string   `mapstructure:"user_agent"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxBodyBytes   int      `mapstructure:"max_body_bytes"`
}

// PolitenessConfig controls robots.txt handling and per-domain spacing.
type PolitenessConfig struct {
	DefaultDelayMs       int  `mapstructure:"default_delay_ms"`
	RobotsTimeoutSeconds int  `mapstructure:"robots_timeout_seconds"`
	AgentGroups          bool `mapstructure:"agent_groups"`
}

// StorageConfig sets where raw pages, parsed documents and snapshots live.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	RawDir      string `mapstructure:"raw_dir"`
	ParsedDir   string `mapstructure:"parsed_dir"`
	SnapshotDir string `mapstructure:"snapshot_dir"`
	GCSBucket   string `mapstructure:"gcs_bucket"`
	Prefix      string `mapstructure:"prefix"`
}

// DedupConfig tunes the MinHash/LSH near-duplicate detector.
type DedupConfig struct {
	Threshold      float64 `mapstructure:"threshold"`
	NumPerm        int     `mapstructure:"num_perm"`
	Seed           int64   `mapstructure:"seed"`
	CanonicalOrder bool    `mapstructure:"canonical_order"`
}

// IndexConfig names the index snapshot file.
type IndexConfig struct {
	File string `mapstructure:"file"`
}

// EmbeddingConfig selects and configures the embedding collaborator.
type EmbeddingConfig struct {
	Provider   string `mapstructure:"provider"`
	BaseURL    string `mapstructure:"base_url"`
	Model      string `mapstructure:"model"`
	Token      string `mapstructure:"token"`
	Dimensions int    `mapstructure:"dimensions"`
	File       string `mapstructure:"file"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// RankingConfig holds the scoring parameters.
type RankingConfig struct {
	K1          float64 `mapstructure:"k1"`
	B           float64 `mapstructure:"b"`
	Alpha       float64 `mapstructure:"alpha"`
	DefaultTopK int     `mapstructure:"default_top_k"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// DBConfig controls the optional Postgres retrieval log.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig holds Google Pub/Sub settings for page events.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// KafkaConfig holds Kafka settings for page events.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// RedisConfig configures the optional search result cache.
type RedisConfig struct {
	Addr       string `mapstructure:"addr"`
	Password   string `mapstructure:"password"`
	DB         int    `mapstructure:"db"`
	TTLSeconds int    `mapstructure:"ttl_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("crawler.seeds", []string{})
	v.SetDefault("crawler.limit", 20)
	v.SetDefault("crawler.max_concurrency", 3)
	v.SetDefault("crawler.user_agent", "hybrid-search-bot/0.1")
	v.SetDefault("crawler.timeout_seconds", 10)
	v.SetDefault("crawler.max_body_bytes", 10<<20)
	v.SetDefault("politeness.default_delay_ms", 1000)
	v.SetDefault("politeness.robots_timeout_seconds", 5)
	v.SetDefault("politeness.agent_groups", false)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.raw_dir", "data/raw")
	v.SetDefault("storage.parsed_dir", "data/parsed")
	v.SetDefault("storage.snapshot_dir", "data")
	v.SetDefault("storage.prefix", "raw")
	v.SetDefault("dedup.threshold", 0.9)
	v.SetDefault("dedup.num_perm", 128)
	v.SetDefault("dedup.seed", 1)
	v.SetDefault("dedup.canonical_order", true)
	v.SetDefault("index.file", "index.snap")
	v.SetDefault("embedding.provider", "hashing")
	v.SetDefault("embedding.model", "all-MiniLM-L6-v2")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.file", "embeddings.snap")
	v.SetDefault("embedding.pool_size", 4)
	v.SetDefault("ranking.k1", 1.5)
	v.SetDefault("ranking.b", 0.75)
	v.SetDefault("ranking.alpha", 0.7)
	v.SetDefault("ranking.default_top_k", 10)
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("db.table", "retrievals")
	v.SetDefault("redis.ttl_seconds", 300)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Crawler.Limit <= 0 {
		return fmt.Errorf("crawler.limit must be > 0")
	}
	if c.Crawler.MaxConcurrency <= 0 {
		return fmt.Errorf("crawler.max_concurrency must be > 0")
	}
	if c.Crawler.TimeoutSeconds <= 0 {
		return fmt.Errorf("crawler.timeout_seconds must be > 0")
	}
	if c.Politeness.DefaultDelayMs < 0 {
		return fmt.Errorf("politeness.default_delay_ms must be >= 0")
	}
	switch c.Storage.Backend {
	case "local", "memory":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("storage.backend must be one of local, memory, gcs")
	}
	if c.Dedup.Threshold <= 0 || c.Dedup.Threshold > 1 {
		return fmt.Errorf("dedup.threshold must be in (0, 1]")
	}
	if c.Dedup.NumPerm < 2 {
		return fmt.Errorf("dedup.num_perm must be >= 2")
	}
	if c.Ranking.Alpha < 0 || c.Ranking.Alpha > 1 {
		return fmt.Errorf("ranking.alpha must be in [0, 1]")
	}
	if c.Ranking.K1 < 0 {
		return fmt.Errorf("ranking.k1 must be >= 0")
	}
	if c.Ranking.B < 0 || c.Ranking.B > 1 {
		return fmt.Errorf("ranking.b must be in [0, 1]")
	}
	switch c.Embedding.Provider {
	case "hashing":
		if c.Embedding.Dimensions <= 0 {
			return fmt.Errorf("embedding.dimensions must be > 0")
		}
	case "openai":
		if c.Embedding.BaseURL == "" {
			return fmt.Errorf("embedding.base_url must be set when embedding.provider is openai")
		}
	default:
		return fmt.Errorf("embedding.provider must be one of hashing, openai")
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return fmt.Errorf("kafka.topic must be set when kafka.brokers is configured")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is configured")
	}
	return nil
}

// FetchTimeout converts the crawler timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Crawler.TimeoutSeconds) * time.Second
}

// DefaultDelay is the crawl delay applied when robots.txt declares none.
func (c Config) DefaultDelay() time.Duration {
	return time.Duration(c.Politeness.DefaultDelayMs) * time.Millisecond
}

// RobotsTimeout bounds each robots.txt fetch.
func (c Config) RobotsTimeout() time.Duration {
	return time.Duration(c.Politeness.RobotsTimeoutSeconds) * time.Second
}

// CacheTTL is the search result cache lifetime.
func (c Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.TTLSeconds) * time.Second
}
