package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig
	Kafka       KafkaConfig
	Watcher     WatcherConfig
	Storage     ObjectStorageConfig
	Redis       RedisConfig
	Knowledge   KnowledgeConfig
	Embedding   EmbeddingConfig
	VectorStore VectorStoreConfig
	Generation  GenerationConfig
	Query       QueryConfig
}

type ServerConfig struct {
	MetricsPort string
	Env         string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
	Enabled bool
}

type WatcherConfig struct {
	Path    string
	Enabled bool
}

type ObjectStorageConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	Enabled   bool
}

type RedisConfig struct {
	Host    string
	Port    string
	DB      int
	TTL     int
	Enabled bool
}

type KnowledgeConfig struct {
	ChunkSize    int
	ChunkOverlap int
	MaxParallel  int
	MaxRetries   int
	RetryDelayMs int
}

type EmbeddingConfig struct {
	Provider   string // openai | dashscope
	Model      string
	APIKey     string
	Dimensions int
}

type VectorStoreConfig struct {
	Provider string // memory | milvus
	Milvus   MilvusConfig
}

type MilvusConfig struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	TLS        bool
}

type GenerationConfig struct {
	Model       string
	APIKey      string
	Temperature float64
	MaxTokens   int
	Enabled     bool
}

type QueryConfig struct {
	TopK        int
	Interactive bool
}

var AppConfig *Config

// LoadConfig 加载配置
func LoadConfig() error {
	// 设置默认值
	viper.SetDefault("server.metrics_port", "9102")
	viper.SetDefault("server.env", "development")

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})
	viper.SetDefault("kafka.topic", "document-changes")
	viper.SetDefault("kafka.group_id", "knowledge-sync-consumer-group")
	viper.SetDefault("kafka.enabled", false)

	viper.SetDefault("watcher.path", "./documents")
	viper.SetDefault("watcher.enabled", true)

	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.bucket", "regulatory-documents")
	viper.SetDefault("storage.use_ssl", false)
	viper.SetDefault("storage.enabled", false)

	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", 86400)
	viper.SetDefault("redis.enabled", false)

	// 知识库配置默认值
	viper.SetDefault("knowledge.chunk_size", 800)
	viper.SetDefault("knowledge.chunk_overlap", 120)
	viper.SetDefault("knowledge.max_parallel", 4)
	viper.SetDefault("knowledge.max_retries", 3)
	viper.SetDefault("knowledge.retry_delay_ms", 500)

	viper.SetDefault("embedding.provider", "openai")
	viper.SetDefault("embedding.model", "text-embedding-3-small")
	viper.SetDefault("embedding.dimensions", 1536)

	viper.SetDefault("vector_store.provider", "memory")
	viper.SetDefault("vector_store.milvus.address", "localhost:19530")
	viper.SetDefault("vector_store.milvus.collection", "compliance_chunks")
	viper.SetDefault("vector_store.milvus.database", "default")
	viper.SetDefault("vector_store.milvus.tls", false)

	viper.SetDefault("generation.model", "gpt-4o-mini")
	viper.SetDefault("generation.temperature", 0.1)
	viper.SetDefault("generation.max_tokens", 2000)
	viper.SetDefault("generation.enabled", true)

	viper.SetDefault("query.top_k", 3)
	viper.SetDefault("query.interactive", false)

	// 读取环境变量
	viper.SetEnvPrefix("KSYNC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 常用环境变量的兼容读取
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		viper.Set("embedding.api_key", key)
		viper.Set("generation.api_key", key)
	}
	if key := os.Getenv("DASHSCOPE_API_KEY"); key != "" {
		viper.Set("embedding.api_key", key)
		viper.Set("embedding.provider", "dashscope")
	}
	if path := os.Getenv("WATCH_PATH"); path != "" {
		viper.Set("watcher.path", path)
	}
	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		viper.Set("kafka.brokers", strings.Split(brokers, ","))
		viper.Set("kafka.enabled", true)
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		viper.Set("redis.host", redisHost)
		viper.Set("redis.enabled", true)
	}
	if minioEndpoint := os.Getenv("MINIO_ENDPOINT"); minioEndpoint != "" {
		viper.Set("storage.endpoint", minioEndpoint)
		viper.Set("storage.enabled", true)
	}
	if minioAccessKey := os.Getenv("MINIO_ACCESS_KEY"); minioAccessKey != "" {
		viper.Set("storage.access_key", minioAccessKey)
	}
	if minioSecretKey := os.Getenv("MINIO_SECRET_KEY"); minioSecretKey != "" {
		viper.Set("storage.secret_key", minioSecretKey)
	}

	// 可选配置文件
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			MetricsPort: viper.GetString("server.metrics_port"),
			Env:         viper.GetString("server.env"),
		},
		Kafka: KafkaConfig{
			Brokers: viper.GetStringSlice("kafka.brokers"),
			Topic:   viper.GetString("kafka.topic"),
			GroupID: viper.GetString("kafka.group_id"),
			Enabled: viper.GetBool("kafka.enabled"),
		},
		Watcher: WatcherConfig{
			Path:    viper.GetString("watcher.path"),
			Enabled: viper.GetBool("watcher.enabled"),
		},
		Storage: ObjectStorageConfig{
			Endpoint:  viper.GetString("storage.endpoint"),
			AccessKey: viper.GetString("storage.access_key"),
			SecretKey: viper.GetString("storage.secret_key"),
			Bucket:    viper.GetString("storage.bucket"),
			UseSSL:    viper.GetBool("storage.use_ssl"),
			Enabled:   viper.GetBool("storage.enabled"),
		},
		Redis: RedisConfig{
			Host:    viper.GetString("redis.host"),
			Port:    viper.GetString("redis.port"),
			DB:      viper.GetInt("redis.db"),
			TTL:     viper.GetInt("redis.ttl"),
			Enabled: viper.GetBool("redis.enabled"),
		},
		Knowledge: KnowledgeConfig{
			ChunkSize:    viper.GetInt("knowledge.chunk_size"),
			ChunkOverlap: viper.GetInt("knowledge.chunk_overlap"),
			MaxParallel:  viper.GetInt("knowledge.max_parallel"),
			MaxRetries:   viper.GetInt("knowledge.max_retries"),
			RetryDelayMs: viper.GetInt("knowledge.retry_delay_ms"),
		},
		Embedding: EmbeddingConfig{
			Provider:   viper.GetString("embedding.provider"),
			Model:      viper.GetString("embedding.model"),
			APIKey:     viper.GetString("embedding.api_key"),
			Dimensions: viper.GetInt("embedding.dimensions"),
		},
		VectorStore: VectorStoreConfig{
			Provider: viper.GetString("vector_store.provider"),
			Milvus: MilvusConfig{
				Address:    viper.GetString("vector_store.milvus.address"),
				Username:   viper.GetString("vector_store.milvus.username"),
				Password:   viper.GetString("vector_store.milvus.password"),
				Collection: viper.GetString("vector_store.milvus.collection"),
				Database:   viper.GetString("vector_store.milvus.database"),
				TLS:        viper.GetBool("vector_store.milvus.tls"),
			},
		},
		Generation: GenerationConfig{
			Model:       viper.GetString("generation.model"),
			APIKey:      viper.GetString("generation.api_key"),
			Temperature: viper.GetFloat64("generation.temperature"),
			MaxTokens:   viper.GetInt("generation.max_tokens"),
			Enabled:     viper.GetBool("generation.enabled"),
		},
		Query: QueryConfig{
			TopK:        viper.GetInt("query.top_k"),
			Interactive: viper.GetBool("query.interactive"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	AppConfig = cfg
	return nil
}

// Validate 校验配置
//
// 向量维度是进程级常量，配置错误必须在启动时失败，
// 避免把不兼容的向量写进索引。
func (c *Config) Validate() error {
	if c.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding.dimensions must be positive, got %d", c.Embedding.Dimensions)
	}
	if c.Knowledge.ChunkSize <= 0 {
		return fmt.Errorf("knowledge.chunk_size must be positive, got %d", c.Knowledge.ChunkSize)
	}
	if c.Knowledge.ChunkOverlap >= c.Knowledge.ChunkSize {
		return fmt.Errorf("knowledge.chunk_overlap must be smaller than chunk_size")
	}
	if c.Query.TopK <= 0 {
		return fmt.Errorf("query.top_k must be positive, got %d", c.Query.TopK)
	}
	switch c.VectorStore.Provider {
	case "memory", "milvus":
	default:
		return fmt.Errorf("unknown vector_store.provider: %s", c.VectorStore.Provider)
	}
	return nil
}

// GetAppConfig 获取全局配置
func GetAppConfig() *Config {
	return AppConfig
}
