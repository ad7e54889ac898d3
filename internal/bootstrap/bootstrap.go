package bootstrap

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/config"
	"github.com/aihub/knowledge-sync/internal/event"
	"github.com/aihub/knowledge-sync/internal/knowledge"
	"github.com/aihub/knowledge-sync/internal/logger"
	"github.com/aihub/knowledge-sync/internal/metrics"
)

// App encapsulates lifecycle resources that need to be cleaned up on shutdown.
type App struct {
	Container *dig.Container

	Coordinator *knowledge.IngestionCoordinator
	QueryEngine *knowledge.QueryEngine
	Registry    *knowledge.DocumentRegistry
	Sources     []event.Source
	Metrics     *metrics.Server

	cleanupTasks []func() error
}

// Init bootstraps configuration, logger and the indexing pipeline.
func Init() (*App, error) {
	// Load environment variables from .env if present (non-fatal if missing).
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	if err := logger.InitLogger(); err != nil {
		return nil, err
	}
	if err := config.LoadConfig(); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	container := dig.New()
	if err := registerProviders(container); err != nil {
		return nil, fmt.Errorf("failed to register providers: %w", err)
	}

	app := &App{Container: container}
	err := container.Invoke(func(
		coordinator *knowledge.IngestionCoordinator,
		engine *knowledge.QueryEngine,
		registry *knowledge.DocumentRegistry,
		sources []event.Source,
	) {
		app.Coordinator = coordinator
		app.QueryEngine = engine
		app.Registry = registry
		app.Sources = sources
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}

	app.Metrics = metrics.NewServer(config.AppConfig.Server.MetricsPort)
	app.cleanupTasks = append(app.cleanupTasks, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return app.Metrics.Shutdown(ctx)
	})
	for _, src := range app.Sources {
		src := src
		app.cleanupTasks = append(app.cleanupTasks, src.Close)
	}

	logger.Info("application initialized",
		zap.String("env", config.AppConfig.Server.Env),
		zap.String("vector_store", config.AppConfig.VectorStore.Provider),
		zap.String("embedding_provider", config.AppConfig.Embedding.Provider))
	return app, nil
}

// Shutdown 按注册顺序的逆序执行清理任务
func (a *App) Shutdown() {
	if a.Coordinator != nil {
		a.Coordinator.Stop()
	}
	for i := len(a.cleanupTasks) - 1; i >= 0; i-- {
		if err := a.cleanupTasks[i](); err != nil {
			logger.Error("cleanup task failed", zap.Error(err))
		}
	}
	logger.Sync()
}

// registerProviders 注册所有依赖提供者
func registerProviders(container *dig.Container) error {
	providers := []interface{}{
		func() *config.Config { return config.AppConfig },
		knowledge.NewDocumentRegistry,
		newExtractor,
		newEmbedder,
		newVectorIndex,
		newGenerator,
		newPayloadStore,
		newCoordinator,
		newQueryEngine,
		newSources,
	}
	for _, p := range providers {
		if err := container.Provide(p); err != nil {
			return err
		}
	}
	return nil
}

func newExtractor(cfg *config.Config) knowledge.Extractor {
	return knowledge.NewFileExtractor(cfg.Knowledge.ChunkSize, cfg.Knowledge.ChunkOverlap)
}

// newEmbedder 按配置选择向量化后端，可选Redis缓存装饰
func newEmbedder(cfg *config.Config) (knowledge.Embedder, error) {
	var base knowledge.Embedder
	switch cfg.Embedding.Provider {
	case "openai":
		base = knowledge.NewOpenAIEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	case "dashscope":
		base = knowledge.NewDashScopeEmbedder(cfg.Embedding.APIKey, cfg.Embedding.Model)
	case "noop":
		base = &knowledge.NoopEmbedder{}
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", cfg.Embedding.Provider)
	}

	// 维度是进程级常量，模型与配置不一致必须在启动时失败
	if base.Ready() && base.Dimensions() != cfg.Embedding.Dimensions {
		return nil, fmt.Errorf("embedding model %s produces %d dimensions, config expects %d",
			cfg.Embedding.Model, base.Dimensions(), cfg.Embedding.Dimensions)
	}

	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr: cfg.Redis.Host + ":" + cfg.Redis.Port,
			DB:   cfg.Redis.DB,
		})
		ttl := time.Duration(cfg.Redis.TTL) * time.Second
		return knowledge.NewCachedEmbedder(base, client, ttl), nil
	}
	return base, nil
}

func newVectorIndex(cfg *config.Config) (knowledge.VectorIndex, error) {
	switch cfg.VectorStore.Provider {
	case "memory":
		return knowledge.NewMemoryVectorStore(cfg.Embedding.Dimensions), nil
	case "milvus":
		return knowledge.NewMilvusVectorStore(knowledge.MilvusOptions{
			Address:    cfg.VectorStore.Milvus.Address,
			Username:   cfg.VectorStore.Milvus.Username,
			Password:   cfg.VectorStore.Milvus.Password,
			Collection: cfg.VectorStore.Milvus.Collection,
			Database:   cfg.VectorStore.Milvus.Database,
			VectorSize: cfg.Embedding.Dimensions,
			UseTLS:     cfg.VectorStore.Milvus.TLS,
		})
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", cfg.VectorStore.Provider)
	}
}

func newGenerator(cfg *config.Config) knowledge.Generator {
	if !cfg.Generation.Enabled {
		return &knowledge.NoopGenerator{}
	}
	apiKey := cfg.Generation.APIKey
	if apiKey == "" {
		apiKey = cfg.Embedding.APIKey
	}
	return knowledge.NewOpenAIGenerator(apiKey, cfg.Generation.Model,
		cfg.Generation.Temperature, cfg.Generation.MaxTokens)
}

func newPayloadStore(cfg *config.Config) (event.PayloadStore, error) {
	if !cfg.Storage.Enabled {
		return nil, nil
	}
	return event.NewMinIOPayloadStore(cfg.Storage)
}

func newCoordinator(
	cfg *config.Config,
	registry *knowledge.DocumentRegistry,
	extractor knowledge.Extractor,
	embedder knowledge.Embedder,
	index knowledge.VectorIndex,
	payloads event.PayloadStore,
) *knowledge.IngestionCoordinator {
	return knowledge.NewIngestionCoordinator(cfg.Knowledge, registry, extractor, embedder, index, payloads)
}

func newQueryEngine(
	cfg *config.Config,
	embedder knowledge.Embedder,
	index knowledge.VectorIndex,
	generator knowledge.Generator,
) *knowledge.QueryEngine {
	return knowledge.NewQueryEngine(embedder, index, generator, cfg.Query.TopK)
}

// newSources 按配置启用Kafka和本地目录事件源
func newSources(cfg *config.Config) ([]event.Source, error) {
	var sources []event.Source
	if cfg.Kafka.Enabled {
		src, err := event.NewKafkaSource(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	if cfg.Watcher.Enabled {
		src, err := event.NewWatchSource(cfg.Watcher.Path)
		if err != nil {
			return nil, err
		}
		sources = append(sources, src)
	}
	return sources, nil
}
