package knowledge

import (
	"context"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/config"
	apperrors "github.com/aihub/knowledge-sync/internal/errors"
	"github.com/aihub/knowledge-sync/internal/event"
	"github.com/aihub/knowledge-sync/internal/logger"
	"github.com/aihub/knowledge-sync/internal/metrics"
)

// IngestionCoordinator 文档摄取协调器
//
// 串联提取、分块、差分、向量化和索引写入。同一文档的事件
// 按哈希分片分配到固定工作协程，保证按文档串行处理，
// 不同文档之间并发。索引写入失败时整个事件中止，
// 注册表和索引都保持旧版本，不会出现半更新状态。
type IngestionCoordinator struct {
	registry  *DocumentRegistry
	detector  *ChangeDetector
	extractor Extractor
	embedder  Embedder
	index     VectorIndex
	payloads  event.PayloadStore

	maxRetries int
	retryDelay time.Duration

	partitions []chan event.ChangeEvent
	wg         sync.WaitGroup
	startOnce  sync.Once
	stopOnce   sync.Once
}

// NewIngestionCoordinator 创建摄取协调器
func NewIngestionCoordinator(
	cfg config.KnowledgeConfig,
	registry *DocumentRegistry,
	extractor Extractor,
	embedder Embedder,
	index VectorIndex,
	payloads event.PayloadStore,
) *IngestionCoordinator {
	parallel := cfg.MaxParallel
	if parallel <= 0 {
		parallel = 4
	}
	retryDelay := time.Duration(cfg.RetryDelayMs) * time.Millisecond
	if retryDelay <= 0 {
		retryDelay = 500 * time.Millisecond
	}

	partitions := make([]chan event.ChangeEvent, parallel)
	for i := range partitions {
		partitions[i] = make(chan event.ChangeEvent, 64)
	}

	return &IngestionCoordinator{
		registry:   registry,
		detector:   NewChangeDetector(),
		extractor:  extractor,
		embedder:   embedder,
		index:      index,
		payloads:   payloads,
		maxRetries: cfg.MaxRetries,
		retryDelay: retryDelay,
		partitions: partitions,
	}
}

// Start 启动分片工作池
func (c *IngestionCoordinator) Start(ctx context.Context) {
	c.startOnce.Do(func() {
		for i, ch := range c.partitions {
			c.wg.Add(1)
			go c.worker(ctx, i, ch)
		}
		logger.Info("ingestion workers started", zap.Int("parallel", len(c.partitions)))
	})
}

// Stop 关闭事件通道并等待在途事件处理完成
func (c *IngestionCoordinator) Stop() {
	c.stopOnce.Do(func() {
		for _, ch := range c.partitions {
			close(ch)
		}
		c.wg.Wait()
		logger.Info("ingestion workers stopped")
	})
}

// Dispatch 按document_id哈希投递事件到固定分片
//
// 同一文档永远落在同一分片，分片内按到达顺序处理。
func (c *IngestionCoordinator) Dispatch(ctx context.Context, evt event.ChangeEvent) error {
	if err := evt.Validate(); err != nil {
		return apperrors.NewInvalidInputError("event", err.Error())
	}

	h := fnv.New32a()
	h.Write([]byte(evt.DocumentID))
	idx := int(h.Sum32()) % len(c.partitions)
	if idx < 0 {
		idx = -idx
	}

	select {
	case c.partitions[idx] <- evt:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *IngestionCoordinator) worker(ctx context.Context, id int, ch <-chan event.ChangeEvent) {
	defer c.wg.Done()
	for evt := range ch {
		if err := c.Handle(ctx, evt); err != nil {
			logger.Error("event processing failed",
				zap.Int("worker", id),
				zap.String("document_id", evt.DocumentID),
				zap.String("type", string(evt.Type)),
				zap.Error(err))
		}
	}
}

// Handle 同步处理单个变更事件
func (c *IngestionCoordinator) Handle(ctx context.Context, evt event.ChangeEvent) error {
	if err := evt.Validate(); err != nil {
		return apperrors.NewInvalidInputError("event", err.Error())
	}

	switch evt.Type {
	case event.EventCreated, event.EventModified:
		return c.upsertDocument(ctx, evt)
	case event.EventDeleted:
		return c.deleteDocument(ctx, evt.DocumentID)
	default:
		return apperrors.NewInvalidInputError("type", fmt.Sprintf("unknown event type %q", evt.Type))
	}
}

// upsertDocument 处理创建和修改事件
//
// 流程：取负载 -> 提取分块 -> 与已索引版本差分 -> 只向量化
// 新增分块 -> 原子写入索引 -> 更新注册表。任何一步失败都
// 在更新索引之前返回，旧版本保持完整可查。
func (c *IngestionCoordinator) upsertDocument(ctx context.Context, evt event.ChangeEvent) error {
	start := time.Now()

	payload, err := c.resolvePayload(ctx, evt)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("payload").Inc()
		return err
	}

	segments, err := c.extractor.Extract(ctx, evt.Name, payload)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("extraction").Inc()
		return err
	}

	newChunks := make([]Chunk, 0, len(segments))
	for _, seg := range segments {
		newChunks = append(newChunks, NewChunk(evt.DocumentID, seg.Metadata.Position, seg.Text, seg.Metadata))
	}

	prev, existed := c.registry.Get(evt.DocumentID)
	if evt.Type == event.EventModified && !existed {
		logger.Warn("modify event for unknown document, treating as create",
			zap.String("document_id", evt.DocumentID))
	}

	var oldChunks []Chunk
	var version uint64
	if existed {
		oldChunks = prev.Chunks
		version = prev.Version
	}

	delta, err := c.detector.Diff(oldChunks, newChunks)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("diff").Inc()
		return err
	}

	metrics.DeltaChunks.WithLabelValues("added").Add(float64(len(delta.Added)))
	metrics.DeltaChunks.WithLabelValues("unchanged").Add(float64(len(delta.Unchanged)))
	metrics.DeltaChunks.WithLabelValues("removed").Add(float64(len(delta.Removed)))

	if delta.IsEmpty() && existed {
		logger.Debug("document unchanged, skipping index update",
			zap.String("document_id", evt.DocumentID))
		metrics.DocumentsProcessed.WithLabelValues("unchanged").Inc()
		return nil
	}

	// 向量化只针对新增分块，未变分块复用已有向量
	embedded, err := c.embedChunks(ctx, delta.Added)
	if err != nil {
		metrics.IngestFailures.WithLabelValues("embedding").Inc()
		return err
	}

	batch := IndexBatch{
		Upserts: make([]IndexEntry, 0, len(embedded)),
		Deletes: make([]string, 0, len(delta.Removed)),
	}
	for _, chunk := range embedded {
		batch.Upserts = append(batch.Upserts, IndexEntry{
			ChunkID:    chunk.ChunkID,
			DocumentID: chunk.DocumentID,
			Text:       chunk.Text,
			Embedding:  chunk.Embedding,
			Metadata:   chunk.Metadata,
		})
	}
	for _, chunk := range delta.Removed {
		batch.Deletes = append(batch.Deletes, chunk.ChunkID)
	}

	if err := c.applyWithRetry(ctx, batch); err != nil {
		metrics.IngestFailures.WithLabelValues("index").Inc()
		return err
	}

	// 按新序列顺序组装已索引文档
	indexed := c.assembleChunks(newChunks, embedded, delta.Unchanged)
	c.registry.Put(&Document{
		DocumentID: evt.DocumentID,
		Version:    version + 1,
		Chunks:     indexed,
		IndexedAt:  time.Now(),
	})

	metrics.IndexEntries.Add(float64(len(batch.Upserts) - len(batch.Deletes)))
	if existed {
		metrics.DocumentsProcessed.WithLabelValues("modified").Inc()
	} else {
		metrics.DocumentsProcessed.WithLabelValues("created").Inc()
	}

	logger.Info("document indexed",
		zap.String("document_id", evt.DocumentID),
		zap.Uint64("version", version+1),
		zap.Int("chunks", len(indexed)),
		zap.Int("added", len(delta.Added)),
		zap.Int("unchanged", len(delta.Unchanged)),
		zap.Int("removed", len(delta.Removed)),
		zap.Duration("elapsed", time.Since(start)))
	return nil
}

// deleteDocument 处理删除事件，未注册文档直接忽略
func (c *IngestionCoordinator) deleteDocument(ctx context.Context, documentID string) error {
	doc, ok := c.registry.Get(documentID)
	if !ok {
		logger.Warn("delete event for unknown document, ignoring",
			zap.String("document_id", documentID))
		return nil
	}

	batch := IndexBatch{Deletes: doc.ChunkIDs()}
	if err := c.applyWithRetry(ctx, batch); err != nil {
		metrics.IngestFailures.WithLabelValues("index").Inc()
		return err
	}

	c.registry.Remove(documentID)
	metrics.IndexEntries.Sub(float64(len(batch.Deletes)))
	metrics.DocumentsProcessed.WithLabelValues("deleted").Inc()

	logger.Info("document removed from index",
		zap.String("document_id", documentID),
		zap.Int("chunks", len(batch.Deletes)))
	return nil
}

// resolvePayload 取事件内联负载，没有则按定位符从对象存储拉取
func (c *IngestionCoordinator) resolvePayload(ctx context.Context, evt event.ChangeEvent) ([]byte, error) {
	if len(evt.Payload) > 0 {
		return evt.Payload, nil
	}
	if evt.PayloadLocator == "" {
		return nil, apperrors.NewExtractionError("event carries neither payload nor payload locator").WithDocument(evt.DocumentID)
	}
	if c.payloads == nil {
		return nil, apperrors.NewExtractionError("no payload store configured for locator " + evt.PayloadLocator).WithDocument(evt.DocumentID)
	}

	data, err := c.payloads.Fetch(ctx, evt.PayloadLocator)
	if err != nil {
		return nil, apperrors.NewExtractionError(
			fmt.Sprintf("failed to fetch payload %s", evt.PayloadLocator)).WithCause(err).WithDocument(evt.DocumentID)
	}
	return data, nil
}

// embedChunks 逐个向量化新增分块，可重试错误按配置退避重试
func (c *IngestionCoordinator) embedChunks(ctx context.Context, chunks []Chunk) ([]Chunk, error) {
	out := make([]Chunk, len(chunks))
	for i, chunk := range chunks {
		var vec []float32
		err := c.withRetry(ctx, func() error {
			var embedErr error
			vec, embedErr = c.embedder.Embed(ctx, chunk.Text)
			return embedErr
		})
		if err != nil {
			return nil, apperrors.NewEmbeddingError(
				fmt.Sprintf("failed to embed chunk %s at position %d", chunk.ChunkID, chunk.Position)).
				WithCause(err).WithDocument(chunk.DocumentID)
		}
		chunk.Embedding = vec
		out[i] = chunk
		metrics.ChunksEmbedded.Inc()
	}
	return out, nil
}

func (c *IngestionCoordinator) applyWithRetry(ctx context.Context, batch IndexBatch) error {
	return c.withRetry(ctx, func() error {
		return c.index.ApplyBatch(ctx, batch)
	})
}

// withRetry 对可重试错误退避重试，其余错误立即返回
func (c *IngestionCoordinator) withRetry(ctx context.Context, op func() error) error {
	var lastErr error
	attempts := c.maxRetries
	if attempts <= 0 {
		attempts = 1
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !apperrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt < attempts {
			logger.Warn("retryable operation failed, backing off",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", attempts),
				zap.Error(lastErr))
			select {
			case <-time.After(c.retryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	return lastErr
}

// assembleChunks 按新序列顺序合并新增和未变分块
func (c *IngestionCoordinator) assembleChunks(newOrder, embedded, unchanged []Chunk) []Chunk {
	byID := make(map[string]Chunk, len(embedded)+len(unchanged))
	for _, chunk := range embedded {
		byID[chunk.ChunkID] = chunk
	}
	for _, chunk := range unchanged {
		byID[chunk.ChunkID] = chunk
	}

	out := make([]Chunk, 0, len(newOrder))
	for _, chunk := range newOrder {
		if resolved, ok := byID[chunk.ChunkID]; ok {
			out = append(out, resolved)
		}
	}
	return out
}
