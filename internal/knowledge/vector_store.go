package knowledge

import "context"

// IndexEntry 向量索引条目
type IndexEntry struct {
	ChunkID    string
	DocumentID string
	Text       string
	Embedding  []float32
	Metadata   ChunkMetadata
}

// SearchMatch 检索结果
type SearchMatch struct {
	ChunkID    string
	DocumentID string
	Text       string
	Score      float64
	Metadata   ChunkMetadata
}

// IndexBatch 一次原子应用的索引变更集
//
// Upserts与Deletes要么全部可见要么全部不可见，这是防止查询
// 观察到同一文档新旧版本混合状态的唯一机制。
type IndexBatch struct {
	Upserts []IndexEntry
	Deletes []string
}

// VectorIndex 向量索引抽象
//
// 相似度为L2归一化向量的点积（等价余弦相似度），由Embedder契约
// 保证归一化，索引不再归一化。Upsert与Delete均幂等。
type VectorIndex interface {
	Upsert(ctx context.Context, entry IndexEntry) error
	Delete(ctx context.Context, chunkID string) error
	ApplyBatch(ctx context.Context, batch IndexBatch) error
	Search(ctx context.Context, queryEmbedding []float32, k int) ([]SearchMatch, error)
	Count(ctx context.Context) (int, error)
	Ready() bool
}
