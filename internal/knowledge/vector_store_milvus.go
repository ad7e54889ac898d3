package knowledge

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	UseTLS     bool
	Timeout    time.Duration
}

// milvusVectorStore Milvus向量索引后端
//
// 批次内先删后插，并在强一致级别下读取。单机内存后端才提供
// 严格的快照隔离，Milvus后端用于索引规模超出单机内存的部署。
type milvusVectorStore struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
}

// NewMilvusVectorStore 创建Milvus向量索引
func NewMilvusVectorStore(opts MilvusOptions) (VectorIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "compliance_chunks"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	store := &milvusVectorStore{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
	}

	if err := store.ensureCollection(context.Background()); err != nil {
		return nil, err
	}

	return store, nil
}

func (s *milvusVectorStore) ensureCollection(ctx context.Context) error {
	hasCollection, err := s.milvusClient.HasCollection(ctx, s.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}
	if hasCollection {
		return nil
	}

	schema := &entity.Schema{
		CollectionName: s.collection,
		Description:    "Live compliance document chunks",
		Fields: []*entity.Field{
			{
				Name:       "chunk_id",
				DataType:   entity.FieldTypeVarChar,
				PrimaryKey: true,
				AutoID:     false,
				TypeParams: map[string]string{"max_length": "64"},
			},
			{
				Name:       "document_id",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "512"},
			},
			{
				Name:       "content",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "65535"},
			},
			{
				Name:       "title",
				DataType:   entity.FieldTypeVarChar,
				TypeParams: map[string]string{"max_length": "1024"},
			},
			{
				Name:     "position",
				DataType: entity.FieldTypeInt64,
			},
			{
				Name:       "vector",
				DataType:   entity.FieldTypeFloatVector,
				TypeParams: map[string]string{"dim": fmt.Sprintf("%d", s.vectorSize)},
			},
		},
	}

	if err := s.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber,
		client.WithConsistencyLevel(entity.ClStrong)); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	// 归一化向量的点积即余弦相似度
	var index entity.Index
	index, err = entity.NewIndexHNSW(entity.IP, 8, 64)
	if err != nil {
		index, err = entity.NewIndexIvfFlat(entity.IP, 128)
		if err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}
	if err := s.milvusClient.CreateIndex(ctx, s.collection, "vector", index, false); err != nil {
		return fmt.Errorf("failed to create vector index: %w", err)
	}

	if err := s.milvusClient.LoadCollection(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

func (s *milvusVectorStore) Upsert(ctx context.Context, entry IndexEntry) error {
	return s.ApplyBatch(ctx, IndexBatch{Upserts: []IndexEntry{entry}})
}

func (s *milvusVectorStore) Delete(ctx context.Context, chunkID string) error {
	return s.ApplyBatch(ctx, IndexBatch{Deletes: []string{chunkID}})
}

func (s *milvusVectorStore) ApplyBatch(ctx context.Context, batch IndexBatch) error {
	if len(batch.Upserts) == 0 && len(batch.Deletes) == 0 {
		return nil
	}

	if len(batch.Deletes) > 0 {
		expr := fmt.Sprintf("chunk_id in [%s]", quoteJoin(batch.Deletes))
		if err := s.milvusClient.Delete(ctx, s.collection, "", expr); err != nil {
			return apperrors.NewIndexUnavailableError("milvus delete failed").WithCause(err)
		}
	}

	if len(batch.Upserts) > 0 {
		chunkIDs := make([]string, 0, len(batch.Upserts))
		documentIDs := make([]string, 0, len(batch.Upserts))
		contents := make([]string, 0, len(batch.Upserts))
		titles := make([]string, 0, len(batch.Upserts))
		positions := make([]int64, 0, len(batch.Upserts))
		vectors := make([][]float32, 0, len(batch.Upserts))

		for _, entry := range batch.Upserts {
			if len(entry.Embedding) != s.vectorSize {
				return fmt.Errorf("vector dimension mismatch for chunk %s: expected %d, got %d",
					entry.ChunkID, s.vectorSize, len(entry.Embedding))
			}
			chunkIDs = append(chunkIDs, entry.ChunkID)
			documentIDs = append(documentIDs, entry.DocumentID)
			contents = append(contents, entry.Text)
			titles = append(titles, entry.Metadata.Title)
			positions = append(positions, int64(entry.Metadata.Position))
			vectors = append(vectors, entry.Embedding)
		}

		_, err := s.milvusClient.Upsert(ctx, s.collection, "",
			entity.NewColumnVarChar("chunk_id", chunkIDs),
			entity.NewColumnVarChar("document_id", documentIDs),
			entity.NewColumnVarChar("content", contents),
			entity.NewColumnVarChar("title", titles),
			entity.NewColumnInt64("position", positions),
			entity.NewColumnFloatVector("vector", s.vectorSize, vectors),
		)
		if err != nil {
			return apperrors.NewIndexUnavailableError("milvus upsert failed").WithCause(err)
		}
	}

	if err := s.milvusClient.Flush(ctx, s.collection, false); err != nil {
		return apperrors.NewIndexUnavailableError("milvus flush failed").WithCause(err)
	}

	return nil
}

func (s *milvusVectorStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]SearchMatch, error) {
	if len(queryEmbedding) != s.vectorSize {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d",
			s.vectorSize, len(queryEmbedding))
	}
	if k <= 0 {
		k = 10
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := s.milvusClient.Search(
		ctx,
		s.collection,
		[]string{},
		"",
		[]string{"chunk_id", "document_id", "content", "title", "position"},
		[]entity.Vector{entity.FloatVector(queryEmbedding)},
		"vector",
		entity.IP,
		k,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewIndexUnavailableError("milvus search failed").WithCause(err)
	}
	if len(searchResults) == 0 {
		return []SearchMatch{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, apperrors.NewIndexUnavailableError("milvus search error").WithCause(result.Err)
	}

	var (
		chunkIDs    []string
		documentIDs []string
		contents    []string
		titles      []string
		positions   []int64
	)
	for _, field := range result.Fields {
		switch field.Name() {
		case "chunk_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				chunkIDs = col.Data()
			}
		case "document_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				documentIDs = col.Data()
			}
		case "content":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				contents = col.Data()
			}
		case "title":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				titles = col.Data()
			}
		case "position":
			if col, ok := field.(*entity.ColumnInt64); ok {
				positions = col.Data()
			}
		}
	}

	matches := make([]SearchMatch, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		match := SearchMatch{}
		if i < len(chunkIDs) {
			match.ChunkID = chunkIDs[i]
		}
		if i < len(documentIDs) {
			match.DocumentID = documentIDs[i]
		}
		if i < len(contents) {
			match.Text = contents[i]
		}
		if i < len(titles) {
			match.Metadata.Title = titles[i]
		}
		if i < len(positions) {
			match.Metadata.Position = int(positions[i])
		}
		if i < len(result.Scores) {
			match.Score = float64(result.Scores[i])
		}
		matches = append(matches, match)
	}

	return matches, nil
}

func (s *milvusVectorStore) Count(ctx context.Context) (int, error) {
	stats, err := s.milvusClient.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return 0, apperrors.NewIndexUnavailableError("milvus statistics failed").WithCause(err)
	}
	var count int
	fmt.Sscanf(stats["row_count"], "%d", &count)
	return count, nil
}

func (s *milvusVectorStore) Ready() bool {
	if s.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := s.milvusClient.ListCollections(ctx)
	return err == nil
}

func quoteJoin(ids []string) string {
	quoted := make([]string, 0, len(ids))
	for _, id := range ids {
		quoted = append(quoted, fmt.Sprintf("%q", id))
	}
	return strings.Join(quoted, ", ")
}
