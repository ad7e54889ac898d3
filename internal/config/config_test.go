package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Knowledge:   KnowledgeConfig{ChunkSize: 800, ChunkOverlap: 120},
		Embedding:   EmbeddingConfig{Provider: "openai", Dimensions: 1536},
		VectorStore: VectorStoreConfig{Provider: "memory"},
		Query:       QueryConfig{TopK: 3},
	}
}

// TestLoadConfigDefaults 无配置文件时使用默认值
func TestLoadConfigDefaults(t *testing.T) {
	require.NoError(t, LoadConfig())
	cfg := GetAppConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, 800, cfg.Knowledge.ChunkSize)
	assert.Equal(t, 120, cfg.Knowledge.ChunkOverlap)
	assert.Equal(t, 4, cfg.Knowledge.MaxParallel)
	assert.Equal(t, 1536, cfg.Embedding.Dimensions)
	assert.Equal(t, "memory", cfg.VectorStore.Provider)
	assert.Equal(t, 3, cfg.Query.TopK)
	assert.InDelta(t, 0.1, cfg.Generation.Temperature, 1e-9)
}

// TestValidateRejectsBadDimensions 非法向量维度启动即失败
func TestValidateRejectsBadDimensions(t *testing.T) {
	cfg := validConfig()
	cfg.Embedding.Dimensions = 0
	assert.Error(t, cfg.Validate())
}

// TestValidateRejectsOverlapNotSmallerThanChunk 重叠必须小于分块大小
func TestValidateRejectsOverlapNotSmallerThanChunk(t *testing.T) {
	cfg := validConfig()
	cfg.Knowledge.ChunkOverlap = cfg.Knowledge.ChunkSize
	assert.Error(t, cfg.Validate())
}

// TestValidateRejectsUnknownVectorStore 未知的向量索引后端被拒绝
func TestValidateRejectsUnknownVectorStore(t *testing.T) {
	cfg := validConfig()
	cfg.VectorStore.Provider = "pinecone"
	assert.Error(t, cfg.Validate())
}

// TestValidateRejectsNonPositiveTopK top_k必须为正
func TestValidateRejectsNonPositiveTopK(t *testing.T) {
	cfg := validConfig()
	cfg.Query.TopK = 0
	assert.Error(t, cfg.Validate())
}
