package knowledge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
)

func makeChunks(documentID string, texts ...string) []Chunk {
	chunks := make([]Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, NewChunk(documentID, i, text, ChunkMetadata{}))
	}
	return chunks
}

// TestDiffAllAdded 首次摄取时所有分块都是新增
func TestDiffAllAdded(t *testing.T) {
	detector := NewChangeDetector()
	newChunks := makeChunks("doc-1", "first paragraph", "second paragraph")

	delta, err := detector.Diff(nil, newChunks)
	require.NoError(t, err)

	assert.Len(t, delta.Added, 2)
	assert.Empty(t, delta.Unchanged)
	assert.Empty(t, delta.Removed)
}

// TestDiffMinimality 只改一个分块时差分必须最小
func TestDiffMinimality(t *testing.T) {
	detector := NewChangeDetector()
	old := makeChunks("doc-1", "chunk a", "chunk b", "chunk c")
	updated := makeChunks("doc-1", "chunk a", "chunk b CHANGED", "chunk c")

	delta, err := detector.Diff(old, updated)
	require.NoError(t, err)

	require.Len(t, delta.Added, 1)
	assert.Equal(t, "chunk b CHANGED", delta.Added[0].Text)
	require.Len(t, delta.Removed, 1)
	assert.Equal(t, "chunk b", delta.Removed[0].Text)
	assert.Len(t, delta.Unchanged, 2)
}

// TestDiffIdenticalContent 内容完全相同时差分为空
func TestDiffIdenticalContent(t *testing.T) {
	detector := NewChangeDetector()
	old := makeChunks("doc-1", "alpha", "beta")
	same := makeChunks("doc-1", "alpha", "beta")

	delta, err := detector.Diff(old, same)
	require.NoError(t, err)
	assert.True(t, delta.IsEmpty())
}

// TestDiffPositionShift 位置变化改变分块身份，表现为删除加新增
func TestDiffPositionShift(t *testing.T) {
	detector := NewChangeDetector()
	old := makeChunks("doc-1", "alpha", "beta")
	// 开头插入一段，alpha和beta的位置都后移
	updated := makeChunks("doc-1", "intro", "alpha", "beta")

	delta, err := detector.Diff(old, updated)
	require.NoError(t, err)

	assert.Len(t, delta.Added, 3)
	assert.Len(t, delta.Removed, 2)
	assert.Empty(t, delta.Unchanged)
}

// TestDiffCarriesForwardEmbedding 未变分块必须带上已有向量
func TestDiffCarriesForwardEmbedding(t *testing.T) {
	detector := NewChangeDetector()
	old := makeChunks("doc-1", "alpha", "beta")
	old[0].Embedding = []float32{0.1, 0.2}
	old[1].Embedding = []float32{0.3, 0.4}

	updated := makeChunks("doc-1", "alpha", "beta CHANGED")
	delta, err := detector.Diff(old, updated)
	require.NoError(t, err)

	require.Len(t, delta.Unchanged, 1)
	assert.Equal(t, []float32{0.1, 0.2}, delta.Unchanged[0].Embedding)
	require.Len(t, delta.Added, 1)
	assert.Nil(t, delta.Added[0].Embedding)
}

// TestDiffDuplicateChunkIDs 新序列里出现重复ID是分块序列错误
func TestDiffDuplicateChunkIDs(t *testing.T) {
	detector := NewChangeDetector()
	chunk := NewChunk("doc-1", 0, "same text", ChunkMetadata{})

	_, err := detector.Diff(nil, []Chunk{chunk, chunk})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeInvalidChunkSequence))
}

// TestDiffSameTextAcrossDocuments 不同文档的同文本分块ID不同
func TestDiffSameTextAcrossDocuments(t *testing.T) {
	a := NewChunk("doc-a", 0, "shared text", ChunkMetadata{})
	b := NewChunk("doc-b", 0, "shared text", ChunkMetadata{})
	assert.NotEqual(t, a.ChunkID, b.ChunkID)
	assert.Equal(t, a.ContentHash, b.ContentHash)
}
