package knowledge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestRegistryPutGet 写入后按ID取回
func TestRegistryPutGet(t *testing.T) {
	registry := NewDocumentRegistry()
	registry.Put(&Document{
		DocumentID: "doc-1",
		Version:    1,
		Chunks:     makeChunks("doc-1", "alpha", "beta"),
		IndexedAt:  time.Now(),
	})

	doc, ok := registry.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, uint64(1), doc.Version)
	assert.Len(t, doc.Chunks, 2)
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, 2, registry.ChunkCount())
}

// TestRegistryMissIsNotError 未注册的文档返回ok=false
func TestRegistryMissIsNotError(t *testing.T) {
	registry := NewDocumentRegistry()
	doc, ok := registry.Get("missing")
	assert.False(t, ok)
	assert.Nil(t, doc)
}

// TestRegistryGetReturnsCopy 修改返回值不影响注册表内部状态
func TestRegistryGetReturnsCopy(t *testing.T) {
	registry := NewDocumentRegistry()
	registry.Put(&Document{DocumentID: "doc-1", Version: 1, Chunks: makeChunks("doc-1", "alpha")})

	doc, ok := registry.Get("doc-1")
	require.True(t, ok)
	doc.Chunks[0].Text = "tampered"
	doc.Version = 99

	fresh, ok := registry.Get("doc-1")
	require.True(t, ok)
	assert.Equal(t, "alpha", fresh.Chunks[0].Text)
	assert.Equal(t, uint64(1), fresh.Version)
}

// TestRegistryRemove 删除后不可见，重复删除无害
func TestRegistryRemove(t *testing.T) {
	registry := NewDocumentRegistry()
	registry.Put(&Document{DocumentID: "doc-1", Version: 1})

	registry.Remove("doc-1")
	_, ok := registry.Get("doc-1")
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())

	registry.Remove("doc-1")
	assert.Equal(t, 0, registry.Len())
}

// TestRegistryDocumentIDs 列出全部已注册文档
func TestRegistryDocumentIDs(t *testing.T) {
	registry := NewDocumentRegistry()
	registry.Put(&Document{DocumentID: "a", Version: 1})
	registry.Put(&Document{DocumentID: "b", Version: 1})

	ids := registry.DocumentIDs()
	assert.ElementsMatch(t, []string{"a", "b"}, ids)
}
