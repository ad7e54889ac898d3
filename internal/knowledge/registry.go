package knowledge

import (
	"sync"
)

// DocumentRegistry 文档注册表
//
// 记录每个文档当前已索引的版本及其分块集合，是"现在索引里有什么"
// 的唯一事实来源。只有摄取协调器在索引变更提交之后才会写入，
// 查询路径不读取注册表。
type DocumentRegistry struct {
	mu   sync.RWMutex
	docs map[string]*Document
}

// NewDocumentRegistry 创建文档注册表
func NewDocumentRegistry() *DocumentRegistry {
	return &DocumentRegistry{
		docs: make(map[string]*Document),
	}
}

// Get 获取文档的当前版本，未见过的文档返回ok=false（不是错误）
func (r *DocumentRegistry) Get(documentID string) (*Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[documentID]
	if !ok {
		return nil, false
	}

	// 返回拷贝，避免调用方持有内部状态
	clone := *doc
	clone.Chunks = make([]Chunk, len(doc.Chunks))
	copy(clone.Chunks, doc.Chunks)
	return &clone, true
}

// Put 写入文档的新版本
func (r *DocumentRegistry) Put(doc *Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.docs[doc.DocumentID] = doc
}

// Remove 删除文档
func (r *DocumentRegistry) Remove(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, documentID)
}

// Len 返回已索引的文档数量
func (r *DocumentRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// ChunkCount 返回全部文档的分块总数
func (r *DocumentRegistry) ChunkCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	total := 0
	for _, doc := range r.docs {
		total += len(doc.Chunks)
	}
	return total
}

// DocumentIDs 返回全部已索引文档的ID
func (r *DocumentRegistry) DocumentIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	return ids
}
