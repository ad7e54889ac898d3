package knowledge

import (
	"fmt"

	"github.com/aihub/knowledge-sync/internal/errors"
)

// ChangeDetector 变更检测器
//
// 基于分块ID做集合差分，不做文本diff。位置移动但内容不变的分块
// 会表现为删除+新增，这是接受的简化。
type ChangeDetector struct{}

// NewChangeDetector 创建变更检测器
func NewChangeDetector() *ChangeDetector {
	return &ChangeDetector{}
}

// Diff 计算旧分块序列到新分块序列的最小差异
//
// 旧序列为空表示文档首次出现，差异为全部新增；
// 新序列为空表示文档删除，差异为全部删除。
// 同一序列内出现重复分块ID说明上游解析器有bug，拒绝处理。
func (cd *ChangeDetector) Diff(oldChunks, newChunks []Chunk) (Delta, error) {
	oldMap, err := chunkMapByID(oldChunks)
	if err != nil {
		return Delta{}, err
	}
	newMap, err := chunkMapByID(newChunks)
	if err != nil {
		return Delta{}, err
	}

	var delta Delta

	// 新增与未变：遍历新序列保持顺序稳定
	for _, chunk := range newChunks {
		if old, ok := oldMap[chunk.ChunkID]; ok {
			// ID相同意味着位置和内容哈希都相同，沿用已计算的向量
			kept := chunk
			kept.Embedding = old.Embedding
			delta.Unchanged = append(delta.Unchanged, kept)
		} else {
			delta.Added = append(delta.Added, chunk)
		}
	}

	// 删除：旧序列中不再存在的分块
	for _, chunk := range oldChunks {
		if _, ok := newMap[chunk.ChunkID]; !ok {
			delta.Removed = append(delta.Removed, chunk)
		}
	}

	return delta, nil
}

func chunkMapByID(chunks []Chunk) (map[string]Chunk, error) {
	m := make(map[string]Chunk, len(chunks))
	for _, chunk := range chunks {
		if _, dup := m[chunk.ChunkID]; dup {
			return nil, errors.NewInvalidChunkSequenceError(
				fmt.Sprintf("duplicate chunk id %s at position %d", chunk.ChunkID, chunk.Position),
			).WithDocument(chunk.DocumentID)
		}
		m[chunk.ChunkID] = chunk
	}
	return m, nil
}
