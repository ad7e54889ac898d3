package knowledge

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// memoryVectorStore 进程内向量索引
//
// 写路径在互斥锁下基于当前快照构建新快照，整体替换指针；
// 读路径无锁读取快照。一次ApplyBatch产生且只产生一个新快照，
// 查询要么看到批次之前的状态，要么看到之后的状态。
type memoryVectorStore struct {
	dimensions int

	mu       sync.Mutex // 串行化写入
	snapshot atomic.Pointer[indexSnapshot]
	seq      uint64 // 插入序号，用于得分相同时的确定性排序
}

type indexSnapshot struct {
	entries map[string]*snapshotEntry
}

type snapshotEntry struct {
	entry IndexEntry
	seq   uint64
}

// NewMemoryVectorStore 创建进程内向量索引
func NewMemoryVectorStore(dimensions int) VectorIndex {
	s := &memoryVectorStore{dimensions: dimensions}
	s.snapshot.Store(&indexSnapshot{entries: make(map[string]*snapshotEntry)})
	return s
}

func (s *memoryVectorStore) Upsert(ctx context.Context, entry IndexEntry) error {
	return s.ApplyBatch(ctx, IndexBatch{Upserts: []IndexEntry{entry}})
}

func (s *memoryVectorStore) Delete(ctx context.Context, chunkID string) error {
	return s.ApplyBatch(ctx, IndexBatch{Deletes: []string{chunkID}})
}

func (s *memoryVectorStore) ApplyBatch(ctx context.Context, batch IndexBatch) error {
	if len(batch.Upserts) == 0 && len(batch.Deletes) == 0 {
		return nil
	}
	for _, entry := range batch.Upserts {
		if len(entry.Embedding) != s.dimensions {
			return fmt.Errorf("vector dimension mismatch for chunk %s: expected %d, got %d",
				entry.ChunkID, s.dimensions, len(entry.Embedding))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	old := s.snapshot.Load()
	next := &indexSnapshot{entries: make(map[string]*snapshotEntry, len(old.entries)+len(batch.Upserts))}
	for id, e := range old.entries {
		next.entries[id] = e
	}

	// 删除不存在的ID是幂等no-op
	for _, id := range batch.Deletes {
		delete(next.entries, id)
	}

	for _, entry := range batch.Upserts {
		s.seq++
		next.entries[entry.ChunkID] = &snapshotEntry{entry: entry, seq: s.seq}
	}

	s.snapshot.Store(next)
	return nil
}

func (s *memoryVectorStore) Search(ctx context.Context, queryEmbedding []float32, k int) ([]SearchMatch, error) {
	if len(queryEmbedding) != s.dimensions {
		return nil, fmt.Errorf("query dimension mismatch: expected %d, got %d",
			s.dimensions, len(queryEmbedding))
	}
	if k <= 0 {
		k = 10
	}

	snap := s.snapshot.Load()

	type scored struct {
		entry *snapshotEntry
		score float64
	}
	results := make([]scored, 0, len(snap.entries))
	for _, e := range snap.entries {
		results = append(results, scored{entry: e, score: dotProduct(queryEmbedding, e.entry.Embedding)})
	}

	// 得分降序，得分相同按插入顺序
	sort.Slice(results, func(i, j int) bool {
		if results[i].score == results[j].score {
			return results[i].entry.seq < results[j].entry.seq
		}
		return results[i].score > results[j].score
	})

	if k > len(results) {
		k = len(results)
	}

	matches := make([]SearchMatch, 0, k)
	for _, r := range results[:k] {
		matches = append(matches, SearchMatch{
			ChunkID:    r.entry.entry.ChunkID,
			DocumentID: r.entry.entry.DocumentID,
			Text:       r.entry.entry.Text,
			Score:      r.score,
			Metadata:   r.entry.entry.Metadata,
		})
	}
	return matches, nil
}

func (s *memoryVectorStore) Count(ctx context.Context) (int, error) {
	return len(s.snapshot.Load().entries), nil
}

func (s *memoryVectorStore) Ready() bool {
	return true
}

func dotProduct(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
