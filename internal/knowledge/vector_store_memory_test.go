package knowledge

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func entryWithVector(chunkID, documentID, text string, vec []float32) IndexEntry {
	return IndexEntry{ChunkID: chunkID, DocumentID: documentID, Text: text, Embedding: vec}
}

func unitVector(dims, axis int) []float32 {
	vec := make([]float32, dims)
	vec[axis] = 1
	return vec
}

// TestMemoryStoreSearchRanking 得分降序返回top-k
func TestMemoryStoreSearchRanking(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore(fakeDims)

	capital := embedText(t, "The minimum Tier 1 capital ratio is 6% of risk-weighted assets.")
	liquidity := embedText(t, "Banks must maintain a sufficient liquidity coverage buffer at all times.")
	require.NoError(t, store.ApplyBatch(ctx, IndexBatch{Upserts: []IndexEntry{
		entryWithVector("c1", "basel.txt", "capital ratio chunk", capital),
		entryWithVector("c2", "basel.txt", "liquidity chunk", liquidity),
	}}))

	query := embedText(t, "What is the minimum Tier 1 capital ratio?")
	matches, err := store.Search(ctx, query, 2)
	require.NoError(t, err)

	require.Len(t, matches, 2)
	assert.Equal(t, "c1", matches[0].ChunkID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
}

// TestMemoryStoreTieBreak 得分相同按插入顺序，结果确定
func TestMemoryStoreTieBreak(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore(4)

	// 两个正交向量对查询向量的点积相同
	require.NoError(t, store.Upsert(ctx, entryWithVector("first", "d", "a", unitVector(4, 0))))
	require.NoError(t, store.Upsert(ctx, entryWithVector("second", "d", "b", unitVector(4, 1))))

	query := []float32{0.5, 0.5, 0, 0}
	for i := 0; i < 10; i++ {
		matches, err := store.Search(ctx, query, 2)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "first", matches[0].ChunkID)
		assert.Equal(t, "second", matches[1].ChunkID)
	}
}

// TestMemoryStoreDeleteIdempotent 删除不存在的ID不报错
func TestMemoryStoreDeleteIdempotent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore(4)

	require.NoError(t, store.Upsert(ctx, entryWithVector("c1", "d", "a", unitVector(4, 0))))
	require.NoError(t, store.Delete(ctx, "c1"))
	require.NoError(t, store.Delete(ctx, "c1"))
	require.NoError(t, store.Delete(ctx, "never-existed"))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

// TestMemoryStoreDimensionMismatch 维度不符的写入和查询都被拒绝
func TestMemoryStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore(4)

	err := store.Upsert(ctx, entryWithVector("c1", "d", "a", unitVector(8, 0)))
	require.Error(t, err)

	_, err = store.Search(ctx, unitVector(8, 0), 1)
	require.Error(t, err)
}

// TestMemoryStoreBatchAtomicity 并发查询永远看不到半应用的批次
//
// 写协程在同一文档的v1和v2两套分块之间反复整批替换，
// 读协程持续检索。任何一次结果里该文档的分块必须全部
// 来自同一版本。
func TestMemoryStoreBatchAtomicity(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryVectorStore(4)

	makeBatch := func(version int) IndexBatch {
		other := 1
		if version == 1 {
			other = 2
		}
		return IndexBatch{
			Upserts: []IndexEntry{
				entryWithVector(fmt.Sprintf("a-v%d", version), "doc", fmt.Sprintf("alpha v%d", version), unitVector(4, 0)),
				entryWithVector(fmt.Sprintf("b-v%d", version), "doc", fmt.Sprintf("beta v%d", version), unitVector(4, 1)),
			},
			Deletes: []string{fmt.Sprintf("a-v%d", other), fmt.Sprintf("b-v%d", other)},
		}
	}
	require.NoError(t, store.ApplyBatch(ctx, makeBatch(1)))

	done := make(chan struct{})
	var writerErr error
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			if err := store.ApplyBatch(ctx, makeBatch(i%2+1)); err != nil {
				writerErr = err
				return
			}
		}
	}()

	var wg sync.WaitGroup
	violations := make(chan string, 8)
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			query := []float32{0.5, 0.5, 0, 0}
			for {
				select {
				case <-done:
					return
				default:
				}
				matches, err := store.Search(ctx, query, 10)
				if err != nil {
					violations <- err.Error()
					return
				}
				versions := make(map[string]struct{})
				for _, m := range matches {
					suffix := m.Text[strings.LastIndex(m.Text, " ")+1:]
					versions[suffix] = struct{}{}
				}
				if len(matches) != 2 || len(versions) != 1 {
					violations <- fmt.Sprintf("mixed snapshot observed: %d matches, versions %v", len(matches), versions)
					return
				}
			}
		}()
	}

	<-done
	wg.Wait()
	require.NoError(t, writerErr)
	select {
	case v := <-violations:
		t.Fatal(v)
	default:
	}
}
