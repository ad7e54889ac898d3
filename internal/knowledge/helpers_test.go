package knowledge

import (
	"context"
	"hash/fnv"
	"strings"
	"sync"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
)

const fakeDims = 32

// fakeEmbedder 确定性的词袋向量化器
//
// 每个小写词按FNV哈希落入固定维度累加，再做L2归一化，
// 词重叠越多的文本余弦相似度越高。failOn非空时，
// 包含该子串的文本返回可重试的向量化错误。
type fakeEmbedder struct {
	mu     sync.Mutex
	calls  []string
	failOn string
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.failOn != "" && strings.Contains(text, f.failOn) {
		return nil, apperrors.NewEmbeddingError("simulated provider outage")
	}

	vec := make([]float32, fakeDims)
	for _, token := range strings.Fields(strings.ToLower(text)) {
		token = strings.Trim(token, ".,;:!?%")
		if token == "" {
			continue
		}
		h := fnv.New32a()
		h.Write([]byte(token))
		vec[h.Sum32()%fakeDims]++
	}
	NormalizeVector(vec)
	return vec, nil
}

func (f *fakeEmbedder) Dimensions() int {
	return fakeDims
}

func (f *fakeEmbedder) Ready() bool {
	return true
}

func (f *fakeEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// paragraphExtractor 把负载按空行切成段落，每段一个分块
type paragraphExtractor struct{}

func (p *paragraphExtractor) Extract(ctx context.Context, name string, data []byte) ([]Segment, error) {
	if len(data) == 0 {
		return nil, apperrors.NewExtractionError("empty document payload")
	}
	parts := strings.Split(string(data), "\n\n")
	segments := make([]Segment, 0, len(parts))
	for _, part := range parts {
		text := NormalizeText(part)
		if text == "" {
			continue
		}
		segments = append(segments, Segment{
			Text:     text,
			Metadata: ChunkMetadata{Title: documentTitle(name), Source: name, Position: len(segments)},
		})
	}
	if len(segments) == 0 {
		return nil, apperrors.NewExtractionError("document produced no text")
	}
	return segments, nil
}

// failingExtractor 总是返回提取错误
type failingExtractor struct{}

func (f *failingExtractor) Extract(ctx context.Context, name string, data []byte) ([]Segment, error) {
	return nil, apperrors.NewExtractionError("corrupted document")
}

// flakyIndex 在前failures次ApplyBatch上返回索引不可用错误，之后委托给真实索引
type flakyIndex struct {
	VectorIndex
	failures int
	attempts int
}

func (f *flakyIndex) ApplyBatch(ctx context.Context, batch IndexBatch) error {
	f.attempts++
	if f.attempts <= f.failures {
		return apperrors.NewIndexUnavailableError("simulated index outage")
	}
	return f.VectorIndex.ApplyBatch(ctx, batch)
}

func embedText(t interface{ Fatal(args ...interface{}) }, text string) []float32 {
	vec, err := (&fakeEmbedder{}).Embed(context.Background(), text)
	if err != nil {
		t.Fatal(err)
	}
	return vec
}
