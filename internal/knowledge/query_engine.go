package knowledge

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
	"github.com/aihub/knowledge-sync/internal/logger"
	"github.com/aihub/knowledge-sync/internal/metrics"
)

// Answer 检索增强问答结果
type Answer struct {
	Query          string        `json:"query"`
	ContextChunks  []SearchMatch `json:"context_chunks"`
	GroundedAnswer string        `json:"grounded_answer,omitempty"`
	Sources        []string      `json:"sources"`
	Answerable     bool          `json:"answerable"`
}

// QueryEngine 查询引擎
//
// 查询向量化后在索引里检索top-k分块，命中结果交给生成器
// 产出限定于检索内容的回答。索引零命中时直接返回不可回答，
// 不调用生成器。生成失败时降级为只返回检索结果。
type QueryEngine struct {
	embedder  Embedder
	index     VectorIndex
	generator Generator
	topK      int
}

// NewQueryEngine 创建查询引擎
func NewQueryEngine(embedder Embedder, index VectorIndex, generator Generator, topK int) *QueryEngine {
	if topK <= 0 {
		topK = 3
	}
	if generator == nil {
		generator = &NoopGenerator{}
	}
	return &QueryEngine{
		embedder:  embedder,
		index:     index,
		generator: generator,
		topK:      topK,
	}
}

// Query 执行一次检索增强问答
func (q *QueryEngine) Query(ctx context.Context, query string) (*Answer, error) {
	if query == "" {
		return nil, apperrors.NewInvalidInputError("query", "query must not be empty")
	}
	traceID := uuid.NewString()

	queryVec, err := q.embedder.Embed(ctx, query)
	if err != nil {
		logger.Error("failed to embed query",
			zap.String("trace_id", traceID), zap.Error(err))
		metrics.QueryResults.WithLabelValues("failed").Inc()
		return nil, err
	}

	start := time.Now()
	matches, err := q.index.Search(ctx, queryVec, q.topK)
	if err != nil {
		logger.Error("index search failed",
			zap.String("trace_id", traceID), zap.Error(err))
		metrics.QueryResults.WithLabelValues("failed").Inc()
		return nil, err
	}
	metrics.SearchDuration.Observe(time.Since(start).Seconds())

	answer := &Answer{
		Query:         query,
		ContextChunks: matches,
		Sources:       sourceList(matches),
	}

	if len(matches) == 0 {
		logger.Info("query matched no indexed content",
			zap.String("trace_id", traceID),
			zap.String("query", query))
		metrics.QueryResults.WithLabelValues("no_context").Inc()
		return answer, nil
	}
	answer.Answerable = true

	if q.generator.Ready() {
		generated, err := q.generator.Generate(ctx, query, matches)
		if err != nil {
			// 生成失败降级为只返回检索结果
			logger.Warn("answer generation failed, returning retrieval only",
				zap.String("trace_id", traceID), zap.Error(err))
			metrics.QueryResults.WithLabelValues("degraded").Inc()
			return answer, nil
		}
		answer.GroundedAnswer = generated
	}

	logger.Info("query answered",
		zap.String("trace_id", traceID),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", time.Since(start)))
	metrics.QueryResults.WithLabelValues("answered").Inc()
	return answer, nil
}

// TopK 返回检索条数配置
func (q *QueryEngine) TopK() int {
	return q.topK
}

// sourceList 去重后的来源文档ID列表，保持命中顺序
func sourceList(matches []SearchMatch) []string {
	seen := make(map[string]struct{}, len(matches))
	sources := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m.DocumentID]; ok {
			continue
		}
		seen[m.DocumentID] = struct{}{}
		sources = append(sources, m.DocumentID)
	}
	return sources
}
