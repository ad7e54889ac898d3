package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aihub/knowledge-sync/internal/logger"
)

// Prometheus指标
var (
	// DocumentsProcessed 按动作统计已处理的文档转换
	DocumentsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksync_documents_processed_total",
			Help: "Number of document transitions applied to the index",
		},
		[]string{"action"}, // created, modified, deleted, unchanged
	)

	// IngestFailures 按原因统计失败的文档转换
	IngestFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksync_ingest_failures_total",
			Help: "Number of aborted document transitions",
		},
		[]string{"reason"}, // payload, extraction, diff, embedding, index
	)

	// DeltaChunks 按类别统计增量检测出的分块
	DeltaChunks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksync_delta_chunks_total",
			Help: "Chunk-level delta sizes computed by the change detector",
		},
		[]string{"kind"}, // added, unchanged, removed
	)

	// ChunksEmbedded 已向量化的分块数
	ChunksEmbedded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ksync_chunks_embedded_total",
			Help: "Number of chunks sent to the embedding backend",
		},
	)

	// EmbedCacheHits 向量缓存命中统计
	EmbedCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksync_embed_cache_requests_total",
			Help: "Embedding cache lookups",
		},
		[]string{"result"}, // hit, miss
	)

	// IndexEntries 向量索引当前条目数
	IndexEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ksync_index_entries",
			Help: "Number of live chunks in the vector index",
		},
	)

	// SearchDuration 检索耗时
	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ksync_search_duration_seconds",
			Help:    "Latency of vector index searches",
			Buckets: prometheus.DefBuckets,
		},
	)

	// QueryResults 按结局统计查询
	QueryResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ksync_queries_total",
			Help: "Query outcomes",
		},
		[]string{"outcome"}, // answered, no_context, degraded, failed
	)
)

// Server Prometheus指标HTTP服务
type Server struct {
	srv *http.Server
}

// NewServer 创建指标服务
func NewServer(port string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		srv: &http.Server{
			Addr:    ":" + port,
			Handler: mux,
		},
	}
}

// Start 启动指标服务
func (s *Server) Start() {
	go func() {
		logger.Info("metrics server listening", zap.String("addr", s.srv.Addr))
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()
}

// Shutdown 停止指标服务
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
