package knowledge

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
)

// Segment 内容提取结果：一段文本及其布局元数据
type Segment struct {
	Text     string
	Metadata ChunkMetadata
}

// Extractor 内容提取接口
//
// 把原始字节变为有序的文本段序列。畸形或不支持的输入必须返回
// ExtractionError，不允许静默返回空结果。
type Extractor interface {
	Extract(ctx context.Context, name string, data []byte) ([]Segment, error)
}

// FileExtractor 基于文件解析器和分块器的内容提取实现
type FileExtractor struct {
	parsers *FileParserManager
	chunker *Chunker
}

// NewFileExtractor 创建文件内容提取器
func NewFileExtractor(chunkSize, chunkOverlap int) *FileExtractor {
	return &FileExtractor{
		parsers: NewFileParserManager(),
		chunker: NewChunker(chunkSize, chunkOverlap),
	}
}

// Extract 解析文件字节并切分为有序文本段
func (e *FileExtractor) Extract(ctx context.Context, name string, data []byte) ([]Segment, error) {
	if len(data) == 0 {
		return nil, apperrors.NewExtractionError("empty document payload")
	}
	if !e.parsers.Supports(name) {
		return nil, apperrors.NewExtractionError("unsupported file format: " + name)
	}

	text, err := e.parsers.ParseFile(bytes.NewReader(data), name)
	if err != nil {
		return nil, apperrors.NewExtractionError("failed to parse document").WithCause(err)
	}

	parts := e.chunker.Split(text)
	if len(parts) == 0 {
		return nil, apperrors.NewExtractionError("document produced no text")
	}

	title := documentTitle(name)
	segments := make([]Segment, 0, len(parts))
	for i, part := range parts {
		segments = append(segments, Segment{
			Text: part,
			Metadata: ChunkMetadata{
				Title:    title,
				Source:   name,
				Position: i,
			},
		})
	}
	return segments, nil
}

func documentTitle(name string) string {
	base := filepath.Base(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
