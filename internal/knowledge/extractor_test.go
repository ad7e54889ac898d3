package knowledge

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
)

// TestExtractPlainText 纯文本提取产生带元数据的有序分段
func TestExtractPlainText(t *testing.T) {
	extractor := NewFileExtractor(40, 0)
	text := strings.Repeat("regulatory capital adequacy rules ", 5)

	segments, err := extractor.Extract(context.Background(), "basel_iii.txt", []byte(text))
	require.NoError(t, err)
	require.NotEmpty(t, segments)

	for i, seg := range segments {
		assert.Equal(t, i, seg.Metadata.Position)
		assert.Equal(t, "basel_iii", seg.Metadata.Title)
		assert.Equal(t, "basel_iii.txt", seg.Metadata.Source)
		assert.NotEmpty(t, seg.Text)
	}
}

// TestExtractMarkdown markdown按纯文本处理
func TestExtractMarkdown(t *testing.T) {
	extractor := NewFileExtractor(800, 120)
	segments, err := extractor.Extract(context.Background(), "policy.md", []byte("# Policy\n\nSome rule."))
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Contains(t, segments[0].Text, "Some rule.")
}

// TestExtractEmptyPayload 空负载是提取错误
func TestExtractEmptyPayload(t *testing.T) {
	extractor := NewFileExtractor(800, 120)
	_, err := extractor.Extract(context.Background(), "empty.txt", nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExtractionFailed))
}

// TestExtractUnsupportedFormat 不支持的扩展名被拒绝
func TestExtractUnsupportedFormat(t *testing.T) {
	extractor := NewFileExtractor(800, 120)
	_, err := extractor.Extract(context.Background(), "image.png", []byte{0x89, 0x50})
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExtractionFailed))
}

// TestExtractWhitespaceOnly 只有空白的文档不产生分段
func TestExtractWhitespaceOnly(t *testing.T) {
	extractor := NewFileExtractor(800, 120)
	_, err := extractor.Extract(context.Background(), "blank.txt", []byte("  \n\t  "))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExtractionFailed))
}

// TestExtractCorruptPDF 损坏的PDF返回提取错误而不是panic
func TestExtractCorruptPDF(t *testing.T) {
	extractor := NewFileExtractor(800, 120)
	_, err := extractor.Extract(context.Background(), "broken.pdf", []byte("not a real pdf"))
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeExtractionFailed))
}
