package knowledge

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestChunkerShortText 短文本得到单个分块
func TestChunkerShortText(t *testing.T) {
	chunker := NewChunker(100, 20)
	parts := chunker.Split("a short regulatory paragraph")
	require.Len(t, parts, 1)
	assert.Equal(t, "a short regulatory paragraph", parts[0])
}

// TestChunkerWindowAndOverlap 相邻分块共享重叠区
func TestChunkerWindowAndOverlap(t *testing.T) {
	chunker := NewChunker(10, 4)
	parts := chunker.Split(strings.Repeat("abcdef", 10))

	require.Greater(t, len(parts), 1)
	for _, part := range parts {
		assert.LessOrEqual(t, len([]rune(part)), 10)
	}
	// 步长为6，前一块的后4个rune出现在下一块开头
	first := []rune(parts[0])
	second := []rune(parts[1])
	assert.Equal(t, string(first[6:]), string(second[:4]))
}

// TestChunkerNormalizesWhitespace 连续空白折叠为单个空格
func TestChunkerNormalizesWhitespace(t *testing.T) {
	chunker := NewChunker(100, 0)
	parts := chunker.Split("line one\n\n\tline   two")
	require.Len(t, parts, 1)
	assert.Equal(t, "line one line two", parts[0])
}

// TestChunkerEmptyInput 空白文本不产生分块
func TestChunkerEmptyInput(t *testing.T) {
	chunker := NewChunker(100, 0)
	assert.Nil(t, chunker.Split("   \n\t  "))
}

// TestChunkerDeterministic 相同输入产生相同切分
func TestChunkerDeterministic(t *testing.T) {
	chunker := NewChunker(12, 3)
	text := strings.Repeat("regulatory capital text ", 20)
	a := chunker.Split(text)
	b := chunker.Split(text)
	assert.Equal(t, a, b)
}

// TestChunkerRuneSafety 多字节字符不会被从中间切断
func TestChunkerRuneSafety(t *testing.T) {
	chunker := NewChunker(4, 0)
	parts := chunker.Split("资本充足率要求适用于全部银行")
	for _, part := range parts {
		assert.True(t, strings.ToValidUTF8(part, "") == part)
	}
}
