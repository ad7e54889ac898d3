package knowledge

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// ChunkMetadata 分块元数据
//
// 由内容解析层填充，核心流程只负责透传，不做解释。
type ChunkMetadata struct {
	Title         string
	Source        string
	EffectiveDate string
	Position      int
	Extra         map[string]interface{}
}

// Chunk 表示文档的一个语义分块，是向量化与检索的最小单元
type Chunk struct {
	ChunkID     string
	DocumentID  string
	Position    int
	Text        string
	ContentHash string
	Embedding   []float32
	Metadata    ChunkMetadata
}

// Document 文档的当前已索引版本
type Document struct {
	DocumentID string
	Version    uint64
	Chunks     []Chunk
	IndexedAt  time.Time
}

// ChunkIDs 返回当前版本全部分块ID
func (d *Document) ChunkIDs() []string {
	ids := make([]string, 0, len(d.Chunks))
	for _, c := range d.Chunks {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

// Delta 两个文档版本之间的分块差异
type Delta struct {
	Added     []Chunk
	Unchanged []Chunk
	Removed   []Chunk
}

// IsEmpty 检查差异是否为空
func (d Delta) IsEmpty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0
}

// HashContent 计算归一化文本的内容哈希
func HashContent(text string) string {
	sum := sha256.Sum256([]byte(NormalizeText(text)))
	return hex.EncodeToString(sum[:])
}

// DeriveChunkID 派生确定性分块ID
//
// 同一文档中相同位置的相同内容在任何版本下都得到相同ID，
// 这是增量检测跳过未变分块的基础。位置参与派生，
// 因此内容不变但位置移动的分块会被视为删除+新增。
func DeriveChunkID(documentID string, position int, contentHash string) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%s", documentID, position, contentHash)))
	return hex.EncodeToString(sum[:16])
}

// NewChunk 构造带确定性ID的分块
func NewChunk(documentID string, position int, text string, meta ChunkMetadata) Chunk {
	contentHash := HashContent(text)
	meta.Position = position
	return Chunk{
		ChunkID:     DeriveChunkID(documentID, position, contentHash),
		DocumentID:  documentID,
		Position:    position,
		Text:        text,
		ContentHash: contentHash,
		Metadata:    meta,
	}
}

// NormalizeText 归一化文本：压缩空白并去除首尾空格
func NormalizeText(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
