package knowledge

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperrors "github.com/aihub/knowledge-sync/internal/errors"
)

// systemPrompt 合规问答的固定指令契约：只基于检索到的上下文回答、
// 引用来源、标注不同文档/日期之间的冲突。
const systemPrompt = "You are a Senior Financial Audit & Compliance Officer with deep expertise " +
	"in regulatory frameworks (Basel III/IV, SEC, GDPR, SEBI, FINRA). " +
	"Your role is to analyze provided regulatory context and answer compliance " +
	"questions with precision and professionalism.\n\n" +
	"Guidelines:\n" +
	"- Base all answers strictly on the provided context. Do not speculate.\n" +
	"- Bold key thresholds, percentages, and deadlines using **markdown**.\n" +
	"- If the context is insufficient to answer, state this clearly.\n" +
	"- Cite specific document sections or regulation numbers where visible.\n" +
	"- Flag any contradictions or ambiguities between source documents.\n" +
	"- Use formal, jurisdiction-appropriate language throughout."

// Generator 答案生成接口
//
// 对核心流程是黑盒，失败只影响答案合成，不影响检索结果的返回。
type Generator interface {
	Generate(ctx context.Context, query string, chunks []SearchMatch) (string, error)
	Ready() bool
}

// NoopGenerator 默认占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Generate(ctx context.Context, query string, chunks []SearchMatch) (string, error) {
	return "", apperrors.NewGenerationError("generation provider not configured")
}

func (n *NoopGenerator) Ready() bool {
	return false
}

// OpenAIGenerator 使用OpenAI Chat Completion生成合规答案
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	temperature float64
	maxTokens   int
}

// NewOpenAIGenerator 创建答案生成器
func NewOpenAIGenerator(apiKey, model string, temperature float64, maxTokens int) Generator {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	if model == "" {
		model = "gpt-4o-mini"
	}
	if maxTokens <= 0 {
		maxTokens = 2000
	}

	return &OpenAIGenerator{
		client:      openai.NewClient(apiKey),
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

func (g *OpenAIGenerator) Generate(ctx context.Context, query string, chunks []SearchMatch) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", apperrors.NewInvalidInputError("query", "empty")
	}
	if len(chunks) == 0 {
		return "", apperrors.NewInvalidInputError("chunks", "empty context")
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       g.model,
		Temperature: float32(g.temperature),
		MaxTokens:   g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf("RETRIEVED CONTEXT:\n%s\n\nCOMPLIANCE QUESTION: %s", buildContext(chunks), query),
			},
		},
	})
	if err != nil {
		return "", apperrors.NewGenerationError("chat completion failed").WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationError("chat completion returned no choices")
	}

	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}

// buildContext 拼接检索到的分块文本作为生成上下文
func buildContext(chunks []SearchMatch) string {
	texts := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		texts = append(texts, chunk.Text)
	}
	return strings.Join(texts, "\n\n")
}
