package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/concept-agent/backend/pkg/circuitbreaker"
	"github.com/concept-agent/backend/pkg/logger"
	"github.com/concept-agent/backend/pkg/retry"
)

const extractionSystemPrompt = `你是一个专业的信息抽取助手。你的任务是从用户的自然语言查询中抽取结构化信息。
请严格按照JSON格式返回抽取结果，不要包含其他解释性文字。`

const extractionPromptTemplate = `分析下方的【待处理文本】，该文本描述了一个特定人群。你需要：
1. 提取描述这个人群的所有静态属性。
2. 提取这个人群执行的所有行为事件及其相关属性。
3. 以一个结构化的JSON对象输出。

核心规则：
- 所有提取出的值必须是原文片段，一字不差。
- 键根据含义动态生成，例如原文"年龄在25到35岁之间"提取为 "年龄": "25到35岁之间"。
- 严格区分静态属性与行为事件，分别放入 person_attributes 和 behavioral_events。
- 输出必须是严格的JSON。找不到任何信息时返回包含空对象和空列表的JSON。

输出结构：
{
  "person_attributes": { "属性名": "原文片段", ... },
  "behavioral_events": [
    { "event_type": "事件动作概括", "attributes": { "属性名": "原文片段", ... } }
  ]
}

【待处理文本】:
{query}`

// Client wraps one OpenAI-compatible endpoint for both structured extraction
// and embedding generation. The original deployment pointed this at an Ark
// endpoint, so the base URL is overridable.
type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	timeout        time.Duration
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, baseURL, model, embeddingModel string, temperature float32, maxTokens, timeoutSec int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	cb := circuitbreaker.NewCircuitBreaker("llm", circuitbreaker.Config{
		MaxRequests:      5,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Logger:           logger.GetLogger(),
	})

	retryConfig := retry.Config{
		MaxAttempts:    3,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       5 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger.GetLogger(),
	}

	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         openai.NewClientWithConfig(cfg),
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		timeout:        timeout,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// Extract runs the structured-extraction prompt against the query text and
// returns the raw JSON payload the model produced. The payload's shape is not
// validated here; the extraction normalizer owns shape tolerance.
func (c *Client) Extract(ctx context.Context, query string) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	userPrompt := strings.ReplaceAll(extractionPromptTemplate, "{query}", query)

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(
				ctx,
				openai.ChatCompletionRequest{
					Model:       c.model,
					Messages:    messages,
					Temperature: c.temperature,
					MaxTokens:   c.maxTokens,
				},
			)
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("empty response from extraction model")
			}

			logger.Debug("Extraction completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return json.RawMessage(stripCodeFence(content)), nil
}

// Embed returns the dense vector for one text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, fmt.Errorf("embedding response was empty")
	}
	return embeddings[0], nil
}

// EmbedBatch returns dense vectors for texts in input order, chunking
// large inputs into provider-sized batches.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var embeddings [][]float32

	batchSize := 100
	for i := 0; i < len(texts); i += batchSize {
		end := i + batchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch := texts[i:end]

		err := c.cb.Execute(ctx, func() error {
			return retry.Do(ctx, c.retryConfig, func() error {
				resp, err := c.client.CreateEmbeddings(
					ctx,
					openai.EmbeddingRequest{
						Input: batch,
						Model: openai.EmbeddingModel(c.embeddingModel),
					},
				)
				if err != nil {
					return fmt.Errorf("failed to generate batch embeddings: %w", err)
				}

				for _, data := range resp.Data {
					embedding := make([]float32, len(data.Embedding))
					copy(embedding, data.Embedding)
					embeddings = append(embeddings, embedding)
				}
				return nil
			})
		})
		if err != nil {
			return nil, err
		}
	}

	logger.Debug("Batch embeddings generated", zap.Int("count", len(embeddings)))

	return embeddings, nil
}

// stripCodeFence removes a surrounding markdown code block, which some models
// wrap JSON output in despite the prompt.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```json") {
		s = strings.TrimPrefix(s, "```json")
	} else if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
