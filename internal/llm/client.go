// Package llm wraps the OpenAI API behind a circuit breaker and bounded
// retries. This is the only layer that retries; the pipeline above it never
// does.
package llm

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/supportdesk/backend/pkg/circuitbreaker"
	"github.com/supportdesk/backend/pkg/logger"
	"github.com/supportdesk/backend/pkg/retry"
)

type Client struct {
	client         *openai.Client
	model          string
	embeddingModel string
	temperature    float32
	maxTokens      int
	cb             *circuitbreaker.CircuitBreaker
	retryConfig    retry.Config
}

func NewClient(apiKey, model, embeddingModel string, temperature float32, maxTokens int) *Client {
	cb := circuitbreaker.New("llm", circuitbreaker.Config{
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

	logger.Info("LLM client initialized",
		zap.String("model", model),
		zap.String("embedding_model", embeddingModel),
	)

	return &Client{
		client:         openai.NewClient(apiKey),
		model:          model,
		embeddingModel: embeddingModel,
		temperature:    temperature,
		maxTokens:      maxTokens,
		cb:             cb,
		retryConfig:    retryConfig,
	}
}

// Complete runs one chat completion with the configured model.
func (c *Client) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	messages := []openai.ChatCompletionMessage{
		{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
		{Role: openai.ChatMessageRoleUser, Content: userPrompt},
	}

	var content string

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
				Model:       c.model,
				Messages:    messages,
				Temperature: c.temperature,
				MaxTokens:   c.maxTokens,
			})
			if err != nil {
				return fmt.Errorf("failed to create completion: %w", err)
			}
			if len(resp.Choices) == 0 {
				return fmt.Errorf("completion returned no choices")
			}

			logger.Debug("LLM completion generated",
				zap.Int("prompt_tokens", resp.Usage.PromptTokens),
				zap.Int("completion_tokens", resp.Usage.CompletionTokens),
			)

			content = resp.Choices[0].Message.Content
			return nil
		})
	})
	if err != nil {
		return "", err
	}

	return content, nil
}

// Embed generates embeddings for a batch of texts. It satisfies
// vectorstore.Embedder.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	var embeddings [][]float32

	err := c.cb.Execute(ctx, func() error {
		return retry.Do(ctx, c.retryConfig, func() error {
			resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Input: texts,
				Model: openai.EmbeddingModel(c.embeddingModel),
			})
			if err != nil {
				return fmt.Errorf("failed to generate embeddings: %w", err)
			}
			if len(resp.Data) != len(texts) {
				return fmt.Errorf("embedding count mismatch: got %d, expected %d", len(resp.Data), len(texts))
			}

			embeddings = make([][]float32, len(resp.Data))
			for i, d := range resp.Data {
				vec := make([]float32, len(d.Embedding))
				copy(vec, d.Embedding)
				embeddings[i] = vec
			}

			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	return embeddings, nil
}
