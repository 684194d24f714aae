package genai

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"

	"fablecast/server/internal/config"
)

// Embedder turns text into vectors for the anchor memory store.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingClient calls an OpenAI-compatible embeddings endpoint.
type EmbeddingClient struct {
	client *openai.Client
	model  string
}

func NewEmbeddingClient(cfg config.EmbeddingConfig) *EmbeddingClient {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}
	return &EmbeddingClient{
		client: openai.NewClientWithConfig(apiCfg),
		model:  cfg.Model,
	}
}

func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: []string{text},
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create embedding: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}
	return resp.Data[0].Embedding, nil
}
