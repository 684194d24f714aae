package genai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"github.com/sashabaranov/go-openai"

	"fablecast/server/internal/config"
)

const (
	defaultTimeout = 120 * time.Second
	maxRetries     = 3
	retryDelay     = 1 * time.Second
)

// SchemaError reports that the provider could not produce output conforming
// to the requested schema after the client's retry policy. Narrative-path
// callers treat it as fatal to the operation in flight.
type SchemaError struct {
	Schema string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("generation did not conform to schema %q: %v", e.Schema, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// StructuredRequest describes one schema-constrained generation call.
type StructuredRequest struct {
	SchemaName   string
	Schema       *jsonschema.Schema
	Instructions string
	Prompt       string
	Temperature  float32
}

// Generator is the structured-generation boundary every agent talks through.
type Generator interface {
	GenerateStructured(ctx context.Context, req StructuredRequest, out any) error
}

// Client wraps an OpenAI-compatible chat-completions API with a JSON-schema
// response format and a retry loop.
type Client struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// NewClient creates a structured-generation client from config.
func NewClient(cfg config.GenerationConfig) *Client {
	apiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		apiCfg.BaseURL = cfg.BaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	return &Client{
		client:      openai.NewClientWithConfig(apiCfg),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: float32(cfg.Temperature),
		timeout:     timeout,
	}
}

// SchemaFor reflects a Go struct into the JSON schema passed to the provider.
func SchemaFor[T any]() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	var zero T
	return reflector.Reflect(zero)
}

// GenerateStructured runs one structured call and unmarshals the result into
// out. Transport failures are retried with linear backoff; a response that
// fails to unmarshal counts against the same retry budget, and exhaustion
// surfaces as a SchemaError.
func (c *Client) GenerateStructured(ctx context.Context, req StructuredRequest, out any) error {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	temperature := req.Temperature
	if temperature == 0 {
		temperature = c.temperature
	}

	chatReq := openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.Instructions},
			{Role: openai.ChatMessageRoleUser, Content: req.Prompt},
		},
		Temperature: temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   req.SchemaName,
				Schema: req.Schema,
				Strict: true,
			},
		},
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-callCtx.Done():
				return callCtx.Err()
			case <-time.After(retryDelay * time.Duration(attempt)):
			}
		}

		resp, err := c.client.CreateChatCompletion(callCtx, chatReq)
		if err != nil {
			lastErr = err
			if !isRetryableError(err) {
				break
			}
			continue
		}
		if len(resp.Choices) == 0 {
			lastErr = fmt.Errorf("empty response from provider")
			continue
		}

		content := resp.Choices[0].Message.Content
		if err := json.Unmarshal([]byte(content), out); err != nil {
			lastErr = fmt.Errorf("failed to parse structured response: %w", err)
			continue
		}
		return nil
	}

	return &SchemaError{Schema: req.SchemaName, Err: lastErr}
}

// isRetryableError checks if an error is retryable
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "rate limit") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "429")
}
