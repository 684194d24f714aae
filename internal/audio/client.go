// Package audio realizes audio cues: a client for the synthesis provider and
// a worker pipeline that turns pending EpisodeAudio rows into stored assets.
package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"fablecast/server/internal/config"
)

const defaultSynthTimeout = 60 * time.Second

// Synthesizer is the audio-synthesis provider boundary.
type Synthesizer interface {
	ComposeMusic(ctx context.Context, prompt string, durationMs int) ([]byte, error)
	SynthesizeSoundEffect(ctx context.Context, text string, durationSeconds float64, promptInfluence float64, loop bool) ([]byte, error)
}

// Client talks to the synthesis provider over HTTP.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

type musicRequest struct {
	Prompt     string `json:"prompt"`
	DurationMs int    `json:"duration_ms"`
}

type sfxRequest struct {
	Text            string  `json:"text"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	PromptInfluence float64 `json:"prompt_influence"`
	Loop            bool    `json:"loop"`
}

type synthResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Base64  string `json:"audio_data,omitempty"`
}

func NewClient(cfg config.AudioConfig) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultSynthTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
	}
}

// ComposeMusic requests an instrumental track for the given prompt.
func (c *Client) ComposeMusic(ctx context.Context, prompt string, durationMs int) ([]byte, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, fmt.Errorf("music prompt cannot be empty")
	}
	return c.post(ctx, "/v1/music/compose", musicRequest{
		Prompt:     prompt,
		DurationMs: durationMs,
	})
}

// SynthesizeSoundEffect requests a sound effect for the given text.
func (c *Client) SynthesizeSoundEffect(ctx context.Context, text string, durationSeconds float64, promptInfluence float64, loop bool) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("sfx text cannot be empty")
	}
	return c.post(ctx, "/v1/sound-effects", sfxRequest{
		Text:            text,
		DurationSeconds: durationSeconds,
		PromptInfluence: promptInfluence,
		Loop:            loop,
	})
}

func (c *Client) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	reqJSON, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+path, bytes.NewReader(reqJSON))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("provider returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	// Providers return either raw bytes or a JSON envelope with base64 audio.
	contentType := resp.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "audio/") {
		return body, nil
	}

	var envelope synthResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		if !envelope.Success && envelope.Message != "" {
			return nil, fmt.Errorf("synthesis failed: %s", envelope.Message)
		}
		if envelope.Base64 != "" {
			decoded, err := base64.StdEncoding.DecodeString(envelope.Base64)
			if err != nil {
				return nil, fmt.Errorf("failed to decode audio payload: %w", err)
			}
			return decoded, nil
		}
	}

	return body, nil
}

func truncateBody(body []byte) string {
	const limit = 200
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
