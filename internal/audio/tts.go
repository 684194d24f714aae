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

const defaultTTSTimeout = 60 * time.Second

// Narrator is the text-to-speech boundary for scene narration.
type Narrator interface {
	Narrate(ctx context.Context, text string) ([]byte, error)
}

// TTSClient connects to the narration synthesis provider.
type TTSClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	voice      string
	speed      float64
}

type ttsRequest struct {
	Text  string  `json:"text"`
	Voice string  `json:"voice,omitempty"`
	Speed float64 `json:"speed,omitempty"`
}

type ttsResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Base64  string `json:"audio_data,omitempty"`
}

func NewTTSClient(cfg config.TTSConfig) *TTSClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTTSTimeout
	}
	speed := cfg.Speed
	if speed == 0 {
		speed = 1.0
	}
	return &TTSClient{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		voice:      cfg.Voice,
		speed:      speed,
	}
}

// Narrate synthesizes spoken narration for the given text.
func (c *TTSClient) Narrate(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("narration text cannot be empty")
	}

	reqJSON, err := json.Marshal(ttsRequest{
		Text:  text,
		Voice: c.voice,
		Speed: c.speed,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/v1/tts", bytes.NewReader(reqJSON))
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
		return nil, fmt.Errorf("tts provider returned status %d: %s", resp.StatusCode, truncateBody(body))
	}

	if strings.HasPrefix(resp.Header.Get("Content-Type"), "audio/") {
		return body, nil
	}

	var envelope ttsResponse
	if err := json.Unmarshal(body, &envelope); err == nil {
		if !envelope.Success && envelope.Message != "" {
			return nil, fmt.Errorf("narration synthesis failed: %s", envelope.Message)
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
