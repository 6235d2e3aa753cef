package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const deepgramURL = "https://api.deepgram.com/v1/listen"

// DeepgramClient implements the Client interface using Deepgram's
// prerecorded transcription API.
type DeepgramClient struct {
	apiKey     string
	model      string
	language   string
	baseURL    string
	httpClient *http.Client
}

// DeepgramConfig holds configuration for the Deepgram client.
type DeepgramConfig struct {
	APIKey   string
	Model    string // e.g., "nova-2"
	Language string // e.g., "en"
	BaseURL  string // override for tests, defaults to the Deepgram API
}

// deepgramResponse represents a Deepgram prerecorded API response.
type deepgramResponse struct {
	Results struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// NewDeepgramClient creates a new Deepgram transcription client.
func NewDeepgramClient(cfg DeepgramConfig) *DeepgramClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = deepgramURL
	}
	model := cfg.Model
	if model == "" {
		model = "nova-2"
	}
	language := cfg.Language
	if language == "" {
		language = "en"
	}
	return &DeepgramClient{
		apiKey:     cfg.APIKey,
		model:      model,
		language:   language,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Transcribe sends a complete WAV clip to Deepgram and returns the best
// alternative for the first channel.
func (c *DeepgramClient) Transcribe(ctx context.Context, audio []byte) (TranscriptResult, error) {
	url := fmt.Sprintf("%s?model=%s&language=%s&punctuate=true&smart_format=true",
		c.baseURL, c.model, c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(audio))
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+c.apiKey)
	req.Header.Set("Content-Type", "audio/wav")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("deepgram request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return TranscriptResult{}, fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, string(body))
	}

	var dgResp deepgramResponse
	if err := json.NewDecoder(resp.Body).Decode(&dgResp); err != nil {
		return TranscriptResult{}, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(dgResp.Results.Channels) == 0 || len(dgResp.Results.Channels[0].Alternatives) == 0 {
		return TranscriptResult{}, nil
	}

	alt := dgResp.Results.Channels[0].Alternatives[0]
	return TranscriptResult{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}
