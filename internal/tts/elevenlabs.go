package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const elevenLabsAPIURL = "https://api.elevenlabs.io/v1/text-to-speech"

// Named voices coordinators pick in audio settings, mapped to ElevenLabs
// voice IDs. Unknown names fall back to the default voice.
var voiceIDs = map[string]string{
	"nova":  "21m00Tcm4TlvDq8ikWAM", // Rachel
	"echo":  "TxGEqnHWrfWFTfGW9XjX", // Josh
	"alloy": "pNInz6obpgDQGcFmaJgB", // Adam
}

// ElevenLabsClient implements the Client interface using ElevenLabs' API.
type ElevenLabsClient struct {
	apiKey     string
	voiceID    string
	modelID    string
	speed      float64
	baseURL    string
	httpClient *http.Client
}

// ElevenLabsConfig holds configuration for the ElevenLabs client.
type ElevenLabsConfig struct {
	APIKey  string
	Voice   string  // named voice from audio settings, e.g. "nova"
	ModelID string  // e.g., "eleven_flash_v2_5" for low latency
	Speed   float64 // playback speed multiplier, 0 means 1.0
	BaseURL string  // override for tests, defaults to the ElevenLabs API
}

// NewElevenLabsClient creates a new ElevenLabs client.
func NewElevenLabsClient(cfg ElevenLabsConfig) *ElevenLabsClient {
	modelID := cfg.ModelID
	if modelID == "" {
		modelID = "eleven_flash_v2_5"
	}
	voiceID, ok := voiceIDs[cfg.Voice]
	if !ok || voiceID == "" {
		voiceID = voiceIDs["nova"]
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1.0
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = elevenLabsAPIURL
	}
	return &ElevenLabsClient{
		apiKey:     cfg.APIKey,
		voiceID:    voiceID,
		modelID:    modelID,
		speed:      speed,
		baseURL:    baseURL,
		httpClient: &http.Client{},
	}
}

// ttsRequest represents an ElevenLabs TTS request.
type ttsRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Speed           float64 `json:"speed,omitempty"`
}

// Synthesize converts text to speech and returns MP3 audio data.
func (c *ElevenLabsClient) Synthesize(ctx context.Context, text string) ([]byte, error) {
	url := fmt.Sprintf("%s/%s?output_format=mp3_44100_128", c.baseURL, c.voiceID)

	req := ttsRequest{
		Text:    text,
		ModelID: c.modelID,
		VoiceSettings: voiceSettings{
			Stability:       0.5,
			SimilarityBoost: 0.75,
			Speed:           c.speed,
		},
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("xi-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("ElevenLabs API error: %s - %s", resp.Status, string(respBody))
	}

	return io.ReadAll(resp.Body)
}
