package tts

import "context"

// Client defines the interface for text-to-speech providers.
type Client interface {
	// Synthesize converts text to speech and returns audio data.
	// The returned audio is MP3 suitable for browser and CLI playback.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
