package stt

import "context"

// TranscriptResult represents a speech-to-text transcription result.
type TranscriptResult struct {
	Text       string  // The transcribed text
	Confidence float64 // Confidence score (0-1)
}

// Client defines the interface for speech-to-text providers.
// Participants record one utterance at a time, so transcription works on
// complete audio clips rather than a stream.
type Client interface {
	// Transcribe converts a complete audio clip (WAV) to text.
	Transcribe(ctx context.Context, audio []byte) (TranscriptResult, error)
}
