// Package audio provides the microphone capture and playback services used
// by the interview engine. The engine depends on the Recorder and Player
// interfaces only; the concrete devices shell out to ffmpeg/ffplay.
package audio

import (
	"context"
	"errors"
)

var (
	// ErrPermissionDenied means the OS refused microphone access.
	ErrPermissionDenied = errors.New("audio: microphone permission denied")
	// ErrDeviceUnavailable means no usable capture device was found.
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	// ErrNotInitialized means StartRecording was called before Initialize.
	ErrNotInitialized = errors.New("audio: recorder not initialized")
	// ErrAlreadyRecording means StartRecording was called while capturing.
	ErrAlreadyRecording = errors.New("audio: already recording")
	// ErrNotRecording means StopRecording was called with no active capture.
	ErrNotRecording = errors.New("audio: no active recording")
)

// Recorder captures microphone audio and returns it as a base64 payload.
// Initialize acquires device access once per process; StartRecording and
// StopRecording bracket a single capture.
type Recorder interface {
	Initialize(ctx context.Context) error
	StartRecording() error
	StopRecording() (string, error)
	Close() error
}

// Player decodes and plays one base64 audio payload. Play blocks until
// playback naturally ends or ctx is cancelled; cancellation is the forced
// stop path and returns ctx.Err(). Callers must not run two plays at once.
type Player interface {
	Play(ctx context.Context, payload string) error
}
