package audio

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Speaker plays base64 audio payloads through an ffplay subprocess. ffplay
// sniffs the container format from the stream, so both the MP3 the server
// synthesizes and WAV payloads work. Cancellation kills the subprocess.
type Speaker struct {
	mu sync.Mutex
}

// NewSpeaker creates a playback device. Returns ErrDeviceUnavailable if
// ffplay is not installed.
func NewSpeaker() (*Speaker, error) {
	if _, err := exec.LookPath("ffplay"); err != nil {
		return nil, fmt.Errorf("%w: ffplay not found in PATH", ErrDeviceUnavailable)
	}
	return &Speaker{}, nil
}

// Play decodes payload and plays it to completion. Cancelling ctx stops
// playback immediately and returns ctx.Err().
func (s *Speaker) Play(ctx context.Context, payload string) error {
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return fmt.Errorf("decode audio payload: %w", err)
	}
	if len(data) == 0 {
		return nil
	}

	// One subprocess at a time.
	s.mu.Lock()
	defer s.mu.Unlock()

	cmd := exec.CommandContext(ctx, "ffplay",
		"-nodisp",
		"-autoexit",
		"-loglevel", "error",
		"-i", "pipe:0",
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open ffplay stdin: %w", err)
	}
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffplay: %w", err)
	}

	_, writeErr := stdin.Write(data)
	_ = stdin.Close()

	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if writeErr != nil {
		return fmt.Errorf("write audio to ffplay: %w", writeErr)
	}
	if waitErr != nil {
		return fmt.Errorf("ffplay: %w", waitErr)
	}
	return nil
}
