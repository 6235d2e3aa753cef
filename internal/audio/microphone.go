package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"sync"
)

const (
	micSampleRateHz   = 16000
	micChannels       = 1
	micBytesPerSample = 2
)

// Microphone captures audio through an ffmpeg subprocess reading the system
// default input device and emitting raw s16le PCM on stdout. StopRecording
// wraps the buffered PCM in a WAV container and base64-encodes it.
type Microphone struct {
	mu          sync.Mutex
	initialized bool

	cmd    *exec.Cmd
	stdout io.ReadCloser
	buf    bytes.Buffer
	wg     sync.WaitGroup
}

// NewMicrophone creates an uninitialized microphone recorder.
func NewMicrophone() *Microphone {
	return &Microphone{}
}

// Initialize verifies ffmpeg and a capture device are available. It does not
// start capturing.
func (m *Microphone) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}
	if _, err := exec.LookPath("ffmpeg"); err != nil {
		return fmt.Errorf("%w: ffmpeg not found in PATH", ErrDeviceUnavailable)
	}
	if _, err := micArgs(runtime.GOOS); err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	m.initialized = true
	return nil
}

// StartRecording spawns the capture subprocess and begins buffering PCM.
func (m *Microphone) StartRecording() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return ErrNotInitialized
	}
	if m.cmd != nil {
		return ErrAlreadyRecording
	}

	args, err := micArgs(runtime.GOOS)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	cmd := exec.Command("ffmpeg", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open ffmpeg stdout: %w", err)
	}
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: %v", ErrPermissionDenied, err)
	}

	m.cmd = cmd
	m.stdout = stdout
	m.buf.Reset()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		// Copy until the process exits or the pipe is closed by Stop.
		_, _ = io.Copy(&lockedWriter{mic: m}, stdout)
	}()

	return nil
}

// StopRecording halts capture, flushes the buffer and returns the recording
// as a base64-encoded WAV payload.
func (m *Microphone) StopRecording() (string, error) {
	m.mu.Lock()
	cmd := m.cmd
	m.mu.Unlock()

	if cmd == nil {
		return "", ErrNotRecording
	}

	_ = cmd.Process.Kill()
	_ = cmd.Wait()
	m.wg.Wait()

	m.mu.Lock()
	pcm := make([]byte, m.buf.Len())
	copy(pcm, m.buf.Bytes())
	m.buf.Reset()
	m.cmd = nil
	m.stdout = nil
	m.mu.Unlock()

	wav := wavFromPCM(pcm, micSampleRateHz, micChannels, micBytesPerSample)
	return base64.StdEncoding.EncodeToString(wav), nil
}

// Close releases the device, killing any in-flight capture.
func (m *Microphone) Close() error {
	m.mu.Lock()
	cmd := m.cmd
	m.cmd = nil
	m.initialized = false
	m.mu.Unlock()

	if cmd != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		m.wg.Wait()
	}
	return nil
}

// lockedWriter appends captured PCM under the microphone mutex so the buffer
// can be read safely from StopRecording.
type lockedWriter struct {
	mic *Microphone
}

func (w *lockedWriter) Write(p []byte) (int, error) {
	w.mic.mu.Lock()
	defer w.mic.mu.Unlock()
	return w.mic.buf.Write(p)
}

func micArgs(goos string) ([]string, error) {
	switch goos {
	case "darwin":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "avfoundation", "-i", ":0",
			"-ac", fmt.Sprintf("%d", micChannels),
			"-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	case "linux":
		return []string{
			"-hide_banner", "-loglevel", "error",
			"-f", "pulse", "-i", "default",
			"-ac", fmt.Sprintf("%d", micChannels),
			"-ar", fmt.Sprintf("%d", micSampleRateHz),
			"-f", "s16le", "-",
		}, nil
	default:
		return nil, fmt.Errorf("mic capture not implemented for %s", goos)
	}
}

// wavFromPCM wraps raw s16le PCM in a minimal RIFF/WAVE container.
func wavFromPCM(pcm []byte, sampleRate, channels, bytesPerSample int) []byte {
	var b bytes.Buffer
	dataLen := uint32(len(pcm))
	byteRate := uint32(sampleRate * channels * bytesPerSample)
	blockAlign := uint16(channels * bytesPerSample)

	b.WriteString("RIFF")
	_ = binary.Write(&b, binary.LittleEndian, 36+dataLen)
	b.WriteString("WAVE")
	b.WriteString("fmt ")
	_ = binary.Write(&b, binary.LittleEndian, uint32(16))
	_ = binary.Write(&b, binary.LittleEndian, uint16(1)) // PCM
	_ = binary.Write(&b, binary.LittleEndian, uint16(channels))
	_ = binary.Write(&b, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&b, binary.LittleEndian, byteRate)
	_ = binary.Write(&b, binary.LittleEndian, blockAlign)
	_ = binary.Write(&b, binary.LittleEndian, uint16(bytesPerSample*8))
	b.WriteString("data")
	_ = binary.Write(&b, binary.LittleEndian, dataLen)
	b.Write(pcm)
	return b.Bytes()
}
