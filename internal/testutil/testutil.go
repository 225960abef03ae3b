package testutil

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/capture"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/models"
	"github.com/medicalscribe/scribe/internal/recording"
)

// TestConfig returns a valid configuration for testing
func TestConfig() *config.Config {
	return &config.Config{
		Backend: config.BackendConfig{
			URL:     "http://127.0.0.1:8000",
			Timeout: 30 * time.Second,
		},
		Recording: config.RecordingConfig{
			Backend:           "pipewire",
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			BlockPeriod:       5 * time.Second,
		},
		Transcription: config.TranscriptionConfig{
			Provider: "backend",
			Language: "pt",
			Model:    "whisper-1",
		},
		Copilot: config.CopilotConfig{
			Provider:    "backend",
			QuietPeriod: 3500 * time.Millisecond,
			MinChars:    10,
		},
		Providers: map[string]config.ProviderConfig{
			"openai": {APIKey: "test-api-key"},
		},
		Session: config.SessionConfig{
			Scenario: "PS",
			Archive:  true,
		},
		Export: config.ExportConfig{
			Generator: "Medical Scribe",
		},
		Notifications: config.NotificationsConfig{
			Enabled: true,
			Type:    "log",
		},
		HTTP: config.HTTPConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// CreateTempConfigFile creates a temporary config file for testing
func CreateTempConfigFile(t *testing.T, configContent string) string {
	t.Helper()

	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "config.toml")

	err := os.WriteFile(configPath, []byte(configContent), 0644)
	if err != nil {
		t.Fatalf("Failed to create temp config file: %v", err)
	}

	return configPath
}

// TestContext returns a context with timeout for testing
func TestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// WaitForCondition waits for a condition to be true or times out
func WaitForCondition(t *testing.T, condition func() bool, timeout time.Duration) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Condition not met within %v", timeout)
		default:
			if condition() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}
}

// CaptureOutput captures stdout for testing
func CaptureOutput(t *testing.T, fn func()) string {
	t.Helper()

	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	out, _ := io.ReadAll(r)
	return string(out)
}

// MockSource implements recording.Source. Frames are fed by Push.
type MockSource struct {
	StartError error

	mu        sync.Mutex
	frames    chan recording.AudioFrame
	errs      chan error
	starts    int
	recording bool
}

func NewMockSource() *MockSource {
	return &MockSource{}
}

func (m *MockSource) Start(ctx context.Context) (<-chan recording.AudioFrame, <-chan error, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.StartError != nil {
		return nil, nil, m.StartError
	}
	if m.recording {
		return nil, nil, recording.ErrAlreadyRecording
	}

	m.frames = make(chan recording.AudioFrame, 64)
	m.errs = make(chan error, 4)
	m.starts++
	m.recording = true
	return m.frames, m.errs, nil
}

// Push delivers one frame. It reports false when the source is not streaming
// or the frame buffer is full.
func (m *MockSource) Push(data []byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return false
	}
	frame := recording.AudioFrame{Data: append([]byte(nil), data...), Timestamp: time.Now()}
	select {
	case m.frames <- frame:
		return true
	default:
		return false
	}
}

// Fail reports a stream error without ending the stream.
func (m *MockSource) Fail(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.recording {
		return
	}
	select {
	case m.errs <- err:
	default:
	}
}

// Close ends the stream as if the device went away.
func (m *MockSource) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeLocked()
}

func (m *MockSource) closeLocked() {
	if !m.recording {
		return
	}
	m.recording = false
	close(m.frames)
	close(m.errs)
}

func (m *MockSource) Stop() error {
	m.Close()
	return nil
}

func (m *MockSource) IsRecording() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recording
}

// Starts counts how many times the device was acquired.
func (m *MockSource) Starts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.starts
}

// MockTranscriber implements transcriber.Transcriber for testing
type MockTranscriber struct {
	TranscribeFunc func(ctx context.Context, blk capture.Block) (string, error)

	mu     sync.Mutex
	blocks []capture.Block
}

func NewMockTranscriber() *MockTranscriber {
	return &MockTranscriber{}
}

func (m *MockTranscriber) Transcribe(ctx context.Context, blk capture.Block) (string, error) {
	m.mu.Lock()
	m.blocks = append(m.blocks, blk)
	fn := m.TranscribeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, blk)
	}
	return "mock transcription", nil
}

// Blocks returns the uploaded blocks in call order.
func (m *MockTranscriber) Blocks() []capture.Block {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]capture.Block, len(m.blocks))
	copy(out, m.blocks)
	return out
}

// MockClinical implements llm.Clinical for testing
type MockClinical struct {
	Insight         string
	Bundle          models.Bundle
	CopilotFunc     func(ctx context.Context, transcript string, scenario models.Scenario) (string, error)
	SystematizeFunc func(ctx context.Context, transcript string, scenario models.Scenario) (models.Bundle, error)

	mu          sync.Mutex
	copilot     []string
	systematize []string
}

func NewMockClinical(bundle models.Bundle) *MockClinical {
	return &MockClinical{Insight: "mock insight", Bundle: bundle}
}

func (m *MockClinical) Copilot(ctx context.Context, transcript string, scenario models.Scenario) (string, error) {
	m.mu.Lock()
	m.copilot = append(m.copilot, transcript)
	fn := m.CopilotFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, transcript, scenario)
	}
	return m.Insight, nil
}

func (m *MockClinical) Systematize(ctx context.Context, transcript string, scenario models.Scenario) (models.Bundle, error) {
	m.mu.Lock()
	m.systematize = append(m.systematize, transcript)
	fn := m.SystematizeFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, transcript, scenario)
	}
	return m.Bundle, nil
}

// CopilotCalls returns the transcripts sent for live analysis.
func (m *MockClinical) CopilotCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.copilot...)
}

// SystematizeCalls returns the transcripts sent for systematization.
func (m *MockClinical) SystematizeCalls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.systematize...)
}
