// Package transcriber turns one captured audio block into text.
package transcriber

import (
	"context"
	"fmt"
	"time"

	"github.com/medicalscribe/scribe/internal/backend"
	"github.com/medicalscribe/scribe/internal/capture"
)

// Transcriber transcribes a single block. Failures are classified with
// apierr; callers decide whether to retry.
type Transcriber interface {
	Transcribe(ctx context.Context, blk capture.Block) (string, error)
}

type Config struct {
	Provider string
	APIKey   string
	Language string
	Model    string
	BaseURL  string
	Timeout  time.Duration
}

func DefaultConfig() Config {
	return Config{
		Provider: "backend",
		Language: "pt",
		Model:    "whisper-1",
		Timeout:  60 * time.Second,
	}
}

// New builds the transcriber named by config.Provider. The backend client is
// only used by the "backend" provider; doctorName may be nil.
func New(config Config, client *backend.Client, doctorName func() string) (Transcriber, error) {
	switch config.Provider {
	case "", "backend":
		if client == nil {
			return nil, fmt.Errorf("backend transcription requires a backend URL")
		}
		return NewBackendAdapter(client, doctorName), nil

	case "openai":
		if config.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(config), nil

	case "groq":
		if config.APIKey == "" {
			return nil, fmt.Errorf("Groq API key required")
		}
		if config.BaseURL == "" {
			config.BaseURL = GroqBaseURL
		}
		return NewOpenAIAdapter(config), nil

	default:
		return nil, fmt.Errorf("unsupported transcription provider: %s", config.Provider)
	}
}

// BackendAdapter uploads blocks to the scribe backend.
type BackendAdapter struct {
	client     *backend.Client
	doctorName func() string
}

func NewBackendAdapter(client *backend.Client, doctorName func() string) *BackendAdapter {
	return &BackendAdapter{client: client, doctorName: doctorName}
}

func (a *BackendAdapter) Transcribe(ctx context.Context, blk capture.Block) (string, error) {
	if blk.Empty() {
		return "", nil
	}
	var doctor string
	if a.doctorName != nil {
		doctor = a.doctorName()
	}
	text, err := a.client.Transcribe(ctx, blk.Filename(), blk.Bytes, doctor)
	if err != nil {
		return "", fmt.Errorf("transcribe block %d: %w", blk.Index, err)
	}
	return text, nil
}
