package transcriber

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/medicalscribe/scribe/internal/apierr"
	"github.com/medicalscribe/scribe/internal/capture"
)

const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIAdapter sends blocks straight to an OpenAI-compatible Whisper endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	config Config
}

func NewOpenAIAdapter(config Config) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	if config.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: config.Timeout}
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

func (a *OpenAIAdapter) Transcribe(ctx context.Context, blk capture.Block) (string, error) {
	if blk.Empty() {
		return "", nil
	}

	req := openai.AudioRequest{
		Model:    a.config.Model,
		Reader:   bytes.NewReader(blk.Bytes),
		FilePath: blk.Filename(),
		Language: a.config.Language,
	}

	start := time.Now()
	resp, err := a.client.CreateTranscription(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("openai-adapter: block %d failed after %v: %v", blk.Index, duration, err)
		return "", fmt.Errorf("transcribe block %d: %w", blk.Index, apierr.FromOpenAI(err))
	}

	log.Printf("openai-adapter: block %d (%d bytes) transcribed in %v", blk.Index, len(blk.Bytes), duration)
	return resp.Text, nil
}
