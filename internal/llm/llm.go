// Package llm runs the clinical AI calls: the live copilot analysis and the
// end-of-consultation systematization.
package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/medicalscribe/scribe/internal/backend"
	"github.com/medicalscribe/scribe/internal/models"
)

// Copilot produces the live clinical analysis of a partial transcript.
type Copilot interface {
	Copilot(ctx context.Context, transcript string, scenario models.Scenario) (string, error)
}

// Systematizer turns a full transcript into the document bundle.
type Systematizer interface {
	Systematize(ctx context.Context, transcript string, scenario models.Scenario) (models.Bundle, error)
}

type Clinical interface {
	Copilot
	Systematizer
}

type Config struct {
	Provider         string
	APIKey           string
	Model            string
	SystematizeModel string
	BaseURL          string
	Timeout          time.Duration
}

func DefaultConfig() Config {
	return Config{
		Provider:         "backend",
		Model:            "gpt-4o-mini",
		SystematizeModel: "gpt-4o",
		Timeout:          90 * time.Second,
	}
}

// New builds the Clinical adapter named by cfg.Provider.
func New(cfg Config, client *backend.Client) (Clinical, error) {
	switch cfg.Provider {
	case "", "backend":
		if client == nil {
			return nil, fmt.Errorf("backend copilot requires a backend URL")
		}
		return client, nil
	case "openai":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		return NewOpenAIAdapter(cfg), nil
	case "groq":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("Groq API key required")
		}
		if cfg.BaseURL == "" {
			cfg.BaseURL = GroqBaseURL
		}
		return NewOpenAIAdapter(cfg), nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider: %s", cfg.Provider)
	}
}
