package llm

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/medicalscribe/scribe/internal/apierr"
	"github.com/medicalscribe/scribe/internal/models"
)

const GroqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIAdapter talks to an OpenAI-compatible chat completions endpoint.
type OpenAIAdapter struct {
	client *openai.Client
	config Config
}

func NewOpenAIAdapter(cfg Config) *OpenAIAdapter {
	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	if cfg.Timeout > 0 {
		clientConfig.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &OpenAIAdapter{
		client: openai.NewClientWithConfig(clientConfig),
		config: cfg,
	}
}

func (a *OpenAIAdapter) Copilot(ctx context.Context, transcript string, scenario models.Scenario) (string, error) {
	model := a.config.Model
	if model == "" {
		model = "gpt-4o-mini"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildCopilotPrompt(scenario)},
			{Role: openai.ChatMessageRoleUser, Content: transcript},
		},
		Temperature: 0.2,
	}
	return a.complete(ctx, "copilot", req)
}

func (a *OpenAIAdapter) Systematize(ctx context.Context, transcript string, scenario models.Scenario) (models.Bundle, error) {
	model := a.config.SystematizeModel
	if model == "" {
		model = "gpt-4o"
	}
	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: BuildSystematizePrompt()},
			{Role: openai.ChatMessageRoleUser, Content: BuildSystematizeUserPrompt(transcript, scenario)},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{Type: openai.ChatCompletionResponseFormatTypeJSONObject},
	}
	content, err := a.complete(ctx, "systematize", req)
	if err != nil {
		return models.Bundle{}, err
	}
	bundle, err := ParseBundle(content)
	if err != nil {
		return models.Bundle{}, &apierr.Error{Kind: apierr.KindOther, Detail: "Invalid model response.", Err: err}
	}
	return bundle, nil
}

func (a *OpenAIAdapter) complete(ctx context.Context, op string, req openai.ChatCompletionRequest) (string, error) {
	start := time.Now()
	resp, err := a.client.CreateChatCompletion(ctx, req)
	duration := time.Since(start)

	if err != nil {
		log.Printf("openai-llm-adapter: %s failed after %v: %v", op, duration, err)
		return "", fmt.Errorf("%s: %w", op, apierr.FromOpenAI(err))
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%s: %w", op, &apierr.Error{Kind: apierr.KindOther, Detail: "no response choices"})
	}

	result := resp.Choices[0].Message.Content
	log.Printf("openai-llm-adapter: %s completed in %v (%d chars)", op, duration, len(result))
	return result, nil
}
