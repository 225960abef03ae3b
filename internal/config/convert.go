package config

import (
	"os"
	"time"

	"github.com/medicalscribe/scribe/internal/llm"
	"github.com/medicalscribe/scribe/internal/pdf"
	"github.com/medicalscribe/scribe/internal/recording"
	"github.com/medicalscribe/scribe/internal/transcriber"
)

const minBlockPeriod = time.Second

func (c *Config) ToRecordingConfig() recording.Config {
	return recording.Config{
		Backend:           c.Recording.Backend,
		SampleRate:        c.Recording.SampleRate,
		Channels:          c.Recording.Channels,
		Format:            c.Recording.Format,
		BufferSize:        c.Recording.BufferSize,
		Device:            c.Recording.Device,
		ChannelBufferSize: c.Recording.ChannelBufferSize,
	}
}

func (c *Config) ToTranscriberConfig() transcriber.Config {
	return transcriber.Config{
		Provider: c.Transcription.Provider,
		APIKey:   c.APIKey(c.Transcription.Provider),
		Language: c.Transcription.Language,
		Model:    c.Transcription.Model,
		Timeout:  c.Backend.Timeout,
	}
}

func (c *Config) ToLLMConfig() llm.Config {
	return llm.Config{
		Provider:         c.Copilot.Provider,
		APIKey:           c.APIKey(c.Copilot.Provider),
		Model:            c.Copilot.Model,
		SystematizeModel: c.Copilot.SystematizeModel,
		BaseURL:          c.Copilot.BaseURL,
		Timeout:          c.Backend.Timeout,
	}
}

func (c *Config) ToPDFOptions() pdf.Options {
	return pdf.Options{
		OutputDir: c.Export.OutputDir,
		Generator: c.Export.Generator,
		Compress:  c.Export.Compress,
	}
}

// EnvVarForProvider names the environment variable holding a provider key.
func EnvVarForProvider(provider string) string {
	switch provider {
	case "openai":
		return EnvOpenAIKey
	case "groq":
		return EnvGroqKey
	}
	return ""
}

// APIKey resolves a provider key from providers.<name>.api_key, then the
// environment.
func (c *Config) APIKey(provider string) string {
	if pc, ok := c.Providers[provider]; ok && pc.APIKey != "" {
		return pc.APIKey
	}
	if env := EnvVarForProvider(provider); env != "" {
		return os.Getenv(env)
	}
	return ""
}
