package config

import (
	"fmt"
	"net"
	"net/url"

	"github.com/medicalscribe/scribe/internal/language"
	"github.com/medicalscribe/scribe/internal/models"
)

func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config is nil")
	}

	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid backend.url: %q (must be an http or https URL)", c.Backend.URL)
	}
	if c.Backend.Timeout <= 0 {
		return fmt.Errorf("invalid backend.timeout: %v", c.Backend.Timeout)
	}

	switch c.Recording.Backend {
	case "pipewire", "pulse":
	default:
		return fmt.Errorf("invalid recording.backend: %s (must be pipewire or pulse)", c.Recording.Backend)
	}
	if c.Recording.SampleRate <= 0 {
		return fmt.Errorf("invalid recording.sample_rate: %d", c.Recording.SampleRate)
	}
	if c.Recording.Channels <= 0 {
		return fmt.Errorf("invalid recording.channels: %d", c.Recording.Channels)
	}
	if c.Recording.Format != "s16" {
		return fmt.Errorf("invalid recording.format: %q (only s16 is supported)", c.Recording.Format)
	}
	if c.Recording.BufferSize <= 0 {
		return fmt.Errorf("invalid recording.buffer_size: %d", c.Recording.BufferSize)
	}
	if c.Recording.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid recording.channel_buffer_size: %d", c.Recording.ChannelBufferSize)
	}
	if c.Recording.BlockPeriod < minBlockPeriod {
		return fmt.Errorf("invalid recording.block_period: %v (minimum %v)", c.Recording.BlockPeriod, minBlockPeriod)
	}

	switch c.Transcription.Provider {
	case "backend":
	case "openai", "groq":
		if c.APIKey(c.Transcription.Provider) == "" {
			return missingKey("transcription", c.Transcription.Provider)
		}
		if c.Transcription.Model == "" {
			return fmt.Errorf("invalid transcription.model: empty")
		}
	default:
		return fmt.Errorf("unsupported transcription.provider: %s (must be backend, openai or groq)", c.Transcription.Provider)
	}
	if c.Transcription.Language != "" && !language.IsValidCode(c.Transcription.Language) {
		return fmt.Errorf("invalid transcription.language: %s (use empty string for auto-detect or ISO-639-1 codes like 'pt', 'en', 'es')", c.Transcription.Language)
	}

	switch c.Copilot.Provider {
	case "backend":
	case "openai", "groq":
		if c.APIKey(c.Copilot.Provider) == "" {
			return missingKey("copilot", c.Copilot.Provider)
		}
		if c.Copilot.Model == "" {
			return fmt.Errorf("invalid copilot.model: empty")
		}
	default:
		return fmt.Errorf("unsupported copilot.provider: %s (must be backend, openai or groq)", c.Copilot.Provider)
	}
	if c.Copilot.BaseURL != "" {
		if u, err := url.Parse(c.Copilot.BaseURL); err != nil || u.Host == "" {
			return fmt.Errorf("invalid copilot.base_url: %q", c.Copilot.BaseURL)
		}
	}
	if c.Copilot.QuietPeriod <= 0 {
		return fmt.Errorf("invalid copilot.quiet_period: %v", c.Copilot.QuietPeriod)
	}
	if c.Copilot.MinChars < 0 {
		return fmt.Errorf("invalid copilot.min_chars: %d", c.Copilot.MinChars)
	}

	if _, err := models.ParseScenario(c.Session.Scenario); err != nil {
		return fmt.Errorf("invalid session.scenario: %w", err)
	}

	validTypes := map[string]bool{"desktop": true, "log": true, "none": true}
	if !validTypes[c.Notifications.Type] {
		return fmt.Errorf("invalid notifications.type: %s (must be desktop, log, or none)", c.Notifications.Type)
	}

	if c.HTTP.Listen != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Listen); err != nil {
			return fmt.Errorf("invalid http.listen: %q: %w", c.HTTP.Listen, err)
		}
	}

	return nil
}

func missingKey(section, provider string) error {
	return fmt.Errorf("%s API key required for %s.provider = %q: not found in config (providers.%s.api_key) or environment variable (%s)",
		provider, section, provider, provider, EnvVarForProvider(provider))
}
