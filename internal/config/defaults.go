package config

import "time"

// DefaultConfig returns the configuration used when no file exists yet.
func DefaultConfig() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:     "http://127.0.0.1:8000",
			Timeout: 90 * time.Second,
		},
		Recording: RecordingConfig{
			Backend:           "pipewire",
			SampleRate:        16000,
			Channels:          1,
			Format:            "s16",
			BufferSize:        8192,
			Device:            "",
			ChannelBufferSize: 30,
			BlockPeriod:       5 * time.Second,
		},
		Transcription: TranscriptionConfig{
			Provider: "backend",
			Model:    "whisper-1",
			Language: "pt",
		},
		Copilot: CopilotConfig{
			Provider:         "backend",
			Model:            "gpt-4o-mini",
			SystematizeModel: "gpt-4o",
			QuietPeriod:      3500 * time.Millisecond,
			MinChars:         10,
		},
		Providers: make(map[string]ProviderConfig),
		Session: SessionConfig{
			Scenario: "PS",
			Persist:  false,
			Archive:  true,
		},
		Export: ExportConfig{
			Generator: "Medical Scribe",
			Compress:  true,
		},
		Notifications: NotificationsConfig{
			Enabled: true,
			Type:    "desktop",
		},
		HTTP: HTTPConfig{
			Listen: "127.0.0.1:8765",
		},
	}
}

// applyDefaults fills fields an older or hand-written file left out.
func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.Providers == nil {
		c.Providers = make(map[string]ProviderConfig)
	}
	if c.Backend.URL == "" {
		c.Backend.URL = d.Backend.URL
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = d.Backend.Timeout
	}
	if c.Recording.Backend == "" {
		c.Recording.Backend = d.Recording.Backend
	}
	if c.Recording.SampleRate == 0 {
		c.Recording.SampleRate = d.Recording.SampleRate
	}
	if c.Recording.Channels == 0 {
		c.Recording.Channels = d.Recording.Channels
	}
	if c.Recording.Format == "" {
		c.Recording.Format = d.Recording.Format
	}
	if c.Recording.BufferSize == 0 {
		c.Recording.BufferSize = d.Recording.BufferSize
	}
	if c.Recording.ChannelBufferSize == 0 {
		c.Recording.ChannelBufferSize = d.Recording.ChannelBufferSize
	}
	if c.Recording.BlockPeriod == 0 {
		c.Recording.BlockPeriod = d.Recording.BlockPeriod
	}
	if c.Transcription.Provider == "" {
		c.Transcription.Provider = d.Transcription.Provider
	}
	if c.Transcription.Model == "" {
		c.Transcription.Model = d.Transcription.Model
	}
	if c.Copilot.Provider == "" {
		c.Copilot.Provider = d.Copilot.Provider
	}
	if c.Copilot.Model == "" {
		c.Copilot.Model = d.Copilot.Model
	}
	if c.Copilot.SystematizeModel == "" {
		c.Copilot.SystematizeModel = d.Copilot.SystematizeModel
	}
	if c.Copilot.QuietPeriod == 0 {
		c.Copilot.QuietPeriod = d.Copilot.QuietPeriod
	}
	if c.Copilot.MinChars == 0 {
		c.Copilot.MinChars = d.Copilot.MinChars
	}
	if c.Session.Scenario == "" {
		c.Session.Scenario = d.Session.Scenario
	}
	if c.Export.Generator == "" {
		c.Export.Generator = d.Export.Generator
	}
}
