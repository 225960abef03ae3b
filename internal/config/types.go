package config

import "time"

type Config struct {
	Backend       BackendConfig             `toml:"backend"`
	Recording     RecordingConfig           `toml:"recording"`
	Transcription TranscriptionConfig       `toml:"transcription"`
	Copilot       CopilotConfig             `toml:"copilot"`
	Providers     map[string]ProviderConfig `toml:"providers"`
	Session       SessionConfig             `toml:"session"`
	Export        ExportConfig              `toml:"export"`
	Notifications NotificationsConfig       `toml:"notifications"`
	HTTP          HTTPConfig                `toml:"http"`
	Storage       StorageConfig             `toml:"storage"`
}

// BackendConfig points at the clinical backend serving /api/transcribe,
// /api/analise-clinica, /api/sistematizar-consulta and /api/analyze.
type BackendConfig struct {
	URL     string        `toml:"url"`
	Timeout time.Duration `toml:"timeout"`
}

type ProviderConfig struct {
	APIKey string `toml:"api_key"`
}

type RecordingConfig struct {
	Backend           string        `toml:"backend"`
	SampleRate        int           `toml:"sample_rate"`
	Channels          int           `toml:"channels"`
	Format            string        `toml:"format"`
	BufferSize        int           `toml:"buffer_size"`
	Device            string        `toml:"device"`
	ChannelBufferSize int           `toml:"channel_buffer_size"`
	BlockPeriod       time.Duration `toml:"block_period"`
}

type TranscriptionConfig struct {
	Provider string `toml:"provider"`
	Model    string `toml:"model"`
	Language string `toml:"language"`
}

// CopilotConfig covers both the live insights and the final systematization.
type CopilotConfig struct {
	Provider         string        `toml:"provider"`
	Model            string        `toml:"model"`
	SystematizeModel string        `toml:"systematize_model"`
	BaseURL          string        `toml:"base_url"`
	QuietPeriod      time.Duration `toml:"quiet_period"`
	MinChars         int           `toml:"min_chars"`
}

type SessionConfig struct {
	Scenario string `toml:"scenario"`
	Persist  bool   `toml:"persist"`
	Archive  bool   `toml:"archive"`
}

type ExportConfig struct {
	OutputDir string `toml:"output_dir"`
	Generator string `toml:"generator"`
	Compress  bool   `toml:"compress"`
}

type NotificationsConfig struct {
	Enabled bool   `toml:"enabled"`
	Type    string `toml:"type"`
}

type HTTPConfig struct {
	Listen string `toml:"listen"`
}

// StorageConfig.Dir holds the key/value store, the archive and the
// diagnostics log. Empty means the user data directory.
type StorageConfig struct {
	Dir string `toml:"dir"`
}
