package config

import (
	"bytes"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"text/template"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

var ErrConfigNotFound = errors.New("config not found")

const (
	EnvOpenAIKey  = "OPENAI_API_KEY"
	EnvGroqKey    = "GROQ_API_KEY"
	EnvBackendURL = "SCRIBE_BACKEND_URL"
)

func GetConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}

	scribeDir := filepath.Join(configDir, "scribe")
	if err := os.MkdirAll(scribeDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return filepath.Join(scribeDir, "config.toml"), nil
}

// GetDataDir resolves where the store, the archive and the diagnostics log
// live: storage.dir when set, otherwise the user cache directory.
func (c *Config) GetDataDir() (string, error) {
	dir := c.Storage.Dir
	if dir == "" {
		cacheDir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user cache directory: %w", err)
		}
		dir = filepath.Join(cacheDir, "scribe")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create data directory: %w", err)
	}
	return dir, nil
}

func Load() (*Config, error) {
	configPath, err := GetConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFile(configPath)
}

// LoadFile decodes the file at configPath, fills missing fields with defaults
// and applies environment overrides. A .env file beside the config or in the
// working directory is read first; variables already set win over it.
func LoadFile(configPath string) (*Config, error) {
	loadDotEnv(filepath.Join(filepath.Dir(configPath), ".env"), ".env")

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: run scribe configure", ErrConfigNotFound)
	} else if err != nil {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	log.Printf("Config: loading configuration from %s", configPath)
	config := Config{}
	meta, err := toml.DecodeFile(configPath, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		log.Printf("Config: ignoring unknown keys %v", undecoded)
	}

	// booleans that default to true
	if !meta.IsDefined("session", "archive") {
		config.Session.Archive = true
	}
	if !meta.IsDefined("notifications", "enabled") {
		config.Notifications.Enabled = true
	}
	if !meta.IsDefined("notifications", "type") {
		config.Notifications.Type = "desktop"
	}
	if !meta.IsDefined("export", "compress") {
		config.Export.Compress = true
	}
	if !meta.IsDefined("http", "listen") {
		config.HTTP.Listen = DefaultConfig().HTTP.Listen
	}

	config.applyDefaults()
	config.applyEnv()

	log.Printf("Config: configuration loaded successfully")
	return &config, nil
}

func loadDotEnv(paths ...string) {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			log.Printf("Config: failed to read %s: %v", path, err)
			continue
		}
		log.Printf("Config: loaded environment from %s", path)
	}
}

func (c *Config) applyEnv() {
	if url := os.Getenv(EnvBackendURL); url != "" {
		c.Backend.URL = url
	}
}

// Save writes config to the default path, replacing what is there.
func Save(config *Config) error {
	configPath, err := GetConfigPath()
	if err != nil {
		return err
	}
	return SaveFile(configPath, config)
}

func SaveFile(configPath string, config *Config) error {
	var buf bytes.Buffer
	if err := configTemplate.Execute(&buf, config); err != nil {
		return fmt.Errorf("failed to render config: %w", err)
	}

	tmp := configPath + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	if err := os.Rename(tmp, configPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace config file: %w", err)
	}
	log.Printf("Config: saved configuration to %s", configPath)
	return nil
}

var configTemplate = template.Must(template.New("config").Parse(`# Medical Scribe Configuration
# Changes are applied by the running daemon without restart.

[backend]
  url = {{printf "%q" .Backend.URL}}            # Clinical backend base URL (or SCRIBE_BACKEND_URL)
  timeout = "{{.Backend.Timeout}}"              # Per-request timeout

# Microphone capture
[recording]
  backend = {{printf "%q" .Recording.Backend}}            # "pipewire" (pw-record) or "pulse"
  sample_rate = {{.Recording.SampleRate}}
  channels = {{.Recording.Channels}}
  format = {{printf "%q" .Recording.Format}}
  buffer_size = {{.Recording.BufferSize}}
  device = {{printf "%q" .Recording.Device}}                 # Empty = default microphone
  channel_buffer_size = {{.Recording.ChannelBufferSize}}
  block_period = "{{.Recording.BlockPeriod}}"        # Length of each uploaded audio block

[transcription]
  provider = {{printf "%q" .Transcription.Provider}}       # "backend", "openai" or "groq"
  model = {{printf "%q" .Transcription.Model}}
  language = {{printf "%q" .Transcription.Language}}

# Live insights and final systematization
[copilot]
  provider = {{printf "%q" .Copilot.Provider}}       # "backend", "openai" or "groq"
  model = {{printf "%q" .Copilot.Model}}
  systematize_model = {{printf "%q" .Copilot.SystematizeModel}}
  base_url = {{printf "%q" .Copilot.BaseURL}}            # OpenAI-compatible endpoint override
  quiet_period = "{{.Copilot.QuietPeriod}}"      # Silence before an insight request
  min_chars = {{.Copilot.MinChars}}
{{range $name, $p := .Providers}}
[providers.{{$name}}]
  api_key = {{printf "%q" $p.APIKey}}
{{end}}
[session]
  scenario = {{printf "%q" .Session.Scenario}}          # UBS, PS, UTI or Consultório
  persist = {{.Session.Persist}}              # Send finalized consultations to /api/analyze
  archive = {{.Session.Archive}}              # Keep a local copy of finalized consultations

[export]
  output_dir = {{printf "%q" .Export.OutputDir}}
  generator = {{printf "%q" .Export.Generator}}
  compress = {{.Export.Compress}}

[notifications]
  enabled = {{.Notifications.Enabled}}
  type = {{printf "%q" .Notifications.Type}}            # "desktop", "log" or "none"

[http]
  listen = {{printf "%q" .HTTP.Listen}}      # Empty disables the local API

[storage]
  dir = {{printf "%q" .Storage.Dir}}
`))
