package recording

import (
	"context"
	"errors"
	"os/exec"
	"reflect"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	if config.Backend != "pipewire" {
		t.Errorf("default backend should be pipewire, got %s", config.Backend)
	}
	if config.SampleRate != 16000 {
		t.Errorf("default sample rate should be 16000, got %d", config.SampleRate)
	}
	if config.Channels != 1 {
		t.Errorf("default channels should be 1, got %d", config.Channels)
	}
	if config.Format != "s16" {
		t.Errorf("default format should be s16, got %s", config.Format)
	}
	if config.BufferSize != 8192 {
		t.Errorf("default buffer size should be 8192, got %d", config.BufferSize)
	}
	if config.ChannelBufferSize != 30 {
		t.Errorf("default channel buffer size should be 30, got %d", config.ChannelBufferSize)
	}
}

func TestNewSource(t *testing.T) {
	tests := []struct {
		name        string
		backend     string
		wantType    string
		expectError bool
	}{
		{name: "empty defaults to pipewire", backend: "", wantType: "*recording.Recorder"},
		{name: "pipewire", backend: "pipewire", wantType: "*recording.Recorder"},
		{name: "pulse", backend: "pulse", wantType: "*recording.PulseSource"},
		{name: "unknown", backend: "alsa", expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			config.Backend = tt.backend
			src, err := NewSource(config)
			if tt.expectError {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got := reflect.TypeOf(src).String(); got != tt.wantType {
				t.Errorf("NewSource(%q) = %s, want %s", tt.backend, got, tt.wantType)
			}
			if src.IsRecording() {
				t.Error("new source should not be recording")
			}
		})
	}
}

func TestConfigValidate(t *testing.T) {
	valid := DefaultConfig()
	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{name: "valid default config", mutate: func(*Config) {}},
		{name: "invalid sample rate", mutate: func(c *Config) { c.SampleRate = 0 }, expectError: true},
		{name: "negative sample rate", mutate: func(c *Config) { c.SampleRate = -1 }, expectError: true},
		{name: "invalid channels", mutate: func(c *Config) { c.Channels = 0 }, expectError: true},
		{name: "invalid buffer size", mutate: func(c *Config) { c.BufferSize = 0 }, expectError: true},
		{name: "invalid channel buffer size", mutate: func(c *Config) { c.ChannelBufferSize = 0 }, expectError: true},
		{name: "empty format", mutate: func(c *Config) { c.Format = "" }, expectError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid
			tt.mutate(&config)
			err := config.validate()
			if tt.expectError && err == nil {
				t.Error("expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRecorderValidateConfigUnaligned(t *testing.T) {
	config := DefaultConfig()
	config.BufferSize = 8193
	r := NewRecorder(config)
	if err := r.validateConfig(); err != nil {
		t.Errorf("unaligned buffer should only warn, got %v", err)
	}
}

func TestBuildPwRecordArgs(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		want   []string
	}{
		{
			name:   "default",
			config: DefaultConfig(),
			want:   []string{"--format", "s16", "--rate", "16000", "--channels", "1", "-"},
		},
		{
			name: "with device",
			config: Config{
				SampleRate: 44100, Channels: 2, Format: "s16", BufferSize: 4096,
				Device: "alsa_input.usb", ChannelBufferSize: 10,
			},
			want: []string{"--format", "s16", "--rate", "44100", "--channels", "2", "-", "--target", "alsa_input.usb"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRecorder(tt.config)
			if got := r.buildPwRecordArgs(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("buildPwRecordArgs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestClassifyStartError(t *testing.T) {
	if err := classifyStartError(exec.ErrNotFound); !errors.Is(err, ErrNoDevice) {
		t.Errorf("missing binary should map to ErrNoDevice, got %v", err)
	}
	if err := classifyStartError(errors.New("fork/exec: permission denied")); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("permission failure should map to ErrPermissionDenied, got %v", err)
	}
	other := classifyStartError(errors.New("boom"))
	if errors.Is(other, ErrNoDevice) || errors.Is(other, ErrPermissionDenied) {
		t.Errorf("unrelated failure misclassified: %v", other)
	}
}

func TestIsPermissionMessage(t *testing.T) {
	cases := map[string]bool{
		"error: Permission denied":   true,
		"Access denied by portal":    true,
		"stream: no target node":     false,
		"":                           false,
	}
	for in, want := range cases {
		if got := isPermissionMessage(in); got != want {
			t.Errorf("isPermissionMessage(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestRecorderStopWhenIdle(t *testing.T) {
	r := NewRecorder(DefaultConfig())
	if err := r.Stop(); err != nil {
		t.Errorf("Stop on idle recorder: %v", err)
	}
	p := NewPulseSource(DefaultConfig())
	if err := p.Stop(); err != nil {
		t.Errorf("Stop on idle pulse source: %v", err)
	}
}

func TestRecorderStartInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.SampleRate = 0
	if _, _, err := NewRecorder(config).Start(context.Background()); err == nil {
		t.Error("Start should reject an invalid config")
	}
	if _, _, err := NewPulseSource(config).Start(context.Background()); err == nil {
		t.Error("pulse Start should reject an invalid config")
	}
}
