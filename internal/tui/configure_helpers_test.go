package tui

import (
	"strings"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/config"
)

func TestMaskAPIKey(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"", "***"},
		{"short", "***"},
		{"sk-proj-abcdefgh1234", "sk-proj...1234"},
	}
	for _, tt := range tests {
		if got := maskAPIKey(tt.key); got != tt.want {
			t.Errorf("maskAPIKey(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestConfiguredProviders(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = map[string]config.ProviderConfig{
		"openai": {APIKey: "sk-1"},
		"groq":   {APIKey: "gsk-2"},
		"empty":  {},
	}
	got := getConfiguredProviders(cfg)
	if strings.Join(got, ",") != "groq,openai" {
		t.Errorf("getConfiguredProviders = %v", got)
	}
	if label := formatProvidersLabel(cfg); label != "API Keys (groq, openai)" {
		t.Errorf("label = %q", label)
	}

	setProviderKey(cfg, "groq", "  ")
	if _, ok := cfg.Providers["groq"]; ok {
		t.Error("blank key should remove the provider")
	}
	setProviderKey(cfg, "openai", " sk-new ")
	if cfg.Providers["openai"].APIKey != "sk-new" {
		t.Errorf("key = %q", cfg.Providers["openai"].APIKey)
	}
}

func TestValidators(t *testing.T) {
	tests := []struct {
		name    string
		fn      func(string) error
		input   string
		wantErr bool
	}{
		{"url ok", validateURL, "http://127.0.0.1:8000", false},
		{"url https", validateURL, "https://scribe.example", false},
		{"url no scheme", validateURL, "127.0.0.1:8000", true},
		{"url ftp", validateURL, "ftp://host", true},
		{"optional url empty", validateOptionalURL, "", false},
		{"optional url bad", validateOptionalURL, "nope", true},
		{"duration ok", validateDuration(time.Second), "5s", false},
		{"duration too short", validateDuration(time.Second), "500ms", true},
		{"duration garbage", validateDuration(time.Second), "five", true},
		{"int ok", validateInt(0), "10", false},
		{"int negative", validateInt(0), "-1", true},
		{"int garbage", validateInt(0), "ten", true},
		{"registration ok", validateRegistration, "123456/SP", false},
		{"registration pipe", validateRegistration, "1 | 2", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(tt.input); (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSummaryLines(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Providers = map[string]config.ProviderConfig{"openai": {APIKey: "sk-proj-abcdefgh1234"}}
	cfg.Notifications.Enabled = false

	out := strings.Join(summaryLines(cfg), "\n")
	for _, want := range []string{
		cfg.Backend.URL,
		"Portuguese",
		"OpenAI sk-proj...1234",
		"PS",
		"disabled",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "abcdefgh") {
		t.Error("summary leaked the API key")
	}
}

func TestSectionLabels(t *testing.T) {
	cfg := config.DefaultConfig()
	if got := formatTranscriptionLabel(cfg); got != "Transcription (Backend, Portuguese (Português))" {
		t.Errorf("transcription label = %q", got)
	}
	cfg.Notifications.Enabled = false
	if got := formatNotificationsLabel(cfg); got != "Notifications (off)" {
		t.Errorf("notifications label = %q", got)
	}
	for section := range sectionEditors {
		if section == SectionSaveExit || section == SectionDiscardExit {
			t.Errorf("%s must not have an editor", section)
		}
	}
}
