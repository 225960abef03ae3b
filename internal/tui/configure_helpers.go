package tui

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/language"
)

var providerDisplayNames = map[string]string{
	"backend": "Backend",
	"openai":  "OpenAI",
	"groq":    "Groq",
}

func getProviderDisplayName(name string) string {
	if display, ok := providerDisplayNames[name]; ok {
		return display
	}
	return name
}

func formatBackendLabel(cfg *config.Config) string {
	return fmt.Sprintf("Backend (%s)", cfg.Backend.URL)
}

func formatTranscriptionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Transcription (%s, %s)", getProviderDisplayName(cfg.Transcription.Provider), language.Label(cfg.Transcription.Language))
}

func formatCopilotLabel(cfg *config.Config) string {
	return fmt.Sprintf("Copilot (%s)", getProviderDisplayName(cfg.Copilot.Provider))
}

func formatProvidersLabel(cfg *config.Config) string {
	configured := getConfiguredProviders(cfg)
	if len(configured) == 0 {
		return "API Keys"
	}
	return fmt.Sprintf("API Keys (%s)", strings.Join(configured, ", "))
}

func formatRecordingLabel(cfg *config.Config) string {
	return fmt.Sprintf("Recording (%s, %s blocks)", cfg.Recording.Backend, cfg.Recording.BlockPeriod)
}

func formatSessionLabel(cfg *config.Config) string {
	return fmt.Sprintf("Session & Export (%s)", cfg.Session.Scenario)
}

func formatNotificationsLabel(cfg *config.Config) string {
	if !cfg.Notifications.Enabled {
		return "Notifications (off)"
	}
	return fmt.Sprintf("Notifications (%s)", cfg.Notifications.Type)
}

func maskAPIKey(key string) string {
	if len(key) <= 8 {
		return "***"
	}
	return key[:7] + "..." + key[len(key)-4:]
}

func getConfiguredProviders(cfg *config.Config) []string {
	providers := make([]string, 0, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		if pc.APIKey != "" {
			providers = append(providers, name)
		}
	}
	sort.Strings(providers)
	return providers
}

func keyDescription(cfg *config.Config, provider string) string {
	if key := cfg.Providers[provider].APIKey; key != "" {
		return "Current: " + maskAPIKey(key) + ". Empty removes it."
	}
	return fmt.Sprintf("Optional; %s is also read from the environment", config.EnvVarForProvider(provider))
}

func setProviderKey(cfg *config.Config, provider, key string) {
	key = strings.TrimSpace(key)
	if key == "" {
		delete(cfg.Providers, provider)
		return
	}
	cfg.Providers[provider] = config.ProviderConfig{APIKey: key}
}

func validateURL(s string) error {
	u, err := url.Parse(strings.TrimSpace(s))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("enter an http:// or https:// URL")
	}
	return nil
}

func validateOptionalURL(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return validateURL(s)
}

func validateDuration(min time.Duration) func(string) error {
	return func(s string) error {
		d, err := time.ParseDuration(strings.TrimSpace(s))
		if err != nil {
			return errors.New("enter a duration like 5s or 1m30s")
		}
		if d < min {
			return fmt.Errorf("must be at least %s", min)
		}
		return nil
	}
}

func validateInt(min int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return errors.New("enter a whole number")
		}
		if n < min {
			return fmt.Errorf("must be at least %d", min)
		}
		return nil
	}
}

// summaryLines renders the settings shown before saving.
func summaryLines(cfg *config.Config) []string {
	row := func(label, value string) string {
		return fmt.Sprintf("  %s %s", StyleLabel.Render(label), value)
	}

	lines := []string{
		row("Backend:", fmt.Sprintf("%s (timeout %s)", cfg.Backend.URL, cfg.Backend.Timeout)),
		row("Transcription:", fmt.Sprintf("%s (%s, %s)", getProviderDisplayName(cfg.Transcription.Provider), cfg.Transcription.Model, language.Label(cfg.Transcription.Language))),
		row("Copilot:", fmt.Sprintf("%s (%s / %s)", getProviderDisplayName(cfg.Copilot.Provider), cfg.Copilot.Model, cfg.Copilot.SystematizeModel)),
		row("Insights:", fmt.Sprintf("after %s quiet, from %d chars", cfg.Copilot.QuietPeriod, cfg.Copilot.MinChars)),
	}
	var keys []string
	for _, name := range getConfiguredProviders(cfg) {
		keys = append(keys, fmt.Sprintf("%s %s", getProviderDisplayName(name), maskAPIKey(cfg.Providers[name].APIKey)))
	}
	if len(keys) > 0 {
		lines = append(lines, row("API keys:", strings.Join(keys, ", ")))
	}
	lines = append(lines,
		row("Recording:", fmt.Sprintf("%s %d Hz, %s blocks", cfg.Recording.Backend, cfg.Recording.SampleRate, cfg.Recording.BlockPeriod)),
		row("Scenario:", cfg.Session.Scenario),
		row("Persist:", onOff(cfg.Session.Persist)),
		row("History:", onOff(cfg.Session.Archive)),
	)
	if cfg.Export.OutputDir != "" {
		lines = append(lines, row("PDF output:", cfg.Export.OutputDir))
	}
	if cfg.Notifications.Enabled {
		lines = append(lines, row("Notifications:", cfg.Notifications.Type))
	} else {
		lines = append(lines, row("Notifications:", "disabled"))
	}
	return lines
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func showSummary(cfg *config.Config) (bool, error) {
	fmt.Println()
	fmt.Println(StyleHeader.Render("Configuration Summary"))
	for _, line := range summaryLines(cfg) {
		fmt.Println(line)
	}
	fmt.Println()

	var confirmed bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save this configuration?").
				Affirmative("Save").
				Negative("Cancel").
				Value(&confirmed),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return false, err
	}
	return confirmed, nil
}
