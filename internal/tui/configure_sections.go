package tui

import (
	"strconv"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/medicalscribe/scribe/internal/language"
	"github.com/medicalscribe/scribe/internal/models"
)

func runForm(fields ...huh.Field) error {
	return huh.NewForm(huh.NewGroup(fields...)).WithTheme(getTheme()).Run()
}

func editBackend(cfg *config.Config) error {
	url := cfg.Backend.URL
	timeout := cfg.Backend.Timeout.String()

	err := runForm(
		huh.NewInput().
			Title("Backend URL").
			Description("Service that transcribes, analyzes and stores consultations").
			Placeholder("http://127.0.0.1:8000").
			Validate(validateURL).
			Value(&url),
		huh.NewInput().
			Title("Request timeout").
			Description("Upper bound for one backend call, e.g. 90s").
			Validate(validateDuration(time.Second)).
			Value(&timeout),
	)
	if err != nil {
		return err
	}

	cfg.Backend.URL = url
	cfg.Backend.Timeout, _ = time.ParseDuration(timeout)
	return nil
}

func providerOptions() []huh.Option[string] {
	return []huh.Option[string]{
		huh.NewOption("Backend service", "backend"),
		huh.NewOption("OpenAI", "openai"),
		huh.NewOption("Groq", "groq"),
	}
}

func editTranscription(cfg *config.Config) error {
	provider := cfg.Transcription.Provider
	model := cfg.Transcription.Model
	lang := cfg.Transcription.Language

	var langOptions []huh.Option[string]
	langOptions = append(langOptions, huh.NewOption(language.Auto.Name, ""))
	for _, l := range language.List() {
		langOptions = append(langOptions, huh.NewOption(language.Label(l.Code), l.Code))
	}

	err := runForm(
		huh.NewSelect[string]().
			Title("Transcription provider").
			Description("Who turns each audio block into text").
			Options(providerOptions()...).
			Value(&provider),
		huh.NewInput().
			Title("Model").
			Description("Ignored by the backend service").
			Placeholder("whisper-1").
			Value(&model),
		huh.NewSelect[string]().
			Title("Language").
			Options(langOptions...).
			Height(8).
			Value(&lang),
	)
	if err != nil {
		return err
	}

	cfg.Transcription.Provider = provider
	cfg.Transcription.Model = model
	cfg.Transcription.Language = lang
	return nil
}

func editCopilot(cfg *config.Config) error {
	provider := cfg.Copilot.Provider
	model := cfg.Copilot.Model
	systematize := cfg.Copilot.SystematizeModel
	baseURL := cfg.Copilot.BaseURL
	quiet := cfg.Copilot.QuietPeriod.String()
	minChars := strconv.Itoa(cfg.Copilot.MinChars)

	err := runForm(
		huh.NewSelect[string]().
			Title("Copilot provider").
			Description("Who produces live insights and the final documents").
			Options(providerOptions()...).
			Value(&provider),
		huh.NewInput().
			Title("Insight model").
			Value(&model),
		huh.NewInput().
			Title("Systematization model").
			Value(&systematize),
		huh.NewInput().
			Title("Base URL").
			Description("OpenAI-compatible endpoint; empty uses the provider default").
			Validate(validateOptionalURL).
			Value(&baseURL),
		huh.NewInput().
			Title("Quiet period").
			Description("Silence in the transcript before an insight is requested").
			Validate(validateDuration(100*time.Millisecond)).
			Value(&quiet),
		huh.NewInput().
			Title("Minimum characters").
			Description("Shorter transcripts are not analyzed").
			Validate(validateInt(0)).
			Value(&minChars),
	)
	if err != nil {
		return err
	}

	cfg.Copilot.Provider = provider
	cfg.Copilot.Model = model
	cfg.Copilot.SystematizeModel = systematize
	cfg.Copilot.BaseURL = baseURL
	cfg.Copilot.QuietPeriod, _ = time.ParseDuration(quiet)
	cfg.Copilot.MinChars, _ = strconv.Atoi(minChars)
	return nil
}

func editProviders(cfg *config.Config) error {
	if cfg.Providers == nil {
		cfg.Providers = make(map[string]config.ProviderConfig)
	}

	openai := cfg.Providers["openai"].APIKey
	groq := cfg.Providers["groq"].APIKey

	err := runForm(
		huh.NewInput().
			Title("OpenAI API key").
			Description(keyDescription(cfg, "openai")).
			EchoMode(huh.EchoModePassword).
			Value(&openai),
		huh.NewInput().
			Title("Groq API key").
			Description(keyDescription(cfg, "groq")).
			EchoMode(huh.EchoModePassword).
			Value(&groq),
	)
	if err != nil {
		return err
	}

	setProviderKey(cfg, "openai", openai)
	setProviderKey(cfg, "groq", groq)
	return nil
}

func editRecording(cfg *config.Config) error {
	backend := cfg.Recording.Backend
	device := cfg.Recording.Device
	rate := strconv.Itoa(cfg.Recording.SampleRate)
	period := cfg.Recording.BlockPeriod.String()

	err := runForm(
		huh.NewSelect[string]().
			Title("Audio backend").
			Options(
				huh.NewOption("PipeWire (pw-record)", "pipewire"),
				huh.NewOption("PulseAudio", "pulse"),
			).
			Value(&backend),
		huh.NewInput().
			Title("Device").
			Description("Empty uses the default source").
			Value(&device),
		huh.NewInput().
			Title("Sample rate").
			Validate(validateInt(8000)).
			Value(&rate),
		huh.NewInput().
			Title("Block period").
			Description("Length of each audio block sent for transcription").
			Validate(validateDuration(time.Second)).
			Value(&period),
	)
	if err != nil {
		return err
	}

	cfg.Recording.Backend = backend
	cfg.Recording.Device = device
	cfg.Recording.SampleRate, _ = strconv.Atoi(rate)
	cfg.Recording.BlockPeriod, _ = time.ParseDuration(period)
	return nil
}

func editSession(cfg *config.Config) error {
	scenario := cfg.Session.Scenario
	persist := cfg.Session.Persist
	archive := cfg.Session.Archive
	outputDir := cfg.Export.OutputDir

	var scenarioOptions []huh.Option[string]
	for _, s := range models.Scenarios {
		scenarioOptions = append(scenarioOptions, huh.NewOption(string(s), string(s)))
	}

	err := runForm(
		huh.NewSelect[string]().
			Title("Default scenario").
			Description("Care setting a new consultation starts with").
			Options(scenarioOptions...).
			Value(&scenario),
		huh.NewConfirm().
			Title("Persist finalized consultations on the backend?").
			Value(&persist),
		huh.NewConfirm().
			Title("Keep a local history of consultations?").
			Value(&archive),
		huh.NewInput().
			Title("PDF output directory").
			Description("Empty writes to the working directory of the daemon").
			Value(&outputDir),
	)
	if err != nil {
		return err
	}

	cfg.Session.Scenario = scenario
	cfg.Session.Persist = persist
	cfg.Session.Archive = archive
	cfg.Export.OutputDir = outputDir
	return nil
}

func editNotifications(cfg *config.Config) error {
	enabled := cfg.Notifications.Enabled
	kind := cfg.Notifications.Type
	if kind == "" {
		kind = "desktop"
	}

	if err := runForm(
		huh.NewConfirm().
			Title("Enable notifications?").
			Description("Recording start and stop, finalized documents and errors").
			Value(&enabled),
	); err != nil {
		return err
	}
	cfg.Notifications.Enabled = enabled
	if !enabled {
		return nil
	}

	if err := runForm(
		huh.NewSelect[string]().
			Title("Notification Type").
			Options(
				huh.NewOption("Desktop notifications (notify-send)", "desktop"),
				huh.NewOption("Log to console only", "log"),
				huh.NewOption("None (silent)", "none"),
			).
			Value(&kind),
	); err != nil {
		return err
	}
	cfg.Notifications.Type = kind
	return nil
}
