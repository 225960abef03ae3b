// Package tui holds the interactive screens: the configuration menu, the
// physician profile form and the live consultation view.
package tui

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/medicalscribe/scribe/internal/config"
	"github.com/muesli/termenv"
)

// ConfigureResult holds the configuration result from the TUI
type ConfigureResult struct {
	Config    *config.Config
	Cancelled bool
}

// ConfigSection represents a configuration section
type ConfigSection string

const (
	SectionBackend       ConfigSection = "backend"
	SectionTranscription ConfigSection = "transcription"
	SectionCopilot       ConfigSection = "copilot"
	SectionProviders     ConfigSection = "providers"
	SectionRecording     ConfigSection = "recording"
	SectionSession       ConfigSection = "session"
	SectionNotifications ConfigSection = "notifications"
	SectionSaveExit      ConfigSection = "save_exit"
	SectionDiscardExit   ConfigSection = "discard_exit"
)

// Run opens the configuration menu on a copy of cfg. Every section edits the
// copy; nothing is written until the user saves.
func Run(cfg *config.Config) (*ConfigureResult, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	for {
		clearScreen()
		fmt.Println(Logo())
		fmt.Println()

		section, err := selectSection(cfg)
		if err != nil {
			return &ConfigureResult{Cancelled: true}, nil
		}

		switch section {
		case SectionSaveExit:
			if err := cfg.Validate(); err != nil {
				fmt.Println(StyleError.Render("Configuration invalid: " + err.Error()))
				if !pause() {
					return &ConfigureResult{Cancelled: true}, nil
				}
				continue
			}
			confirmed, err := showSummary(cfg)
			if err != nil {
				return &ConfigureResult{Cancelled: true}, nil
			}
			if confirmed {
				return &ConfigureResult{Config: cfg}, nil
			}
		case SectionDiscardExit:
			return &ConfigureResult{Cancelled: true}, nil
		default:
			edit, ok := sectionEditors[section]
			if !ok {
				continue
			}
			// esc inside a section returns to the menu
			_ = edit(cfg)
		}
	}
}

var sectionEditors = map[ConfigSection]func(*config.Config) error{
	SectionBackend:       editBackend,
	SectionTranscription: editTranscription,
	SectionCopilot:       editCopilot,
	SectionProviders:     editProviders,
	SectionRecording:     editRecording,
	SectionSession:       editSession,
	SectionNotifications: editNotifications,
}

func selectSection(cfg *config.Config) (ConfigSection, error) {
	options := []huh.Option[ConfigSection]{
		huh.NewOption(formatBackendLabel(cfg), SectionBackend),
		huh.NewOption(formatTranscriptionLabel(cfg), SectionTranscription),
		huh.NewOption(formatCopilotLabel(cfg), SectionCopilot),
		huh.NewOption(formatProvidersLabel(cfg), SectionProviders),
		huh.NewOption(formatRecordingLabel(cfg), SectionRecording),
		huh.NewOption(formatSessionLabel(cfg), SectionSession),
		huh.NewOption(formatNotificationsLabel(cfg), SectionNotifications),
		huh.NewOption("Save & Exit", SectionSaveExit),
		huh.NewOption("Discard & Exit", SectionDiscardExit),
	}

	var selected ConfigSection
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[ConfigSection]().
				Title("Configuration Menu").
				Description("↑/↓ navigate • enter select • esc cancel").
				Options(options...).
				Value(&selected),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		return "", err
	}
	return selected, nil
}

func pause() bool {
	var ok bool
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Back to the menu?").
				Affirmative("Back").
				Negative("Quit").
				Value(&ok),
		),
	).WithTheme(getTheme())
	if err := form.Run(); err != nil {
		return false
	}
	return ok
}

// clearScreen clears the terminal screen
func clearScreen() {
	output := termenv.NewOutput(os.Stdout)
	output.ClearScreen()
}
