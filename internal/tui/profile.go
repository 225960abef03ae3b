package tui

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/medicalscribe/scribe/internal/models"
)

// ProfileResult is the outcome of the profile form.
type ProfileResult struct {
	Profile    models.PhysicianProfile
	DoctorName string
	Cancelled  bool
}

// EditProfile asks for the physician's signing details. doctorName is the
// short name used in transcription prompts.
func EditProfile(current models.PhysicianProfile, doctorName string) (*ProfileResult, error) {
	p := current
	name := doctorName

	fmt.Println(Logo())
	fmt.Println(StyleMuted.Render("Shown on the header and signature of every exported document"))
	fmt.Println()

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Full name").
				Placeholder(models.DefaultPhysicianName).
				Value(&p.Nome),
			huh.NewInput().
				Title("Specialty").
				Value(&p.Especialidade),
			huh.NewInput().
				Title("CRM").
				Description("Council registration, e.g. 123456/SP").
				Validate(validateRegistration).
				Value(&p.CRM),
			huh.NewInput().
				Title("RQE").
				Validate(validateRegistration).
				Value(&p.RQE),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Logo").
				Description("Path, http(s) URL or data: URL of a PNG or JPEG").
				Value(&p.LogoURL),
			huh.NewInput().
				Title("Name in transcriptions").
				Description("How the patient addresses you, e.g. Dra. Ana").
				Value(&name),
		),
	).WithTheme(getTheme())

	if err := form.Run(); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return &ProfileResult{Cancelled: true}, nil
		}
		return nil, err
	}

	return &ProfileResult{Profile: trimProfile(p), DoctorName: strings.TrimSpace(name)}, nil
}

func validateRegistration(s string) error {
	if strings.ContainsAny(s, "|\n") {
		return errors.New("must not contain '|' or line breaks")
	}
	return nil
}

func trimProfile(p models.PhysicianProfile) models.PhysicianProfile {
	p.Nome = strings.TrimSpace(p.Nome)
	p.Especialidade = strings.TrimSpace(p.Especialidade)
	p.CRM = strings.TrimSpace(p.CRM)
	p.RQE = strings.TrimSpace(p.RQE)
	p.LogoURL = strings.TrimSpace(p.LogoURL)
	return p
}

// ProfileLines renders a profile for display.
func ProfileLines(p models.PhysicianProfile, doctorName string) []string {
	row := func(label, value string) string {
		if value == "" {
			value = StyleMuted.Render("(not set)")
		}
		return fmt.Sprintf("  %s %s", StyleLabel.Render(label), value)
	}
	logo := p.LogoURL
	if strings.HasPrefix(logo, "data:") {
		logo = "embedded image"
	}
	return []string{
		row("Name:", p.DisplayName()),
		row("Specialty:", p.Especialidade),
		row("Registration:", p.Registration()),
		row("Logo:", logo),
		row("Transcription name:", doctorName),
	}
}
