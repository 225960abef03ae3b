package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/httpapi"
	"github.com/medicalscribe/scribe/internal/models"
)

func TestCommandsRegistered(t *testing.T) {
	want := []string{
		"serve", "toggle", "finalize", "clear", "status", "version", "stop",
		"patient", "scenario", "export", "watch", "transcript", "document",
		"profile", "history", "settings", "configure", "check",
	}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestPatientRejectsBadAge(t *testing.T) {
	cmd := patientCmd()
	if err := cmd.RunE(cmd, []string{"quarenta", "Maria"}); err == nil {
		t.Error("non-numeric age accepted")
	}
}

func TestPrintHistory(t *testing.T) {
	var buf bytes.Buffer
	printHistory(&buf, nil)
	if !strings.Contains(buf.String(), "No consultations") {
		t.Errorf("empty history output = %q", buf.String())
	}

	buf.Reset()
	printHistory(&buf, []httpapi.HistoryEntry{
		{ID: "0b5f2c7e-1111-2222-3333-444455556666", CreatedAt: time.Now(), PatientName: "Maria", Scenario: models.ScenarioPS, ElapsedSeconds: 754},
		{ID: "abc", CreatedAt: time.Now(), Scenario: models.ScenarioUBS},
	})
	out := buf.String()
	for _, want := range []string{"ID", "0b5f2c7e ", "Maria", "12m34s", "abc", "UBS"} {
		if !strings.Contains(out, want) {
			t.Errorf("history missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "0b5f2c7e-1111") {
		t.Error("ids should be shortened")
	}
}

func TestFormatRecord(t *testing.T) {
	id := int64(42)
	rec := httpapi.HistoryRecord{
		HistoryEntry:   httpapi.HistoryEntry{ID: "abc", CreatedAt: time.Now(), PatientName: "João", Scenario: models.ScenarioUTI},
		PatientAge:     70,
		Transcript:     "Paciente sedado.",
		Bundle:         models.Bundle{Prontuario: "Evolução estável.", Exames: "Gasometria."},
		ConsultationID: &id,
	}
	out := formatRecord(rec)
	for _, want := range []string{"Consultation abc", "João, 70", "Backend id: 42", "## Transcript\nPaciente sedado.", "## prontuario", "## exames"} {
		if !strings.Contains(out, want) {
			t.Errorf("record missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "## atestado") || strings.Contains(out, "## Insight") {
		t.Errorf("empty sections printed:\n%s", out)
	}
}

func TestPrintSettings(t *testing.T) {
	var buf bytes.Buffer
	printSettings(&buf, &models.LLMSettings{Provider: "openai", TranscriptionModel: "whisper-1", ChatModel: "gpt-4o"})
	if !strings.Contains(buf.String(), "API key:             not set") {
		t.Errorf("missing key not reported:\n%s", buf.String())
	}

	buf.Reset()
	printSettings(&buf, &models.LLMSettings{Provider: "openai", HasAPIKey: true, APIKeyMasked: "sk-...abcd", AvailableChatModels: []string{"gpt-4o", "gpt-4o-mini"}})
	out := buf.String()
	if !strings.Contains(out, "sk-...abcd") || !strings.Contains(out, "gpt-4o, gpt-4o-mini") {
		t.Errorf("settings output:\n%s", out)
	}
}

func TestSettingsSetNeedsAFlag(t *testing.T) {
	cmd := settingsCmd()
	set, _, err := cmd.Find([]string{"set"})
	if err != nil {
		t.Fatal(err)
	}
	if err := set.RunE(set, nil); err == nil || !strings.Contains(err.Error(), "nothing to change") {
		t.Errorf("err = %v", err)
	}
}

func TestTruncateString(t *testing.T) {
	if got := truncateString("ação", 2); got != "aç..." {
		t.Errorf("truncateString = %q", got)
	}
	if got := truncateString("ok", 5); got != "ok" {
		t.Errorf("truncateString = %q", got)
	}
}

func TestTypeDocumentErrors(t *testing.T) {
	var out bytes.Buffer
	if err := typeDocument(context.Background(), &out, "Dipirona", []string{"xdotool"}, 0); err == nil {
		t.Error("unknown backend accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := typeDocument(ctx, &out, "Dipirona", nil, time.Minute)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("cancelled wait returned %v", err)
	}
	if !strings.Contains(out.String(), "focus the target field") {
		t.Errorf("no focus prompt: %q", out.String())
	}
}

func TestDocumentTypeFlags(t *testing.T) {
	cmd, _, err := rootCmd.Find([]string{"document"})
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"copy", "type", "backends", "delay"} {
		if cmd.Flags().Lookup(name) == nil {
			t.Errorf("document has no --%s flag", name)
		}
	}
	if got := cmd.Flags().Lookup("backends").DefValue; got != "[wtype,ydotool,clipboard]" {
		t.Errorf("backends default = %s", got)
	}
}
