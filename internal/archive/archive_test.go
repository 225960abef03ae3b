package archive

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/medicalscribe/scribe/internal/models"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newStore(t)
	id := int64(42)
	rec := &Record{
		SessionID:      "sess-1",
		CreatedAt:      time.Date(2025, 3, 1, 10, 30, 0, 0, time.UTC),
		PatientName:    "Maria",
		PatientAge:     61,
		Scenario:       models.ScenarioConsultorio,
		Elapsed:        754 * time.Second,
		Transcript:     "paciente hipertensa em uso de losartana",
		Insight:        "Red flags: nenhum",
		Bundle:         models.Bundle{Prontuario: "HDA", Receituario: "Losartana 50mg"},
		ConsultationID: &id,
	}
	if err := s.Save(rec); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Save should assign an ID")
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.PatientName != "Maria" || got.PatientAge != 61 || got.Scenario != models.ScenarioConsultorio {
		t.Errorf("patient fields = %+v", got)
	}
	if got.Elapsed != 754*time.Second {
		t.Errorf("Elapsed = %v", got.Elapsed)
	}
	if got.Bundle != rec.Bundle {
		t.Errorf("Bundle = %+v", got.Bundle)
	}
	if got.ConsultationID == nil || *got.ConsultationID != 42 {
		t.Errorf("ConsultationID = %v", got.ConsultationID)
	}
	if !got.CreatedAt.Equal(rec.CreatedAt) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, rec.CreatedAt)
	}

	byPrefix, err := s.Get(rec.ID[:8])
	if err != nil || byPrefix.ID != rec.ID {
		t.Errorf("Get(prefix) = %v, %v", byPrefix, err)
	}
}

func TestGetMissing(t *testing.T) {
	s := newStore(t)
	if _, err := s.Get("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(nope) error = %v", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	s := newStore(t)
	base := time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	for i, name := range []string{"primeiro", "segundo", "terceiro"} {
		rec := &Record{
			SessionID:   "s",
			CreatedAt:   base.Add(time.Duration(i) * time.Hour),
			PatientName: name,
			Scenario:    models.ScenarioPS,
			Transcript:  "t",
		}
		if err := s.Save(rec); err != nil {
			t.Fatal(err)
		}
	}

	list, err := s.List(2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("List returned %d rows", len(list))
	}
	if list[0].PatientName != "terceiro" || list[1].PatientName != "segundo" {
		t.Errorf("order = %s, %s", list[0].PatientName, list[1].PatientName)
	}
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "archive.sqlite")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Save(&Record{SessionID: "s", Scenario: models.ScenarioUBS, Transcript: "x"}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	list, err := s.List(0)
	if err != nil || len(list) != 1 {
		t.Errorf("List = %v, %v", list, err)
	}
}
