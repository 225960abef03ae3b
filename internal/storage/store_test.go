package storage

import (
	"errors"
	"testing"
)

func TestInMemoryRoundTrip(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("OpenInMemory: %v", err)
	}
	defer s.Close()

	if _, err := s.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Set("scribe_doctor_name", []byte("Dra. Ana")); err != nil {
		t.Fatal(err)
	}
	got, err := s.Get("scribe_doctor_name")
	if err != nil || string(got) != "Dra. Ana" {
		t.Errorf("Get = %q, %v", got, err)
	}

	if err := s.Delete("scribe_doctor_name"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("scribe_doctor_name"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after Delete error = %v", err)
	}
}

func TestDiskStorePersists(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	type pref struct {
		Scenario string `json:"scenario"`
	}
	if err := SetJSON(s, "prefs", pref{Scenario: "UTI"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	var got pref
	if err := GetJSON(s, "prefs", &got); err != nil {
		t.Fatal(err)
	}
	if got.Scenario != "UTI" {
		t.Errorf("Scenario = %q", got.Scenario)
	}
}

func TestGetJSONMalformed(t *testing.T) {
	s, err := OpenInMemory()
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	s.Set("bad", []byte("{not json"))
	var v map[string]string
	err = GetJSON(s, "bad", &v)
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("expected decode error, got %v", err)
	}
}
