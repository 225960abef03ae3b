package models

import "testing"

func TestParseScenario(t *testing.T) {
	tests := []struct {
		in      string
		want    Scenario
		wantErr bool
	}{
		{in: "PS", want: ScenarioPS},
		{in: "ubs", want: ScenarioUBS},
		{in: " UTI ", want: ScenarioUTI},
		{in: "Consultório", want: ScenarioConsultorio},
		{in: "consultorio", want: ScenarioConsultorio},
		{in: "ICU", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseScenario(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tc.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("ParseScenario(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestPhysicianProfileRegistration(t *testing.T) {
	tests := []struct {
		name    string
		profile PhysicianProfile
		want    string
	}{
		{name: "both", profile: PhysicianProfile{CRM: "1234", RQE: "99"}, want: "CRM: 1234 | RQE: 99"},
		{name: "crm only", profile: PhysicianProfile{CRM: "1234"}, want: "CRM: 1234"},
		{name: "rqe only", profile: PhysicianProfile{RQE: "99"}, want: "RQE: 99"},
		{name: "none", profile: PhysicianProfile{}, want: ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.profile.Registration(); got != tc.want {
				t.Errorf("Registration() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestPhysicianProfileDisplayName(t *testing.T) {
	if got := (PhysicianProfile{}).DisplayName(); got != DefaultPhysicianName {
		t.Errorf("empty profile DisplayName() = %q", got)
	}
	if got := (PhysicianProfile{Nome: "Dr X"}).DisplayName(); got != "Dr X" {
		t.Errorf("DisplayName() = %q, want Dr X", got)
	}
}

func TestBundleDocument(t *testing.T) {
	b := Bundle{Prontuario: "p", Receituario: "r", Atestado: "a", Exames: "e", Orientacoes: "o"}
	want := map[DocumentKind]string{
		DocProntuario: "p", DocReceituario: "r", DocAtestado: "a", DocExames: "e", DocOrientacoes: "o",
	}
	for kind, content := range want {
		got, ok := b.Document(kind)
		if !ok || got != content {
			t.Errorf("Document(%s) = %q, %v", kind, got, ok)
		}
	}
	if _, ok := b.Document("laudo"); ok {
		t.Error("unknown kind should not resolve")
	}
}
