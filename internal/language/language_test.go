package language

import "testing"

func TestFromCode(t *testing.T) {
	tests := []struct {
		code     string
		wantCode string
		wantName string
	}{
		{"pt", "pt", "Portuguese"},
		{"es", "es", "Spanish"},
		{"zh", "zh", "Chinese"},
		{"invalid", "", "Auto-detect"},
		{"", "", "Auto-detect"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := FromCode(tt.code)
			if got.Code != tt.wantCode {
				t.Errorf("FromCode(%q).Code = %q, want %q", tt.code, got.Code, tt.wantCode)
			}
			if got.Name != tt.wantName {
				t.Errorf("FromCode(%q).Name = %q, want %q", tt.code, got.Name, tt.wantName)
			}
		})
	}
}

func TestIsValidCode(t *testing.T) {
	tests := []struct {
		code string
		want bool
	}{
		{"pt", true},
		{"en", true},
		{"", true},
		{"pt-BR", false},
		{"xx", false},
		{"PT", false},
	}
	for _, tt := range tests {
		if got := IsValidCode(tt.code); got != tt.want {
			t.Errorf("IsValidCode(%q) = %v, want %v", tt.code, got, tt.want)
		}
	}
}

func TestList(t *testing.T) {
	list := List()
	if len(list) != 57 {
		t.Fatalf("List() returned %d languages, want 57", len(list))
	}
	if list[0].Code != Default {
		t.Errorf("first language = %q, want the default", list[0].Code)
	}
	for i := 2; i < len(list); i++ {
		if list[i-1].Name > list[i].Name {
			t.Errorf("List() not sorted at %d: %s > %s", i, list[i-1].Name, list[i].Name)
		}
	}

	list[0].Name = "changed"
	if FromCode(Default).Name == "changed" {
		t.Error("List() exposed the internal slice")
	}
}

func TestLabel(t *testing.T) {
	tests := []struct {
		code string
		want string
	}{
		{"pt", "Portuguese (Português)"},
		{"en", "English"},
		{"", "Auto-detect"},
		{"xx", "Auto-detect"},
	}
	for _, tt := range tests {
		if got := Label(tt.code); got != tt.want {
			t.Errorf("Label(%q) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
