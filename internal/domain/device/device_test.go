package device

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    DeviceType
		wantErr bool
	}{
		{"cgm", CGM, false},
		{"CGM", CGM, false},
		{" Ankle ", Ankle, false},
		{"lymphedema-full-legs", LymphedemaFullLegs, false},
		{"lymphodema_arms", LymphedemaArms, false},
		{"Lymphedema Leg", LymphedemaLeg, false},
		{"neck", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %q", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestCatalogComplete(t *testing.T) {
	for _, d := range All {
		if !d.Valid() {
			t.Errorf("%s not valid", d)
		}
		if TemplateFor(d) == "" {
			t.Errorf("%s has no template", d)
		}
	}
}

func TestLabelForTemplate(t *testing.T) {
	tests := map[string]string{
		"do.docx":                                   "CGM-Template",
		"docs_braces/Ankle_DO.docx":                 "Ankle-Brace",
		"/srv/templates/docs_braces/Back_DO.docx":   "Back-Brace",
		`C:\templates\Hip_DO.docx`:                  "Hip-Brace",
		"docs_braces/Knee_DO.docx":                  UnknownLabel,
		"docs_braces/Wrist_DO.docx":                 UnknownLabel,
		"docs_lymphedema/lymphodema-full-legs.docx": "Lymphodema-full-legs",
		"other.docx":                                UnknownLabel,
	}
	for ref, want := range tests {
		if got := LabelForTemplate(ref); got != want {
			t.Errorf("LabelForTemplate(%q) = %q, want %q", ref, got, want)
		}
	}
}

func TestTitle(t *testing.T) {
	if got := Title(CGM); got != "Cgm" {
		t.Errorf("Title(cgm) = %q", got)
	}
	if got := Title(LymphedemaFullLegs); got != "Lymphedema Full Legs" {
		t.Errorf("Title(lymphedema_full_legs) = %q", got)
	}
}
