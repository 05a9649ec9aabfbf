package render

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/records"
	"github.com/dmefax/faxdesk/internal/platform/docx"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

// makeTemplate builds a .docx whose body holds the given paragraph XML.
func makeTemplate(t *testing.T, bodyXML string) []byte {
	t.Helper()
	pkg, err := docx.Open(docx.NewBuilder().Bytes())
	if err != nil {
		t.Fatalf("open base package: %v", err)
	}
	pkg.SetBody([]byte(`<w:document ` + wordNS + `><w:body>` + bodyXML + `</w:body></w:document>`))
	data, err := pkg.Bytes()
	if err != nil {
		t.Fatalf("serialise template: %v", err)
	}
	return data
}

func para(text string) string {
	return `<w:p><w:r><w:t xml:space="preserve">` + text + `</w:t></w:r></w:p>`
}

func paragraphsOf(t *testing.T, data []byte) []string {
	t.Helper()
	pkg, err := docx.Open(data)
	if err != nil {
		t.Fatalf("open rendered document: %v", err)
	}
	return docx.Paragraphs(pkg.Body())
}

func sampleRecord() records.PatientRecord {
	return records.PatientRecord{
		"name": "Jane Doe", "dob": "1950-01-02", "phone": "5551234567",
		"address": "1 Main St", "city": "Austin", "state": "TX", "zip": "78701",
		"medicare": "1EG4-TE5-MK72", "pcp_name": "Dr. A & B", "pcp_address": "2 Oak",
		"pcp_city": "Austin", "pcp_state": "TX", "pcp_zip": "78702",
		"pcp_phone": "5550000000", "pcp_fax": "5559999999", "pcp_npi": "1234567890",
	}
}

var fixedNow = time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)

func TestSanitize(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Jane Doe", "Jane-Doe"},
		{"  O'Brien,  Mary ", "O-Brien-Mary"},
		{"a--b", "a-b"},
		{"-lead-trail-", "lead-trail"},
		{"José_Núñez.Jr", "José_Núñez.Jr"},
		{"x/y\\z", "x-y-z"},
		{"", ""},
		{"!!!", ""},
	}
	for _, tt := range tests {
		got := Sanitize(tt.in)
		if got != tt.want {
			t.Errorf("Sanitize(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if again := Sanitize(got); again != got {
			t.Errorf("Sanitize not idempotent for %q: %q -> %q", tt.in, got, again)
		}
		if strings.Contains(got, "--") {
			t.Errorf("Sanitize(%q) = %q contains consecutive hyphens", tt.in, got)
		}
	}
}

func TestFilename(t *testing.T) {
	if got := Filename("Jane Doe", "do.docx"); got != "Jane-Doe-CGM-Template.docx" {
		t.Errorf("got %q", got)
	}
	if got := Filename("", "docs_braces/Knee_DO.docx"); got != "NoName-Unknown-Type.docx" {
		t.Errorf("got %q", got)
	}
	if Filename("Jane Doe", "do.docx") != Filename("Jane Doe", "do.docx") {
		t.Error("expected deterministic filename")
	}
}

func TestTokenStrategy(t *testing.T) {
	tpl := makeTemplate(t,
		para("Patient: {{name}} DOB {{dob}}")+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>NPI {{pcp_</w:t></w:r><w:r><w:t>npi}}</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			para("Ins {{insurance}} Email {{email}}")+
			para("Device {{cgm}} on {{date}}")+
			para("Keep {{unknown_field}}"),
	)

	out, err := TokenStrategy{}.Apply(tpl, Fields{Record: sampleRecord(), Device: device.Ankle, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"Patient: Jane Doe DOB 1950-01-02",
		"NPI 1234567890",
		"Ins 1EG4-TE5-MK72 Email N/A",
		"Device Ankle on 2024-03-05",
		"Keep {{unknown_field}}",
	}
	if diff := cmp.Diff(want, paragraphsOf(t, out)); diff != "" {
		t.Errorf("paragraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestContextStrategy(t *testing.T) {
	tpl := makeTemplate(t,
		para("Patient: {{name}}")+
			para("PCP {{ pcp_name }} NPI {{.pcp_npi}}")+
			`<w:p><w:r><w:t>Dated {{da</w:t></w:r><w:r><w:t>te}}</w:t></w:r></w:p>`+
			para("Email [{{email}}] Other [{{mystery}}]")+
			para("Device {{cgm}}"),
	)

	out, err := ContextStrategy{}.Apply(tpl, Fields{Record: sampleRecord(), Device: device.CGM, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{
		"Patient: Jane Doe",
		"PCP Dr. A & B NPI 1234567890",
		"Dated 2024-03-05",
		"Email [] Other []",
		"Device Cgm",
	}
	if diff := cmp.Diff(want, paragraphsOf(t, out)); diff != "" {
		t.Errorf("paragraphs mismatch (-want +got):\n%s", diff)
	}
}

func TestContextStrategy_RecordDateWins(t *testing.T) {
	rec := sampleRecord()
	rec["date"] = "2023-12-31"
	out, err := ContextStrategy{}.Apply(makeTemplate(t, para("{{date}}")), Fields{Record: rec, Device: device.CGM, Now: fixedNow})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := paragraphsOf(t, out); got[0] != "2023-12-31" {
		t.Errorf("expected record date, got %q", got[0])
	}
}

func TestContextStrategy_ParseError(t *testing.T) {
	_, err := ContextStrategy{}.Apply(makeTemplate(t, para("broken {{name")), Fields{Record: sampleRecord()})
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestStrategies_NoLeftoverVocabularyTokens(t *testing.T) {
	var body strings.Builder
	for _, k := range records.Vocabulary {
		body.WriteString(para(k + ": {{" + k + "}}"))
	}
	body.WriteString(para("{{cgm}}"))
	tpl := makeTemplate(t, body.String())

	for _, s := range []Strategy{TokenStrategy{}, ContextStrategy{}} {
		t.Run(s.Name(), func(t *testing.T) {
			out, err := s.Apply(tpl, Fields{Record: sampleRecord(), Device: device.Hip, Now: fixedNow})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if left := UnresolvedTokens(out); len(left) != 0 {
				t.Errorf("unresolved tokens: %v", left)
			}
		})
	}
}

func TestFallbackStrategy(t *testing.T) {
	rec := sampleRecord()
	rec["zip"] = "N/A"
	rec["pcp_fax"] = ""

	out, err := FallbackStrategy{}.Apply(nil, Fields{Record: rec, Device: device.Shoulder})
	if err != nil {
		t.Fatalf("fallback returned error: %v", err)
	}
	got := paragraphsOf(t, out)

	if got[0] != "Fax Document - Shoulder" {
		t.Errorf("unexpected title %q", got[0])
	}
	joined := strings.Join(got, "\n")
	for _, want := range []string{"Patient Information", "Name: Jane Doe", "Primary Care Physician (PCP) Information", "NPI: 1234567890", "Device Type: Shoulder", "Notes"} {
		if !strings.Contains(joined, want) {
			t.Errorf("expected %q in fallback document", want)
		}
	}
	if strings.Contains(joined, "ZIP: N/A") || strings.Contains(joined, "Fax:") {
		t.Error("expected empty and N/A fields to be skipped")
	}
}

type panicStrategy struct{}

func (panicStrategy) Name() string { return "panic" }

func (panicStrategy) Apply([]byte, Fields) ([]byte, error) {
	panic("boom")
}

func TestChain_RecoversPanic(t *testing.T) {
	c := Chain{Primary: panicStrategy{}, Fallback: FallbackStrategy{}}
	out, err := c.Apply(nil, Fields{Record: sampleRecord(), Device: device.CGM})
	if out == nil {
		t.Fatal("expected fallback output")
	}
	if !errors.Is(err, ErrRenderFailed) {
		t.Fatalf("expected ErrRenderFailed, got %v", err)
	}
}

func newTestRenderer(t *testing.T, strategy string) (*Renderer, string) {
	t.Helper()
	root := t.TempDir()
	r, err := NewRenderer(Options{TemplateRoot: root, ScratchDir: t.TempDir(), Strategy: strategy}, zerolog.Nop())
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	r.now = func() time.Time { return fixedNow }
	return r, root
}

func TestRenderer_Render(t *testing.T) {
	r, root := newTestRenderer(t, "context")
	if err := os.WriteFile(filepath.Join(root, "do.docx"), makeTemplate(t, para("Patient {{name}}")), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := r.Render(context.Background(), "do.docx", sampleRecord(), device.CGM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if doc.Filename != "Jane-Doe-CGM-Template.docx" {
		t.Errorf("unexpected filename %q", doc.Filename)
	}
	if doc.Fallback || doc.RenderErr != nil {
		t.Errorf("did not expect fallback: %v", doc.RenderErr)
	}
	if filepath.Dir(doc.Path) != r.ScratchDir() {
		t.Errorf("expected document in scratch dir, got %s", doc.Path)
	}

	data, err := doc.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if int64(len(data)) != doc.Size {
		t.Errorf("size mismatch: %d vs %d", len(data), doc.Size)
	}
	if got := paragraphsOf(t, data); got[0] != "Patient Jane Doe" {
		t.Errorf("unexpected content %q", got[0])
	}

	if err := doc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := doc.Release(); err != nil {
		t.Fatalf("second Release: %v", err)
	}
	if _, err := os.Stat(doc.Path); !os.IsNotExist(err) {
		t.Error("expected scratch file to be removed")
	}
}

func TestRenderer_FallbackOnBrokenTemplate(t *testing.T) {
	r, root := newTestRenderer(t, "context")
	if err := os.WriteFile(filepath.Join(root, "do.docx"), []byte("not a docx"), 0o600); err != nil {
		t.Fatal(err)
	}

	doc, err := r.Render(context.Background(), "do.docx", sampleRecord(), device.CGM)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer doc.Release()

	if !doc.Fallback || !errors.Is(doc.RenderErr, ErrRenderFailed) {
		t.Fatalf("expected recovered fallback, got fallback=%v err=%v", doc.Fallback, doc.RenderErr)
	}
	data, _ := doc.Bytes()
	if got := paragraphsOf(t, data); got[0] != "Fax Document - Cgm" {
		t.Errorf("unexpected fallback title %q", got[0])
	}
}

func TestRenderer_TemplateNotFound(t *testing.T) {
	r, _ := newTestRenderer(t, "token")
	_, err := r.Render(context.Background(), "docs_braces/Ankle_DO.docx", sampleRecord(), device.Ankle)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("expected ErrTemplateNotFound, got %v", err)
	}
}

func TestRenderer_CancelledContext(t *testing.T) {
	r, _ := newTestRenderer(t, "token")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.Render(ctx, "do.docx", sampleRecord(), device.CGM); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestStrategyByName(t *testing.T) {
	if _, err := StrategyByName("jinja"); err == nil {
		t.Error("expected error for unknown strategy")
	}
	s, err := StrategyByName("token")
	if err != nil || s.Name() != "token" {
		t.Errorf("got %v, %v", s, err)
	}
}
