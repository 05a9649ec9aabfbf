package render

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/records"
	"github.com/dmefax/faxdesk/internal/platform/docx"
)

// NotAvailable is the token-scan placeholder for empty fields.
const NotAvailable = "N/A"

const dateLayout = "2006-01-02"

// Fields is everything a strategy may bind into a document.
type Fields struct {
	Record records.PatientRecord
	Device device.DeviceType
	Now    time.Time
}

func (f Fields) today() string {
	if f.Now.IsZero() {
		return time.Now().Format(dateLayout)
	}
	return f.Now.Format(dateLayout)
}

// Strategy turns a template package into a rendered package.
type Strategy interface {
	Name() string
	Apply(tpl []byte, f Fields) ([]byte, error)
}

// ---------------------------------------------------------------------------
// Context binding
// ---------------------------------------------------------------------------

// ContextStrategy executes the document body as a text/template with the
// whole field vocabulary bound. {{name}}, {{ name }} and {{.name}} all
// resolve. Fields missing from the record render empty.
type ContextStrategy struct{}

func (ContextStrategy) Name() string { return "context" }

var templateKeywords = map[string]bool{
	"if": true, "else": true, "end": true, "range": true, "with": true,
	"define": true, "template": true, "block": true, "nil": true,
	"break": true, "continue": true, "true": true, "false": true,
}

var bareAction = regexp.MustCompile(`\{\{-?\s*([A-Za-z_][A-Za-z0-9_]*)\s*-?\}\}`)

func (ContextStrategy) Apply(tpl []byte, f Fields) ([]byte, error) {
	pkg, err := docx.Open(tpl)
	if err != nil {
		return nil, err
	}

	// Word splits typed text across runs; join any paragraph holding an
	// action so the delimiters are contiguous.
	body := docx.RewriteParagraphs(pkg.Body(), func(text string) (string, bool) {
		return text, strings.Contains(text, "{{")
	})

	ctx := contextValues(f)
	funcs := template.FuncMap{}
	for k, v := range ctx {
		v := v
		funcs[k] = func() string { return v }
	}
	// Unknown bare identifiers render empty instead of failing the parse.
	for _, m := range bareAction.FindAllSubmatch(body, -1) {
		name := string(m[1])
		if _, ok := funcs[name]; !ok && !templateKeywords[name] {
			funcs[name] = func() string { return "" }
		}
	}

	t, err := template.New("document").Funcs(funcs).Option("missingkey=zero").Parse(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse document template: %w", err)
	}
	var out bytes.Buffer
	if err := t.Execute(&out, ctx); err != nil {
		return nil, fmt.Errorf("execute document template: %w", err)
	}

	pkg.SetBody(out.Bytes())
	return pkg.Bytes()
}

// contextValues holds XML-escaped values for every vocabulary field plus the
// device title under "cgm".
func contextValues(f Fields) map[string]string {
	vals := make(map[string]string, len(records.Vocabulary)+1)
	for _, k := range records.Vocabulary {
		vals[k] = escapeXML(f.Record.Get(k))
	}
	if vals["date"] == "" {
		vals["date"] = f.today()
	}
	vals["cgm"] = escapeXML(device.Title(f.Device))
	return vals
}

// ---------------------------------------------------------------------------
// Token scan
// ---------------------------------------------------------------------------

// TokenStrategy replaces literal {{field}} tokens in every paragraph,
// including table cell paragraphs. Unknown tokens are left in place.
type TokenStrategy struct{}

func (TokenStrategy) Name() string { return "token" }

func (TokenStrategy) Apply(tpl []byte, f Fields) ([]byte, error) {
	pkg, err := docx.Open(tpl)
	if err != nil {
		return nil, err
	}

	replacer := strings.NewReplacer(tokenTable(f)...)
	pkg.SetBody(docx.RewriteParagraphs(pkg.Body(), func(text string) (string, bool) {
		if !strings.Contains(text, "{{") {
			return text, false
		}
		out := replacer.Replace(text)
		return out, out != text
	}))
	return pkg.Bytes()
}

// tokenTable returns old/new pairs for strings.NewReplacer.
func tokenTable(f Fields) []string {
	value := func(k string) string {
		if v := f.Record.Get(k); v != "" {
			return v
		}
		return NotAvailable
	}

	pairs := make([]string, 0, 2*(len(records.Vocabulary)+1))
	for _, k := range records.Vocabulary {
		var v string
		switch k {
		case "insurance":
			v = value("medicare")
		case "date":
			v = f.today()
		default:
			v = value(k)
		}
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return append(pairs, "{{cgm}}", device.Title(f.Device))
}

// ---------------------------------------------------------------------------
// Synthetic fallback
// ---------------------------------------------------------------------------

// FallbackStrategy ignores the template and builds a plain order document
// from the record. It has no I/O and never returns an error.
type FallbackStrategy struct{}

func (FallbackStrategy) Name() string { return "fallback" }

type labelled struct{ label, field string }

var patientSection = []labelled{
	{"Name", "name"}, {"Phone", "phone"}, {"Address", "address"},
	{"City", "city"}, {"State", "state"}, {"ZIP", "zip"},
	{"Date of Birth", "dob"}, {"Medicare", "medicare"},
}

var pcpSection = []labelled{
	{"Name", "pcp_name"}, {"Address", "pcp_address"}, {"City", "pcp_city"},
	{"State", "pcp_state"}, {"ZIP", "pcp_zip"}, {"Phone", "pcp_phone"},
	{"Fax", "pcp_fax"}, {"NPI", "pcp_npi"},
}

func (FallbackStrategy) Apply(_ []byte, f Fields) ([]byte, error) {
	title := device.Title(f.Device)

	b := docx.NewBuilder()
	b.Title("Fax Document - " + title)

	b.Heading("Patient Information")
	writeSection(b, f.Record, patientSection)

	b.Heading("Primary Care Physician (PCP) Information")
	writeSection(b, f.Record, pcpSection)

	b.Heading("Device Information")
	b.Field("Device Type", title)

	b.Heading("Notes")
	b.Paragraph("This order was generated automatically because the template could not be filled.")

	return b.Bytes(), nil
}

func writeSection(b *docx.Builder, rec records.PatientRecord, fields []labelled) {
	for _, l := range fields {
		v := rec.Get(l.field)
		if v == "" || v == NotAvailable {
			continue
		}
		b.Field(l.label, v)
	}
}

func escapeXML(s string) string {
	var b strings.Builder
	template.HTMLEscape(&b, []byte(s))
	return b.String()
}
