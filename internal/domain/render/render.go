// Package render fills order-form templates from patient records and
// writes the results to a scratch directory.
package render

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/records"
	"github.com/dmefax/faxdesk/internal/platform/docx"
)

var (
	ErrTemplateNotFound = errors.New("template not found")
	ErrRenderFailed     = errors.New("template rendering failed")
)

// ---------------------------------------------------------------------------
// Strategy chain
// ---------------------------------------------------------------------------

// Chain runs Primary and, on any error or panic, Fallback.
type Chain struct {
	Primary  Strategy
	Fallback Strategy
}

// Apply returns the rendered bytes. When the fallback produced them,
// primaryErr carries the reason the primary strategy was abandoned.
func (c Chain) Apply(tpl []byte, f Fields) (out []byte, primaryErr error) {
	out, primaryErr = safeApply(c.Primary, tpl, f)
	if primaryErr == nil {
		return out, nil
	}
	fallback, err := safeApply(c.Fallback, tpl, f)
	if err != nil {
		// Only reachable with a caller-supplied fallback that can fail.
		return nil, errors.Join(primaryErr, err)
	}
	return fallback, fmt.Errorf("%w: %s: %v", ErrRenderFailed, c.Primary.Name(), primaryErr)
}

func safeApply(s Strategy, tpl []byte, f Fields) (out []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("%s strategy panicked: %v", s.Name(), r)
		}
	}()
	return s.Apply(tpl, f)
}

// StrategyByName maps a configured strategy name to its implementation.
func StrategyByName(name string) (Strategy, error) {
	switch name {
	case "", "context":
		return ContextStrategy{}, nil
	case "token":
		return TokenStrategy{}, nil
	default:
		return nil, fmt.Errorf("unknown render strategy %q", name)
	}
}

// ---------------------------------------------------------------------------
// Generated documents
// ---------------------------------------------------------------------------

// GeneratedDocument is a rendered file in the scratch directory. The holder
// must call Release once the bytes have been consumed.
type GeneratedDocument struct {
	Filename  string
	Path      string
	Size      int64
	Fallback  bool
	RenderErr error

	releaseOnce sync.Once
	releaseErr  error
}

// Bytes reads the document from scratch storage.
func (d *GeneratedDocument) Bytes() ([]byte, error) {
	return os.ReadFile(d.Path)
}

// Release deletes the scratch file. Safe to call more than once.
func (d *GeneratedDocument) Release() error {
	d.releaseOnce.Do(func() {
		if err := os.Remove(d.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			d.releaseErr = err
		}
	})
	return d.releaseErr
}

// ---------------------------------------------------------------------------
// Renderer
// ---------------------------------------------------------------------------

// Options configures a Renderer.
type Options struct {
	TemplateRoot string
	ScratchDir   string
	Strategy     string
}

// Renderer resolves templates, applies the strategy chain and stores the
// output as a GeneratedDocument.
type Renderer struct {
	root    string
	scratch string
	chain   Chain
	now     func() time.Time
	logger  zerolog.Logger
}

// NewRenderer creates a Renderer. An empty ScratchDir uses the OS temp dir.
func NewRenderer(opts Options, logger zerolog.Logger) (*Renderer, error) {
	primary, err := StrategyByName(opts.Strategy)
	if err != nil {
		return nil, err
	}
	root, err := filepath.Abs(opts.TemplateRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve template root: %w", err)
	}
	scratch := opts.ScratchDir
	if scratch == "" {
		scratch = os.TempDir()
	}
	if err := os.MkdirAll(scratch, 0o700); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	return &Renderer{
		root:    root,
		scratch: scratch,
		chain:   Chain{Primary: primary, Fallback: FallbackStrategy{}},
		now:     time.Now,
		logger:  logger.With().Str("component", "render").Logger(),
	}, nil
}

// ScratchDir is where documents and archives are written.
func (r *Renderer) ScratchDir() string { return r.scratch }

// Resolve returns the absolute path of templateRef, or ErrTemplateNotFound.
func (r *Renderer) Resolve(templateRef string) (string, error) {
	p := templateRef
	if !filepath.IsAbs(p) {
		p = filepath.Join(r.root, filepath.FromSlash(templateRef))
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return "", fmt.Errorf("%w: %s", ErrTemplateNotFound, p)
	}
	return p, nil
}

// Render fills templateRef for one record.
func (r *Renderer) Render(ctx context.Context, templateRef string, rec records.PatientRecord, d device.DeviceType) (*GeneratedDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := r.Resolve(templateRef)
	if err != nil {
		return nil, err
	}
	tpl, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read template %s: %w", path, err)
	}

	f := Fields{Record: rec, Device: d, Now: r.now()}
	out, renderErr := r.chain.Apply(tpl, f)
	if out == nil {
		return nil, renderErr
	}
	if renderErr != nil {
		r.logger.Warn().Err(renderErr).
			Str("template", templateRef).
			Str("patient", rec.Name()).
			Msg("primary strategy failed, using fallback document")
	} else if left := UnresolvedTokens(out); len(left) > 0 {
		r.logger.Warn().Strs("tokens", left).
			Str("template", templateRef).
			Msg("template references unsupported fields")
	}

	doc, err := r.store(out, Filename(rec.Name(), templateRef))
	if err != nil {
		return nil, err
	}
	doc.Fallback = renderErr != nil
	doc.RenderErr = renderErr
	return doc, nil
}

func (r *Renderer) store(data []byte, filename string) (*GeneratedDocument, error) {
	f, err := os.CreateTemp(r.scratch, "doc-*"+docx.Ext)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return nil, fmt.Errorf("write scratch file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return nil, fmt.Errorf("close scratch file: %w", err)
	}
	return &GeneratedDocument{Filename: filename, Path: f.Name(), Size: int64(len(data))}, nil
}

// ---------------------------------------------------------------------------
// Naming
// ---------------------------------------------------------------------------

// Sanitize keeps letters, digits, '-', '_' and '.', maps everything else to
// '-', and collapses and trims hyphens. Sanitize(Sanitize(s)) == Sanitize(s).
func Sanitize(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			return r
		}
		return '-'
	}, s)
	parts := strings.FieldsFunc(mapped, func(r rune) bool { return r == '-' })
	return strings.Join(parts, "-")
}

// Filename is the output name for a patient and template:
// <sanitized name>-<device label>.docx.
func Filename(patientName, templateRef string) string {
	name := Sanitize(patientName)
	if name == "" {
		name = "NoName"
	}
	return name + "-" + device.LabelForTemplate(templateRef) + docx.Ext
}

var leftoverToken = regexp.MustCompile(`\{\{[^{}]*\}\}`)

// UnresolvedTokens lists {{...}} markers still present in a rendered
// document's paragraphs.
func UnresolvedTokens(doc []byte) []string {
	pkg, err := docx.Open(doc)
	if err != nil {
		return nil
	}
	var out []string
	for _, p := range docx.Paragraphs(pkg.Body()) {
		out = append(out, leftoverToken.FindAllString(p, -1)...)
	}
	return out
}
