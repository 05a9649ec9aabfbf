// Package bulk turns a set of patient records into order-form documents and
// either faxes each one to the patient's physician or bundles them into a
// single zip archive.
package bulk

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/domain/records"
	"github.com/dmefax/faxdesk/internal/domain/render"
	"github.com/dmefax/faxdesk/internal/platform/humblefax"
)

var (
	ErrNoDocumentsGenerated = errors.New("no documents were generated")
	ErrInvalidMode          = errors.New("invalid bulk mode")
	ErrNoFaxSender          = errors.New("fax dispatch is not configured")
)

// ReasonNoFaxNumber is the outcome error for dispatch rows without pcp_fax.
const ReasonNoFaxNumber = "no fax number provided"

// Mode selects what happens to each generated document.
type Mode string

const (
	ModeArchive  Mode = "archive"
	ModeDispatch Mode = "dispatch"
)

// ParseMode accepts "archive" or "dispatch"; "" means archive.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeArchive:
		return ModeArchive, nil
	case ModeDispatch:
		return ModeDispatch, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// Status of one row.
type Status string

const (
	StatusGenerated Status = "generated"
	StatusSent      Status = "sent"
	StatusFailed    Status = "failed"
	StatusSkipped   Status = "skipped"
)

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Renderer produces one document per record.
type Renderer interface {
	Render(ctx context.Context, templateRef string, rec records.PatientRecord, d device.DeviceType) (*render.GeneratedDocument, error)
	ScratchDir() string
}

// FaxSender submits one document.
type FaxSender interface {
	Send(ctx context.Context, req humblefax.SendRequest) *humblefax.SendResult
}

// Sink records dispatch attempts.
type Sink interface {
	RecordFax(ctx context.Context, f *dispatchlog.FaxRecord) error
}

// ---------------------------------------------------------------------------
// Results
// ---------------------------------------------------------------------------

// Outcome is the result of one row. Row is 1-based in source order.
type Outcome struct {
	Row         int    `json:"row"`
	PatientName string `json:"patient_name"`
	Filename    string `json:"filename,omitempty"`
	FaxNumber   string `json:"fax_number,omitempty"`
	Status      Status `json:"status"`
	FaxID       string `json:"fax_id,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Fallback    bool   `json:"fallback,omitempty"`
	Error       string `json:"error,omitempty"`
}

// String is a one-line summary for result listings.
func (o Outcome) String() string {
	name := o.PatientName
	if name == "" {
		name = "Unknown"
	}
	switch o.Status {
	case StatusSent:
		return fmt.Sprintf("✓ Row %d %s: sent to %s (Fax ID: %s)", o.Row, name, o.FaxNumber, o.FaxID)
	case StatusGenerated:
		return fmt.Sprintf("✓ Row %d %s: generated %s", o.Row, name, o.Filename)
	case StatusSkipped:
		return fmt.Sprintf("- Row %d %s: skipped - %s", o.Row, name, o.Error)
	default:
		return fmt.Sprintf("✗ Row %d %s: failed - %s", o.Row, name, o.Error)
	}
}

// RunResult aggregates a bulk run. len(Outcomes) always equals the number of
// input records. Archive is nil in dispatch mode.
type RunResult struct {
	Mode      Mode      `json:"mode"`
	Outcomes  []Outcome `json:"outcomes"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Skipped   int       `json:"skipped"`
	Generated int       `json:"generated"`
	Archive   *Archive  `json:"archive,omitempty"`
}

// Summary is the aggregate line shown above the per-row breakdown.
func (r *RunResult) Summary() string {
	return fmt.Sprintf("Processed %d records: %d succeeded, %d failed, %d skipped",
		len(r.Outcomes), r.Succeeded, r.Failed, r.Skipped)
}

// Lines returns Outcome.String for every row.
func (r *RunResult) Lines() []string {
	out := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		out[i] = o.String()
	}
	return out
}

func (r *RunResult) tally(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Status {
	case StatusSent, StatusGenerated:
		r.Succeeded++
	case StatusSkipped:
		r.Skipped++
	default:
		r.Failed++
	}
}

// ---------------------------------------------------------------------------
// Orchestrator
// ---------------------------------------------------------------------------

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithFaxSender enables ModeDispatch. from is recorded in the dispatch log.
func WithFaxSender(s FaxSender, from string) Option {
	return func(o *Orchestrator) {
		o.sender = s
		o.from = from
	}
}

// WithSink records every dispatch attempt.
func WithSink(s Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

// WithClock overrides the time source used for archive names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// Orchestrator runs bulk generation. Rows are processed strictly in order,
// one at a time.
type Orchestrator struct {
	renderer Renderer
	sender   FaxSender
	from     string
	sink     Sink
	now      func() time.Time
	logger   zerolog.Logger
}

func New(renderer Renderer, logger zerolog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		renderer: renderer,
		now:      time.Now,
		logger:   logger.With().Str("component", "bulk").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// CanDispatch reports whether a FaxSender is configured.
func (o *Orchestrator) CanDispatch() bool { return o.sender != nil }

// GenerateFile loads records from path and runs Generate.
func (o *Orchestrator) GenerateFile(ctx context.Context, path, templateRef string, d device.DeviceType, mode Mode) (*RunResult, error) {
	recs, err := records.Load(path)
	if err != nil {
		return nil, err
	}
	return o.Generate(ctx, recs, templateRef, d, mode)
}

// Generate renders every record and, per mode, faxes or archives the
// results. Row failures never stop the run. Once started the run is not
// cancelled by ctx. When no document could be generated the partial result
// is returned together with ErrNoDocumentsGenerated.
func (o *Orchestrator) Generate(ctx context.Context, recs []records.PatientRecord, templateRef string, d device.DeviceType, mode Mode) (*RunResult, error) {
	if mode != ModeArchive && mode != ModeDispatch {
		return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	if mode == ModeDispatch && o.sender == nil {
		return nil, ErrNoFaxSender
	}
	if templateRef == "" {
		templateRef = device.TemplateFor(d)
	}
	ctx = context.WithoutCancel(ctx)

	log := o.logger.With().Str("template", templateRef).Str("device", string(d)).Str("mode", string(mode)).Logger()
	log.Info().Int("records", len(recs)).Msg("bulk run started")

	var aw *archiveWriter
	if mode == ModeArchive {
		w, err := newArchiveWriter(o.renderer.ScratchDir(), o.now())
		if err != nil {
			return nil, err
		}
		aw = w
	}

	res := &RunResult{Mode: mode, Outcomes: make([]Outcome, 0, len(recs))}
	for i, rec := range recs {
		out, generated := o.processRow(ctx, i+1, rec, templateRef, d, aw, log)
		if generated {
			res.Generated++
		}
		res.tally(out)
	}

	log.Info().Int("succeeded", res.Succeeded).Int("failed", res.Failed).
		Int("skipped", res.Skipped).Int("generated", res.Generated).Msg("bulk run finished")

	if res.Generated == 0 {
		if aw != nil {
			aw.abort()
		}
		return res, ErrNoDocumentsGenerated
	}
	if aw != nil {
		archive, err := aw.finish()
		if err != nil {
			return res, err
		}
		res.Archive = archive
		log.Info().Str("archive", archive.Name).Int("entries", len(archive.Entries)).Msg("archive created")
	}
	return res, nil
}
