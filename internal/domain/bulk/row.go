package bulk

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/domain/records"
	"github.com/dmefax/faxdesk/internal/domain/render"
	"github.com/dmefax/faxdesk/internal/platform/humblefax"
)

// Row phases reported in Outcome.Phase. Dispatch failures use the
// humblefax phase names instead.
const (
	phaseRender  = "render"
	phaseArchive = "archive"
	phaseRead    = "read"
)

// processRow handles one record. It never panics and always releases the
// rendered document. generated reports whether a document was produced and
// handed to its destination step.
func (o *Orchestrator) processRow(ctx context.Context, row int, rec records.PatientRecord, templateRef string, d device.DeviceType, aw *archiveWriter, log zerolog.Logger) (out Outcome, generated bool) {
	out = Outcome{Row: row, PatientName: rec.Name(), FaxNumber: strings.TrimSpace(rec.Get("pcp_fax"))}
	rlog := log.With().Int("row", row).Str("patient", out.PatientName).Logger()

	var doc *render.GeneratedDocument
	defer func() {
		if doc != nil {
			if err := doc.Release(); err != nil {
				rlog.Warn().Err(err).Str("path", doc.Path).Msg("failed to release document")
			}
		}
		if r := recover(); r != nil {
			out.Status = StatusFailed
			out.Error = fmt.Sprintf("panic: %v", r)
			rlog.Error().Str("phase", out.Phase).Interface("panic", r).Msg("row panicked")
		}
	}()

	fail := func(phase string, err error) (Outcome, bool) {
		out.Status = StatusFailed
		out.Phase = phase
		out.Error = err.Error()
		rlog.Error().Err(err).Str("phase", phase).Msg("row failed")
		return out, generated
	}

	out.Phase = phaseRender
	var err error
	doc, err = o.renderer.Render(ctx, templateRef, rec, d)
	if err != nil {
		return fail(phaseRender, err)
	}
	out.Filename = doc.Filename
	out.Fallback = doc.Fallback

	if aw != nil {
		out.Phase = phaseArchive
		entry, err := aw.add(doc.Filename, doc.Path)
		if err != nil {
			return fail(phaseArchive, err)
		}
		generated = true
		out.Filename = entry
		out.Status = StatusGenerated
		out.Phase = ""
		rlog.Debug().Str("entry", entry).Msg("document archived")
		return out, generated
	}

	generated = true
	if out.FaxNumber == "" {
		out.Status = StatusSkipped
		out.Phase = ""
		out.Error = ReasonNoFaxNumber
		rlog.Warn().Msg("row skipped: " + ReasonNoFaxNumber)
		return out, generated
	}

	out.Phase = phaseRead
	data, err := doc.Bytes()
	if err != nil {
		return fail(phaseRead, err)
	}

	out.Phase = string(humblefax.PhaseCreate)
	result := o.sender.Send(ctx, humblefax.SendRequest{
		To:          out.FaxNumber,
		Data:        data,
		Filename:    doc.Filename,
		DisplayName: out.PatientName,
	})
	o.record(ctx, rec, d, out, result, rlog)

	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = result.Message
		}
		out.Status = StatusFailed
		out.Phase = string(result.Phase)
		out.Error = msg
		rlog.Warn().Str("phase", out.Phase).Str("to", out.FaxNumber).Msg("fax dispatch failed: " + msg)
		return out, generated
	}

	out.Status = StatusSent
	out.Phase = ""
	out.FaxID = result.FaxID
	rlog.Info().Str("to", out.FaxNumber).Str("fax_id", result.FaxID).Msg("fax dispatched")
	return out, generated
}

func (o *Orchestrator) record(ctx context.Context, rec records.PatientRecord, d device.DeviceType, out Outcome, result *humblefax.SendResult, log zerolog.Logger) {
	if o.sink == nil {
		return
	}
	f := &dispatchlog.FaxRecord{
		ToNumber:    out.FaxNumber,
		FromNumber:  o.from,
		Subject:     "Medical Order - " + out.PatientName,
		PatientName: out.PatientName,
		DeviceType:  device.Title(d),
		Provider:    dispatchlog.ProviderHumbleFax,
		Status:      dispatchlog.StatusSent,
	}
	if result.Success {
		id := result.FaxID
		f.FaxID = &id
	} else {
		f.Status = dispatchlog.StatusFailed
		f.Error = result.Error
	}
	if err := o.sink.RecordFax(ctx, f); err != nil {
		log.Warn().Err(err).Msg("failed to record fax dispatch")
	}
}
