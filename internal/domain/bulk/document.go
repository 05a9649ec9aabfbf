package bulk

import (
	"context"
	"fmt"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/records"
)

// Document is a single rendered order form held in memory.
type Document struct {
	Filename string
	Data     []byte
	Fallback bool
}

// Document renders one record for direct download. The scratch copy is
// released before returning.
func (o *Orchestrator) Document(ctx context.Context, rec records.PatientRecord, templateRef string, d device.DeviceType) (*Document, error) {
	if templateRef == "" {
		templateRef = device.TemplateFor(d)
	}
	doc, err := o.renderer.Render(ctx, templateRef, rec, d)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := doc.Release(); err != nil {
			o.logger.Warn().Err(err).Str("path", doc.Path).Msg("failed to release document")
		}
	}()

	data, err := doc.Bytes()
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return &Document{Filename: doc.Filename, Data: data, Fallback: doc.Fallback}, nil
}
