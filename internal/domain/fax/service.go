// Package fax exposes the single-record fax desk operations: history and
// detail lookups, resend, cancel, connection checks and one-off sends over
// HumbleFax (document upload) and Telnyx (media URL).
package fax

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/platform/humblefax"
	"github.com/dmefax/faxdesk/internal/platform/telnyx"
	"github.com/dmefax/faxdesk/pkg/pagination"
)

var (
	ErrNotFound         = errors.New("fax not found")
	ErrInvalidDirection = errors.New("direction must be outbound or inbound")
	ErrMissingNumber    = errors.New("fax number is required")
	ErrMissingDocument  = errors.New("document is required")
)

// Provider is the HumbleFax account surface the desk drives.
type Provider interface {
	Send(ctx context.Context, req humblefax.SendRequest) *humblefax.SendResult
	History(ctx context.Context, q humblefax.HistoryQuery) ([]humblefax.Fax, error)
	Detail(ctx context.Context, id string) (*humblefax.Fax, error)
	Resend(ctx context.Context, id string) *humblefax.ResendResult
	Cancel(ctx context.Context, id string) error
	Status(ctx context.Context, id string) (map[string]any, error)
	Account(ctx context.Context) (map[string]any, error)
	TestConnection(ctx context.Context) *humblefax.ConnectionResult
}

// MediaSender faxes a publicly reachable document by URL and can copy it
// into provider media storage.
type MediaSender interface {
	SendFax(ctx context.Context, to, mediaURL string) (*telnyx.Fax, error)
	SendMany(ctx context.Context, numbers, mediaURL string) []telnyx.BatchLine
	RegisterMedia(ctx context.Context, mediaURL, name string) (string, error)
}

// Clients builds provider clients for the current credentials.
type Clients interface {
	HumbleFax(ctx context.Context) (Provider, error)
	Telnyx(ctx context.Context) (MediaSender, error)
}

// Recorder is the part of the dispatch log the fax desk writes to.
type Recorder interface {
	RecordFax(ctx context.Context, f *dispatchlog.FaxRecord) error
	GetFaxByProviderID(ctx context.Context, faxID string) (*dispatchlog.FaxRecord, error)
	UpdateFaxStatus(ctx context.Context, faxID, status, errMsg string) (*dispatchlog.FaxRecord, error)
}

// SendInput is one uploaded document addressed to one fax number.
type SendInput struct {
	To          string
	Filename    string
	Data        []byte
	PatientName string
	DeviceType  string
}

type Service struct {
	clients Clients
	log     Recorder
	logger  zerolog.Logger
}

// NewService creates a Service. rec may be nil when no database is wired.
func NewService(clients Clients, rec Recorder, logger zerolog.Logger) *Service {
	return &Service{clients: clients, log: rec, logger: logger.With().Str("component", "fax").Logger()}
}

func parseDirection(s string) (humblefax.Direction, error) {
	switch d := humblefax.Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case "", humblefax.Outbound, humblefax.Inbound:
		return d, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// History returns one page of the merged account history and the number of
// faxes seen. One record past the page is requested from each feed so the
// total reveals whether a further page exists.
func (s *Service) History(ctx context.Context, direction string, p pagination.Params) ([]humblefax.Fax, int, error) {
	dir, err := parseDirection(direction)
	if err != nil {
		return nil, 0, err
	}
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, 0, err
	}
	all, err := client.History(ctx, humblefax.HistoryQuery{Limit: p.Window() + 1, Direction: dir})
	if err != nil {
		return nil, 0, err
	}
	return pagination.Slice(all, p), len(all), nil
}

func (s *Service) Detail(ctx context.Context, id string) (*humblefax.Fax, error) {
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}
	f, err := client.Detail(ctx, id)
	if errors.Is(err, humblefax.ErrNotFound) {
		return nil, ErrNotFound
	}
	return f, err
}

// Status returns the provider's raw status document for a fax.
func (s *Service) Status(ctx context.Context, id string) (map[string]any, error) {
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}
	doc, err := client.Status(ctx, id)
	if errors.Is(err, humblefax.ErrNotFound) {
		return nil, ErrNotFound
	}
	return doc, err
}

func (s *Service) Account(ctx context.Context) (map[string]any, error) {
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}
	return client.Account(ctx)
}

func (s *Service) TestConnection(ctx context.Context) (*humblefax.ConnectionResult, error) {
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}
	return client.TestConnection(ctx), nil
}

// Send faxes one uploaded document and records the attempt.
func (s *Service) Send(ctx context.Context, in SendInput) (*humblefax.SendResult, error) {
	if strings.TrimSpace(in.To) == "" {
		return nil, ErrMissingNumber
	}
	if len(in.Data) == 0 {
		return nil, ErrMissingDocument
	}
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}

	res := client.Send(ctx, humblefax.SendRequest{
		To:          in.To,
		Data:        in.Data,
		Filename:    in.Filename,
		DisplayName: in.PatientName,
	})

	rec := &dispatchlog.FaxRecord{
		ToNumber:    in.To,
		PatientName: in.PatientName,
		DeviceType:  in.DeviceType,
		Provider:    dispatchlog.ProviderHumbleFax,
		Status:      dispatchlog.StatusSent,
	}
	if in.PatientName != "" {
		rec.Subject = "Medical Order - " + in.PatientName
	}
	if res.Success {
		rec.FaxID = &res.FaxID
	} else {
		rec.Status = dispatchlog.StatusFailed
		rec.Error = res.Error
	}
	s.record(ctx, rec)
	return res, nil
}

// Resend re-sends an existing fax. When the original is in the dispatch log
// the new fax is logged against the same recipient.
func (s *Service) Resend(ctx context.Context, id string) (*humblefax.ResendResult, error) {
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return nil, err
	}
	res := client.Resend(ctx, id)
	if !res.Success || s.log == nil {
		return res, nil
	}

	orig, err := s.log.GetFaxByProviderID(ctx, id)
	if err != nil {
		if !errors.Is(err, dispatchlog.ErrNotFound) {
			s.logger.Warn().Err(err).Str("fax_id", id).Msg("original fax lookup failed")
		}
		return res, nil
	}
	s.record(ctx, &dispatchlog.FaxRecord{
		FaxID:       &res.NewFaxID,
		ToNumber:    orig.ToNumber,
		FromNumber:  orig.FromNumber,
		Status:      dispatchlog.StatusSent,
		Subject:     orig.Subject,
		NumPages:    orig.NumPages,
		PatientName: orig.PatientName,
		DeviceType:  orig.DeviceType,
		Provider:    dispatchlog.ProviderHumbleFax,
	})
	return res, nil
}

// Cancel cancels a pending fax and marks it cancelled in the dispatch log.
func (s *Service) Cancel(ctx context.Context, id string) error {
	client, err := s.clients.HumbleFax(ctx)
	if err != nil {
		return err
	}
	if err := client.Cancel(ctx, id); err != nil {
		return err
	}
	if s.log == nil {
		return nil
	}
	if _, err := s.log.UpdateFaxStatus(ctx, id, dispatchlog.StatusCancelled, ""); err != nil && !errors.Is(err, dispatchlog.ErrNotFound) {
		s.logger.Warn().Err(err).Str("fax_id", id).Msg("dispatch log update failed")
	}
	return nil
}

// SendMedia faxes mediaURL to one number through Telnyx.
func (s *Service) SendMedia(ctx context.Context, to, mediaURL string) (*telnyx.Fax, error) {
	if strings.TrimSpace(to) == "" {
		return nil, ErrMissingNumber
	}
	if strings.TrimSpace(mediaURL) == "" {
		return nil, telnyx.ErrMissingMediaURL
	}
	client, err := s.clients.Telnyx(ctx)
	if err != nil {
		return nil, err
	}
	f, err := client.SendFax(ctx, to, mediaURL)
	if err != nil {
		s.record(ctx, &dispatchlog.FaxRecord{
			ToNumber: to,
			MediaURL: mediaURL,
			Provider: dispatchlog.ProviderTelnyx,
			Status:   dispatchlog.StatusFailed,
			Error:    err.Error(),
		})
		return nil, err
	}
	s.record(ctx, telnyxRecord(f.ID, f.To, f.From, mediaURL))
	return f, nil
}

// SendMediaMany faxes mediaURL to every number in a comma or newline
// separated list. Successful lines are logged.
func (s *Service) SendMediaMany(ctx context.Context, numbers, mediaURL string) ([]telnyx.BatchLine, error) {
	if strings.TrimSpace(numbers) == "" {
		return nil, ErrMissingNumber
	}
	if strings.TrimSpace(mediaURL) == "" {
		return nil, telnyx.ErrMissingMediaURL
	}
	client, err := s.clients.Telnyx(ctx)
	if err != nil {
		return nil, err
	}
	lines := client.SendMany(ctx, numbers, mediaURL)
	for _, l := range lines {
		if l.Success {
			s.record(ctx, telnyxRecord(l.FaxID, l.Number, "", mediaURL))
		}
	}
	return lines, nil
}

// RegisterMedia copies a remote document into Telnyx media storage and
// returns the stored media name.
func (s *Service) RegisterMedia(ctx context.Context, mediaURL, name string) (string, error) {
	if strings.TrimSpace(mediaURL) == "" {
		return "", telnyx.ErrMissingMediaURL
	}
	client, err := s.clients.Telnyx(ctx)
	if err != nil {
		return "", err
	}
	stored, err := client.RegisterMedia(ctx, mediaURL, strings.TrimSpace(name))
	if err != nil {
		s.logger.Warn().Err(err).Str("media_url", mediaURL).Msg("media registration failed")
		return "", err
	}
	s.logger.Info().Str("media_name", stored).Msg("media registered")
	return stored, nil
}

func telnyxRecord(id, to, from, mediaURL string) *dispatchlog.FaxRecord {
	return &dispatchlog.FaxRecord{
		FaxID:      &id,
		ToNumber:   to,
		FromNumber: from,
		MediaURL:   mediaURL,
		Provider:   dispatchlog.ProviderTelnyx,
		Status:     dispatchlog.StatusSent,
	}
}

func (s *Service) record(ctx context.Context, rec *dispatchlog.FaxRecord) {
	if s.log == nil {
		return
	}
	if err := s.log.RecordFax(ctx, rec); err != nil {
		s.logger.Warn().Err(err).Str("to", rec.ToNumber).Msg("dispatch log write failed")
	}
}
