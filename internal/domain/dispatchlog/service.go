package dispatchlog

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/platform/db"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrInvalidStatus = errors.New("invalid status")
)

var validFaxStatuses = map[string]bool{
	StatusPending: true, StatusSent: true, StatusDelivered: true, StatusFailed: true, StatusCancelled: true,
}

var validSMSStatuses = map[string]bool{
	StatusPending: true, StatusSent: true, StatusDelivered: true, StatusFailed: true,
}

var validProviders = map[string]bool{
	ProviderHumbleFax: true, ProviderTelnyx: true,
}

var validDirections = map[string]bool{
	DirectionOutbound: true, DirectionInbound: true,
}

type Service struct {
	faxes  FaxRepository
	sms    SMSRepository
	logger zerolog.Logger
}

func NewService(faxes FaxRepository, sms SMSRepository, logger zerolog.Logger) *Service {
	return &Service{faxes: faxes, sms: sms, logger: logger.With().Str("component", "dispatchlog").Logger()}
}

// RecordFax validates f, fills defaults and stores it.
func (s *Service) RecordFax(ctx context.Context, f *FaxRecord) error {
	if f.ToNumber == "" {
		return fmt.Errorf("to_number is required")
	}
	if f.Status == "" {
		f.Status = StatusPending
	}
	if !validFaxStatuses[f.Status] {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, f.Status)
	}
	if f.Provider == "" {
		f.Provider = ProviderHumbleFax
	}
	if !validProviders[f.Provider] {
		return fmt.Errorf("invalid provider: %s", f.Provider)
	}
	if f.Direction == "" {
		f.Direction = DirectionOutbound
	}
	if !validDirections[f.Direction] {
		return fmt.Errorf("invalid direction: %s", f.Direction)
	}
	if f.NumPages <= 0 {
		f.NumPages = 1
	}
	if f.FaxID != nil && *f.FaxID == "" {
		f.FaxID = nil
	}
	if err := s.faxes.Create(ctx, f); err != nil {
		return fmt.Errorf("record fax: %w", err)
	}
	s.logger.Debug().Str("id", f.ID.String()).Str("fax_id", f.ProviderID()).Str("status", f.Status).Msg("fax recorded")
	return nil
}

// RecordSMS validates m, fills defaults and stores it.
func (s *Service) RecordSMS(ctx context.Context, m *SMSRecord) error {
	if m.ToNumber == "" {
		return fmt.Errorf("to_number is required")
	}
	if m.Message == "" {
		return fmt.Errorf("message is required")
	}
	if m.Status == "" {
		m.Status = StatusPending
	}
	if !validSMSStatuses[m.Status] {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, m.Status)
	}
	if m.SID != nil && *m.SID == "" {
		m.SID = nil
	}
	if err := s.sms.Create(ctx, m); err != nil {
		return fmt.Errorf("record sms: %w", err)
	}
	return nil
}

func (s *Service) GetFax(ctx context.Context, id uuid.UUID) (*FaxRecord, error) {
	f, err := s.faxes.GetByID(ctx, id)
	return f, notFound(err)
}

func (s *Service) GetFaxByProviderID(ctx context.Context, faxID string) (*FaxRecord, error) {
	f, err := s.faxes.GetByFaxID(ctx, faxID)
	return f, notFound(err)
}

func (s *Service) GetSMS(ctx context.Context, id uuid.UUID) (*SMSRecord, error) {
	m, err := s.sms.GetByID(ctx, id)
	return m, notFound(err)
}

// UpdateFaxStatus moves the record with provider id faxID to status.
func (s *Service) UpdateFaxStatus(ctx context.Context, faxID, status, errMsg string) (*FaxRecord, error) {
	if !validFaxStatuses[status] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}
	f, err := s.GetFaxByProviderID(ctx, faxID)
	if err != nil {
		return nil, err
	}
	if err := s.faxes.UpdateStatus(ctx, f.ID, status, errMsg); err != nil {
		return nil, notFound(err)
	}
	f.Status = status
	f.Error = errMsg
	s.logger.Info().Str("fax_id", faxID).Str("status", status).Msg("fax status updated")
	return f, nil
}

func (s *Service) ListFaxes(ctx context.Context, params map[string]string, limit, offset int) ([]*FaxRecord, int, error) {
	return s.faxes.Search(ctx, params, limit, offset)
}

func (s *Service) ListSMS(ctx context.Context, params map[string]string, limit, offset int) ([]*SMSRecord, int, error) {
	return s.sms.Search(ctx, params, limit, offset)
}

func notFound(err error) error {
	if err != nil && (db.IsNotFound(err) || errors.Is(err, ErrNotFound)) {
		return ErrNotFound
	}
	return err
}
