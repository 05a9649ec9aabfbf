// Package sms sends patient text messages through Twilio and records every
// attempt in the dispatch log.
package sms

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/dispatchlog"
	"github.com/dmefax/faxdesk/internal/platform/twilio"
)

var (
	ErrMissingRecipient = errors.New("phone number is required")
	ErrMissingMessage   = errors.New("message is required")
	ErrMissingName      = errors.New("patient name is required")
)

// Client is the Twilio surface the service drives.
type Client interface {
	Config() twilio.Config
	Send(ctx context.Context, to, body string) *twilio.SendResult
	SendMany(ctx context.Context, numbers, body string) []twilio.BatchLine
	PrescriptionMessage(name, pcpName, deviceName string) (string, error)
	SendPrescriptionNotice(ctx context.Context, name, pcpName, phone, deviceName string) *twilio.SendResult
	TestConnection(ctx context.Context) *twilio.ConnectionResult
}

// Clients builds a Twilio client for the current credentials.
type Clients interface {
	Twilio(ctx context.Context) (Client, error)
}

// Recorder is the part of the dispatch log the service writes to.
type Recorder interface {
	RecordSMS(ctx context.Context, m *dispatchlog.SMSRecord) error
}

// Prescription is a signed-order notice for one patient.
type Prescription struct {
	Name       string `json:"name"`
	PCPName    string `json:"pcp_name"`
	Phone      string `json:"phone"`
	DeviceName string `json:"device_name"`
}

type Service struct {
	clients Clients
	log     Recorder
	logger  zerolog.Logger
}

// NewService creates a Service. rec may be nil when no database is wired.
func NewService(clients Clients, rec Recorder, logger zerolog.Logger) *Service {
	return &Service{clients: clients, log: rec, logger: logger.With().Str("component", "sms").Logger()}
}

// Send delivers body to one recipient.
func (s *Service) Send(ctx context.Context, to, body string) (*twilio.SendResult, error) {
	if strings.TrimSpace(to) == "" {
		return nil, ErrMissingRecipient
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrMissingMessage
	}
	client, err := s.clients.Twilio(ctx)
	if err != nil {
		return nil, err
	}
	res := client.Send(ctx, to, body)
	s.record(ctx, client.Config().FromNumber, body, res)
	return res, nil
}

// SendSMS adapts Send to notification.SMSSender so templated and retried
// notifications are dispatched and logged the same way.
func (s *Service) SendSMS(ctx context.Context, to, body string) (string, error) {
	res, err := s.Send(ctx, to, body)
	if err != nil {
		return "", err
	}
	if !res.Success {
		return "", res.Err
	}
	return res.SID, nil
}

// SendMany delivers body to every number in a comma or newline separated
// list. Each recipient is logged independently.
func (s *Service) SendMany(ctx context.Context, numbers, body string) ([]twilio.BatchLine, error) {
	if strings.TrimSpace(numbers) == "" {
		return nil, ErrMissingRecipient
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrMissingMessage
	}
	client, err := s.clients.Twilio(ctx)
	if err != nil {
		return nil, err
	}
	lines := client.SendMany(ctx, numbers, body)
	from := client.Config().FromNumber
	for _, l := range lines {
		s.record(ctx, from, body, l.Result)
	}
	return lines, nil
}

// SendPrescription sends the prescription-received notice. A device name
// that parses as a device type is shown by its title.
func (s *Service) SendPrescription(ctx context.Context, p Prescription) (*twilio.SendResult, error) {
	if strings.TrimSpace(p.Name) == "" {
		return nil, ErrMissingName
	}
	if strings.TrimSpace(p.Phone) == "" {
		return nil, ErrMissingRecipient
	}
	if d, err := device.Parse(p.DeviceName); err == nil {
		p.DeviceName = device.Title(d)
	}
	client, err := s.clients.Twilio(ctx)
	if err != nil {
		return nil, err
	}
	res := client.SendPrescriptionNotice(ctx, p.Name, p.PCPName, p.Phone, p.DeviceName)
	body, err := client.PrescriptionMessage(p.Name, p.PCPName, p.DeviceName)
	if err != nil {
		body = "prescription notice: " + p.Name
	}
	s.record(ctx, client.Config().FromNumber, body, res)
	return res, nil
}

func (s *Service) TestConnection(ctx context.Context) (*twilio.ConnectionResult, error) {
	client, err := s.clients.Twilio(ctx)
	if err != nil {
		return nil, err
	}
	return client.TestConnection(ctx), nil
}

func (s *Service) record(ctx context.Context, from, body string, res *twilio.SendResult) {
	if s.log == nil || res == nil {
		return
	}
	m := &dispatchlog.SMSRecord{
		ToNumber:   res.To,
		FromNumber: from,
		Message:    body,
		Status:     dispatchlog.StatusSent,
	}
	if res.Success {
		sid := res.SID
		m.SID = &sid
	} else {
		m.Status = dispatchlog.StatusFailed
		m.Error = res.Error
	}
	if err := s.log.RecordSMS(ctx, m); err != nil {
		s.logger.Warn().Err(err).Str("to", res.To).Msg("dispatch log write failed")
	}
}
