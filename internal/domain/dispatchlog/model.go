// Package dispatchlog records every fax and SMS the desk sends so operators
// can review outcomes after a bulk run or a single send.
package dispatchlog

import (
	"time"

	"github.com/google/uuid"
)

// Fax and SMS statuses. SMS records never use StatusCancelled.
const (
	StatusPending   = "pending"
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Fax providers.
const (
	ProviderHumbleFax = "humblefax"
	ProviderTelnyx    = "telnyx"
)

// Directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// FaxRecord is one fax submission. FaxID is the provider's identifier and is
// nil until the provider has accepted the fax.
type FaxRecord struct {
	ID          uuid.UUID `json:"id"`
	FaxID       *string   `json:"fax_id,omitempty"`
	ToNumber    string    `json:"to_number"`
	FromNumber  string    `json:"from_number"`
	Status      string    `json:"status"`
	MediaURL    string    `json:"media_url,omitempty"`
	Subject     string    `json:"subject,omitempty"`
	NumPages    int       `json:"num_pages"`
	Direction   string    `json:"direction"`
	PatientName string    `json:"patient_name,omitempty"`
	DeviceType  string    `json:"device_type,omitempty"`
	Provider    string    `json:"provider"`
	Error       string    `json:"error,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// SMSRecord is one text message. SID is the provider message id.
type SMSRecord struct {
	ID         uuid.UUID `json:"id"`
	SID        *string   `json:"sid,omitempty"`
	ToNumber   string    `json:"to_number"`
	FromNumber string    `json:"from_number"`
	Message    string    `json:"message"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// ProviderID returns the provider fax id or "" when none was assigned.
func (f *FaxRecord) ProviderID() string {
	if f.FaxID == nil {
		return ""
	}
	return *f.FaxID
}
