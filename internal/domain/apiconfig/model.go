// Package apiconfig stores provider credentials (HumbleFax, Twilio, Telnyx)
// with secrets sealed at rest, and resolves the client configuration used
// for each call.
package apiconfig

import (
	"time"

	"github.com/google/uuid"

	"github.com/dmefax/faxdesk/internal/platform/secrets"
)

// Supported services.
const (
	ServiceTelnyx    = "telnyx"
	ServiceHumbleFax = "humblefax"
	ServiceTwilio    = "twilio"
)

// APIConfiguration is the credential row for one service. APIKey holds the
// HumbleFax access key or the Telnyx API key; SecretKey is HumbleFax only;
// AccountSID and AuthToken are Twilio only.
type APIConfiguration struct {
	ID           uuid.UUID `json:"id"`
	Service      string    `json:"service"`
	APIKey       string    `json:"api_key,omitempty"`
	SecretKey    string    `json:"secret_key,omitempty"`
	AccountSID   string    `json:"account_sid,omitempty"`
	AuthToken    string    `json:"auth_token,omitempty"`
	FromNumber   string    `json:"from_number,omitempty"`
	ConnectionID string    `json:"connection_id,omitempty"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Masked returns a copy safe to show to operators.
func (a *APIConfiguration) Masked() *APIConfiguration {
	m := *a
	m.APIKey = secrets.Mask(a.APIKey)
	m.SecretKey = secrets.Mask(a.SecretKey)
	m.AuthToken = secrets.Mask(a.AuthToken)
	return &m
}
