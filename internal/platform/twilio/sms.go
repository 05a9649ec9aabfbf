package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmefax/faxdesk/internal/platform/cache"
	"github.com/dmefax/faxdesk/internal/platform/notification"
	"github.com/dmefax/faxdesk/pkg/phonelist"
)

// ---------------------------------------------------------------------------
// Number formatting
// ---------------------------------------------------------------------------

// FormatNumber normalises raw to E.164 using the North American country
// code. See FormatNumberCC.
func FormatNumber(raw string) (string, bool) {
	return FormatNumberCC(raw, DefaultCountryCode)
}

// FormatNumberCC strips everything but digits. Fewer than ten digits is
// rejected; exactly ten gets "+"+cc; anything longer is returned with a
// bare "+" and no further checks.
func FormatNumberCC(raw, cc string) (string, bool) {
	d := digits(raw)
	switch {
	case len(d) < 10:
		return "", false
	case len(d) == 10:
		return "+" + cc + d, true
	default:
		return "+" + d, true
	}
}

func digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Carrier lookup
// ---------------------------------------------------------------------------

type lookupResponse struct {
	Carrier *struct {
		Type string `json:"type"`
	} `json:"carrier"`
}

func mobileType(t string) bool {
	t = strings.ToLower(t)
	return t == "mobile" || t == "voip"
}

// IsMobile reports whether number can receive SMS. Mobile and VoIP carriers
// qualify. Any lookup failure reports true so a message is attempted rather
// than dropped.
func (c *Client) IsMobile(ctx context.Context, number string) bool {
	d := digits(number)
	if len(d) == 10 {
		d = c.cfg.CountryCode + d
	}
	key := "carrier:" + d

	if c.carriers != nil {
		if t, err := c.carriers.Get(ctx, key); err == nil {
			return mobileType(t)
		} else if !errors.Is(err, cache.ErrMiss) {
			c.logger.Warn().Err(err).Str("number", d).Msg("carrier cache read failed")
		}
	}

	u := c.cfg.LookupURL + "/v2/PhoneNumbers/" + url.PathEscape(d) + "?Fields=carrier"
	resp, err := c.do(ctx, http.MethodGet, u, nil, c.cfg.Timeouts.Lookup)
	if err != nil {
		c.logger.Warn().Err(err).Str("number", d).Msg("carrier lookup failed, assuming mobile")
		return true
	}
	if resp.status != http.StatusOK {
		c.logger.Warn().Int("status", resp.status).Str("number", d).Msg("carrier lookup rejected, assuming mobile")
		return true
	}

	var lr lookupResponse
	if err := json.Unmarshal(resp.body, &lr); err != nil {
		c.logger.Warn().Err(err).Str("number", d).Msg("carrier lookup unreadable, assuming mobile")
		return true
	}
	if lr.Carrier == nil {
		c.logger.Warn().Str("number", d).Msg("carrier lookup returned no carrier, assuming mobile")
		return true
	}
	carrier := strings.ToLower(lr.Carrier.Type)
	c.logger.Debug().Str("number", d).Str("carrier_type", carrier).Msg("carrier lookup")

	if c.carriers != nil {
		if err := c.carriers.Set(ctx, key, carrier, c.cfg.CarrierTTL); err != nil {
			c.logger.Warn().Err(err).Str("number", d).Msg("carrier cache write failed")
		}
	}
	return mobileType(carrier)
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

// SendResult is the outcome of one message. It is returned rather than
// failing so callers can record it.
type SendResult struct {
	Success bool   `json:"success"`
	To      string `json:"to"`
	SID     string `json:"sid,omitempty"`
	Status  string `json:"status,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Err     error  `json:"-"`
}

func failed(to, msg string, err error) *SendResult {
	return &SendResult{To: to, Message: msg, Error: err.Error(), Err: err}
}

type messageResponse struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

// Send formats to, screens it with IsMobile and posts the message.
func (c *Client) Send(ctx context.Context, to, body string) *SendResult {
	if err := c.cfg.Validate(); err != nil {
		return failed(to, "SMS service is not configured", err)
	}

	formatted, ok := FormatNumberCC(to, c.cfg.CountryCode)
	if !ok {
		c.logger.Warn().Str("to", to).Msg("invalid phone number")
		return failed(to, "Invalid phone number format", fmt.Errorf("%w: %s", ErrInvalidPhoneNumber, to))
	}
	if !c.IsMobile(ctx, formatted) {
		c.logger.Warn().Str("to", formatted).Msg("recipient is not a mobile number")
		return failed(formatted, "Phone number must be a mobile number", fmt.Errorf("%w: %s", ErrNotMobile, formatted))
	}

	form := url.Values{}
	form.Set("To", formatted)
	form.Set("From", c.cfg.FromNumber)
	form.Set("Body", body)

	resp, err := c.do(ctx, http.MethodPost, c.accountURL("/Messages.json"), form, c.cfg.Timeouts.Call)
	if err != nil {
		c.logger.Error().Err(err).Str("to", formatted).Msg("sms send failed")
		return failed(formatted, "Error sending SMS", fmt.Errorf("send sms: %w", err))
	}
	if resp.status != http.StatusCreated {
		err := statusError(resp)
		c.logger.Error().Err(err).Str("to", formatted).Msg("sms send rejected")
		return failed(formatted, "Failed to send SMS", err)
	}

	var mr messageResponse
	if err := json.Unmarshal(resp.body, &mr); err != nil || mr.SID == "" {
		return failed(formatted, "Failed to send SMS", ErrMissingSID)
	}
	if mr.Status == "" {
		mr.Status = "queued"
	}

	c.logger.Info().Str("to", formatted).Str("sid", mr.SID).Msg("sms sent")
	return &SendResult{
		Success: true,
		To:      formatted,
		SID:     mr.SID,
		Status:  mr.Status,
		Message: "SMS sent successfully",
	}
}

// SendSMS adapts Send to notification.SMSSender.
func (c *Client) SendSMS(ctx context.Context, to, body string) (string, error) {
	res := c.Send(ctx, to, body)
	if !res.Success {
		return "", res.Err
	}
	return res.SID, nil
}

// PrescriptionMessage renders the prescription-received text.
func (c *Client) PrescriptionMessage(name, pcpName, deviceName string) (string, error) {
	return c.templates.Render(notification.PrescriptionReceived, map[string]string{
		"name":        name,
		"pcp_name":    pcpName,
		"device_name": deviceName,
	})
}

// SendPrescriptionNotice tells a patient their signed order arrived.
func (c *Client) SendPrescriptionNotice(ctx context.Context, name, pcpName, phone, deviceName string) *SendResult {
	body, err := c.PrescriptionMessage(name, pcpName, deviceName)
	if err != nil {
		return failed(phone, "Error sending prescription SMS", err)
	}
	return c.Send(ctx, phone, body)
}

// BatchLine is one recipient's outcome within SendMany.
type BatchLine struct {
	Number string      `json:"number"`
	Result *SendResult `json:"result"`
}

// SendMany sends body to every number in a comma or newline separated list,
// one at a time. A failed recipient does not stop the batch.
func (c *Client) SendMany(ctx context.Context, numbers, body string) []BatchLine {
	list := phonelist.Split(numbers)
	out := make([]BatchLine, 0, len(list))
	for _, n := range list {
		out = append(out, BatchLine{Number: n, Result: c.Send(ctx, n, body)})
	}
	return out
}

// ---------------------------------------------------------------------------
// Connection test
// ---------------------------------------------------------------------------

// ConnectionResult reports whether the credentials reach the account.
type ConnectionResult struct {
	Success     bool   `json:"success"`
	AuthFailed  bool   `json:"auth_failed,omitempty"`
	AccountName string `json:"account_name,omitempty"`
	Message     string `json:"message,omitempty"`
	Error       string `json:"error,omitempty"`
}

// TestConnection fetches the account resource.
func (c *Client) TestConnection(ctx context.Context) *ConnectionResult {
	if err := c.cfg.Validate(); err != nil {
		return &ConnectionResult{Error: err.Error()}
	}

	resp, err := c.do(ctx, http.MethodGet, c.accountURL(".json"), nil, c.cfg.Timeouts.Lookup)
	if err != nil {
		return &ConnectionResult{Error: "Connection error: " + err.Error()}
	}

	switch resp.status {
	case http.StatusOK:
		var acct struct {
			FriendlyName string `json:"friendly_name"`
		}
		_ = json.Unmarshal(resp.body, &acct)
		if acct.FriendlyName == "" {
			acct.FriendlyName = "Unknown"
		}
		return &ConnectionResult{
			Success:     true,
			AccountName: acct.FriendlyName,
			Message:     "Twilio API connection successful. Account: " + acct.FriendlyName,
		}
	case http.StatusUnauthorized:
		c.logger.Error().Msg("twilio authentication failed")
		return &ConnectionResult{
			AuthFailed: true,
			Error:      "Authentication failed - check your Account SID and Auth Token",
		}
	default:
		return &ConnectionResult{Error: fmt.Sprintf("API Error: %d - %s", resp.status, truncate(string(resp.body), 200))}
	}
}
