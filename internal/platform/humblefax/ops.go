package humblefax

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// ---------------------------------------------------------------------------
// Resend
// ---------------------------------------------------------------------------

// ResendResult is the outcome of Resend.
type ResendResult struct {
	Success    bool   `json:"success"`
	OriginalID string `json:"original_id"`
	NewFaxID   string `json:"new_fax_id,omitempty"`
	Phase      Phase  `json:"phase,omitempty"`
	Message    string `json:"message"`
	Error      string `json:"error,omitempty"`

	Err error `json:"-"`
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

// Resend replays a fax to its original recipient. It creates and sends a
// new temporary fax without uploading an attachment, relying on the
// provider to keep the original document.
func (c *Client) Resend(ctx context.Context, id string) *ResendResult {
	res := &ResendResult{OriginalID: id}
	fail := func(phase Phase, msg string, err error) *ResendResult {
		res.Phase = phase
		res.Message = msg
		res.Error = err.Error()
		res.Err = err
		c.logger.Error().Err(err).Str("fax_id", id).Str("phase", string(phase)).Msg("resend failed")
		return res
	}

	orig, err := c.Detail(ctx, id)
	if err != nil {
		return fail("", "Original fax not found", err)
	}

	env, err := c.resendEnvelope(orig)
	if err != nil {
		return fail(PhaseCreate, "Failed to create resend fax", &SubmissionError{Phase: PhaseCreate, Err: err})
	}
	handle, err := c.createEnvelope(ctx, env)
	if err != nil {
		return fail(PhaseCreate, "Failed to create resend fax", &SubmissionError{Phase: PhaseCreate, Err: err})
	}
	newID, err := c.SendEnvelope(ctx, handle)
	if err != nil {
		return fail(PhaseSend, "Failed to send resend fax", &SubmissionError{Phase: PhaseSend, Err: err})
	}

	res.Success = true
	res.NewFaxID = newID
	res.Message = "Fax resent successfully. New ID: " + newID
	c.logger.Info().Str("fax_id", id).Str("new_fax_id", newID).Msg("fax resent")
	return res
}

func (c *Client) resendEnvelope(orig *Fax) (Envelope, error) {
	from, err := ParseNumber(orDefault(orig.From, c.cfg.FromNumber))
	if err != nil {
		return Envelope{}, fmt.Errorf("sender: %w", err)
	}
	to, err := ParseNumber(orig.To)
	if err != nil {
		return Envelope{}, fmt.Errorf("recipient: %w", err)
	}
	return Envelope{
		ToName:            "Resend Recipient",
		FromName:          c.cfg.FromName,
		Subject:           "Resend: " + orDefault(orig.Subject, "Medical Order"),
		Message:           "Resending: " + orDefault(orig.Message, "Medical Order"),
		CompanyInfo:       orDefault(orig.CompanyInfo, c.cfg.CompanyInfo),
		FromNumber:        from,
		Recipients:        []int64{to},
		Resolution:        orDefault(orig.Resolution, "Fine"),
		PageSize:          orDefault(orig.PageSize, "Letter"),
		IncludeCoversheet: true,
	}, nil
}

// ---------------------------------------------------------------------------
// Connectivity
// ---------------------------------------------------------------------------

// ConnectionResult is the outcome of TestConnection.
type ConnectionResult struct {
	Success    bool     `json:"success"`
	AuthFailed bool     `json:"auth_failed,omitempty"`
	Endpoints  []string `json:"endpoints,omitempty"`
	Message    string   `json:"message,omitempty"`
	Error      string   `json:"error,omitempty"`
}

var connectionPaths = []string{"/sentFaxes", "/incomingFaxes", "/account"}

// TestConnection probes read-only endpoints. Any 401 reports AuthFailed;
// otherwise one 200 is enough for success.
func (c *Client) TestConnection(ctx context.Context) *ConnectionResult {
	pr := probeSpec{op: "test_connection", method: http.MethodGet, timeout: c.cfg.Timeouts.Probe, classify: authClassifier}

	var working []string
	for _, p := range connectionPaths {
		a := c.try(ctx, pr, p)
		switch {
		case a.outcome == outcomeOK:
			working = append(working, p)
		case a.status == http.StatusUnauthorized:
			c.logger.Error().Str("endpoint", p).Msg("authentication failed")
			return &ConnectionResult{
				AuthFailed: true,
				Error:      "Authentication failed - check your Access Key and Secret Key",
			}
		case a.outcome == outcomeFatal:
			return &ConnectionResult{Error: "Connection error: " + a.err.Error()}
		default:
			c.logger.Info().Err(a.err).Int("status", a.status).Str("endpoint", p).Msg("endpoint not accessible")
		}
	}

	if len(working) == 0 {
		return &ConnectionResult{Error: "No accessible endpoints found"}
	}
	return &ConnectionResult{
		Success:   true,
		Endpoints: working,
		Message:   "API connection successful. Working endpoints: " + strings.Join(working, ", "),
	}
}

// ---------------------------------------------------------------------------
// Cancel, status and account
// ---------------------------------------------------------------------------

var errMalformed = errors.New("malformed response")

var faxPaths = []string{"/api/faxes/%s", "/api/v1/faxes/%s", "/faxes/%s", "/v1/faxes/%s"}

var accountPaths = []string{"/api/account", "/api/v1/account", "/account", "/v1/account"}

func expand(templates []string, id string) []string {
	out := make([]string, len(templates))
	for i, t := range templates {
		out[i] = fmt.Sprintf(t, url.PathEscape(id))
	}
	return out
}

// Cancel deletes a pending fax through the first endpoint that accepts it.
func (c *Client) Cancel(ctx context.Context, id string) error {
	a := c.firstOK(ctx, probeSpec{op: "cancel", method: http.MethodDelete, paths: expand(faxPaths, id), timeout: c.cfg.Timeouts.Call})
	switch a.outcome {
	case outcomeOK:
		c.logger.Info().Str("fax_id", id).Str("endpoint", a.path).Msg("fax cancelled")
		return nil
	case outcomeFatal:
		return fmt.Errorf("cancel fax %s: %w", id, a.err)
	default:
		return fmt.Errorf("%w: %s", ErrCancelFailed, id)
	}
}

// Status returns the raw status document for a fax.
func (c *Client) Status(ctx context.Context, id string) (map[string]any, error) {
	return c.fetchObject(ctx, "status", expand(faxPaths, id))
}

// Account returns the raw account document.
func (c *Client) Account(ctx context.Context) (map[string]any, error) {
	return c.fetchObject(ctx, "account", accountPaths)
}

func (c *Client) fetchObject(ctx context.Context, op string, paths []string) (map[string]any, error) {
	a := c.firstOK(ctx, probeSpec{op: op, method: http.MethodGet, paths: paths, timeout: c.cfg.Timeouts.Call})
	if a.outcome == outcomeFatal {
		return nil, fmt.Errorf("%s: %w", op, a.err)
	}
	if a.outcome != outcomeOK {
		return nil, fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	m, ok := decodeObject(a.body)
	if !ok {
		return nil, fmt.Errorf("%s: %w", op, errMalformed)
	}
	return m, nil
}
