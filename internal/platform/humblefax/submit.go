package humblefax

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strconv"
	"strings"
)

// DocxMIMEType is the content type used for uploaded attachments.
const DocxMIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"

// ---------------------------------------------------------------------------
// Submission state machine
// ---------------------------------------------------------------------------

// State is the progress of a three-step submission.
type State int

const (
	StateInit State = iota
	StateCreated
	StateUploaded
	StateSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateCreated:
		return "created"
	case StateUploaded:
		return "uploaded"
	case StateSent:
		return "sent"
	default:
		return "failed"
	}
}

// Phase names the network step a submission failed in.
type Phase string

const (
	PhaseCreate Phase = "create"
	PhaseUpload Phase = "upload"
	PhaseSend   Phase = "send"
)

// SubmissionError reports which phase of a submission failed.
type SubmissionError struct {
	Phase Phase
	Err   error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("fax submission failed during %s: %v", e.Phase, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

var errIllegalTransition = errors.New("illegal submission transition")

// Submission tracks one fax through Init -> Created -> Uploaded -> Sent, or
// into Failed from any non-terminal state. It never moves backwards.
type Submission struct {
	State   State
	Handle  string
	FaxID   string
	Failure *SubmissionError
}

func (s *Submission) advance(to State) error {
	if s.State == StateFailed || s.State == StateSent || to != s.State+1 {
		return fmt.Errorf("%w: %s -> %s", errIllegalTransition, s.State, to)
	}
	s.State = to
	return nil
}

func (s *Submission) created(handle string) error {
	if err := s.advance(StateCreated); err != nil {
		return err
	}
	s.Handle = handle
	return nil
}

func (s *Submission) uploaded() error {
	return s.advance(StateUploaded)
}

func (s *Submission) sent(faxID string) error {
	if err := s.advance(StateSent); err != nil {
		return err
	}
	s.FaxID = faxID
	return nil
}

func (s *Submission) fail(phase Phase, err error) {
	if s.State == StateFailed || s.State == StateSent {
		return
	}
	s.State = StateFailed
	s.Failure = &SubmissionError{Phase: phase, Err: err}
}

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope is the temporary fax payload.
type Envelope struct {
	ToName            string  `json:"toName"`
	FromName          string  `json:"fromName"`
	Subject           string  `json:"subject"`
	Message           string  `json:"message"`
	CompanyInfo       string  `json:"companyInfo"`
	FromNumber        int64   `json:"fromNumber"`
	Recipients        []int64 `json:"recipients"`
	Resolution        string  `json:"resolution"`
	PageSize          string  `json:"pageSize"`
	IncludeCoversheet bool    `json:"includeCoversheet"`
}

// ParseNumber strips '+' and parses the remaining digits.
func ParseNumber(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(strings.ReplaceAll(s, "+", "")), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidNumber, s)
	}
	return n, nil
}

func (c *Client) newEnvelope(to, displayName string) (Envelope, error) {
	from, err := ParseNumber(c.cfg.FromNumber)
	if err != nil {
		return Envelope{}, fmt.Errorf("sender: %w", err)
	}
	recipient, err := ParseNumber(to)
	if err != nil {
		return Envelope{}, fmt.Errorf("recipient: %w", err)
	}

	env := Envelope{
		ToName:            "Recipient",
		FromName:          c.cfg.FromName,
		Subject:           "Medical Order",
		Message:           "Please find attached medical order",
		CompanyInfo:       c.cfg.CompanyInfo,
		FromNumber:        from,
		Recipients:        []int64{recipient},
		Resolution:        "Fine",
		PageSize:          "Letter",
		IncludeCoversheet: true,
	}
	if displayName != "" {
		env.ToName = displayName
		env.Subject = "Medical Order - " + displayName
		env.Message = "Please find attached medical order for " + displayName
	}
	return env, nil
}

// CreateEnvelope creates a temporary fax and returns its handle.
func (c *Client) CreateEnvelope(ctx context.Context, to, displayName string) (string, error) {
	env, err := c.newEnvelope(to, displayName)
	if err != nil {
		return "", err
	}
	return c.createEnvelope(ctx, env)
}

func (c *Client) createEnvelope(ctx context.Context, env Envelope) (string, error) {
	resp, err := c.postJSON(ctx, "/tmpFax", env)
	if err != nil {
		return "", fmt.Errorf("create temporary fax: %w", err)
	}
	if resp.status != http.StatusOK {
		return "", fmt.Errorf("create temporary fax: %w", statusError(resp))
	}
	m, _ := decodeObject(resp.body)
	handle := scalar(dig(m, "data", "tmpFax", "id"))
	if handle == "" {
		return "", fmt.Errorf("create temporary fax: %w", ErrMissingID)
	}
	return handle, nil
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// UploadAttachment uploads data to a temporary fax as a multipart part
// named after filename.
func (c *Client) UploadAttachment(ctx context.Context, handle string, data []byte, filename string) error {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	name := quoteEscaper.Replace(filename)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, name, name))
	h.Set("Content-Type", DocxMIMEType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return fmt.Errorf("build attachment: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("build attachment: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("build attachment: %w", err)
	}

	resp, err := c.do(ctx, request{
		method:      http.MethodPost,
		path:        "/attachment/" + handle,
		body:        buf.Bytes(),
		contentType: mw.FormDataContentType(),
		timeout:     c.cfg.Timeouts.Upload,
	})
	if err != nil {
		return fmt.Errorf("upload attachment: %w", err)
	}
	if resp.status != http.StatusOK {
		return fmt.Errorf("upload attachment: %w", statusError(resp))
	}
	return nil
}

// SendEnvelope triggers delivery of a temporary fax and returns the sent
// fax id. A 200 without an id is a failure.
func (c *Client) SendEnvelope(ctx context.Context, handle string) (string, error) {
	resp, err := c.postJSON(ctx, "/tmpFax/"+handle+"/send", nil)
	if err != nil {
		return "", fmt.Errorf("send temporary fax: %w", err)
	}
	if resp.status != http.StatusOK {
		return "", fmt.Errorf("send temporary fax: %w", statusError(resp))
	}
	m, _ := decodeObject(resp.body)
	id := scalar(dig(m, "data", "sentFax", "id"))
	if id == "" {
		return "", fmt.Errorf("send temporary fax: %w", ErrMissingID)
	}
	return id, nil
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

// SendRequest is one document to fax.
type SendRequest struct {
	To          string
	Data        []byte
	Filename    string
	DisplayName string
}

// SendResult is the outcome of Send. On failure Phase names the failed step.
type SendResult struct {
	Success bool   `json:"success"`
	FaxID   string `json:"fax_id,omitempty"`
	Handle  string `json:"tmp_fax_id,omitempty"`
	State   string `json:"state"`
	Phase   Phase  `json:"phase,omitempty"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`

	Err error `json:"-"`
}

// Send runs create, upload and send in order, stopping at the first failure.
func (c *Client) Send(ctx context.Context, req SendRequest) *SendResult {
	sub := c.Submit(ctx, req)
	res := &SendResult{Handle: sub.Handle, State: sub.State.String()}
	if sub.Failure != nil {
		res.Phase = sub.Failure.Phase
		res.Error = sub.Failure.Error()
		res.Message = "Failed to send fax"
		res.Err = sub.Failure
		return res
	}
	res.Success = true
	res.FaxID = sub.FaxID
	res.Message = "Fax sent successfully"
	return res
}

// Submit drives the submission state machine and returns its final state.
// A transition the machine rejects fails the submission like a provider
// error in that phase.
func (c *Client) Submit(ctx context.Context, req SendRequest) *Submission {
	sub := &Submission{}
	log := c.logger.With().Str("to", req.To).Str("filename", req.Filename).Logger()
	abort := func(phase Phase, err error) *Submission {
		sub.fail(phase, err)
		log.Error().Err(err).Str("phase", string(phase)).Str("handle", sub.Handle).Msg("fax submission failed")
		return sub
	}

	handle, err := c.CreateEnvelope(ctx, req.To, req.DisplayName)
	if err == nil {
		err = sub.created(handle)
	}
	if err != nil {
		return abort(PhaseCreate, err)
	}

	err = c.UploadAttachment(ctx, handle, req.Data, req.Filename)
	if err == nil {
		err = sub.uploaded()
	}
	if err != nil {
		return abort(PhaseUpload, err)
	}

	faxID, err := c.SendEnvelope(ctx, handle)
	if err == nil {
		err = sub.sent(faxID)
	}
	if err != nil {
		return abort(PhaseSend, err)
	}

	log.Info().Str("fax_id", faxID).Msg("fax sent")
	return sub
}
