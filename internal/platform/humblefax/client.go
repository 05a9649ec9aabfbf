// Package humblefax is a client for the HumbleFax REST API: three-step fax
// submission (temporary fax, attachment, send), history and detail lookups,
// resend, cancel and a connectivity self-test.
package humblefax

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.humblefax.com"

const maxResponseBytes = 4 << 20

var (
	ErrNotFound         = errors.New("fax not found")
	ErrInvalidNumber    = errors.New("fax number is not numeric")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrMissingID        = errors.New("response did not include an id")
	ErrCancelFailed     = errors.New("no endpoint accepted the cancellation")
	ErrNotConfigured    = errors.New("humblefax credentials are not configured")
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Timeouts bounds each class of call. A timeout counts as a failed response.
type Timeouts struct {
	Probe  time.Duration
	Call   time.Duration
	Upload time.Duration
}

// DefaultTimeouts returns 10s probes, 30s calls and 60s uploads.
func DefaultTimeouts() Timeouts {
	return Timeouts{Probe: 10 * time.Second, Call: 30 * time.Second, Upload: 60 * time.Second}
}

// Config holds the credentials and sender identity for one account.
type Config struct {
	BaseURL     string
	AccessKey   string
	SecretKey   string
	FromNumber  string
	FromName    string
	CompanyInfo string
	Timeouts    Timeouts
}

// Validate reports ErrNotConfigured when credentials are missing.
func (c Config) Validate() error {
	if c.AccessKey == "" || c.SecretKey == "" {
		return ErrNotConfigured
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.FromName == "" {
		c.FromName = "Medical Office"
	}
	if c.CompanyInfo == "" {
		c.CompanyInfo = "Medical Office"
	}
	d := DefaultTimeouts()
	if c.Timeouts.Probe <= 0 {
		c.Timeouts.Probe = d.Probe
	}
	if c.Timeouts.Call <= 0 {
		c.Timeouts.Call = d.Call
	}
	if c.Timeouts.Upload <= 0 {
		c.Timeouts.Upload = d.Upload
	}
	return c
}

// ---------------------------------------------------------------------------
// Client
// ---------------------------------------------------------------------------

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to one HumbleFax account. It is safe for concurrent use.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a Client. Per-call deadlines come from cfg.Timeouts.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		http:   &http.Client{},
		logger: logger.With().Str("provider", "humblefax").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

type request struct {
	method      string
	path        string
	query       url.Values
	body        []byte
	contentType string
	timeout     time.Duration
}

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, r request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	u := c.cfg.BaseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccessKey, c.cfg.SecretKey)
	req.Header.Set("Accept", "application/json")
	if r.contentType != "" {
		req.Header.Set("Content-Type", r.contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any) (*response, error) {
	var data []byte
	if payload != nil {
		var err error
		if data, err = json.Marshal(payload); err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
	}
	return c.do(ctx, request{
		method:      http.MethodPost,
		path:        path,
		body:        data,
		contentType: "application/json",
		timeout:     c.cfg.Timeouts.Call,
	})
}

func statusError(resp *response) error {
	return fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, resp.status, truncate(string(resp.body), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
