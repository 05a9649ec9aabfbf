// Package twilio sends SMS through the Twilio REST API. Recipients are
// normalised to E.164 and screened with the Lookup API before sending.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/platform/cache"
	"github.com/dmefax/faxdesk/internal/platform/notification"
)

const (
	DefaultBaseURL     = "https://api.twilio.com"
	DefaultLookupURL   = "https://lookups.twilio.com"
	DefaultCountryCode = "1"
)

const maxResponseBytes = 1 << 20

var (
	ErrInvalidPhoneNumber = errors.New("invalid phone number format")
	ErrNotMobile          = errors.New("phone number is not a mobile number")
	ErrNotConfigured      = errors.New("twilio credentials are not configured")
	ErrUnexpectedStatus   = errors.New("twilio api error")
	ErrMissingSID         = errors.New("response did not include a message sid")
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Timeouts bounds each class of call.
type Timeouts struct {
	Lookup time.Duration
	Call   time.Duration
}

// DefaultTimeouts returns 10s lookups and 30s sends.
func DefaultTimeouts() Timeouts {
	return Timeouts{Lookup: 10 * time.Second, Call: 30 * time.Second}
}

// Config holds the account credentials and sender number.
type Config struct {
	BaseURL     string
	LookupURL   string
	AccountSID  string
	AuthToken   string
	FromNumber  string
	CountryCode string
	CarrierTTL  time.Duration
	Timeouts    Timeouts
}

// Validate reports ErrNotConfigured when credentials or sender are missing.
func (c Config) Validate() error {
	if c.AccountSID == "" || c.AuthToken == "" || c.FromNumber == "" {
		return ErrNotConfigured
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	if c.LookupURL == "" {
		c.LookupURL = DefaultLookupURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	c.LookupURL = strings.TrimRight(c.LookupURL, "/")
	if c.CountryCode == "" {
		c.CountryCode = DefaultCountryCode
	}
	if c.CarrierTTL <= 0 {
		c.CarrierTTL = 24 * time.Hour
	}
	d := DefaultTimeouts()
	if c.Timeouts.Lookup <= 0 {
		c.Timeouts.Lookup = d.Lookup
	}
	if c.Timeouts.Call <= 0 {
		c.Timeouts.Call = d.Call
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

// WithCarrierCache caches Lookup results in store for Config.CarrierTTL.
func WithCarrierCache(store cache.Store) Option {
	return func(c *Client) { c.carriers = store }
}

// WithTemplates replaces the template engine used for canned messages.
func WithTemplates(e *notification.TemplateEngine) Option {
	return func(c *Client) { c.templates = e }
}

// Client talks to one Twilio account. It is safe for concurrent use.
type Client struct {
	cfg       Config
	http      *http.Client
	carriers  cache.Store
	templates *notification.TemplateEngine
	logger    zerolog.Logger
}

// NewClient creates a Client. Without WithCarrierCache every IsMobile call
// hits the Lookup API.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:       cfg.withDefaults(),
		http:      &http.Client{},
		templates: notification.NewTemplateEngine(),
		logger:    logger.With().Str("provider", "twilio").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Config returns the effective configuration.
func (c *Client) Config() Config { return c.cfg }

type response struct {
	status int
	body   []byte
}

func (c *Client) do(ctx context.Context, method, u string, form url.Values, timeout time.Duration) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.cfg.AccountSID, c.cfg.AuthToken)
	req.Header.Set("Accept", "application/json")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
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

func (c *Client) accountURL(suffix string) string {
	return c.cfg.BaseURL + "/2010-04-01/Accounts/" + url.PathEscape(c.cfg.AccountSID) + suffix
}

func statusError(resp *response) error {
	return fmt.Errorf("%w: %d - %s", ErrUnexpectedStatus, resp.status, truncate(string(resp.body), 200))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
