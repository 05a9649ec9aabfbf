// Package telnyx sends faxes through the Telnyx v2 API from a publicly
// reachable media URL.
package telnyx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/pkg/phonelist"
)

// DefaultBaseURL is the production API root.
const DefaultBaseURL = "https://api.telnyx.com"

const maxResponseBytes = 1 << 20

var (
	ErrNotConfigured    = errors.New("telnyx credentials are not configured")
	ErrUnexpectedStatus = errors.New("unexpected response status")
	ErrMissingID        = errors.New("response did not include an id")
	ErrMissingMediaURL  = errors.New("media url is required")
)

// Config holds the API key and the fax application identity.
type Config struct {
	BaseURL      string
	APIKey       string
	ConnectionID string
	FromNumber   string
	Timeout      time.Duration
}

// Validate reports ErrNotConfigured when any field needed to send is empty.
func (c Config) Validate() error {
	if c.APIKey == "" || c.ConnectionID == "" || c.FromNumber == "" {
		return ErrNotConfigured
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// Client talks to one Telnyx account.
type Client struct {
	cfg    Config
	http   *http.Client
	logger zerolog.Logger
}

// NewClient creates a Client.
func NewClient(cfg Config, logger zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		cfg:    cfg.withDefaults(),
		http:   &http.Client{},
		logger: logger.With().Str("provider", "telnyx").Logger(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Fax is the subset of the fax resource the desk tracks.
type Fax struct {
	ID       string `json:"id"`
	To       string `json:"to"`
	From     string `json:"from"`
	MediaURL string `json:"media_url"`
	Status   string `json:"status,omitempty"`
}

type faxRequest struct {
	ConnectionID string `json:"connection_id"`
	To           string `json:"to"`
	From         string `json:"from"`
	MediaURL     string `json:"media_url"`
}

// SendFax queues a fax of mediaURL to the given number. Success is a 201
// carrying an id either under data or at the top level.
func (c *Client) SendFax(ctx context.Context, to, mediaURL string) (*Fax, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	if mediaURL == "" {
		return nil, ErrMissingMediaURL
	}

	status, body, err := c.post(ctx, "/v2/faxes", faxRequest{
		ConnectionID: c.cfg.ConnectionID,
		To:           to,
		From:         c.cfg.FromNumber,
		MediaURL:     mediaURL,
	})
	if err != nil {
		return nil, fmt.Errorf("send fax: %w", err)
	}
	if status != http.StatusCreated {
		return nil, fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, status, truncate(string(body), 200))
	}

	var env struct {
		Data struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"data"`
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("decode fax: %w", err)
	}
	fax := &Fax{To: to, From: c.cfg.FromNumber, MediaURL: mediaURL, ID: env.Data.ID, Status: env.Data.Status}
	if fax.ID == "" {
		fax.ID, fax.Status = env.ID, env.Status
	}
	if fax.ID == "" {
		return nil, ErrMissingID
	}

	c.logger.Info().Str("to", to).Str("fax_id", fax.ID).Msg("fax queued")
	return fax, nil
}

// BatchLine is one number's outcome within SendMany.
type BatchLine struct {
	Number  string `json:"number"`
	Success bool   `json:"success"`
	FaxID   string `json:"fax_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// String renders the line the way operators read batch reports.
func (l BatchLine) String() string {
	if l.Success {
		return fmt.Sprintf("✓ %s: Success (Fax ID: %s)", l.Number, l.FaxID)
	}
	return fmt.Sprintf("✗ %s: Failed - %s", l.Number, l.Error)
}

// SendMany faxes mediaURL to every number in a comma or newline separated
// list, sequentially. A failure on one number does not stop the rest.
func (c *Client) SendMany(ctx context.Context, numbers, mediaURL string) []BatchLine {
	list := phonelist.Split(numbers)
	out := make([]BatchLine, 0, len(list))
	for _, n := range list {
		line := BatchLine{Number: n}
		fax, err := c.SendFax(ctx, n, mediaURL)
		if err != nil {
			c.logger.Warn().Err(err).Str("to", n).Msg("batch fax failed")
			line.Error = err.Error()
		} else {
			line.Success = true
			line.FaxID = fax.ID
		}
		out = append(out, line)
	}
	return out
}

// RegisterMedia stores a remote file in Telnyx media storage under name
// and returns the stored media name.
func (c *Client) RegisterMedia(ctx context.Context, mediaURL, name string) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	if mediaURL == "" {
		return "", ErrMissingMediaURL
	}
	payload := map[string]string{"media_url": mediaURL}
	if name != "" {
		payload["media_name"] = name
	}
	status, body, err := c.post(ctx, "/v2/media", payload)
	if err != nil {
		return "", fmt.Errorf("register media: %w", err)
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return "", fmt.Errorf("%w: %d: %s", ErrUnexpectedStatus, status, truncate(string(body), 200))
	}
	var env struct {
		Data struct {
			MediaName string `json:"media_name"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode media: %w", err)
	}
	if env.Data.MediaName == "" {
		return "", ErrMissingID
	}
	return env.Data.MediaName, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(data))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
