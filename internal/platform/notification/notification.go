// Package notification renders SMS message templates and keeps a record of
// messages sent through an SMSSender, with retry and Echo HTTP handlers.
package notification

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// PrescriptionReceived is the built-in template sent when a signed order
// comes back from the physician.
const PrescriptionReceived = "prescription-received"

// Status values for a Notification.
const (
	StatusPending = "pending"
	StatusSent    = "sent"
	StatusFailed  = "failed"
)

// ---------------------------------------------------------------------------
// Notification
// ---------------------------------------------------------------------------

// Notification is a single outbound SMS.
type Notification struct {
	ID           string            `json:"id"`
	Recipient    string            `json:"recipient"`
	Body         string            `json:"body"`
	TemplateID   string            `json:"template_id,omitempty"`
	TemplateData map[string]string `json:"template_data,omitempty"`
	Status       string            `json:"status"`
	ProviderID   string            `json:"provider_id,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	SentAt       *time.Time        `json:"sent_at,omitempty"`
	Error        string            `json:"error,omitempty"`
}

// ---------------------------------------------------------------------------
// Sender
// ---------------------------------------------------------------------------

// SMSSender delivers one message and returns the provider message id.
type SMSSender interface {
	SendSMS(ctx context.Context, to, body string) (string, error)
}

// ---------------------------------------------------------------------------
// Template Engine
// ---------------------------------------------------------------------------

// Template is a reusable message body with {{key}} placeholders.
type Template struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Body string `json:"body"`
}

// TemplateEngine holds templates and renders them with data.
type TemplateEngine struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewTemplateEngine creates a TemplateEngine with the built-in templates.
func NewTemplateEngine() *TemplateEngine {
	e := &TemplateEngine{templates: make(map[string]*Template)}
	e.RegisterTemplate(Template{
		ID:   PrescriptionReceived,
		Name: "Prescription Received",
		Body: "Hey! {{name}}! Your Signed Prescription Order has been Received from Doctor {{pcp_name}} for {{device_name}}. There is no Out-Of-Pocket Expense. Everything will be covered by Medicare.",
	})
	return e
}

// RegisterTemplate adds or replaces a template.
func (e *TemplateEngine) RegisterTemplate(t Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[t.ID] = &t
}

// Templates lists registered templates sorted by id.
func (e *TemplateEngine) Templates() []Template {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Template, 0, len(e.templates))
	for _, t := range e.templates {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func (e *TemplateEngine) Render(templateID string, data map[string]string) (string, error) {
	e.mu.RLock()
	t, ok := e.templates[templateID]
	e.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("template %q not found", templateID)
	}

	body := t.Body
	for k, v := range data {
		body = strings.ReplaceAll(body, "{{"+k+"}}", v)
	}
	return body, nil
}

// ---------------------------------------------------------------------------
// Mock Sender (test double)
// ---------------------------------------------------------------------------

// SMSCall records a single call to SendSMS.
type SMSCall struct {
	To   string
	Body string
}

// MockSMSSender is a test double for SMSSender.
type MockSMSSender struct {
	mu         sync.Mutex
	calls      []SMSCall
	ShouldFail bool
	FailError  string
}

// SendSMS records the call and optionally returns an error.
func (m *MockSMSSender) SendSMS(_ context.Context, to, body string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, SMSCall{To: to, Body: body})
	if m.ShouldFail {
		return "", errors.New(m.FailError)
	}
	return fmt.Sprintf("SM%04d", len(m.calls)), nil
}

// Calls returns a copy of recorded calls.
func (m *MockSMSSender) Calls() []SMSCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SMSCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// ---------------------------------------------------------------------------
// Manager
// ---------------------------------------------------------------------------

// Manager sends messages and keeps them in memory for lookup and retry.
type Manager struct {
	sender    SMSSender
	templates *TemplateEngine

	mu            sync.RWMutex
	notifications map[string]*Notification
	order         []string
}

// NewManager constructs a Manager.
func NewManager(sender SMSSender, tpl *TemplateEngine) *Manager {
	return &Manager{
		sender:        sender,
		templates:     tpl,
		notifications: make(map[string]*Notification),
	}
}

// Templates returns the manager's template engine.
func (m *Manager) Templates() *TemplateEngine { return m.templates }

// Send delivers body to recipient. The returned notification records the
// outcome even when err is non-nil.
func (m *Manager) Send(ctx context.Context, recipient, body string) (*Notification, error) {
	n := &Notification{
		ID:        uuid.New().String(),
		Recipient: recipient,
		Body:      body,
		Status:    StatusPending,
		CreatedAt: time.Now().UTC(),
	}
	err := m.deliver(ctx, n)

	m.mu.Lock()
	m.notifications[n.ID] = n
	m.order = append(m.order, n.ID)
	m.mu.Unlock()

	return n, err
}

// SendFromTemplate renders a template and sends the result.
func (m *Manager) SendFromTemplate(ctx context.Context, templateID string, data map[string]string, recipient string) (*Notification, error) {
	body, err := m.templates.Render(templateID, data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}
	n, err := m.Send(ctx, recipient, body)
	n.TemplateID = templateID
	n.TemplateData = data
	return n, err
}

func (m *Manager) deliver(ctx context.Context, n *Notification) error {
	id, err := m.sender.SendSMS(ctx, n.Recipient, n.Body)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		n.Status = StatusFailed
		n.Error = err.Error()
		return err
	}
	now := time.Now().UTC()
	n.Status = StatusSent
	n.ProviderID = id
	n.SentAt = &now
	n.Error = ""
	return nil
}

// Get retrieves a notification by ID.
func (m *Manager) Get(_ context.Context, id string) (*Notification, error) {
	m.mu.RLock()
	n, ok := m.notifications[id]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("notification %q not found", id)
	}
	return n, nil
}

// Recent returns up to limit notifications, newest first, optionally
// filtered by recipient.
func (m *Manager) Recent(_ context.Context, recipient string, limit int) []*Notification {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*Notification
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.notifications[m.order[i]]
		if recipient == "" || n.Recipient == recipient {
			out = append(out, n)
		}
	}
	return out
}

// Retry re-sends a failed notification.
func (m *Manager) Retry(ctx context.Context, id string) error {
	n, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	m.mu.RLock()
	status := n.Status
	m.mu.RUnlock()
	if status != StatusFailed {
		return fmt.Errorf("notification %q is not in failed status (current: %s)", id, status)
	}
	return m.deliver(ctx, n)
}

// Stats returns counts of notifications grouped by status.
func (m *Manager) Stats(_ context.Context) map[string]int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := make(map[string]int)
	for _, n := range m.notifications {
		stats[n.Status]++
	}
	return stats
}

// ---------------------------------------------------------------------------
// HTTP Handler
// ---------------------------------------------------------------------------

// Handler exposes notification operations over HTTP via Echo.
type Handler struct {
	manager *Manager
}

// NewHandler creates a Handler.
func NewHandler(mgr *Manager) *Handler {
	return &Handler{manager: mgr}
}

// RegisterRoutes registers the notification routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/notifications/templates", h.HandleTemplates)
	g.POST("/notifications/send-template", h.HandleSendTemplate)
	g.GET("/notifications/stats", h.HandleStats)
	g.GET("/notifications/:id", h.HandleGet)
	g.GET("/notifications", h.HandleList)
	g.POST("/notifications/:id/retry", h.HandleRetry)
}

type sendTemplateRequest struct {
	TemplateID string            `json:"template_id"`
	Recipient  string            `json:"recipient"`
	Data       map[string]string `json:"data"`
}

// HandleSendTemplate handles POST /notifications/send-template.
func (h *Handler) HandleSendTemplate(c echo.Context) error {
	var req sendTemplateRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "invalid request body"})
	}
	if req.Recipient == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "recipient is required"})
	}

	n, err := h.manager.SendFromTemplate(c.Request().Context(), req.TemplateID, req.Data, req.Recipient)
	if err != nil && n == nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusCreated, n)
}

// HandleTemplates handles GET /notifications/templates.
func (h *Handler) HandleTemplates(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Templates().Templates())
}

// HandleGet handles GET /notifications/:id.
func (h *Handler) HandleGet(c echo.Context) error {
	n, err := h.manager.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, n)
}

// HandleList handles GET /notifications?recipient=...
func (h *Handler) HandleList(c echo.Context) error {
	list := h.manager.Recent(c.Request().Context(), c.QueryParam("recipient"), 100)
	return c.JSON(http.StatusOK, list)
}

// HandleRetry handles POST /notifications/:id/retry.
func (h *Handler) HandleRetry(c echo.Context) error {
	id := c.Param("id")
	if err := h.manager.Retry(c.Request().Context(), id); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	n, _ := h.manager.Get(c.Request().Context(), id)
	return c.JSON(http.StatusOK, n)
}

// HandleStats handles GET /notifications/stats.
func (h *Handler) HandleStats(c echo.Context) error {
	return c.JSON(http.StatusOK, h.manager.Stats(c.Request().Context()))
}
