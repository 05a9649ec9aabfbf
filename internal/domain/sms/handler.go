package sms

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dmefax/faxdesk/internal/platform/twilio"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/sms")
	g.POST("/send", h.Send)
	g.POST("/bulk", h.SendMany)
	g.POST("/prescription", h.SendPrescription)
	g.POST("/test-connection", h.TestConnection)
}

type sendRequest struct {
	To           string `json:"to" form:"to"`
	PhoneNumbers string `json:"phone_numbers" form:"phone_numbers"`
	Message      string `json:"message" form:"message"`
}

func (h *Handler) Send(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.Send(c.Request().Context(), req.To, req.Message)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(resultStatus(res), res)
}

type batchResponse struct {
	Lines     []string           `json:"lines"`
	Results   []twilio.BatchLine `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// SendMany handles POST /sms/bulk. Per-recipient failures are reported in
// the body, not as an error status.
func (h *Handler) SendMany(c echo.Context) error {
	var req sendRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	lines, err := h.svc.SendMany(c.Request().Context(), req.PhoneNumbers, req.Message)
	if err != nil {
		return httpError(err)
	}
	resp := batchResponse{Results: lines, Lines: make([]string, 0, len(lines))}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, lineText(l))
		if l.Result.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func lineText(l twilio.BatchLine) string {
	if l.Result.Success {
		return "✓ " + l.Number + ": Success (SID: " + l.Result.SID + ")"
	}
	return "✗ " + l.Number + ": Failed - " + l.Result.Error
}

func (h *Handler) SendPrescription(c echo.Context) error {
	var req Prescription
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.SendPrescription(c.Request().Context(), req)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(resultStatus(res), res)
}

func (h *Handler) TestConnection(c echo.Context) error {
	res, err := h.svc.TestConnection(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	if !res.Success {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusOK, res)
}

// resultStatus maps a send outcome to a response code. Recipient problems
// are the caller's fault; anything else came from the provider.
func resultStatus(res *twilio.SendResult) int {
	switch {
	case res.Success:
		return http.StatusCreated
	case errors.Is(res.Err, twilio.ErrInvalidPhoneNumber), errors.Is(res.Err, twilio.ErrNotMobile):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrMissingRecipient), errors.Is(err, ErrMissingMessage), errors.Is(err, ErrMissingName):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, twilio.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
