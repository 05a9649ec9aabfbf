package fax

import (
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/dmefax/faxdesk/internal/platform/humblefax"
	"github.com/dmefax/faxdesk/internal/platform/telnyx"
	"github.com/dmefax/faxdesk/pkg/pagination"
)

// maxDocumentBytes bounds a single uploaded fax document.
const maxDocumentBytes = 25 << 20

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/fax")
	g.GET("/history", h.History)
	g.GET("/account", h.Account)
	g.POST("/test-connection", h.TestConnection)
	g.POST("/send", h.Send)
	g.POST("/media", h.SendMedia)
	g.POST("/media/bulk", h.SendMediaMany)
	g.POST("/media/register", h.RegisterMedia)
	g.GET("/:id", h.Detail)
	g.GET("/:id/status", h.Status)
	g.POST("/:id/resend", h.Resend)
	g.POST("/:id/cancel", h.Cancel)
}

// History handles GET /fax/history?direction=&limit=&offset=.
func (h *Handler) History(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.History(c.Request().Context(), c.QueryParam("direction"), pg)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, "/api/v1/fax/history"))
}

func (h *Handler) Detail(c echo.Context) error {
	f, err := h.svc.Detail(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) Status(c echo.Context) error {
	doc, err := h.svc.Status(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
}

func (h *Handler) Account(c echo.Context) error {
	doc, err := h.svc.Account(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, doc)
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

// Send handles POST /fax/send: multipart fields to, patient_name,
// device_type and file.
func (h *Handler) Send(c echo.Context) error {
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	data, err := io.ReadAll(io.LimitReader(src, maxDocumentBytes))
	src.Close()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	res, err := h.svc.Send(c.Request().Context(), SendInput{
		To:          c.FormValue("to"),
		Filename:    fh.Filename,
		Data:        data,
		PatientName: c.FormValue("patient_name"),
		DeviceType:  c.FormValue("device_type"),
	})
	if err != nil {
		return httpError(err)
	}
	if !res.Success {
		return c.JSON(http.StatusBadGateway, res)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) Resend(c echo.Context) error {
	res, err := h.svc.Resend(c.Request().Context(), c.Param("id"))
	if err != nil {
		return httpError(err)
	}
	switch {
	case res.Success:
		return c.JSON(http.StatusCreated, res)
	case errors.Is(res.Err, humblefax.ErrNotFound):
		return c.JSON(http.StatusNotFound, res)
	default:
		return c.JSON(http.StatusBadGateway, res)
	}
}

func (h *Handler) Cancel(c echo.Context) error {
	id := c.Param("id")
	if err := h.svc.Cancel(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

type mediaRequest struct {
	To         string `json:"to" form:"to"`
	FaxNumbers string `json:"fax_numbers" form:"fax_numbers"`
	MediaURL   string `json:"media_url" form:"media_url"`
	MediaName  string `json:"media_name" form:"media_name"`
}

// SendMedia handles POST /fax/media with {to, media_url}.
func (h *Handler) SendMedia(c echo.Context) error {
	var req mediaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.SendMedia(c.Request().Context(), req.To, req.MediaURL)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, f)
}

type batchResponse struct {
	Lines     []string           `json:"lines"`
	Results   []telnyx.BatchLine `json:"results"`
	Succeeded int                `json:"succeeded"`
	Failed    int                `json:"failed"`
}

// SendMediaMany handles POST /fax/media/bulk with {fax_numbers, media_url}.
// Per-number failures are reported in the body, not as an error status.
func (h *Handler) SendMediaMany(c echo.Context) error {
	var req mediaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	lines, err := h.svc.SendMediaMany(c.Request().Context(), req.FaxNumbers, req.MediaURL)
	if err != nil {
		return httpError(err)
	}
	resp := batchResponse{Results: lines, Lines: make([]string, 0, len(lines))}
	for _, l := range lines {
		resp.Lines = append(resp.Lines, l.String())
		if l.Success {
			resp.Succeeded++
		} else {
			resp.Failed++
		}
	}
	return c.JSON(http.StatusOK, resp)
}

// RegisterMedia handles POST /fax/media/register with {media_url, media_name}.
func (h *Handler) RegisterMedia(c echo.Context) error {
	var req mediaRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	name, err := h.svc.RegisterMedia(c.Request().Context(), req.MediaURL, req.MediaName)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, map[string]string{"media_name": name})
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidDirection),
		errors.Is(err, ErrMissingNumber),
		errors.Is(err, ErrMissingDocument),
		errors.Is(err, telnyx.ErrMissingMediaURL):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, humblefax.ErrNotConfigured), errors.Is(err, telnyx.ErrNotConfigured):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, humblefax.ErrCancelFailed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
}
