package dispatchlog

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dmefax/faxdesk/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/dispatch/faxes", h.ListFaxes)
	api.GET("/dispatch/faxes/:id", h.GetFax)
	api.PUT("/dispatch/faxes/:fax_id/status", h.UpdateFaxStatus)
	api.GET("/dispatch/sms", h.ListSMS)
	api.GET("/dispatch/sms/:id", h.GetSMS)
}

func (h *Handler) ListFaxes(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{
		"status":    c.QueryParam("status"),
		"provider":  c.QueryParam("provider"),
		"direction": c.QueryParam("direction"),
		"to_number": c.QueryParam("to_number"),
	}
	items, total, err := h.svc.ListFaxes(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, "/api/v1/dispatch/faxes"))
}

func (h *Handler) GetFax(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	f, err := h.svc.GetFax(c.Request().Context(), id)
	if err != nil {
		return lookupError(err, "fax record not found")
	}
	return c.JSON(http.StatusOK, f)
}

type statusUpdate struct {
	Status string `json:"status"`
	Error  string `json:"error"`
}

func (h *Handler) UpdateFaxStatus(c echo.Context) error {
	var req statusUpdate
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	f, err := h.svc.UpdateFaxStatus(c.Request().Context(), c.Param("fax_id"), req.Status, req.Error)
	switch {
	case errors.Is(err, ErrInvalidStatus):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case err != nil:
		return lookupError(err, "fax record not found")
	}
	return c.JSON(http.StatusOK, f)
}

func (h *Handler) ListSMS(c echo.Context) error {
	pg := pagination.FromContext(c)
	params := map[string]string{
		"status":    c.QueryParam("status"),
		"to_number": c.QueryParam("to_number"),
	}
	items, total, err := h.svc.ListSMS(c.Request().Context(), params, pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg, "/api/v1/dispatch/sms"))
}

func (h *Handler) GetSMS(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	m, err := h.svc.GetSMS(c.Request().Context(), id)
	if err != nil {
		return lookupError(err, "sms record not found")
	}
	return c.JSON(http.StatusOK, m)
}

func lookupError(err error, msg string) error {
	if errors.Is(err, ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, msg)
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
