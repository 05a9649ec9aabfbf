package apiconfig

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/api-configurations", h.List)
	api.GET("/api-configurations/:service", h.Get)
	api.PUT("/api-configurations/:service", h.Save)
	api.POST("/api-configurations/:service/activate", h.Activate)
	api.POST("/api-configurations/:service/deactivate", h.Deactivate)
	api.DELETE("/api-configurations/:service", h.Delete)
}

func (h *Handler) List(c echo.Context) error {
	items, err := h.svc.List(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	out := make([]*APIConfiguration, 0, len(items))
	for _, a := range items {
		out = append(out, a.Masked())
	}
	return c.JSON(http.StatusOK, out)
}

func (h *Handler) Get(c echo.Context) error {
	a, err := h.svc.Get(c.Request().Context(), c.Param("service"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a.Masked())
}

func (h *Handler) Save(c echo.Context) error {
	var a APIConfiguration
	if err := c.Bind(&a); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	a.Service = c.Param("service")
	if err := h.svc.Save(c.Request().Context(), &a); err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, a.Masked())
}

func (h *Handler) Activate(c echo.Context) error {
	return h.setActive(c, true)
}

func (h *Handler) Deactivate(c echo.Context) error {
	return h.setActive(c, false)
}

func (h *Handler) setActive(c echo.Context, active bool) error {
	if err := h.svc.SetActive(c.Request().Context(), c.Param("service"), active); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.svc.Delete(c.Request().Context(), c.Param("service")); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotConfigured):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrUnknownService), errors.Is(err, ErrMissingField):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
