package bulk

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"path"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/dmefax/faxdesk/internal/domain/device"
	"github.com/dmefax/faxdesk/internal/domain/records"
	"github.com/dmefax/faxdesk/internal/domain/render"
	"github.com/dmefax/faxdesk/internal/platform/blobstore"
)

// Factory returns an Orchestrator able to run mode. Dispatch orchestrators
// are built per request so credential changes apply immediately.
type Factory func(ctx context.Context, mode Mode) (*Orchestrator, error)

type Handler struct {
	orchestrators Factory
	artifacts     blobstore.Store
	logger        zerolog.Logger
}

func NewHandler(f Factory, artifacts blobstore.Store, logger zerolog.Logger) *Handler {
	return &Handler{orchestrators: f, artifacts: artifacts, logger: logger}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/bulk/generate", h.Generate)
	api.POST("/documents/render", h.RenderDocument)
}

type generateResponse struct {
	Summary     string              `json:"summary"`
	Lines       []string            `json:"lines"`
	Result      *RunResult          `json:"result"`
	Artifact    *blobstore.Metadata `json:"artifact,omitempty"`
	DownloadURL string              `json:"download_url,omitempty"`
	Error       string              `json:"error,omitempty"`
}

// validTemplateRef rejects references that could leave the template root.
func validTemplateRef(ref string) bool {
	if ref == "" {
		return true
	}
	ref = strings.ReplaceAll(ref, "\\", "/")
	if path.IsAbs(ref) {
		return false
	}
	for _, part := range strings.Split(ref, "/") {
		if part == ".." {
			return false
		}
	}
	return true
}

func formMode(c echo.Context) (Mode, error) {
	switch strings.ToLower(c.FormValue("auto_send")) {
	case "true", "on", "1", "yes":
		return ModeDispatch, nil
	}
	return ParseMode(c.FormValue("mode"))
}

// Generate handles POST /bulk/generate: a multipart upload with fields
// file, device_type, optional template and mode (archive|dispatch).
func (h *Handler) Generate(c echo.Context) error {
	ctx := c.Request().Context()

	mode, err := formMode(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := device.Parse(c.FormValue("device_type"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	templateRef := c.FormValue("template")
	if !validTemplateRef(templateRef) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template reference")
	}

	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "file is required")
	}
	format, err := records.FormatFromPath(fh.Filename)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	src, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	recs, err := records.Read(src, format)
	src.Close()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	orch, err := h.orchestrators(ctx, mode)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}

	res, err := orch.Generate(ctx, recs, templateRef, d, mode)
	switch {
	case errors.Is(err, ErrNoDocumentsGenerated):
		return c.JSON(http.StatusUnprocessableEntity, generateResponse{
			Summary: res.Summary(),
			Lines:   res.Lines(),
			Result:  res,
			Error:   "No faxes were generated successfully",
		})
	case err != nil:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := generateResponse{Summary: res.Summary(), Lines: res.Lines(), Result: res}
	if res.Archive != nil {
		meta, err := h.storeArchive(ctx, res, d)
		if err != nil {
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
		resp.Artifact = meta
		resp.DownloadURL = "/api/v1/artifacts/" + meta.ID
	}
	return c.JSON(http.StatusOK, resp)
}

func (h *Handler) storeArchive(ctx context.Context, res *RunResult, d device.DeviceType) (*blobstore.Metadata, error) {
	a := res.Archive
	defer func() {
		if err := a.Release(); err != nil {
			h.logger.Warn().Err(err).Str("archive", a.Name).Msg("failed to release archive")
		}
	}()

	rc, err := a.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	return h.artifacts.Put(ctx, blobstore.Metadata{
		Kind:        blobstore.KindArchive,
		FileName:    a.Name,
		ContentType: blobstore.ZipMIMEType,
		Labels:      map[string]string{"device": string(d), "mode": string(res.Mode)},
	}, rc)
}

type renderRequest struct {
	Record     map[string]string `json:"record"`
	DeviceType string            `json:"device_type"`
	Template   string            `json:"template"`
}

// RenderDocument handles POST /documents/render and returns the .docx.
func (h *Handler) RenderDocument(c echo.Context) error {
	var req renderRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	d, err := device.Parse(req.DeviceType)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if !validTemplateRef(req.Template) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid template reference")
	}

	ctx := c.Request().Context()
	orch, err := h.orchestrators(ctx, ModeArchive)
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	doc, err := orch.Document(ctx, records.PatientRecord(req.Record), req.Template, d)
	switch {
	case errors.Is(err, render.ErrTemplateNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case err != nil:
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": doc.Filename})
	c.Response().Header().Set("Content-Disposition", disposition)
	if doc.Fallback {
		c.Response().Header().Set("X-Render-Fallback", "true")
	}
	return c.Blob(http.StatusOK, blobstore.DocxMIMEType, doc.Data)
}
