// Package blobstore holds generated artifacts (bulk archives and single
// rendered documents) until the operator downloads them. It defines the
// Store interface, an in-memory implementation and Echo download handlers.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/dmefax/faxdesk/pkg/pagination"
)

// ---------------------------------------------------------------------------
// Sentinel errors
// ---------------------------------------------------------------------------

var (
	ErrBlobNotFound       = errors.New("artifact not found")
	ErrFileTooLarge       = errors.New("artifact exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
	ErrInvalidKind        = errors.New("unknown artifact kind")
)

// MaxFileSize is the largest artifact accepted (256 MB).
const MaxFileSize = 256 << 20

// Kind classifies an artifact.
type Kind string

const (
	KindArchive  Kind = "archive"
	KindDocument Kind = "document"
)

const (
	ZipMIMEType  = "application/zip"
	DocxMIMEType = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

var allowedContentTypes = map[string]bool{
	ZipMIMEType:  true,
	DocxMIMEType: true,
}

// ---------------------------------------------------------------------------
// Domain types
// ---------------------------------------------------------------------------

// Metadata describes a stored artifact.
type Metadata struct {
	ID          string            `json:"id"`
	Kind        Kind              `json:"kind"`
	FileName    string            `json:"file_name"`
	ContentType string            `json:"content_type"`
	Size        int64             `json:"size"`
	Hash        string            `json:"hash"`
	CreatedAt   time.Time         `json:"created_at"`
	Labels      map[string]string `json:"labels,omitempty"`
}

// Store is the contract for artifact storage backends.
type Store interface {
	Put(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	Open(ctx context.Context, id string) (io.ReadCloser, *Metadata, error)
	Stat(ctx context.Context, id string) (*Metadata, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, kind Kind, p pagination.Params) ([]*Metadata, int, error)
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// Memory is a thread-safe in-memory Store. Artifacts live until deleted.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string]*storedBlob
	now   func() time.Time
}

// NewMemory returns an empty Memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string]*storedBlob), now: time.Now}
}

// Put validates meta, reads content, hashes it and stores it under a new id.
func (s *Memory) Put(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if meta.Kind != KindArchive && meta.Kind != KindDocument {
		return nil, fmt.Errorf("%w: %q", ErrInvalidKind, meta.Kind)
	}
	if !allowedContentTypes[meta.ContentType] {
		return nil, fmt.Errorf("%w: %q", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	meta.ID = uuid.New().String()
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", sha256.Sum256(data))
	meta.CreatedAt = s.now().UTC()

	s.mu.Lock()
	s.blobs[meta.ID] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta
	return &out, nil
}

// Open returns a reader over the artifact and its metadata.
func (s *Memory) Open(_ context.Context, id string) (io.ReadCloser, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return io.NopCloser(bytes.NewReader(blob.content)), &meta, nil
}

// Stat returns metadata without content.
func (s *Memory) Stat(_ context.Context, id string) (*Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrBlobNotFound
	}

	meta := blob.metadata
	return &meta, nil
}

// Delete removes an artifact.
func (s *Memory) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// List returns one page of artifacts, newest first, optionally filtered by
// kind, plus the total match count.
func (s *Memory) List(_ context.Context, kind Kind, p pagination.Params) ([]*Metadata, int, error) {
	s.mu.RLock()
	matched := make([]*Metadata, 0, len(s.blobs))
	for _, b := range s.blobs {
		if kind != "" && b.metadata.Kind != kind {
			continue
		}
		m := b.metadata
		matched = append(matched, &m)
	}
	s.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return pagination.Slice(matched, p), len(matched), nil
}

// ---------------------------------------------------------------------------
// HTTP handler
// ---------------------------------------------------------------------------

// Handler serves stored artifacts over HTTP.
type Handler struct {
	store            Store
	deleteOnDownload bool
}

// NewHandler creates a Handler. With deleteOnDownload, an artifact is
// removed once it has been streamed in full.
func NewHandler(store Store, deleteOnDownload bool) *Handler {
	return &Handler{store: store, deleteOnDownload: deleteOnDownload}
}

// RegisterRoutes mounts artifact routes on g.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/artifacts/:id/metadata", h.handleStat)
	g.GET("/artifacts/:id", h.handleDownload)
	g.DELETE("/artifacts/:id", h.handleDelete)
	g.GET("/artifacts", h.handleList)
}

func notFoundOr500(c echo.Context, err error) error {
	if errors.Is(err, ErrBlobNotFound) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

func (h *Handler) handleDownload(c echo.Context) error {
	ctx := c.Request().Context()
	id := c.Param("id")

	rc, meta, err := h.store.Open(ctx, id)
	if err != nil {
		return notFoundOr500(c, err)
	}
	defer rc.Close()

	disposition := mime.FormatMediaType("attachment", map[string]string{"filename": meta.FileName})
	c.Response().Header().Set("Content-Disposition", disposition)
	c.Response().Header().Set("Content-Length", fmt.Sprint(meta.Size))
	if err := c.Stream(http.StatusOK, meta.ContentType, rc); err != nil {
		return err
	}

	if h.deleteOnDownload {
		_ = h.store.Delete(ctx, id)
	}
	return nil
}

func (h *Handler) handleStat(c echo.Context) error {
	meta, err := h.store.Stat(c.Request().Context(), c.Param("id"))
	if err != nil {
		return notFoundOr500(c, err)
	}
	return c.JSON(http.StatusOK, meta)
}

func (h *Handler) handleDelete(c echo.Context) error {
	if err := h.store.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return notFoundOr500(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) handleList(c echo.Context) error {
	p := pagination.FromContext(c)
	items, total, err := h.store.List(c.Request().Context(), Kind(c.QueryParam("kind")), p)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, p, c.Request().URL.Path))
}
