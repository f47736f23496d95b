package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/quillwiki/attachd/cmd/attachmentd/middleware"
	"github.com/quillwiki/attachd/cmd/attachmentd/service"
	"github.com/quillwiki/attachd/common/bootstrap"
)

// UploadHandler handles attachment ingestion requests
type UploadHandler struct {
	components *bootstrap.Components
	ingestor   *service.Ingestor
}

// NewUploadHandler creates a new upload handler
func NewUploadHandler(components *bootstrap.Components, ingestor *service.Ingestor) *UploadHandler {
	return &UploadHandler{
		components: components,
		ingestor:   ingestor,
	}
}

// Upload ingests one multipart upload for a page. A zip payload becomes
// one attachment per member; anything else becomes a single attachment.
// POST /api/v1/pages/:page/attachments
func (h *UploadHandler) Upload(c echo.Context) error {
	page := c.Param("page")
	if page == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "page is required")
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing file field")
	}

	maxBytes := h.components.Config.Storage.MaxUploadBytes
	if fileHeader.Size > maxBytes {
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge,
			fmt.Sprintf("upload exceeds %d bytes", maxBytes))
	}

	// Spool the payload to local disk next to the blob storage so the
	// single-file path can hard-link instead of copying
	spoolPath, size, err := h.spool(fileHeader)
	if err != nil {
		h.components.Logger.Error("failed to spool upload", "page", page, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to receive upload")
	}
	defer os.Remove(spoolPath)

	result, err := h.ingestor.Ingest(c.Request().Context(), page, middleware.GetUsername(c), service.Upload{
		Name:     filepath.Base(fileHeader.Filename),
		TempPath: spoolPath,
		Size:     size,
	})
	if err != nil {
		h.components.Logger.Error("ingestion failed", "page", page, "error", err)

		if errors.Is(err, service.ErrArchiveOpen) {
			return echo.NewHTTPError(http.StatusBadRequest, "cannot open archive")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to store attachment")
	}

	status := http.StatusCreated
	if !result.OK() {
		// Partial success: the batch completed but some members failed
		status = http.StatusMultiStatus
	}

	return c.JSON(status, map[string]interface{}{
		"page":    page,
		"created": result.Created,
		"errors":  result.ErrorMessages(),
	})
}

// spool writes the multipart part to the spool directory and returns
// its path and size
func (h *UploadHandler) spool(fileHeader *multipart.FileHeader) (string, int64, error) {
	src, err := fileHeader.Open()
	if err != nil {
		return "", 0, fmt.Errorf("open multipart file: %w", err)
	}
	defer src.Close()

	spoolDir := h.components.Config.Storage.SpoolDir
	if err := os.MkdirAll(spoolDir, 0o755); err != nil {
		return "", 0, fmt.Errorf("create spool directory: %w", err)
	}

	path := filepath.Join(spoolDir, uuid.NewString())
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", 0, fmt.Errorf("create spool file: %w", err)
	}

	size, err := io.Copy(dst, src)
	if err != nil {
		dst.Close()
		os.Remove(path)
		return "", 0, fmt.Errorf("write spool file: %w", err)
	}

	if err := dst.Close(); err != nil {
		os.Remove(path)
		return "", 0, fmt.Errorf("close spool file: %w", err)
	}

	return path, size, nil
}
