package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/quillwiki/attachd/cmd/attachmentd/service"
	"github.com/quillwiki/attachd/common/bootstrap"
)

// AttachmentHandler handles attachment retrieval and deletion
type AttachmentHandler struct {
	components *bootstrap.Components
	store      *service.Store
}

// NewAttachmentHandler creates a new attachment handler
func NewAttachmentHandler(components *bootstrap.Components, store *service.Store) *AttachmentHandler {
	return &AttachmentHandler{
		components: components,
		store:      store,
	}
}

// Download streams an attachment's original bytes
// GET /api/v1/attachments/:id
func (h *AttachmentHandler) Download(c echo.Context) error {
	id, err := parseAttachmentID(c)
	if err != nil {
		return err
	}

	rc, att, err := h.store.Open(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		h.components.Logger.Error("failed to open attachment", "attachment_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read attachment")
	}
	defer rc.Close()

	c.Response().Header().Set("Content-Disposition",
		fmt.Sprintf("inline; filename=%q", att.Name))
	c.Response().Header().Set("Content-Length", strconv.FormatInt(att.SizeBytes, 10))
	return c.Stream(http.StatusOK, att.ContentType, rc)
}

// List returns all attachments of a page, newest first
// GET /api/v1/pages/:page/attachments
func (h *AttachmentHandler) List(c echo.Context) error {
	page := c.Param("page")
	if page == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "page is required")
	}

	attachments, err := h.store.List(c.Request().Context(), page)
	if err != nil {
		h.components.Logger.Error("failed to list attachments", "page", page, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list attachments")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"page":        page,
		"attachments": attachments,
	})
}

// Delete removes an attachment's metadata. The stored bytes stay on
// disk; only the record goes away.
// DELETE /api/v1/attachments/:id
func (h *AttachmentHandler) Delete(c echo.Context) error {
	id, err := parseAttachmentID(c)
	if err != nil {
		return err
	}

	if err := h.store.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		h.components.Logger.Error("failed to delete attachment", "attachment_id", id, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to delete attachment")
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"attachment_id": id,
		"deleted":       true,
	})
}

// parseAttachmentID parses the :id route parameter
func parseAttachmentID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, "invalid attachment id")
	}
	return id, nil
}
