package handlers

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/quillwiki/attachd/cmd/attachmentd/models"
	"github.com/quillwiki/attachd/cmd/attachmentd/service"
	"github.com/quillwiki/attachd/common/bootstrap"
)

// DerivedHandler serves derived artifacts (thumbnails, inline variants)
type DerivedHandler struct {
	components *bootstrap.Components
	deriver    *service.Deriver
}

// NewDerivedHandler creates a new derived artifact handler
func NewDerivedHandler(components *bootstrap.Components, deriver *service.Deriver) *DerivedHandler {
	return &DerivedHandler{
		components: components,
		deriver:    deriver,
	}
}

// Thumbnail serves the square thumbnail variant
// GET /api/v1/attachments/:id/thumbnail
func (h *DerivedHandler) Thumbnail(c echo.Context) error {
	return h.serve(c, models.KindThumbnail)
}

// Inline serves the inline-resized variant
// GET /api/v1/attachments/:id/inline
func (h *DerivedHandler) Inline(c echo.Context) error {
	return h.serve(c, models.KindInline)
}

func (h *DerivedHandler) serve(c echo.Context, kind models.DerivedKind) error {
	id, err := parseAttachmentID(c)
	if err != nil {
		return err
	}

	rc, contentType, err := h.deriver.GetOrCreate(c.Request().Context(), id, kind)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "attachment not found")
		}
		if errors.Is(err, service.ErrDerivation) {
			// The original stays retrievable; only the derived view fails
			h.components.Logger.Warn("derivation failed", "attachment_id", id, "kind", kind, "error", err)
			return echo.NewHTTPError(http.StatusUnprocessableEntity, "cannot derive image variant")
		}
		h.components.Logger.Error("failed to serve derived artifact", "attachment_id", id, "kind", kind, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read derived artifact")
	}
	defer rc.Close()

	return c.Stream(http.StatusOK, contentType, rc)
}
