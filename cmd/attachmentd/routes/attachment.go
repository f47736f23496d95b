package routes

import (
	"github.com/labstack/echo/v4"
	"github.com/quillwiki/attachd/cmd/attachmentd/container"
	"github.com/quillwiki/attachd/cmd/attachmentd/middleware"
	commonmw "github.com/quillwiki/attachd/common/middleware"
)

// RegisterAttachmentRoutes registers all attachment routes
func RegisterAttachmentRoutes(e *echo.Echo, c *container.Container) {
	api := e.Group("/api/v1")

	// Read paths stay open; the wiki front end gates page visibility
	api.GET("/attachments/:id", c.AttachmentHandler.Download)
	api.GET("/attachments/:id/thumbnail", c.DerivedHandler.Thumbnail)
	api.GET("/attachments/:id/inline", c.DerivedHandler.Inline)
	api.GET("/pages/:page/attachments", c.AttachmentHandler.List)

	// Mutations require an authenticated identity from the permission
	// layer in front of this service
	mutating := api.Group("", middleware.RequireUsername())

	if c.RateLimiter != nil {
		cfg := c.Components.Config.RateLimit
		mutating.Use(
			commonmw.GlobalRateLimitMiddleware(c.RateLimiter, cfg.GlobalLimit),
			commonmw.UserRateLimitMiddleware(c.RateLimiter, cfg.UserLimit, middleware.GetUsername),
		)
	}

	mutating.POST("/pages/:page/attachments", c.UploadHandler.Upload)
	mutating.DELETE("/attachments/:id", c.AttachmentHandler.Delete)
}
