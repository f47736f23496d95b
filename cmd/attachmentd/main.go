package main

import (
	"context"
	"fmt"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/quillwiki/attachd/cmd/attachmentd/container"
	"github.com/quillwiki/attachd/cmd/attachmentd/middleware"
	"github.com/quillwiki/attachd/cmd/attachmentd/repository"
	"github.com/quillwiki/attachd/cmd/attachmentd/routes"
	"github.com/quillwiki/attachd/common/bootstrap"
	"github.com/quillwiki/attachd/common/db"
	"github.com/quillwiki/attachd/common/server"
)

func main() {
	ctx := context.Background()

	// Bootstrap common components (config, logger, DB, cache, telemetry)
	components, err := bootstrap.Setup(ctx, "attachmentd",
		bootstrap.WithDBInit(migrate),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to bootstrap attachmentd: %v\n", err)
		os.Exit(1)
	}
	defer components.Shutdown(ctx)

	// Initialize service container (singleton pattern - all services created once)
	serviceContainer, err := container.NewContainer(components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}

	// Initialize Echo server
	e := setupEcho()
	setupMiddleware(e)
	setupHealthCheck(e, serviceContainer)
	routes.RegisterAttachmentRoutes(e, serviceContainer)

	// Start with graceful shutdown
	srv := server.New("attachmentd", components.Config.Service.Port, e, components.Logger)
	if err := srv.Start(); err != nil {
		components.Logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo) {
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	e.Use(echomw.RequestID())
	e.Use(middleware.ExtractUsername())
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ec echo.Context) error {
		if err := c.Components.Health(ec.Request().Context()); err != nil {
			return ec.JSON(503, map[string]string{
				"status":  "unhealthy",
				"service": "attachmentd",
				"error":   err.Error(),
			})
		}
		return ec.JSON(200, map[string]string{
			"status":  "ok",
			"service": "attachmentd",
		})
	})
}

// migrate applies the attachment schema at startup
func migrate(database *db.DB) error {
	_, err := database.Exec(context.Background(), repository.Schema())
	if err != nil {
		return fmt.Errorf("apply attachment schema: %w", err)
	}
	return nil
}
