package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/lyzr/flowrunner/cmd/flowrunner/container"
	"github.com/lyzr/flowrunner/cmd/flowrunner/routes"
	"github.com/lyzr/flowrunner/common/config"
	"github.com/lyzr/flowrunner/common/logger"
	commonmw "github.com/lyzr/flowrunner/common/middleware"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load("flowrunner")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.Service.LogLevel, cfg.Service.LogFormat)

	serviceContainer, err := container.NewContainer(ctx, cfg, log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize service container: %v\n", err)
		os.Exit(1)
	}
	defer serviceContainer.Shutdown(ctx)

	e := setupEcho()
	setupMiddleware(e, serviceContainer)
	setupHealthCheck(e, serviceContainer)
	registerRoutes(e, serviceContainer)

	startServer(e, serviceContainer)
}

// setupEcho initializes the Echo server with basic configuration
func setupEcho() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	return e
}

// setupMiddleware configures all middleware for the Echo server
func setupMiddleware(e *echo.Echo, c *container.Container) {
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(middleware.RequestID())

	if c.Config.RateLimit.Enabled {
		e.Use(commonmw.GlobalRateLimit(c.Limiter, c.Config.RateLimit.GlobalLimit))
		e.Use(commonmw.UserRateLimit(c.Limiter, c.Config.RateLimit.UserLimit, c.Config.RateLimit.WindowSeconds))
	}
}

// setupHealthCheck registers the health check endpoint
func setupHealthCheck(e *echo.Echo, c *container.Container) {
	e.GET("/health", func(ctx echo.Context) error {
		checks := map[string]string{"database": "ok", "redis": "ok"}
		status := http.StatusOK

		if err := c.DB.Health(ctx.Request().Context()); err != nil {
			checks["database"] = err.Error()
			status = http.StatusServiceUnavailable
		}
		if err := c.Redis.Health(ctx.Request().Context()); err != nil {
			checks["redis"] = err.Error()
			status = http.StatusServiceUnavailable
		}

		return ctx.JSON(status, map[string]interface{}{
			"service": "flowrunner",
			"checks":  checks,
		})
	})
}

// registerRoutes registers all application routes using the service container
func registerRoutes(e *echo.Echo, c *container.Container) {
	routes.RegisterWorkflowRoutes(e, c)
	routes.RegisterRunRoutes(e, c)
}

// startServer starts the Echo server and blocks until shutdown
func startServer(e *echo.Echo, c *container.Container) {
	go func() {
		addr := fmt.Sprintf(":%d", c.Config.Service.Port)
		c.Logger.Info("server starting", "addr", addr)
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			c.Logger.Error("server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	c.Logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		c.Logger.Error("shutdown failed", "error", err)
	}
}
