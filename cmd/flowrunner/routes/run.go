package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowrunner/cmd/flowrunner/container"
	"github.com/lyzr/flowrunner/cmd/flowrunner/handlers"
)

// RegisterRunRoutes registers run submission and inspection routes
func RegisterRunRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewRunHandler(c)

	runs := e.Group("/api/v1/runs")
	{
		runs.POST("", h.SubmitRun)              // POST /api/v1/runs
		runs.GET("", h.ListRuns)                // GET /api/v1/runs?status=running
		runs.GET("/:id", h.GetRun)              // GET /api/v1/runs/{run_id}
		runs.GET("/:id/status", h.GetRunStatus) // GET /api/v1/runs/{run_id}/status
		runs.POST("/:id/cancel", h.CancelRun)   // POST /api/v1/runs/{run_id}/cancel
	}
}
