package routes

import (
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowrunner/cmd/flowrunner/container"
	"github.com/lyzr/flowrunner/cmd/flowrunner/handlers"
)

// RegisterWorkflowRoutes registers all workflow-related routes
func RegisterWorkflowRoutes(e *echo.Echo, c *container.Container) {
	h := handlers.NewWorkflowHandler(c)
	r := handlers.NewRunHandler(c)

	wf := e.Group("/api/v1/workflows")
	{
		wf.POST("", h.CreateWorkflow)           // POST /api/v1/workflows
		wf.GET("", h.ListWorkflows)             // GET /api/v1/workflows
		wf.POST("/validate", h.ValidateWorkflow) // POST /api/v1/workflows/validate
		wf.GET("/:id", h.GetWorkflow)           // GET /api/v1/workflows/{id}
		wf.PUT("/:id", h.UpdateWorkflow)        // PUT /api/v1/workflows/{id}
		wf.PATCH("/:id", h.PatchWorkflow)       // PATCH /api/v1/workflows/{id}
		wf.DELETE("/:id", h.DeleteWorkflow)     // DELETE /api/v1/workflows/{id}
		wf.POST("/:id/clone", h.CloneWorkflow)  // POST /api/v1/workflows/{id}/clone
		wf.POST("/:id/execute", r.ExecuteWorkflow) // POST /api/v1/workflows/{id}/execute
	}
}
