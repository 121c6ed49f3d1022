package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowrunner/cmd/flowrunner/container"
	"github.com/lyzr/flowrunner/cmd/flowrunner/models"
	"github.com/lyzr/flowrunner/cmd/flowrunner/repository"
	"github.com/lyzr/flowrunner/common/ratelimit"
	"github.com/lyzr/flowrunner/engine"
	"github.com/lyzr/flowrunner/workflow"
)

// RunHandler handles workflow execution requests
type RunHandler struct {
	c *container.Container
}

// NewRunHandler creates a new run handler
func NewRunHandler(c *container.Container) *RunHandler {
	return &RunHandler{c: c}
}

type executeRequest struct {
	Inputs engine.RunInputs `json:"inputs"`
	Async  bool             `json:"async"`
}

type submitRunRequest struct {
	Definition json.RawMessage  `json:"definition"`
	Inputs     engine.RunInputs `json:"inputs"`
	Async      bool             `json:"async"`
}

// ExecuteWorkflow runs a stored workflow
// POST /api/v1/workflows/:id/execute
func (h *RunHandler) ExecuteWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid workflow id")
	}

	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	ctx := c.Request().Context()
	definition, err := h.loadDefinition(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "workflow not found")
	}
	if err != nil {
		h.c.Logger.Error("workflow get failed", "workflow_id", id, "error", err)
		return internalError(c)
	}

	wf, err := workflow.Parse(definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return h.startRun(c, wf, &id, req.Inputs, req.Async)
}

// SubmitRun runs an inline workflow definition
// POST /api/v1/runs
func (h *RunHandler) SubmitRun(c echo.Context) error {
	var req submitRunRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	wf, err := workflow.Parse(req.Definition)
	if err != nil {
		return badRequest(c, err.Error())
	}

	return h.startRun(c, wf, nil, req.Inputs, req.Async)
}

// loadDefinition serves workflow definitions through the in-process cache,
// falling back to the database on a miss.
func (h *RunHandler) loadDefinition(ctx context.Context, id uuid.UUID) (json.RawMessage, error) {
	key := definitionCacheKey(id)
	if cached, ok, err := h.c.Cache.Get(ctx, key); err == nil && ok {
		return cached, nil
	}

	stored, err := h.c.WorkflowRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := h.c.Cache.Set(ctx, key, stored.Definition, h.c.Config.Cache.DefinitionTTL); err != nil {
		h.c.Logger.Warn("definition cache set failed", "workflow_id", id, "error", err)
	}
	return stored.Definition, nil
}

func (h *RunHandler) startRun(c echo.Context, wf *workflow.Workflow, workflowID *uuid.UUID, inputs engine.RunInputs, async bool) error {
	if err := wf.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	// Heavier workflows draw from smaller per-tier budgets.
	if h.c.Config.RateLimit.Enabled {
		if user := submittedBy(c); user != nil {
			res, err := h.c.Limiter.CheckTier(c.Request().Context(), *user, ratelimit.TierFor(wf))
			if err == nil && !res.Allowed {
				return c.JSON(http.StatusTooManyRequests, map[string]interface{}{
					"error":               "tier_rate_limit_exceeded",
					"limit":               res.Limit,
					"retry_after_seconds": res.RetryAfterSeconds,
				})
			}
		}
	}

	runID := engine.NewRunID()
	runUUID, err := uuid.Parse(runID)
	if err != nil {
		return internalError(c)
	}

	inputsJSON, _ := json.Marshal(inputs)
	record := &models.RunRecord{
		RunID:       runUUID,
		WorkflowID:  workflowID,
		Status:      string(engine.RunRunning),
		Inputs:      inputsJSON,
		SubmittedBy: submittedBy(c),
		SubmittedAt: time.Now().UTC(),
	}
	if err := h.c.RunRepo.Create(c.Request().Context(), record); err != nil {
		h.c.Logger.Error("run create failed", "run_id", runID, "error", err)
		return internalError(c)
	}

	wfID := ""
	if workflowID != nil {
		wfID = workflowID.String()
	}
	h.c.Events.PublishRunStarted(c.Request().Context(), runID, wfID)

	if async {
		// Detached from the request context; only Cancel stops the run.
		go h.runToCompletion(context.Background(), runID, wfID, wf, inputs)
		return c.JSON(http.StatusAccepted, map[string]interface{}{
			"run_id": runID,
			"status": engine.RunRunning,
		})
	}

	report := h.runToCompletion(c.Request().Context(), runID, wfID, wf, inputs)
	if report == nil {
		return internalError(c)
	}
	return c.JSON(http.StatusOK, report)
}

// runToCompletion executes the workflow and persists the outcome. Errors are
// logged, not returned; the run record carries the final state.
func (h *RunHandler) runToCompletion(ctx context.Context, runID, workflowID string, wf *workflow.Workflow, inputs engine.RunInputs) *engine.Report {
	report, err := h.c.Engine.RunWithID(ctx, runID, wf, inputs)
	if err != nil {
		h.c.Logger.Error("run execution failed", "run_id", runID, "error", err)
		h.finishRun(runID, workflowID, string(engine.RunFailed), nil)
		return nil
	}

	reportJSON, merr := json.Marshal(report)
	if merr != nil {
		h.c.Logger.Error("report encode failed", "run_id", runID, "error", merr)
	}
	h.finishRun(runID, workflowID, string(report.Status), reportJSON)
	return report
}

func (h *RunHandler) finishRun(runID, workflowID, status string, reportJSON []byte) {
	// Persistence uses its own deadline; the request context may be gone.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	runUUID, err := uuid.Parse(runID)
	if err == nil {
		if err := h.c.RunRepo.Finish(ctx, runUUID, status, reportJSON, time.Now().UTC()); err != nil {
			h.c.Logger.Error("run finish persist failed", "run_id", runID, "error", err)
		}
	}

	if len(reportJSON) > 0 {
		if err := h.c.Events.CacheReport(ctx, runID, string(reportJSON)); err != nil {
			h.c.Logger.Warn("report cache failed", "run_id", runID, "error", err)
		}
	}
	h.c.Events.PublishRunFinished(ctx, runID, workflowID, status)
}

// GetRun returns live progress for an active run or the final report for a
// finished one
// GET /api/v1/runs/:id
func (h *RunHandler) GetRun(c echo.Context) error {
	runID := c.Param("id")
	runUUID, err := uuid.Parse(runID)
	if err != nil {
		return badRequest(c, "invalid run id")
	}

	// Active run: serve the live snapshot.
	if snap, ok := h.c.Engine.Status(runID); ok {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"run_id":   runID,
			"status":   engine.RunRunning,
			"snapshot": snap,
		})
	}

	ctx := c.Request().Context()

	// Finished run: prefer the cached report, fall back to the database.
	if cached, err := h.c.Events.CachedReport(ctx, runID); err == nil && cached != "" {
		return c.JSONBlob(http.StatusOK, []byte(cached))
	}

	record, err := h.c.RunRepo.GetByID(ctx, runUUID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "run not found")
	}
	if err != nil {
		h.c.Logger.Error("run get failed", "run_id", runID, "error", err)
		return internalError(c)
	}
	if len(record.Report) > 0 {
		return c.JSONBlob(http.StatusOK, record.Report)
	}
	return c.JSON(http.StatusOK, record)
}

// GetRunStatus returns just the status and path of a run, without the report
// GET /api/v1/runs/:id/status
func (h *RunHandler) GetRunStatus(c echo.Context) error {
	runID := c.Param("id")
	runUUID, err := uuid.Parse(runID)
	if err != nil {
		return badRequest(c, "invalid run id")
	}

	if snap, ok := h.c.Engine.Status(runID); ok {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"run_id":         runID,
			"status":         engine.RunRunning,
			"node_statuses":  snap.Statuses,
			"execution_path": snap.ExecutionPath,
		})
	}

	record, err := h.c.RunRepo.GetByID(c.Request().Context(), runUUID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "run not found")
	}
	if err != nil {
		h.c.Logger.Error("run get failed", "run_id", runID, "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"run_id":      runID,
		"status":      record.Status,
		"finished_at": record.FinishedAt,
	})
}

// ListRuns lists run records, optionally filtered by status
// GET /api/v1/runs?status=running
func (h *RunHandler) ListRuns(c echo.Context) error {
	limit, offset := pagination(c)

	runs, err := h.c.RunRepo.List(c.Request().Context(), c.QueryParam("status"), limit, offset)
	if err != nil {
		h.c.Logger.Error("run list failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"runs":  runs,
		"count": len(runs),
	})
}

// CancelRun signals cancellation to an active run
// POST /api/v1/runs/:id/cancel
func (h *RunHandler) CancelRun(c echo.Context) error {
	runID := c.Param("id")
	if _, err := uuid.Parse(runID); err != nil {
		return badRequest(c, "invalid run id")
	}

	if h.c.Engine.Cancel(runID) {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"run_id": runID,
			"status": engine.RunCancelled,
		})
	}

	// Not active: distinguish finished from unknown.
	runUUID, _ := uuid.Parse(runID)
	record, err := h.c.RunRepo.GetByID(c.Request().Context(), runUUID)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "run not found")
	}
	if err != nil {
		h.c.Logger.Error("run get failed", "run_id", runID, "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusConflict, map[string]interface{}{
		"error":  "run already finished",
		"status": record.Status,
	})
}
