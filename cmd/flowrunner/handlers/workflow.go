package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	jsonpatch "github.com/evanphx/json-patch/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/lyzr/flowrunner/cmd/flowrunner/container"
	"github.com/lyzr/flowrunner/cmd/flowrunner/models"
	"github.com/lyzr/flowrunner/cmd/flowrunner/repository"
	"github.com/lyzr/flowrunner/engine/resolver"
	"github.com/lyzr/flowrunner/workflow"
)

// WorkflowHandler handles workflow CRUD requests
type WorkflowHandler struct {
	c *container.Container
}

// NewWorkflowHandler creates a new workflow handler
func NewWorkflowHandler(c *container.Container) *WorkflowHandler {
	return &WorkflowHandler{c: c}
}

type workflowRequest struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Definition  json.RawMessage `json:"definition"`
}

// CreateWorkflow stores a new workflow definition
// POST /api/v1/workflows
func (h *WorkflowHandler) CreateWorkflow(c echo.Context) error {
	var req workflowRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}
	if _, err := workflow.Parse(req.Definition); err != nil {
		return badRequest(c, err.Error())
	}

	now := time.Now().UTC()
	wf := &models.StoredWorkflow{
		WorkflowID:  uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Definition:  req.Definition,
		CreatedBy:   submittedBy(c),
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := h.c.WorkflowRepo.Create(c.Request().Context(), wf); err != nil {
		h.c.Logger.Error("workflow create failed", "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusCreated, wf)
}

// GetWorkflow retrieves a workflow by ID
// GET /api/v1/workflows/:id
func (h *WorkflowHandler) GetWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid workflow id")
	}

	wf, err := h.c.WorkflowRepo.GetByID(c.Request().Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "workflow not found")
	}
	if err != nil {
		h.c.Logger.Error("workflow get failed", "workflow_id", id, "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusOK, wf)
}

// ListWorkflows lists stored workflows
// GET /api/v1/workflows
func (h *WorkflowHandler) ListWorkflows(c echo.Context) error {
	limit, offset := pagination(c)

	workflows, err := h.c.WorkflowRepo.List(c.Request().Context(), limit, offset)
	if err != nil {
		h.c.Logger.Error("workflow list failed", "error", err)
		return internalError(c)
	}

	summaries := make([]models.WorkflowSummary, 0, len(workflows))
	for _, wf := range workflows {
		s := models.WorkflowSummary{
			WorkflowID: wf.WorkflowID,
			Name:       wf.Name,
			UpdatedAt:  wf.UpdatedAt,
		}
		if parsed, err := workflow.Parse(wf.Definition); err == nil {
			s.NodeCount = len(parsed.Nodes)
			s.EdgeCount = len(parsed.Edges)
		}
		summaries = append(summaries, s)
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"workflows": summaries,
		"count":     len(summaries),
	})
}

// UpdateWorkflow replaces a workflow definition
// PUT /api/v1/workflows/:id
func (h *WorkflowHandler) UpdateWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid workflow id")
	}

	var req workflowRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if _, err := workflow.Parse(req.Definition); err != nil {
		return badRequest(c, err.Error())
	}

	ctx := c.Request().Context()
	wf, err := h.c.WorkflowRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "workflow not found")
	}
	if err != nil {
		h.c.Logger.Error("workflow get failed", "workflow_id", id, "error", err)
		return internalError(c)
	}

	if req.Name != "" {
		wf.Name = req.Name
	}
	if req.Description != "" {
		wf.Description = req.Description
	}
	wf.Definition = req.Definition
	wf.UpdatedAt = time.Now().UTC()

	if err := h.c.WorkflowRepo.UpdateDefinition(ctx, wf); err != nil {
		h.c.Logger.Error("workflow update failed", "workflow_id", id, "error", err)
		return internalError(c)
	}
	h.c.Cache.Delete(ctx, definitionCacheKey(id))

	return c.JSON(http.StatusOK, wf)
}

// PatchWorkflow applies a JSON patch (RFC 6902 array) or merge patch
// (RFC 7386 object) to a workflow definition
// PATCH /api/v1/workflows/:id
func (h *WorkflowHandler) PatchWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid workflow id")
	}

	var patchDoc json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&patchDoc); err != nil {
		return badRequest(c, "invalid patch document")
	}

	ctx := c.Request().Context()
	wf, err := h.c.WorkflowRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "workflow not found")
	}
	if err != nil {
		h.c.Logger.Error("workflow get failed", "workflow_id", id, "error", err)
		return internalError(c)
	}

	patched, err := applyPatch(wf.Definition, patchDoc)
	if err != nil {
		return badRequest(c, err.Error())
	}
	if _, err := workflow.Parse(patched); err != nil {
		return badRequest(c, "patched definition is invalid: "+err.Error())
	}

	wf.Definition = patched
	wf.UpdatedAt = time.Now().UTC()

	if err := h.c.WorkflowRepo.UpdateDefinition(ctx, wf); err != nil {
		h.c.Logger.Error("workflow patch failed", "workflow_id", id, "error", err)
		return internalError(c)
	}
	h.c.Cache.Delete(ctx, definitionCacheKey(id))

	return c.JSON(http.StatusOK, wf)
}

// applyPatch dispatches on the patch document shape: arrays are RFC 6902
// operation lists, objects are RFC 7386 merge patches.
func applyPatch(definition, patchDoc json.RawMessage) (json.RawMessage, error) {
	trimmed := firstNonSpace(patchDoc)
	if trimmed == '[' {
		patch, err := jsonpatch.DecodePatch(patchDoc)
		if err != nil {
			return nil, err
		}
		return patch.Apply(definition)
	}
	return jsonpatch.MergePatch(definition, patchDoc)
}

func firstNonSpace(data []byte) byte {
	for _, b := range data {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}

// CloneWorkflow copies a stored workflow under a fresh id
// POST /api/v1/workflows/:id/clone
func (h *WorkflowHandler) CloneWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid workflow id")
	}

	ctx := c.Request().Context()
	source, err := h.c.WorkflowRepo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "workflow not found")
	}
	if err != nil {
		h.c.Logger.Error("workflow get failed", "workflow_id", id, "error", err)
		return internalError(c)
	}

	var req workflowRequest
	_ = c.Bind(&req)
	name := req.Name
	if name == "" {
		name = source.Name + " (copy)"
	}

	now := time.Now().UTC()
	clone := &models.StoredWorkflow{
		WorkflowID:  uuid.New(),
		Name:        name,
		Description: source.Description,
		Definition:  source.Definition,
		CreatedBy:   submittedBy(c),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := h.c.WorkflowRepo.Create(ctx, clone); err != nil {
		h.c.Logger.Error("workflow clone failed", "workflow_id", id, "error", err)
		return internalError(c)
	}

	return c.JSON(http.StatusCreated, clone)
}

// DeleteWorkflow removes a stored workflow
// DELETE /api/v1/workflows/:id
func (h *WorkflowHandler) DeleteWorkflow(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return badRequest(c, "invalid workflow id")
	}

	ctx := c.Request().Context()
	err = h.c.WorkflowRepo.Delete(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return notFound(c, "workflow not found")
	}
	if err != nil {
		h.c.Logger.Error("workflow delete failed", "workflow_id", id, "error", err)
		return internalError(c)
	}
	h.c.Cache.Delete(ctx, definitionCacheKey(id))

	return c.NoContent(http.StatusNoContent)
}

// ValidateWorkflow dry-runs structural validation on an inline definition
// POST /api/v1/workflows/validate
func (h *WorkflowHandler) ValidateWorkflow(c echo.Context) error {
	var definition json.RawMessage
	if err := json.NewDecoder(c.Request().Body).Decode(&definition); err != nil {
		return badRequest(c, "invalid request body")
	}

	wf, err := workflow.Parse(definition)
	if err != nil {
		return c.JSON(http.StatusOK, map[string]interface{}{
			"valid":  false,
			"errors": []string{err.Error()},
		})
	}

	var problems []string
	if err := wf.Validate(); err != nil {
		problems = append(problems, err.Error())
	}

	registered := make(map[string]bool)
	for _, t := range h.c.Engine.Registry().Types() {
		registered[t] = true
	}

	nodeIDs := make([]string, 0, len(wf.Nodes))
	for _, n := range wf.Nodes {
		nodeIDs = append(nodeIDs, n.ID)
	}

	var warnings []string
	for _, n := range wf.Nodes {
		if !registered[n.Type] {
			warnings = append(warnings, "node "+n.ID+" has unregistered type "+n.Type)
		}
		for key, value := range n.Params() {
			str, ok := value.(string)
			if !ok {
				continue
			}
			for _, ref := range resolver.ExtractRefs(str) {
				if _, ok := resolver.NormalizeNodeRef(ref[0], nodeIDs); !ok {
					warnings = append(warnings, "param "+key+" of node "+n.ID+" references unknown node "+ref[0])
				}
			}
		}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"valid":    len(problems) == 0,
		"errors":   problems,
		"warnings": warnings,
	})
}
