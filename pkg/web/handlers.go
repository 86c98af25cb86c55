// Package web provides the HTTP surface of the orchestration engine.
package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/orchestrator"
	"github.com/errandlabs/errand/pkg/store"
)

type APIHandlers struct {
	engine    *orchestrator.Orchestrator
	store     store.Store
	validator *validator.Validate
}

func NewAPIHandlers(engine *orchestrator.Orchestrator, st store.Store, validator *validator.Validate) *APIHandlers {
	return &APIHandlers{
		engine:    engine,
		store:     st,
		validator: validator,
	}
}

// PostSessionMessage feeds a user message into the session's conversation.
// It starts a workflow when the session is idle and routes an interruption
// when one is already running.
func (h *APIHandlers) PostSessionMessage(c fiber.Ctx) error {
	sessionID := c.Params("sessionId")
	if sessionID == "" {
		return badRequest(c, "Session ID is required")
	}

	var req SessionMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	response, err := h.engine.HandleMessage(c.Context(), sessionID, req.UserID, req.Text)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(response)
}

// GetWorkflow reports where a workflow stands. Callers get the status and a
// conversational message only; steps and gathered data stay inside the engine.
func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.engine.Get(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	view := statusView(workflow)

	if workflow.Status == models.WorkflowStatusAwaitingConfirmation {
		if draft, err := h.store.DraftByWorkflow(c.Context(), workflow.ID); err == nil && !draft.Expired(time.Now().UTC()) {
			view.Message = draft.PreviewText + " Should I go ahead?"
		}
	}

	return c.JSON(view)
}

func statusView(workflow *models.Workflow) WorkflowStatusResponse {
	view := WorkflowStatusResponse{
		WorkflowID: workflow.ID,
		Status:     workflow.Status,
	}

	switch workflow.Status {
	case models.WorkflowStatusActive:
		view.Message = fmt.Sprintf("I'm working on %q.", workflow.OriginalRequest)
	case models.WorkflowStatusAwaitingConfirmation:
		view.Message = "I'm waiting for a yes or no on a pending action."
		view.NeedsConfirmation = true
	case models.WorkflowStatusAwaitingUserInput:
		view.Message = "I'm waiting on more information before I can continue."
		view.NeedsInput = true
	case models.WorkflowStatusPaused:
		view.Message = fmt.Sprintf("I've set %q aside for the moment.", workflow.OriginalRequest)
	case models.WorkflowStatusCompleted:
		view.Message = fmt.Sprintf("I finished %q.", workflow.OriginalRequest)
	case models.WorkflowStatusCancelled:
		view.Message = "This task was cancelled."
	case models.WorkflowStatusFailed:
		view.Message = "This task stopped before it could finish."
	}

	return view
}

// ConfirmWorkflow approves the pending side-effecting step.
func (h *APIHandlers) ConfirmWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	response, err := h.engine.Confirm(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(response)
}

// DenyWorkflow declines the pending side-effecting step.
func (h *APIHandlers) DenyWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	response, err := h.engine.Deny(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(response)
}

// ResumeWorkflow supplies requested input to a suspended workflow.
func (h *APIHandlers) ResumeWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req ResumeWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	response, err := h.engine.Resume(c.Context(), id, req.Input)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(response)
}

// CancelWorkflow abandons a workflow, freeing its session.
func (h *APIHandlers) CancelWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	if _, err := h.engine.Cancel(c.Context(), id); err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	message := "Errand API is healthy"
	httpStatus := http.StatusOK

	storeCheck := "ok"
	if err := h.store.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		message = "Errand API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}
