package web

import (
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"

	"github.com/errandlabs/errand/pkg/orchestrator"
	"github.com/errandlabs/errand/pkg/store"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func conflict(c fiber.Ctx, errType, detail string) error {
	problem := problems.NewStatusProblem(409).
		WithInstance(c.Path()).
		WithType(errType).
		WithDetail(detail)

	return c.Status(fiber.StatusConflict).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError provides typed error handling for orchestration errors.
func handleEngineError(c fiber.Ctx, err error) error {
	switch {
	case store.IsWorkflowNotFound(err):
		return notFound(c, "workflow not found")

	case store.IsSessionBusy(err):
		return conflict(c, "session_busy", "the session already has an active workflow")

	case store.IsVersionConflict(err):
		return conflict(c, "version_conflict", "the workflow was modified concurrently, retry the request")

	case orchestrator.IsNotAwaitingConfirmation(err):
		return conflict(c, "not_awaiting_confirmation", "the workflow has no pending confirmation")

	case orchestrator.IsNotSuspended(err):
		return conflict(c, "not_suspended", "the workflow is not waiting on user input")

	case orchestrator.IsWorkflowTerminal(err):
		return conflict(c, "workflow_terminal", "the workflow already finished")

	default:
		return internalError(c, err)
	}
}
