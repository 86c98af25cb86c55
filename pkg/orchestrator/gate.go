package orchestrator

import (
	"context"
	"fmt"

	"github.com/errandlabs/errand/pkg/events"
	"github.com/errandlabs/errand/pkg/models"
)

// gate intercepts a side-effecting step before dispatch: a draft describing
// the pending action is stored with a TTL and the workflow suspends until the
// user confirms or denies.
func (o *Orchestrator) gate(ctx context.Context, workflow *models.Workflow, step *models.Step) (*models.Response, error) {
	if err := step.Transition(models.StepStatusAwaitingConfirmation); err != nil {
		return nil, err
	}

	preview := previewText(step)

	draft := models.NewDraft(workflow.ID, step.ID, preview, o.cfg.DraftTTL.Std())
	if err := o.store.PutDraft(ctx, draft); err != nil {
		return nil, fmt.Errorf("store draft for step %s: %w", step.ID, err)
	}

	workflow.Status = models.WorkflowStatusAwaitingConfirmation

	o.publish(ctx, workflow, events.WorkflowAwaitingConfirmation{
		BaseEvent:   o.base(events.WorkflowAwaitingConfirmationEvent, workflow),
		StepID:      step.ID,
		PreviewText: preview,
	})

	return &models.Response{
		Message:           preview + " Should I go ahead?",
		WorkflowID:        workflow.ID,
		NeedsConfirmation: true,
	}, nil
}

func previewText(step *models.Step) string {
	action := "make a change"
	if step.RiskLevel == models.RiskDestructive {
		action = "delete or cancel something"
	}

	return fmt.Sprintf("I'm about to %s via the %s agent: %s.", action, step.TargetDomain, step.Request)
}
