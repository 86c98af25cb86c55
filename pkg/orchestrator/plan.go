package orchestrator

import (
	"fmt"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/planning"
)

// applyPlanOps applies analyzer plan edits. Inserts, removals, and reorders
// touch only the not-yet-executed tail; executed steps are immutable history.
// Skip is the one exception, it marks an existing failed or pending step so
// it never runs.
func applyPlanOps(workflow *models.Workflow, ops []planning.PlanOp) error {
	for _, op := range ops {
		switch op.Kind {
		case planning.OpInsert:
			insertSteps(workflow, op.Steps...)

		case planning.OpRemove:
			if err := removeRemaining(workflow, op.StepID); err != nil {
				return err
			}

		case planning.OpReorder:
			if err := reorderRemaining(workflow, op.StepID, op.ToIndex); err != nil {
				return err
			}

		case planning.OpSkip:
			step := workflow.StepByID(op.StepID)
			if step == nil {
				return fmt.Errorf("skip: no step %s in workflow %s", op.StepID, workflow.ID)
			}

			if step.Status != models.StepStatusSkipped {
				if err := step.Transition(models.StepStatusSkipped); err != nil {
					return err
				}
			}
		}
	}

	workflow.Renumber()

	return nil
}

// insertSteps places new steps at the front of the remaining plan, in order.
func insertSteps(workflow *models.Workflow, steps ...*models.Step) {
	idx := workflow.CurrentStepIndex
	if idx > len(workflow.Steps) {
		idx = len(workflow.Steps)
	}

	tail := append([]*models.Step{}, workflow.Steps[idx:]...)
	workflow.Steps = append(workflow.Steps[:idx], append(steps, tail...)...)
}

// removeRemaining drops a pending step from the remaining plan.
func removeRemaining(workflow *models.Workflow, stepID string) error {
	for i := workflow.CurrentStepIndex; i < len(workflow.Steps); i++ {
		if workflow.Steps[i].ID != stepID {
			continue
		}

		if workflow.Steps[i].Status != models.StepStatusPending {
			return fmt.Errorf("remove: step %s is %s, only pending steps can be removed", stepID, workflow.Steps[i].Status)
		}

		workflow.Steps = append(workflow.Steps[:i], workflow.Steps[i+1:]...)

		return nil
	}

	return fmt.Errorf("remove: no remaining step %s in workflow %s", stepID, workflow.ID)
}

// reorderRemaining moves a remaining step to the given position within the
// remaining plan, zero being the next step to execute.
func reorderRemaining(workflow *models.Workflow, stepID string, toIndex int) error {
	base := workflow.CurrentStepIndex

	from := -1

	for i := base; i < len(workflow.Steps); i++ {
		if workflow.Steps[i].ID == stepID {
			from = i

			break
		}
	}

	if from < 0 {
		return fmt.Errorf("reorder: no remaining step %s in workflow %s", stepID, workflow.ID)
	}

	to := base + toIndex
	if to < base || to >= len(workflow.Steps) {
		return fmt.Errorf("reorder: position %d out of range for workflow %s", toIndex, workflow.ID)
	}

	step := workflow.Steps[from]
	workflow.Steps = append(workflow.Steps[:from], workflow.Steps[from+1:]...)

	tail := append([]*models.Step{}, workflow.Steps[to:]...)
	workflow.Steps = append(workflow.Steps[:to], append([]*models.Step{step}, tail...)...)

	return nil
}
