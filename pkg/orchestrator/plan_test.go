package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/planning"
)

func planFixture() *models.Workflow {
	workflow := models.NewWorkflow("s1", "u1", "Email the quarterly report to John")

	done := models.NewStep("Lookup", models.DomainContacts, "find john", models.RiskRead)
	done.Status = models.StepStatusCompleted
	a := models.NewStep("A", models.DomainEmail, "draft the email", models.RiskWrite)
	b := models.NewStep("B", models.DomainEmail, "send the email", models.RiskWrite)

	workflow.Steps = []*models.Step{done, a, b}
	workflow.CurrentStepIndex = 1
	workflow.Renumber()

	return workflow
}

func TestApplyPlanOpsInsertGoesBeforeRemainingSteps(t *testing.T) {
	t.Parallel()

	workflow := planFixture()
	inserted := models.NewStep("New", models.DomainContacts, "find lisa", models.RiskRead)

	err := applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpInsert, Steps: []*models.Step{inserted}}})
	require.NoError(t, err)

	require.Len(t, workflow.Steps, 4)
	assert.Equal(t, "Lookup", workflow.Steps[0].Description, "history is untouched")
	assert.Equal(t, "New", workflow.Steps[1].Description)
	assert.Equal(t, 2, inserted.SequenceNumber)
}

func TestApplyPlanOpsRemoveOnlyTouchesPendingTail(t *testing.T) {
	t.Parallel()

	workflow := planFixture()
	b := workflow.Steps[2]

	err := applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpRemove, StepID: b.ID}})
	require.NoError(t, err)
	require.Len(t, workflow.Steps, 2)

	// Executed steps cannot be removed.
	err = applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpRemove, StepID: workflow.Steps[0].ID}})
	assert.Error(t, err)
}

func TestApplyPlanOpsReorder(t *testing.T) {
	t.Parallel()

	workflow := planFixture()
	b := workflow.Steps[2]

	err := applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpReorder, StepID: b.ID, ToIndex: 0}})
	require.NoError(t, err)

	assert.Equal(t, "B", workflow.Steps[1].Description)
	assert.Equal(t, "A", workflow.Steps[2].Description)
	assert.Equal(t, []int{1, 2, 3}, []int{
		workflow.Steps[0].SequenceNumber,
		workflow.Steps[1].SequenceNumber,
		workflow.Steps[2].SequenceNumber,
	})

	err = applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpReorder, StepID: b.ID, ToIndex: 5}})
	assert.Error(t, err)
}

func TestApplyPlanOpsSkipFailedStep(t *testing.T) {
	t.Parallel()

	workflow := planFixture()
	failed := models.NewStep("Broken", models.DomainEmail, "send it", models.RiskWrite)
	failed.Fail("transient", "agent unreachable")
	workflow.Steps = append(workflow.Steps, failed)

	err := applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpSkip, StepID: failed.ID}})
	require.NoError(t, err)
	assert.Equal(t, models.StepStatusSkipped, failed.Status)

	// Completed steps stay completed.
	err = applyPlanOps(workflow, []planning.PlanOp{{Kind: planning.OpSkip, StepID: workflow.Steps[0].ID}})
	assert.Error(t, err)
}
