package planning

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/errandlabs/errand/pkg/models"
)

func TestRulePlannerPlansContactLookupBeforeMutatingGoal(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Email the quarterly report to John")

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	require.Equal(t, PlanNextStep, decision.Kind)
	require.NotNil(t, decision.Step)
	assert.Equal(t, models.DomainContacts, decision.Step.TargetDomain)
	assert.Equal(t, models.RiskRead, decision.Step.RiskLevel)
	assert.Contains(t, decision.Step.Request, "John")
}

func TestRulePlannerEnrichesGoalWithGatheredContacts(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Email the quarterly report to John")
	workflow.Record("contact:John", "john@example.com")

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	require.Equal(t, PlanNextStep, decision.Kind)
	assert.Equal(t, models.DomainEmail, decision.Step.TargetDomain)
	assert.Equal(t, models.RiskWrite, decision.Step.RiskLevel)
	assert.Contains(t, decision.Step.Request, "john@example.com")
}

func TestRulePlannerCompletesWhenGoalOutcomeGathered(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Check my email for anything urgent")
	workflow.Record("outcome:email", map[string]any{"unread": 3})

	step := models.NewStep("Check inbox", models.DomainEmail, "check inbox", models.RiskRead)
	step.Status = models.StepStatusCompleted
	step.Result = &models.StepResult{Success: true, Summary: "3 unread messages, none urgent."}
	workflow.Steps = append(workflow.Steps, step)
	workflow.CurrentStepIndex = 1

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	assert.Equal(t, PlanComplete, decision.Kind)
	assert.Contains(t, decision.Summary, "3 unread messages")
}

func TestRulePlannerAsksForInputOnUnresolvableDomain(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Sort out the usual thing")

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	assert.Equal(t, PlanNeedsInput, decision.Kind)
	assert.NotEmpty(t, decision.RequiredInfo)
}

func TestRulePlannerUsesClarificationToResolveDomain(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Sort out the usual thing")
	workflow.Record("input", "I mean my calendar for tomorrow")

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	require.Equal(t, PlanNextStep, decision.Kind)
	assert.Equal(t, models.DomainCalendar, decision.Step.TargetDomain)
}

func TestRulePlannerReturnsUnfinishedCurrentStep(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Email the report to John")

	pending := models.NewStep("Send report", models.DomainEmail, "send the report to john", models.RiskWrite)
	pending.Status = models.StepStatusConfirmed
	workflow.Steps = append(workflow.Steps, pending)

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	require.Equal(t, PlanNextStep, decision.Kind)
	assert.Same(t, pending, decision.Step)
}

func TestRulePlannerRefusesToReplanBlockedGoal(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Check my email for anything urgent")

	goal := models.NewStep(
		goalDescription(models.DomainEmail, models.RiskRead),
		models.DomainEmail,
		goalRequest(workflow),
		models.RiskRead,
	)
	workflow.Record(blockedKeyPrefix+fingerprint(goal.TargetDomain, goal.Request), true)

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	assert.Equal(t, PlanNeedsInput, decision.Kind)
	assert.Contains(t, decision.RequiredInfo, "different way")
}

func TestRulePlannerReadRequestSkipsContactLookup(t *testing.T) {
	t.Parallel()

	planner := NewRulePlanner(0.5)
	workflow := models.NewWorkflow("session-1", "user-1", "Check my calendar for meetings with Sarah")

	decision, err := planner.PlanNext(t.Context(), workflow)
	require.NoError(t, err)

	require.Equal(t, PlanNextStep, decision.Kind)
	assert.Equal(t, models.DomainCalendar, decision.Step.TargetDomain)
	assert.Equal(t, models.RiskRead, decision.Step.RiskLevel)
}
