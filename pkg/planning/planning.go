// Package planning defines the decision points the orchestrator loop depends
// on (next-step planning, result analysis, interruption classification) as
// pure functions of workflow context with tagged-variant outputs. The loop is
// agnostic to how a decision is computed; this package also ships
// deterministic rule-based implementations.
package planning

import (
	"context"

	"github.com/errandlabs/errand/pkg/models"
)

// PlanKind tags the planner's decision.
type PlanKind string

const (
	PlanNextStep   PlanKind = "next_step"
	PlanComplete   PlanKind = "complete"
	PlanNeedsInput PlanKind = "needs_input"
)

// PlanDecision is the planner's output: exactly one next step, completion,
// or a request for more information. Never a full multi-step plan.
type PlanDecision struct {
	Kind PlanKind

	// Step is set for PlanNextStep. It may reference an existing pending
	// step or a newly planned one.
	Step *models.Step

	// Summary is set for PlanComplete.
	Summary string

	// RequiredInfo describes what is missing for PlanNeedsInput. It is a
	// description, not a user-facing question; phrasing the question is the
	// orchestrator's job.
	RequiredInfo string
}

// Planner decides the single next step for a workflow.
type Planner interface {
	PlanNext(ctx context.Context, workflow *models.Workflow) (PlanDecision, error)
}

// AnalysisKind tags the result analyzer's decision.
type AnalysisKind string

const (
	AnalysisContinue   AnalysisKind = "continue"
	AnalysisAdapt      AnalysisKind = "adapt"
	AnalysisNeedsInput AnalysisKind = "needs_input"
	AnalysisComplete   AnalysisKind = "complete"
	AnalysisFailed     AnalysisKind = "failed"
)

// OpKind tags a plan modification operation.
type OpKind string

const (
	OpInsert  OpKind = "insert"
	OpRemove  OpKind = "remove"
	OpReorder OpKind = "reorder"
	OpSkip    OpKind = "skip"
)

// PlanOp is one idempotent, position-renumbering plan edit. Edits apply
// only to the not-yet-executed portion of the plan.
type PlanOp struct {
	Kind OpKind

	// Steps holds the new steps for OpInsert.
	Steps []*models.Step

	// StepID targets an existing step for OpRemove, OpReorder, and OpSkip.
	StepID string

	// ToIndex is the destination position within the remaining steps for
	// OpReorder.
	ToIndex int
}

// Analysis is the result analyzer's output.
type Analysis struct {
	Kind AnalysisKind

	// Ops holds plan modifications for AnalysisAdapt.
	Ops []PlanOp

	// RequiredInfo is set for AnalysisNeedsInput.
	RequiredInfo string

	// Summary is set for AnalysisComplete, Reason for AnalysisFailed.
	Summary string
	Reason  string
}

// Analyzer inspects an executed step against the workflow goal.
type Analyzer interface {
	Analyze(ctx context.Context, step *models.Step, workflow *models.Workflow) (Analysis, error)
}

// InterruptKind tags the interruption classifier's decision.
type InterruptKind string

const (
	InterruptContinue InterruptKind = "continue"
	InterruptPause    InterruptKind = "pause"
	InterruptClear    InterruptKind = "clear"
	InterruptAskUser  InterruptKind = "ask_user"
)

// Interruption is the classifier's output for a message arriving while a
// workflow is active.
type Interruption struct {
	Kind       InterruptKind
	Confidence float64

	// Question is a clarifying question for InterruptAskUser.
	Question string
}

// Classifier decides how a new user message relates to the active workflow.
type Classifier interface {
	Classify(ctx context.Context, input string, workflow *models.Workflow) (Interruption, error)
}
