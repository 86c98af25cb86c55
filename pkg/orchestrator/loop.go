package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/errandlabs/errand/pkg/events"
	"github.com/errandlabs/errand/pkg/log"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/otelhelper"
	"github.com/errandlabs/errand/pkg/planning"
)

// runLoop drives the plan-execute-analyze cycle until the workflow reaches a
// terminal state or suspends waiting on the user. The workflow is persisted
// after every iteration so a crash never loses more than one cycle.
func (o *Orchestrator) runLoop(ctx context.Context, workflow *models.Workflow) (*models.Response, error) {
	logger := log.WithWorkflow(o.logger, workflow.ID, workflow.SessionID)

	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.loop",
		attribute.String(otelhelper.WorkflowIDKey, workflow.ID),
		attribute.String(otelhelper.SessionIDKey, workflow.SessionID),
		attribute.String(otelhelper.UserIDKey, workflow.UserID),
	)
	defer span.End()

	var response *models.Response

	for workflow.Status == models.WorkflowStatusActive {
		if workflow.IterationCount >= o.cfg.MaxIterations {
			response = o.exhaust(ctx, workflow, logger)

			if err := o.save(ctx, workflow); err != nil {
				otelhelper.SetError(span, err)

				return nil, err
			}

			break
		}

		workflow.IterationCount++

		resp, err := o.iterate(ctx, workflow, logger)
		if err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}

		if resp != nil {
			response = resp
		}

		if err := o.save(ctx, workflow); err != nil {
			otelhelper.SetError(span, err)

			return nil, err
		}
	}

	if response == nil {
		response = &models.Response{
			Message:    "Nothing to do right now.",
			WorkflowID: workflow.ID,
		}
	}

	return response, nil
}

// iterate runs one plan-execute-analyze cycle. A panic anywhere in the
// planner, executor, or analyzer is converted into a failed step so a broken
// decision implementation degrades one step at a time instead of crashing the
// loop.
func (o *Orchestrator) iterate(ctx context.Context, workflow *models.Workflow, logger *slog.Logger) (response *models.Response, err error) {
	defer func() {
		r := recover()
		if r == nil {
			return
		}

		logger.ErrorContext(ctx, "iteration panicked", "panic", r)
		o.syntheticFailure(ctx, workflow, fmt.Sprintf("internal error: %v", r))

		response, err = nil, nil
	}()

	decision, err := o.planner.PlanNext(ctx, workflow)
	if err != nil {
		logger.ErrorContext(ctx, "planner failed", "iteration", workflow.IterationCount, "error", err)
		o.syntheticFailure(ctx, workflow, "planning error: "+err.Error())

		return nil, nil
	}

	switch decision.Kind {
	case planning.PlanComplete:
		return o.complete(ctx, workflow, decision.Summary), nil

	case planning.PlanNeedsInput:
		return o.suspendForInput(ctx, workflow, decision.RequiredInfo), nil

	default:
		return o.runStep(ctx, workflow, decision.Step, logger)
	}
}

// syntheticFailure records an engine-side fault as a failed step. The step in
// flight takes the failure when there is one; otherwise a placeholder step is
// appended so the fault shows up in the workflow history.
func (o *Orchestrator) syntheticFailure(ctx context.Context, workflow *models.Workflow, summary string) {
	step := workflow.CurrentStep()
	if step == nil || step.Status.Finished() {
		domain, ok := planning.DetectDomain(workflow.OriginalRequest)
		if !ok {
			domain = models.DomainEmail
		}

		step = models.NewStep("internal processing", domain, workflow.OriginalRequest, models.RiskRead)
		workflow.Steps = append(workflow.Steps, step)
		workflow.Renumber()
	}

	step.Fail("transient", summary)
	o.publishStepFailed(ctx, workflow, step)

	if workflow.CurrentStep() == step {
		workflow.CurrentStepIndex++
	}
}

// runStep places the step into the plan, gates it if it has side effects,
// executes it, and folds the result back into the workflow. A nil response
// means the loop should keep iterating.
func (o *Orchestrator) runStep(ctx context.Context, workflow *models.Workflow, step *models.Step, logger *slog.Logger) (*models.Response, error) {
	if workflow.StepByID(step.ID) == nil {
		insertSteps(workflow, step)
		workflow.Renumber()
	}

	if step.RiskLevel.RequiresConfirmation() && step.Status == models.StepStatusPending {
		return o.gate(ctx, workflow, step)
	}

	o.executeStep(ctx, workflow, step, logger)

	if step.Status == models.StepStatusCompleted {
		o.publish(ctx, workflow, events.WorkflowStepCompleted{
			BaseEvent: o.base(events.WorkflowStepCompletedEvent, workflow),
			StepID:    step.ID,
			Domain:    step.TargetDomain,
			Summary:   step.Result.Summary,
		})
	} else {
		o.publishStepFailed(ctx, workflow, step)
	}

	// The step is history now; plan edits below only touch what follows it.
	if workflow.CurrentStep() == step {
		workflow.CurrentStepIndex++
	}

	analysis, err := o.analyzer.Analyze(ctx, step, workflow)
	if err != nil {
		return nil, fmt.Errorf("analyze step %s: %w", step.ID, err)
	}

	switch analysis.Kind {
	case planning.AnalysisContinue:
		return nil, nil

	case planning.AnalysisAdapt:
		if err := applyPlanOps(workflow, analysis.Ops); err != nil {
			return nil, fmt.Errorf("adapt plan for workflow %s: %w", workflow.ID, err)
		}

		logger.InfoContext(ctx, "plan adapted", "ops", len(analysis.Ops))

		return nil, nil

	case planning.AnalysisNeedsInput:
		return o.suspendForInput(ctx, workflow, analysis.RequiredInfo), nil

	case planning.AnalysisComplete:
		return o.complete(ctx, workflow, analysis.Summary), nil

	default: // AnalysisFailed
		return o.fail(ctx, workflow, analysis.Reason), nil
	}
}

func (o *Orchestrator) complete(ctx context.Context, workflow *models.Workflow, summary string) *models.Response {
	workflow.Status = models.WorkflowStatusCompleted

	o.publish(ctx, workflow, events.WorkflowCompleted{
		BaseEvent:  o.base(events.WorkflowCompletedEvent, workflow),
		Summary:    summary,
		Iterations: workflow.IterationCount,
	})

	return &models.Response{
		Message:    summary,
		WorkflowID: workflow.ID,
	}
}

func (o *Orchestrator) suspendForInput(ctx context.Context, workflow *models.Workflow, requiredInfo string) *models.Response {
	workflow.Status = models.WorkflowStatusAwaitingUserInput

	o.publish(ctx, workflow, events.WorkflowAwaitingInput{
		BaseEvent:    o.base(events.WorkflowAwaitingInputEvent, workflow),
		RequiredInfo: requiredInfo,
	})

	return &models.Response{
		Message:    fmt.Sprintf("Before I continue, I need to know %s.", strings.TrimRight(requiredInfo, ".")),
		WorkflowID: workflow.ID,
		NeedsInput: true,
	}
}

func (o *Orchestrator) fail(ctx context.Context, workflow *models.Workflow, reason string) *models.Response {
	workflow.Status = models.WorkflowStatusFailed

	o.publish(ctx, workflow, events.WorkflowFailed{
		BaseEvent: o.base(events.WorkflowFailedEvent, workflow),
		Reason:    reason,
	})

	return &models.Response{
		Message:    fmt.Sprintf("I had to stop: %s. %s", strings.TrimRight(reason, "."), partialSummary(workflow)),
		WorkflowID: workflow.ID,
	}
}

// exhaust ends a workflow that hit its iteration budget, reporting whatever
// partial progress was made.
func (o *Orchestrator) exhaust(ctx context.Context, workflow *models.Workflow, logger *slog.Logger) *models.Response {
	workflow.Status = models.WorkflowStatusFailed

	logger.WarnContext(ctx, "iteration budget exhausted", "iterations", workflow.IterationCount)

	o.publish(ctx, workflow, events.WorkflowIterationExhausted{
		BaseEvent:  o.base(events.WorkflowIterationExhaustedEvent, workflow),
		Iterations: workflow.IterationCount,
	})
	o.publish(ctx, workflow, events.WorkflowFailed{
		BaseEvent: o.base(events.WorkflowFailedEvent, workflow),
		Reason:    "iteration budget exhausted",
	})

	return &models.Response{
		Message:    "I couldn't finish this within a reasonable number of steps. " + partialSummary(workflow),
		WorkflowID: workflow.ID,
	}
}

// partialSummary reports completed work for a workflow that ends early.
func partialSummary(workflow *models.Workflow) string {
	var parts []string

	for _, step := range workflow.Steps {
		if step.Status == models.StepStatusCompleted && step.Result != nil && step.Result.Summary != "" {
			parts = append(parts, step.Result.Summary)
		}
	}

	if len(parts) == 0 {
		return "No steps were completed."
	}

	return "So far: " + strings.Join(parts, " ")
}
