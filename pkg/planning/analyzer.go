package planning

import (
	"context"
	"fmt"

	"github.com/errandlabs/errand/pkg/models"
)

// RuleAnalyzer inspects an executed step's concrete result against the
// original request and decides how the loop proceeds. Like the planner, it
// is a deterministic stand-in for a model-backed analyzer behind the same
// contract.
type RuleAnalyzer struct{}

// NewRuleAnalyzer creates a rule-based result analyzer.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

func (a *RuleAnalyzer) Analyze(_ context.Context, step *models.Step, workflow *models.Workflow) (Analysis, error) {
	switch step.Status {
	case models.StepStatusCompleted:
		return a.analyzeSuccess(step, workflow), nil
	case models.StepStatusFailed:
		return a.analyzeFailure(step, workflow), nil
	default:
		// Skipped steps carry no new information; keep planning.
		return Analysis{Kind: AnalysisContinue}, nil
	}
}

func (a *RuleAnalyzer) analyzeSuccess(step *models.Step, workflow *models.Workflow) Analysis {
	a.recordOutcome(step, workflow)

	ops := a.pendingAdaptations(workflow)
	if len(ops) > 0 {
		return Analysis{Kind: AnalysisAdapt, Ops: ops}
	}

	// The workflow is complete when the goal domain has produced a result,
	// not merely when the plan is exhausted.
	if goalDomain, ok := goalDomainOf(workflow); ok && step.TargetDomain == goalDomain {
		summary := gatheredSummary(workflow)

		return Analysis{Kind: AnalysisComplete, Summary: summary}
	}

	return Analysis{Kind: AnalysisContinue}
}

func (a *RuleAnalyzer) analyzeFailure(step *models.Step, workflow *models.Workflow) Analysis {
	switch step.FailureReason {
	case "auth":
		return Analysis{
			Kind:   AnalysisFailed,
			Reason: fmt.Sprintf("the %s account's credentials are invalid or expired", step.TargetDomain),
		}

	case "not_found", "ambiguous":
		info := step.FailureReason
		if step.Result != nil && step.Result.Summary != "" {
			info = step.Result.Summary
		}

		return Analysis{Kind: AnalysisNeedsInput, RequiredInfo: info}
	}

	// transient (retries exhausted), validation, confirmation_expired: the
	// step may be re-planned once. A second failure with a functionally
	// equivalent request is skipped, never retried a third time.
	if equivalentFailures(workflow, step) >= 2 {
		workflow.Record(blockedKeyPrefix+fingerprint(step.TargetDomain, step.Request), true)

		return Analysis{
			Kind: AnalysisAdapt,
			Ops:  []PlanOp{{Kind: OpSkip, StepID: step.ID}},
		}
	}

	return Analysis{Kind: AnalysisContinue}
}

// recordOutcome appends the step's result to the workflow's gathered data.
func (a *RuleAnalyzer) recordOutcome(step *models.Step, workflow *models.Workflow) {
	if step.Result == nil {
		return
	}

	value := any(step.Result.Summary)
	if len(step.Result.Data) > 0 {
		value = step.Result.Data
	}

	workflow.Record(outcomeKeyPrefix+string(step.TargetDomain), value)

	// Contact lookups additionally index their subject by name so later
	// planning can enrich requests with the resolved details.
	if step.TargetDomain == models.DomainContacts {
		for _, name := range extractRecipients(step.Request) {
			detail := step.Result.Summary
			if email, ok := step.Result.Data["email"].(string); ok {
				detail = email
			}

			workflow.Record(contactKeyPrefix+name, detail)
		}
	}
}

// pendingAdaptations turns unhandled mid-task user additions into plan
// inserts and drops remaining lookups already answered by gathered data.
func (a *RuleAnalyzer) pendingAdaptations(workflow *models.Workflow) []PlanOp {
	var ops []PlanOp

	goalDomain, hasGoal := goalDomainOf(workflow)

	for key, input := range userInputs(workflow) {
		if workflow.HasData(handledKeyPrefix + key) {
			continue
		}

		workflow.Record(handledKeyPrefix+key, true)

		names := extractRecipients(input)
		if len(names) == 0 || !hasGoal {
			continue
		}

		var inserted []*models.Step

		for _, name := range names {
			if !workflow.HasData(contactKeyPrefix + name) {
				inserted = append(inserted, models.NewStep(
					fmt.Sprintf("Look up contact details for %s", name),
					models.DomainContacts,
					fmt.Sprintf("find the contact details for %s", name),
					models.RiskRead,
				))
			}

			inserted = append(inserted, models.NewStep(
				fmt.Sprintf("Include %s: %s", name, input),
				goalDomain,
				fmt.Sprintf("%s (in the context of: %s)", input, workflow.OriginalRequest),
				detectRisk(workflow.OriginalRequest),
			))
		}

		if len(inserted) > 0 {
			ops = append(ops, PlanOp{Kind: OpInsert, Steps: inserted})
		}
	}

	// Remaining lookups whose answer is already gathered are redundant.
	for _, step := range workflow.RemainingSteps() {
		if step.Status != models.StepStatusPending || step.TargetDomain != models.DomainContacts {
			continue
		}

		for _, name := range extractRecipients(step.Request) {
			if workflow.HasData(contactKeyPrefix + name) {
				ops = append(ops, PlanOp{Kind: OpRemove, StepID: step.ID})

				break
			}
		}
	}

	return ops
}

// goalDomainOf resolves the domain the original request targets.
func goalDomainOf(workflow *models.Workflow) (models.Domain, bool) {
	text := workflow.OriginalRequest
	for _, input := range userInputs(workflow) {
		text += " " + input
	}

	return pickDomain(detectDomains(text), workflow)
}

// equivalentFailures counts failed steps whose requests are functionally
// equivalent to the given step, the given step included.
func equivalentFailures(workflow *models.Workflow, step *models.Step) int {
	target := fingerprint(step.TargetDomain, step.Request)
	count := 0

	for _, other := range workflow.Steps {
		if other.Status != models.StepStatusFailed && other.Status != models.StepStatusSkipped {
			continue
		}

		if fingerprint(other.TargetDomain, other.Request) == target {
			count++
		}
	}

	return count
}
