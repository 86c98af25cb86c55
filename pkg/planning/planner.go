package planning

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/errandlabs/errand/pkg/models"
)

// RulePlanner is a deterministic keyword-driven planner. It implements the
// same contract an LLM-backed planner would: one step at a time, informed by
// everything gathered so far.
type RulePlanner struct {
	// ConfidenceThreshold gates NeedsInput when domain resolution is weak.
	ConfidenceThreshold float64
}

// NewRulePlanner creates a planner with the given confidence threshold.
func NewRulePlanner(confidenceThreshold float64) *RulePlanner {
	return &RulePlanner{ConfidenceThreshold: confidenceThreshold}
}

func (p *RulePlanner) PlanNext(_ context.Context, workflow *models.Workflow) (PlanDecision, error) {
	// A step already planned and not yet finished is always next. This is
	// how the loop re-enters a confirmed step after the confirmation gate.
	if current := workflow.CurrentStep(); current != nil && !current.Status.Finished() {
		return PlanDecision{Kind: PlanNextStep, Step: current}, nil
	}

	// Domain resolution considers the original request plus any merged
	// clarifications.
	text := workflow.OriginalRequest
	for _, input := range userInputs(workflow) {
		text += " " + input
	}

	candidates := detectDomains(text)

	confidence := 0.9
	if len(candidates) == 0 {
		confidence = 0.2
	}

	if confidence < p.ConfidenceThreshold {
		return PlanDecision{
			Kind:         PlanNeedsInput,
			RequiredInfo: "which of email, calendar, contacts, or messaging this request concerns",
		}, nil
	}

	goalDomain, _ := pickDomain(candidates, workflow)
	risk := detectRisk(workflow.OriginalRequest)

	// Goal already satisfied by gathered data: done, regardless of whether
	// any steps remain.
	if workflow.HasData(outcomeKeyPrefix + string(goalDomain)) {
		return PlanDecision{Kind: PlanComplete, Summary: gatheredSummary(workflow)}, nil
	}

	// Mutating requests that name people need their contact details first.
	if risk.RequiresConfirmation() {
		for _, name := range extractRecipients(workflow.OriginalRequest) {
			if workflow.HasData(contactKeyPrefix + name) {
				continue
			}

			lookup := models.NewStep(
				fmt.Sprintf("Look up contact details for %s", name),
				models.DomainContacts,
				fmt.Sprintf("find the contact details for %s", name),
				models.RiskRead,
			)

			if workflow.HasData(blockedKeyPrefix + fingerprint(lookup.TargetDomain, lookup.Request)) {
				continue
			}

			return PlanDecision{Kind: PlanNextStep, Step: lookup}, nil
		}
	}

	goal := models.NewStep(
		goalDescription(goalDomain, risk),
		goalDomain,
		goalRequest(workflow),
		risk,
	)

	// A step that has already failed twice with an equivalent request is
	// blocked; planning it again would loop forever. Hand the problem back
	// to the user instead.
	if workflow.HasData(blockedKeyPrefix + fingerprint(goal.TargetDomain, goal.Request)) {
		return PlanDecision{
			Kind: PlanNeedsInput,
			RequiredInfo: fmt.Sprintf(
				"a different way to accomplish this: the %s agent could not complete %q",
				goalDomain, workflow.OriginalRequest,
			),
		}, nil
	}

	return PlanDecision{Kind: PlanNextStep, Step: goal}, nil
}

func goalDescription(domain models.Domain, risk models.RiskLevel) string {
	verb := "Look up information in"
	if risk.RequiresConfirmation() {
		verb = "Carry out the requested change in"
	}

	return fmt.Sprintf("%s the %s domain", verb, domain)
}

// goalRequest builds the natural-language request for the goal step,
// enriching the original text with contact details gathered by prerequisite
// lookups.
func goalRequest(workflow *models.Workflow) string {
	request := workflow.OriginalRequest

	var details []string

	for key, value := range workflow.GatheredData {
		if strings.HasPrefix(key, contactKeyPrefix) {
			if text, ok := value.(string); ok {
				details = append(details, fmt.Sprintf("%s is %s", strings.TrimPrefix(key, contactKeyPrefix), text))
			}
		}
	}

	if len(details) > 0 {
		sort.Strings(details)
		request += " (" + strings.Join(details, "; ") + ")"
	}

	return request
}

// gatheredSummary assembles a completion summary from recorded step
// summaries, most recent last.
func gatheredSummary(workflow *models.Workflow) string {
	var parts []string

	for _, step := range workflow.Steps {
		if step.Status == models.StepStatusCompleted && step.Result != nil && step.Result.Summary != "" {
			parts = append(parts, step.Result.Summary)
		}
	}

	if len(parts) == 0 {
		return "Done."
	}

	return strings.Join(parts, " ")
}
