// Package orchestrator implements the conversational task engine: an
// iterative plan-execute-analyze loop over persisted workflows, with
// confirmation gating for side-effecting steps and interruption handling for
// messages that arrive mid-task.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/errandlabs/errand/pkg/config"
	"github.com/errandlabs/errand/pkg/eventbus"
	"github.com/errandlabs/errand/pkg/events"
	"github.com/errandlabs/errand/pkg/gateway"
	"github.com/errandlabs/errand/pkg/log"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/planning"
	"github.com/errandlabs/errand/pkg/store"
)

// Orchestrator drives workflows from user request to completion. It owns no
// state of its own; every decision is recomputed from the persisted workflow,
// so any instance can pick up any workflow.
type Orchestrator struct {
	store      store.Store
	gateway    gateway.Gateway
	planner    planning.Planner
	analyzer   planning.Analyzer
	classifier planning.Classifier
	bus        eventbus.EventBus
	logger     *slog.Logger
	tracer     trace.Tracer
	cfg        *config.Config
}

// New wires an orchestrator. A nil tracer disables tracing.
func New(
	cfg *config.Config,
	st store.Store,
	gw gateway.Gateway,
	planner planning.Planner,
	analyzer planning.Analyzer,
	classifier planning.Classifier,
	bus eventbus.EventBus,
	tracer trace.Tracer,
) *Orchestrator {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}

	return &Orchestrator{
		store:      st,
		gateway:    gw,
		planner:    planner,
		analyzer:   analyzer,
		classifier: classifier,
		bus:        bus,
		logger:     log.WithModule("orchestrator"),
		tracer:     tracer,
		cfg:        cfg,
	}
}

// HandleMessage is the conversational entry point. It routes the message to
// the session's active workflow when one exists, otherwise it starts a new
// workflow for the request.
func (o *Orchestrator) HandleMessage(ctx context.Context, sessionID, userID, text string) (*models.Response, error) {
	workflow, err := o.store.ActiveBySession(ctx, sessionID)
	if err != nil {
		if store.IsNoActiveWorkflow(err) {
			return o.Start(ctx, sessionID, userID, text)
		}

		return nil, err
	}

	return o.handleInterruption(ctx, workflow, text)
}

// Start creates a workflow for the request and runs the loop until it
// completes or suspends. The store enforces one open workflow per session.
func (o *Orchestrator) Start(ctx context.Context, sessionID, userID, request string) (*models.Response, error) {
	workflow := models.NewWorkflow(sessionID, userID, request)
	workflow.Touch(o.cfg.ActiveTTL.Std(), o.cfg.CompletedTTL.Std())

	if err := o.store.PutWorkflow(ctx, workflow); err != nil {
		return nil, fmt.Errorf("start workflow: %w", err)
	}

	o.logger.InfoContext(ctx, "workflow started",
		"workflow_id", workflow.ID, "session_id", sessionID)

	o.publish(ctx, workflow, events.WorkflowStarted{
		BaseEvent:       o.base(events.WorkflowStartedEvent, workflow),
		OriginalRequest: request,
	})

	return o.runLoop(ctx, workflow)
}

// Confirm approves the gated step of a workflow awaiting confirmation.
func (o *Orchestrator) Confirm(ctx context.Context, workflowID string) (*models.Response, error) {
	workflow, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusAwaitingConfirmation {
		return nil, ErrNotAwaitingConfirmation
	}

	step := workflow.CurrentStep()
	if step == nil || step.Status != models.StepStatusAwaitingConfirmation {
		return nil, ErrNotAwaitingConfirmation
	}

	draft, err := o.store.DraftByWorkflow(ctx, workflowID)
	if err != nil && !store.IsDraftNotFound(err) {
		return nil, err
	}

	if err != nil || draft.Expired(time.Now().UTC()) {
		return o.lapseConfirmation(ctx, workflow, step)
	}

	if err := step.Transition(models.StepStatusConfirmed); err != nil {
		return nil, err
	}

	if err := o.store.DeleteDraft(ctx, workflowID); err != nil && !store.IsDraftNotFound(err) {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusActive
	o.publish(ctx, workflow, events.WorkflowResumed{BaseEvent: o.base(events.WorkflowResumedEvent, workflow)})

	return o.runLoop(ctx, workflow)
}

// lapseConfirmation handles an approval that arrived after the confirmation
// window closed. The step fails rather than executing a stale draft, and the
// workflow suspends with a notice so the user can restate the action if it is
// still wanted. The engine never silently re-proposes the lapsed action.
func (o *Orchestrator) lapseConfirmation(ctx context.Context, workflow *models.Workflow, step *models.Step) (*models.Response, error) {
	step.Fail("confirmation_expired", "the confirmation expired before approval arrived")

	o.publish(ctx, workflow, events.DraftExpired{
		BaseEvent: o.base(events.DraftExpiredEvent, workflow),
		StepID:    step.ID,
	})
	o.publishStepFailed(ctx, workflow, step)

	if workflow.CurrentStep() == step {
		workflow.CurrentStepIndex++
	}

	if err := o.store.DeleteDraft(ctx, workflow.ID); err != nil && !store.IsDraftNotFound(err) {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusAwaitingUserInput
	if err := o.save(ctx, workflow); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "confirmation lapsed",
		"workflow_id", workflow.ID, "step_id", step.ID)

	o.publish(ctx, workflow, events.WorkflowAwaitingInput{
		BaseEvent:    o.base(events.WorkflowAwaitingInputEvent, workflow),
		RequiredInfo: "whether the lapsed action is still wanted",
	})

	return &models.Response{
		Message:    "That confirmation expired before your approval arrived, so I didn't go ahead. Tell me again if you still want it done.",
		WorkflowID: workflow.ID,
		NeedsInput: true,
	}, nil
}

// Deny declines the gated step. The step is skipped, never executed, and the
// engine will not plan an equivalent step again without new user input.
func (o *Orchestrator) Deny(ctx context.Context, workflowID string) (*models.Response, error) {
	workflow, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusAwaitingConfirmation {
		return nil, ErrNotAwaitingConfirmation
	}

	step := workflow.CurrentStep()
	if step == nil || step.Status != models.StepStatusAwaitingConfirmation {
		return nil, ErrNotAwaitingConfirmation
	}

	if err := o.store.DeleteDraft(ctx, workflowID); err != nil && !store.IsDraftNotFound(err) {
		return nil, err
	}

	if err := step.Transition(models.StepStatusSkipped); err != nil {
		return nil, err
	}

	planning.Block(workflow, step, "denied by user")
	workflow.CurrentStepIndex++
	workflow.Status = models.WorkflowStatusActive

	o.logger.InfoContext(ctx, "step denied",
		"workflow_id", workflow.ID, "step_id", step.ID)

	return o.runLoop(ctx, workflow)
}

// Resume supplies the input a suspended workflow asked for and continues it.
func (o *Orchestrator) Resume(ctx context.Context, workflowID, input string) (*models.Response, error) {
	workflow, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusAwaitingUserInput &&
		workflow.Status != models.WorkflowStatusPaused {
		return nil, ErrNotSuspended
	}

	if strings.TrimSpace(input) != "" {
		workflow.Record("input", input)
	}

	workflow.Status = models.WorkflowStatusActive
	o.publish(ctx, workflow, events.WorkflowResumed{BaseEvent: o.base(events.WorkflowResumedEvent, workflow)})

	return o.runLoop(ctx, workflow)
}

// Cancel abandons a workflow, releasing its session.
func (o *Orchestrator) Cancel(ctx context.Context, workflowID string) (*models.Response, error) {
	workflow, err := o.store.GetWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status.Terminal() {
		return nil, ErrWorkflowTerminal
	}

	if err := o.store.DeleteDraft(ctx, workflowID); err != nil && !store.IsDraftNotFound(err) {
		return nil, err
	}

	workflow.Status = models.WorkflowStatusCancelled
	if err := o.save(ctx, workflow); err != nil {
		return nil, err
	}

	o.logger.InfoContext(ctx, "workflow cancelled", "workflow_id", workflow.ID)
	o.publish(ctx, workflow, events.WorkflowCancelled{BaseEvent: o.base(events.WorkflowCancelledEvent, workflow)})

	return &models.Response{
		Message:    "Okay, I've dropped that task.",
		WorkflowID: workflow.ID,
	}, nil
}

// Get returns a workflow by ID.
func (o *Orchestrator) Get(ctx context.Context, workflowID string) (*models.Workflow, error) {
	return o.store.GetWorkflow(ctx, workflowID)
}

// handleInterruption routes a message that arrived while the session already
// has an open workflow.
func (o *Orchestrator) handleInterruption(ctx context.Context, workflow *models.Workflow, text string) (*models.Response, error) {
	// A pending confirmation resolves from plain approval or refusal without
	// consulting the classifier. Whole-task cancellations fall through to the
	// classifier, which clears the workflow instead of skipping one step.
	if workflow.Status == models.WorkflowStatusAwaitingConfirmation {
		if planning.IsAffirmative(text) {
			return o.Confirm(ctx, workflow.ID)
		}

		if planning.IsNegative(text) && !planning.IsCancellation(text) {
			return o.Deny(ctx, workflow.ID)
		}
	}

	interruption, err := o.classifier.Classify(ctx, text, workflow)
	if err != nil {
		return nil, fmt.Errorf("classify interruption: %w", err)
	}

	o.logger.InfoContext(ctx, "interruption classified",
		"workflow_id", workflow.ID, "kind", interruption.Kind, "confidence", interruption.Confidence)

	switch interruption.Kind {
	case planning.InterruptContinue:
		workflow.Record("input", text)

		switch workflow.Status {
		case models.WorkflowStatusAwaitingUserInput, models.WorkflowStatusPaused:
			workflow.Status = models.WorkflowStatusActive
			o.publish(ctx, workflow, events.WorkflowResumed{BaseEvent: o.base(events.WorkflowResumedEvent, workflow)})

		case models.WorkflowStatusAwaitingConfirmation:
			// The addition is folded into planning once the pending
			// confirmation resolves; the workflow stays suspended.
			if err := o.save(ctx, workflow); err != nil {
				return nil, err
			}

			return &models.Response{
				Message:           "Got it, I'll fold that in. I still need a yes or no on the pending action first.",
				WorkflowID:        workflow.ID,
				NeedsConfirmation: true,
			}, nil
		}

		return o.runLoop(ctx, workflow)

	case planning.InterruptClear:
		return o.Cancel(ctx, workflow.ID)

	case planning.InterruptPause:
		// The workflow must come out of a pause byte-identical, so the aside
		// is answered without persisting anything.
		return o.answerAside(ctx, workflow, text)

	default:
		return &models.Response{
			Message:    interruption.Question,
			WorkflowID: workflow.ID,
			NeedsInput: true,
		}, nil
	}
}

// answerAside handles an unrelated read-only question without touching the
// active workflow. Anything side-effecting has to wait for the current task.
func (o *Orchestrator) answerAside(ctx context.Context, workflow *models.Workflow, text string) (*models.Response, error) {
	reminder := fmt.Sprintf("I'm still working on %q.", workflow.OriginalRequest)

	domain, ok := planning.DetectDomain(text)
	if !ok || planning.DetectRisk(text).RequiresConfirmation() {
		return &models.Response{
			Message:    "I can't start that while another task is in progress. " + reminder + " Say \"cancel\" to drop it.",
			WorkflowID: workflow.ID,
		}, nil
	}

	reqCtx, cancel := context.WithTimeout(ctx, o.cfg.StepTimeout.Std())
	defer cancel()

	resp, err := o.gateway.Send(reqCtx, gateway.Request{
		Domain:         domain,
		Text:           text,
		IdempotencyKey: "aside:" + uuid.New().String() + ":0",
	})
	if err != nil {
		gerr := gateway.Classify(err)

		return &models.Response{
			Message:    fmt.Sprintf("I couldn't look that up right now (%s). %s", gerr.Message, reminder),
			WorkflowID: workflow.ID,
		}, nil
	}

	message := resp.Summary
	if !resp.Success && resp.Err != nil {
		message = fmt.Sprintf("I couldn't look that up: %s.", resp.Err.Message)
	}

	return &models.Response{
		Message:    message + " " + reminder,
		WorkflowID: workflow.ID,
	}, nil
}

// save touches TTLs and persists with optimistic concurrency.
func (o *Orchestrator) save(ctx context.Context, workflow *models.Workflow) error {
	workflow.Touch(o.cfg.ActiveTTL.Std(), o.cfg.CompletedTTL.Std())

	if err := o.store.PutWorkflow(ctx, workflow); err != nil {
		return fmt.Errorf("persist workflow %s: %w", workflow.ID, err)
	}

	return nil
}

func (o *Orchestrator) base(eventType events.EventType, workflow *models.Workflow) events.BaseEvent {
	return events.BaseEvent{
		ID:         o.bus.GenerateID(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflow.ID,
		SessionID:  workflow.SessionID,
	}
}

// publish emits a lifecycle event. Event delivery is best-effort; a broker
// hiccup never fails the workflow.
func (o *Orchestrator) publish(ctx context.Context, workflow *models.Workflow, event eventbus.Event) {
	if err := o.bus.Publish(ctx, workflow.ID, event); err != nil {
		o.logger.WarnContext(ctx, "failed to publish event",
			"workflow_id", workflow.ID, "event_type", event.GetType(), "error", err)
	}
}

func (o *Orchestrator) publishStepFailed(ctx context.Context, workflow *models.Workflow, step *models.Step) {
	o.publish(ctx, workflow, events.WorkflowStepFailed{
		BaseEvent: o.base(events.WorkflowStepFailedEvent, workflow),
		StepID:    step.ID,
		Domain:    step.TargetDomain,
		Reason:    step.FailureReason,
	})
}
