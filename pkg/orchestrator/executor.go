package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/errandlabs/errand/pkg/gateway"
	"github.com/errandlabs/errand/pkg/models"
	"github.com/errandlabs/errand/pkg/otelhelper"
)

// idempotencyKey identifies one dispatch attempt. The same workflow, step,
// and attempt always produce the same key, so a retried send after a lost
// response cannot double-execute on the agent side.
func idempotencyKey(workflow *models.Workflow, step *models.Step) string {
	return fmt.Sprintf("%s:%s:%d", workflow.ID, step.ID, step.RetryCount)
}

// executeStep dispatches the step to its domain agent, retrying transient
// failures with exponential backoff up to the step's retry budget. The step
// ends either completed or failed; the error taxonomy lands in FailureReason.
func (o *Orchestrator) executeStep(ctx context.Context, workflow *models.Workflow, step *models.Step, logger *slog.Logger) {
	if err := step.Transition(models.StepStatusExecuting); err != nil {
		step.Fail(string(gateway.KindValidation), err.Error())

		return
	}

	if step.MaxRetries == 0 {
		step.MaxRetries = o.cfg.MaxRetries
	}

	for {
		key := idempotencyKey(workflow, step)

		dispatchCtx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.dispatch",
			attribute.String(otelhelper.StepIDKey, step.ID),
			attribute.String(otelhelper.StepDomainKey, string(step.TargetDomain)),
			attribute.String(otelhelper.StepRiskKey, string(step.RiskLevel)),
			attribute.Int(otelhelper.IterationKey, workflow.IterationCount),
			attribute.String(otelhelper.IdempotencyKeyKey, key),
		)

		reqCtx, cancel := context.WithTimeout(dispatchCtx, o.cfg.StepTimeout.Std())
		resp, err := o.gateway.Send(reqCtx, gateway.Request{
			Domain:         step.TargetDomain,
			Text:           step.Request,
			IdempotencyKey: key,
		})
		cancel()

		var agentErr *gateway.Error

		switch {
		case err != nil:
			agentErr = gateway.Classify(err)

		case !resp.Success:
			agentErr = resp.Err
			if agentErr == nil {
				agentErr = gateway.NewError(gateway.KindValidation, "agent reported failure without detail")
			}

		default:
			step.Result = &models.StepResult{
				Success:   true,
				Data:      resp.Data,
				Summary:   resp.Summary,
				ToolsUsed: resp.ToolsUsed,
			}
			// executing -> completed is always legal.
			_ = step.Transition(models.StepStatusCompleted)

			span.End()
			logger.InfoContext(ctx, "step completed",
				"step_id", step.ID, "domain", step.TargetDomain, "attempt", step.RetryCount)

			return
		}

		otelhelper.SetError(span, agentErr)
		span.End()

		if agentErr.Retryable() && step.RetryCount < step.MaxRetries && ctx.Err() == nil {
			step.RetryCount++
			backoff := o.cfg.RetryBackoff.Std() * (1 << (step.RetryCount - 1))

			logger.WarnContext(ctx, "step dispatch failed, retrying",
				"step_id", step.ID, "attempt", step.RetryCount, "backoff", backoff, "error", agentErr)

			select {
			case <-ctx.Done():
				step.Fail(string(gateway.KindTransient), "dispatch cancelled: "+ctx.Err().Error())

				return
			case <-time.After(backoff):
			}

			continue
		}

		step.Fail(string(agentErr.Kind), agentErr.Message)
		logger.WarnContext(ctx, "step failed",
			"step_id", step.ID, "domain", step.TargetDomain, "reason", step.FailureReason)

		return
	}
}
