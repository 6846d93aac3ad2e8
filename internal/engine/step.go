package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"workflow-orchestrator/backend/internal/adapters"
	"workflow-orchestrator/backend/internal/payload"
	"workflow-orchestrator/backend/pkg/models"
)

type stepFailure struct {
	kind    models.ErrorKind
	message string
}

// invoke calls the step's adapter, retrying transient failures with
// exponential backoff. The step timeout covers every attempt and the waits
// between them.
func (r *runner) invoke(ctx context.Context, step plannedStep, input models.Payload) (models.Payload, int, *stepFailure) {
	c := step.component
	adapter, err := r.e.adapters.Resolve(c.EndpointType)
	if err != nil {
		return nil, 0, &stepFailure{kind: models.ErrorKindAdapterInvocation, message: err.Error()}
	}

	stepCtx, cancel := context.WithTimeoutCause(ctx, step.timeout, errStepTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.e.opts.InitialBackoff
	b.MaxInterval = r.e.opts.MaxBackoff
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(r.e.opts.MaxAttempts-1)), stepCtx)

	var (
		out      models.Payload
		attempts int
	)
	op := func() error {
		attempts++
		res, err := callAdapter(stepCtx, adapter, c, step.Config, input)
		switch {
		case err == nil:
			out = res
			return nil
		case stepCtx.Err() != nil, !adapters.IsRetryable(err):
			return backoff.Permanent(err)
		default:
			return err
		}
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("retrying step", "step_id", step.StepID, "component_id", c.ID,
			"attempt", attempts, "backoff", wait, "error", err)
		r.e.inst.retries.Add(r.store, 1, metric.WithAttributes(attribute.String("component.id", c.ID)))
	}

	err = backoff.RetryNotify(op, policy, notify)
	if err == nil {
		return out, attempts, nil
	}

	switch {
	case ctx.Err() != nil:
		return nil, attempts, &stepFailure{kind: models.ErrorKindCancelled, message: context.Cause(ctx).Error()}
	case stepCtx.Err() != nil:
		return nil, attempts, &stepFailure{kind: models.ErrorKindTimeout,
			message: fmt.Sprintf("step %d did not finish within %s", step.StepID, step.timeout)}
	case errors.Is(err, adapters.ErrContract):
		return nil, attempts, &stepFailure{kind: models.ErrorKindAdapterContract, message: err.Error()}
	default:
		msg := err.Error()
		if adapters.IsRetryable(err) {
			msg = fmt.Sprintf("giving up after %d attempts: %s", attempts, msg)
		}
		return nil, attempts, &stepFailure{kind: models.ErrorKindAdapterInvocation, message: msg}
	}
}

// callAdapter runs one attempt in its own goroutine so that an adapter
// ignoring ctx cannot block the run past its deadline.
func callAdapter(ctx context.Context, a adapters.Adapter, c *models.Component, config, input models.Payload) (models.Payload, error) {
	type result struct {
		out models.Payload
		err error
	}
	resultCh := make(chan result, 1)

	go func() {
		defer func() {
			if p := recover(); p != nil {
				resultCh <- result{err: adapters.Permanent(fmt.Errorf("adapter panicked: %v", p))}
			}
		}()
		out, err := a.Invoke(ctx, c, payload.CloneMap(config), payload.CloneMap(input))
		resultCh <- result{out: out, err: err}
	}()

	select {
	case res := <-resultCh:
		return res.out, res.err
	case <-ctx.Done():
		return nil, context.Cause(ctx)
	}
}
