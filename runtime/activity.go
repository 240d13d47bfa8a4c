package runtime

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"vibesync.dev/syncorch/internal/errkind"
)

// tracer instruments every activity invocation with a span, the ambient
// tracing carried per SPEC_FULL.md even though metric sinks are out of
// scope.
var tracer = otel.Tracer("vibesync.dev/syncorch/runtime")

// RetryPolicy mirrors spec §5's activity retry policy: bounded
// exponential backoff with a capped attempt count. Non-retryable error
// kinds (errkind.Validation/NotFound/Conflict) are surfaced immediately.
type RetryPolicy struct {
	InitialInterval time.Duration
	BackoffFactor   float64
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DefaultRetryPolicy matches the defaults named in spec §5: initial 2s,
// factor 2, max 60s, max attempts 5.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 2 * time.Second,
		BackoffFactor:   2.0,
		MaxInterval:     60 * time.Second,
		MaxAttempts:     5,
	}
}

// Activity is the unit of work executed with retries and a bounded
// timeout, modeled after the teacher's Executor.Execute(ctx, action)
// (*Result, error) shape: every activity returns an explicit result or
// error value, never panics.
type Activity func(ctx context.Context) (any, error)

// ExecuteActivity runs fn as a suspension point (spec §5): bounded by
// timeout, retried per policy unless the error is a non-retryable
// errkind.Kind. Each attempt runs inside its own OTel span.
func ExecuteActivity(ctx context.Context, name string, timeout time.Duration, policy RetryPolicy, fn Activity) (any, error) {
	var lastErr error
	interval := policy.InitialInterval
	if policy.MaxAttempts <= 0 {
		policy.MaxAttempts = 1
	}

	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		result, err := runOnce(ctx, name, timeout, fn)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !errkind.IsRetryable(err) {
			return nil, err
		}
		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(interval):
		}

		interval = time.Duration(float64(interval) * policy.BackoffFactor)
		if interval > policy.MaxInterval {
			interval = policy.MaxInterval
		}
	}
	return nil, lastErr
}

func runOnce(ctx context.Context, name string, timeout time.Duration, fn Activity) (result any, err error) {
	spanCtx, span := tracer.Start(ctx, "activity."+name)
	defer span.End()

	if timeout > 0 {
		var cancel context.CancelFunc
		spanCtx, cancel = context.WithTimeout(spanCtx, timeout)
		defer cancel()
	}

	result, err = fn(spanCtx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return result, err
}
