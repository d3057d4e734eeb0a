package evaluation

import (
	"context"
	"time"

	"github.com/richpaul1/promptopt/pkg/core"
	"github.com/richpaul1/promptopt/pkg/errors"
	"github.com/richpaul1/promptopt/pkg/logging"
)

// timeoutEvaluator bounds every evaluation call with its own deadline.
type timeoutEvaluator struct {
	inner   core.Evaluator
	timeout time.Duration
}

// WithTimeout wraps an evaluator so each call runs under its own deadline.
// A non-positive timeout returns the evaluator unchanged.
func WithTimeout(inner core.Evaluator, timeout time.Duration) core.Evaluator {
	if timeout <= 0 {
		return inner
	}
	return &timeoutEvaluator{inner: inner, timeout: timeout}
}

func (e *timeoutEvaluator) Evaluate(ctx context.Context, prompt, query string, examples []core.TrainingExample) (*core.Evaluation, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	eval, err := e.inner.Evaluate(callCtx, prompt, query, examples)
	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return nil, errors.Wrap(err, errors.Timeout, "evaluation exceeded deadline")
		}
		return nil, err
	}
	return eval, nil
}

// retryEvaluator retries transient evaluation failures with a fixed backoff.
// Invalid-input and cancellation errors are never retried.
type retryEvaluator struct {
	inner    core.Evaluator
	attempts int
	backoff  time.Duration
	logger   *logging.Logger
}

// WithRetries wraps an evaluator to retry failed calls. Attempts below two
// return the evaluator unchanged.
func WithRetries(inner core.Evaluator, attempts int, backoff time.Duration) core.Evaluator {
	if attempts < 2 {
		return inner
	}
	return &retryEvaluator{
		inner:    inner,
		attempts: attempts,
		backoff:  backoff,
		logger:   logging.GetLogger(),
	}
}

func (e *retryEvaluator) Evaluate(ctx context.Context, prompt, query string, examples []core.TrainingExample) (*core.Evaluation, error) {
	var lastErr error

	for attempt := 1; attempt <= e.attempts; attempt++ {
		eval, err := e.inner.Evaluate(ctx, prompt, query, examples)
		if err == nil {
			return eval, nil
		}
		lastErr = err

		if errors.HasCode(err, errors.InvalidInput) || errors.HasCode(err, errors.Canceled) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, err
		}

		if attempt < e.attempts {
			e.logger.Warn(ctx, "evaluation attempt %d/%d failed, retrying: %v", attempt, e.attempts, err)
			select {
			case <-time.After(e.backoff):
			case <-ctx.Done():
				return nil, errors.CheckContext(ctx, "evaluation retry")
			}
		}
	}
	return nil, lastErr
}
