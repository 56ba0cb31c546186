package ai

import (
	"context"
	"fmt"

	"github.com/OFFIS-RIT/kiwi/characters/internal/util"
	"github.com/OFFIS-RIT/kiwi/characters/pkg/logger"
)

// Query renders the prompt registered under id with vars, asks gen for a
// structured answer and decodes it into T.
//
// Timeouts, transient and malformed failures are retried with exponential
// backoff. Blocked and fatal failures are returned at once. Any failure is
// an *ExternalServiceError; errors.Is(err, ErrContentBlocked) identifies
// safety rejections. Cancellation of ctx is returned as ctx.Err().
func Query[T any](
	ctx context.Context,
	gen TextGenerator,
	id PromptID,
	vars any,
	opts ...GenerateOption,
) (T, error) {
	var zero T
	op := string(id)

	p, ok := LookupPrompt(id)
	if !ok {
		return zero, NewError(op, KindFatal, fmt.Errorf("unknown prompt %q", id))
	}
	prompt, err := p.Render(vars)
	if err != nil {
		return zero, NewError(op, KindFatal, err)
	}

	options := ApplyOptions(defaultCallOptions(p.Temperature), opts...)

	callOpts := make([]GenerateOption, 0, len(opts)+2)
	callOpts = append(callOpts, WithSystemPrompts(p.System), WithTemperature(p.Temperature))
	callOpts = append(callOpts, opts...)

	out, err := util.RetryWithBackoff(ctx, retryPolicy(options), func(ctx context.Context, attempt int) (T, error) {
		callCtx, cancel := attemptContext(ctx, options.Timeout)
		defer cancel()

		var res T
		err := gen.GenerateCompletionWithFormat(callCtx, p.Name, p.Description, prompt, &res, callOpts...)
		if err == nil {
			return res, nil
		}
		err = classifyAttempt(ctx, callCtx, op, err)
		logger.Debug("[AI] query attempt failed", "prompt", op, "attempt", attempt+1, "kind", KindOf(err), "err", err)
		return res, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		return zero, Classify(op, err)
	}
	return out, nil
}
