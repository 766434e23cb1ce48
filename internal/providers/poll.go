package providers

import (
	"context"
	"errors"
	"time"

	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/domain"
	"github.com/MichaelFKogan/CreatorAIStudio-sub007/internal/infra"
)

// PollOptions tunes the fallback polling loop. InitialDelay covers providers
// that need time before the first status query is meaningful; video work
// typically needs tens of seconds.
type PollOptions struct {
	Interval     time.Duration
	MaxAttempts  int
	InitialDelay time.Duration
	Logger       *infra.Logger
}

func (o PollOptions) withDefaults() PollOptions {
	if o.Interval <= 0 {
		o.Interval = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 120
	}
	return o
}

// Await polls a gateway's status endpoint until the task reaches a terminal
// outcome or the attempt budget runs out. Each attempt distinguishes three
// cases: result available (return it), explicit provider failure (return a
// ProviderError), anything else (sleep and try again). Exhausting the
// budget returns ErrTimeout, which callers must keep distinct from a
// provider-reported failure. Cancelling the context stops the loop between
// attempts; the last status written to the store, if any, stands.
func Await(ctx context.Context, g Gateway, taskID string, opts PollOptions) (string, error) {
	opts = opts.withDefaults()

	if opts.InitialDelay > 0 {
		if err := sleep(ctx, opts.InitialDelay); err != nil {
			return "", err
		}
	}

	for attempt := 1; attempt <= opts.MaxAttempts; attempt++ {
		status, err := g.Status(ctx, taskID)
		switch {
		case err != nil:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return "", err
			}
			// An explicit provider rejection will not heal on retry.
			if domain.IsTerminalRejection(err) {
				return "", err
			}
			// Transient transport failures burn an attempt but do not end
			// the loop; the budget bounds total wait either way.
			if opts.Logger != nil {
				opts.Logger.Warn().
					Err(err).
					Str("provider", string(g.Name())).
					Str("task_id", taskID).
					Int("attempt", attempt).
					Msg("poll attempt failed")
			}
		case status.Status == domain.JobStatusCompleted:
			if status.ResultURL == "" {
				return "", domain.ErrNoResult
			}
			return status.ResultURL, nil
		case status.Status == domain.JobStatusFailed:
			msg := status.ErrorMessage
			if msg == "" {
				msg = "generation failed"
			}
			return "", &domain.ProviderError{Provider: g.Name(), Message: msg}
		}

		if attempt < opts.MaxAttempts {
			if err := sleep(ctx, opts.Interval); err != nil {
				return "", err
			}
		}
	}
	return "", domain.ErrTimeout
}

// sleep waits for d or until the context is cancelled, without busy-waiting.
func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
